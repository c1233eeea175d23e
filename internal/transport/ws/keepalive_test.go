package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"moltcraft.dev/internal/protocol"
	"moltcraft.dev/internal/ratelimit"
	"moltcraft.dev/internal/world"
)

func newKeepaliveServer(t *testing.T, pongWait, pingPeriod time.Duration) string {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	limits := protocol.DefaultLimits()

	w := world.New(world.Config{Limits: limits}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	s := NewServer(w, ratelimit.New(time.Second, 1000, 1000), limits, logger)
	s.pongWait = pongWait
	s.pingPeriod = pingPeriod
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// pumpFrames reads every data frame into a channel. Running the read
// pump also answers server pings with the client's default pong
// reply; the channel closes when the connection drops.
func pumpFrames(conn *websocket.Conn) chan map[string]any {
	frames := make(chan map[string]any, 16)
	go func() {
		defer close(frames)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				frames <- m
			}
		}
	}()
	return frames
}

func nextFrame(t *testing.T, frames chan map[string]any) map[string]any {
	t.Helper()
	select {
	case m, ok := <-frames:
		if !ok {
			t.Fatalf("connection dropped")
		}
		return m
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame within deadline")
		return nil
	}
}

func TestHalfOpenConnectionTornDown(t *testing.T) {
	url := newKeepaliveServer(t, 250*time.Millisecond, 100*time.Millisecond)

	silent, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { silent.Close() })

	_ = silent.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := silent.ReadMessage(); err != nil { // world:state
		t.Fatalf("snapshot: %v", err)
	}
	if err := silent.WriteJSON(protocol.SpawnMsg{Type: protocol.TypeSpawn, Name: "Ghost", Color: "#FF0000"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	_, b, err := silent.ReadMessage() // joined reply
	if err != nil {
		t.Fatalf("joined: %v", err)
	}
	var joined map[string]any
	if err := json.Unmarshal(b, &joined); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	silentID := joined["id"].(string)
	// From here the session goes mute: no frames, no pongs.

	watcher, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial watcher: %v", err)
	}
	t.Cleanup(func() { watcher.Close() })
	frames := pumpFrames(watcher)

	state := nextFrame(t, frames)
	if state["type"] != protocol.TypeWorldState {
		t.Fatalf("first frame %v", state["type"])
	}
	if agents := state["agents"].([]any); len(agents) != 1 {
		t.Fatalf("snapshot agents = %d", len(agents))
	}

	// The mute session misses its pong window and is disconnected.
	left := nextFrame(t, frames)
	if left["type"] != protocol.TypeLeft || left["id"] != silentID {
		t.Fatalf("left frame %+v", left)
	}
}

func TestIdleConnectionSurvivesPings(t *testing.T) {
	url := newKeepaliveServer(t, 200*time.Millisecond, 50*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	frames := pumpFrames(conn)

	if state := nextFrame(t, frames); state["type"] != protocol.TypeWorldState {
		t.Fatalf("first frame %v", state["type"])
	}

	// Idle for several pong windows; the read pump's pong replies
	// keep the session alive.
	time.Sleep(1 * time.Second)

	if err := conn.WriteJSON(protocol.SpawnMsg{Type: protocol.TypeSpawn, Name: "Lurker", Color: "#00FF00"}); err != nil {
		t.Fatalf("spawn after idle: %v", err)
	}
	joined := nextFrame(t, frames)
	if joined["type"] != protocol.TypeJoined || joined["name"] != "Lurker" {
		t.Fatalf("joined frame %+v", joined)
	}
}
