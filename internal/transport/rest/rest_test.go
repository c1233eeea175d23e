package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moltcraft.dev/internal/protocol"
	"moltcraft.dev/internal/ratelimit"
	"moltcraft.dev/internal/transport/rest"
	"moltcraft.dev/internal/world"
)

func newTestServer(t *testing.T, generalMax, blockMax int) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	limits := protocol.DefaultLimits()

	w := world.New(world.Config{Limits: limits}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	limiter := ratelimit.New(time.Second, generalMax, blockMax)
	srv := httptest.NewServer(rest.NewServer(w, limiter, limits, logger).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestSpawnAndListAgents(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	resp := postJSON(t, srv.URL+"/spawn", map[string]string{
		"name": "Scripted_Bot", "color": "#00AAFF", "avatar": "robot",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("spawn status %d", resp.StatusCode)
	}
	var agent protocol.AgentState
	decodeBody(t, resp, &agent)
	if agent.ID == "" || agent.Name != "Scripted_Bot" || agent.Connected {
		t.Fatalf("agent %+v", agent)
	}

	list, err := http.Get(srv.URL + "/agents")
	if err != nil {
		t.Fatalf("get agents: %v", err)
	}
	var agents []protocol.AgentState
	decodeBody(t, list, &agents)
	if len(agents) != 1 || agents[0].ID != agent.ID {
		t.Fatalf("agents %+v", agents)
	}
}

func TestSpawnValidation(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	resp := postJSON(t, srv.URL+"/spawn", map[string]string{
		"name": "Bot!", "color": "#00AAFF",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["code"] != protocol.ErrValidation || body["error"] == "" {
		t.Fatalf("error body %+v", body)
	}
}

func TestBlockPlaceAndWorld(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	resp := postJSON(t, srv.URL+"/block", map[string]any{
		"action": "place", "x": 5, "y": 1, "z": 5, "color": "#8B4513", "type": "stone",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place status %d", resp.StatusCode)
	}
	resp.Body.Close()

	get, err := http.Get(srv.URL + "/world")
	if err != nil {
		t.Fatalf("get world: %v", err)
	}
	var blocks []protocol.BlockState
	decodeBody(t, get, &blocks)
	if len(blocks) != 1 {
		t.Fatalf("world has %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if b.X != 5 || b.Y != 1 || b.Z != 5 || b.Color != "#8B4513" || b.Kind != "stone" {
		t.Fatalf("block %+v", b)
	}

	// Remove through the /api alias used by the original scripts.
	resp = postJSON(t, srv.URL+"/api/block", map[string]any{
		"action": "remove", "x": 5, "y": 1, "z": 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status %d", resp.StatusCode)
	}
	resp.Body.Close()

	get, err = http.Get(srv.URL + "/api/world")
	if err != nil {
		t.Fatalf("get world: %v", err)
	}
	decodeBody(t, get, &blocks)
	if len(blocks) != 0 {
		t.Fatalf("world has %d blocks after remove", len(blocks))
	}
}

func TestBlockValidationLeavesWorldUnchanged(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	cases := []map[string]any{
		{"action": "place", "x": 5, "y": 1, "z": 5, "color": "blue", "type": "stone"},
		{"action": "place", "x": 201, "y": 1, "z": 5, "color": "#8B4513", "type": "stone"},
		{"action": "place", "x": 5, "y": 300, "z": 5, "color": "#8B4513", "type": "stone"},
		{"action": "place", "x": 5.5, "y": 1, "z": 5, "color": "#8B4513", "type": "stone"},
		{"action": "place", "x": 5, "y": 1.5, "z": 5, "color": "#8B4513", "type": "stone"},
		{"action": "place", "x": 5, "y": 1, "z": 5, "color": "#8B4513", "type": "lava"},
		{"action": "dig", "x": 5, "y": 1, "z": 5},
	}
	for _, c := range cases {
		resp := postJSON(t, srv.URL+"/block", c)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("request %+v: status %d, want 400", c, resp.StatusCode)
		}
		resp.Body.Close()
	}

	get, err := http.Get(srv.URL + "/world")
	if err != nil {
		t.Fatalf("get world: %v", err)
	}
	var blocks []protocol.BlockState
	decodeBody(t, get, &blocks)
	if len(blocks) != 0 {
		t.Fatalf("rejected mutations changed the world: %+v", blocks)
	}
}

func TestMoveAgent(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	resp := postJSON(t, srv.URL+"/spawn", map[string]string{
		"name": "Mover", "color": "#112233", "avatar": "bot",
	})
	var agent protocol.AgentState
	decodeBody(t, resp, &agent)

	resp = postJSON(t, srv.URL+"/move", map[string]any{
		"id":       agent.ID,
		"position": map[string]float64{"x": 10.5, "y": 2, "z": -3.25},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move status %d", resp.StatusCode)
	}
	resp.Body.Close()

	get, err := http.Get(srv.URL + "/agents")
	if err != nil {
		t.Fatalf("get agents: %v", err)
	}
	var agents []protocol.AgentState
	decodeBody(t, get, &agents)
	if len(agents) != 1 || agents[0].Position.X != 10.5 || agents[0].Position.Z != -3.25 {
		t.Fatalf("agents %+v", agents)
	}
}

func TestMoveUnknownAgent(t *testing.T) {
	srv := newTestServer(t, 1000, 1000)

	resp := postJSON(t, srv.URL+"/move", map[string]any{
		"id":       "nobody",
		"position": map[string]float64{"x": 1, "y": 1, "z": 1},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["code"] != protocol.ErrNotFound {
		t.Fatalf("error body %+v", body)
	}
}

func TestBlockMutationThrottled(t *testing.T) {
	srv := newTestServer(t, 20, 10)

	throttled := 0
	for i := 0; i < 11; i++ {
		resp := postJSON(t, srv.URL+"/block", map[string]any{
			"action": "place", "x": i, "y": 1, "z": 0, "color": "#8B4513", "type": "stone",
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			throttled++
		}
		resp.Body.Close()
	}
	if throttled == 0 {
		t.Fatalf("11 block mutations within one window, none throttled")
	}
}
