// Package ws is the real-time ingress: one websocket per session,
// rate-limited and validated before anything reaches the world loop.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"moltcraft.dev/internal/protocol"
	"moltcraft.dev/internal/ratelimit"
	"moltcraft.dev/internal/world"
)

const (
	outQueueSize = 64

	writeWait = 5 * time.Second
)

type Server struct {
	world   *world.World
	limiter *ratelimit.Limiter
	limits  protocol.Limits
	log     *log.Logger

	upgrader websocket.Upgrader

	// A connection that misses pongWait without any traffic (frames
	// or pongs) is considered half-open and torn down.
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(w *world.World, limiter *ratelimit.Limiter, limits protocol.Limits, logger *log.Logger) *Server {
	return &Server{
		world:   w,
		limiter: limiter,
		limits:  limits,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			if s.log != nil {
				s.log.Printf("ws upgrade: %v", err)
			}
			return
		}
		defer conn.Close()

		sessionID := uuid.NewString()
		out := make(chan []byte, outQueueSize)

		// Register first: the connect handler queues the world:state
		// snapshot on out before any later broadcast.
		s.world.Connect() <- world.ConnectRequest{SessionID: sessionID, Out: out}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(s.pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleFrame(sessionID, msg, out)
		}

		// Connection loss is not a reportable error; it only drives
		// the disconnect transition.
		s.world.Disconnect() <- sessionID
		s.limiter.Forget(sessionID)
	}
}

// handleFrame decodes one inbound frame, applies rate limiting and
// validation, and forwards the typed envelope to the world loop.
// Failures are reported on the session's own queue, never broadcast.
func (s *Server) handleFrame(sessionID string, msg []byte, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.replyError(out, protocol.TypeErrValidation, protocol.ErrBadRequest, "malformed frame")
		return
	}

	scope := ratelimit.ScopeGeneral
	if base.Type == protocol.TypeBlockPlace || base.Type == protocol.TypeBlockRemove {
		scope = ratelimit.ScopeBlock
	}
	if !s.limiter.Allow(sessionID, scope) {
		terr := &protocol.ThrottledError{Origin: sessionID, Scope: base.Type}
		s.replyError(out, protocol.TypeErrRateLimit, protocol.ErrRateLimit, terr.Error())
		return
	}

	env := world.Envelope{SessionID: sessionID}
	var verr error
	switch base.Type {
	case protocol.TypeSpawn:
		var m protocol.SpawnMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			verr = &protocol.ValidationError{Field: "spawn", Reason: "malformed payload"}
			break
		}
		verr = s.limits.CheckSpawn(&m)
		env.Spawn = &m
	case protocol.TypeMove:
		var m protocol.MoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			verr = &protocol.ValidationError{Field: "move", Reason: "malformed payload"}
			break
		}
		verr = s.limits.CheckMove(&m)
		env.Move = &m
	case protocol.TypeBlockPlace:
		var m protocol.BlockPlaceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			verr = &protocol.ValidationError{Field: "block:place", Reason: "malformed payload"}
			break
		}
		verr = s.limits.CheckBlockPlace(&m)
		env.BlockPlace = &m
	case protocol.TypeBlockRemove:
		var m protocol.BlockRemoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			verr = &protocol.ValidationError{Field: "block:remove", Reason: "malformed payload"}
			break
		}
		verr = s.limits.CheckBlockRemove(&m)
		env.BlockRemove = &m
	case protocol.TypeChat:
		var m protocol.ChatMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			verr = &protocol.ValidationError{Field: "chat", Reason: "malformed payload"}
			break
		}
		verr = s.limits.CheckChat(&m)
		env.Chat = &m
	default:
		// Unknown frame types are dropped silently.
		return
	}

	if verr != nil {
		s.replyError(out, protocol.TypeFor(verr), protocol.CodeFor(verr), verr.Error())
		return
	}
	s.world.Inbox() <- env
}

func (s *Server) replyError(out chan []byte, frameType, code, message string) {
	b, err := json.Marshal(protocol.ErrorMsg{Type: frameType, Code: code, Message: message})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}
