// Package rest is the stateless HTTP ingress. It funnels into the
// same validated mutation path as the websocket channel and produces
// the same side effects: state mutation, broadcast, persistence.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"moltcraft.dev/internal/protocol"
	"moltcraft.dev/internal/ratelimit"
	"moltcraft.dev/internal/world"
)

type Server struct {
	world   *world.World
	limiter *ratelimit.Limiter
	limits  protocol.Limits
	log     *log.Logger
}

func NewServer(w *world.World, limiter *ratelimit.Limiter, limits protocol.Limits, logger *log.Logger) *Server {
	return &Server{world: w, limiter: limiter, limits: limits, log: logger}
}

// Router mounts the gateway at the bare paths and under /api, which
// the original build scripts use.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	s.mount(r)
	r.Route("/api", func(r chi.Router) { s.mount(r) })
	return r
}

func (s *Server) mount(r chi.Router) {
	r.Get("/world", s.getWorld)
	r.Get("/agents", s.getAgents)
	r.Post("/spawn", s.postSpawn)
	r.Post("/move", s.postMove)
	r.Post("/block", s.postBlock)
}

func (s *Server) getWorld(rw http.ResponseWriter, r *http.Request) {
	blocks, _, err := s.world.Snapshot(r.Context())
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errBody(protocol.ErrInternal, "world unavailable"))
		return
	}
	writeJSON(rw, http.StatusOK, blocks)
}

func (s *Server) getAgents(rw http.ResponseWriter, r *http.Request) {
	_, agents, err := s.world.Snapshot(r.Context())
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errBody(protocol.ErrInternal, "world unavailable"))
		return
	}
	writeJSON(rw, http.StatusOK, agents)
}

type spawnRequest struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Avatar string `json:"avatar"`
}

func (s *Server) postSpawn(rw http.ResponseWriter, r *http.Request) {
	if !s.admit(rw, r, ratelimit.ScopeGeneral) {
		return
	}
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, errBody(protocol.ErrBadRequest, "malformed request body"))
		return
	}
	msg := protocol.SpawnMsg{Type: protocol.TypeSpawn, Name: req.Name, Color: req.Color, Avatar: req.Avatar}
	if err := s.limits.CheckSpawn(&msg); err != nil {
		writeError(rw, err)
		return
	}

	// Stateless callers get a synthetic, connection-independent
	// session id; no disconnect transition ever removes it.
	sessionID := uuid.NewString()
	res, err := s.dispatch(r.Context(), world.Envelope{SessionID: sessionID, Spawn: &msg})
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errBody(protocol.ErrInternal, "world unavailable"))
		return
	}
	if res.Err != nil {
		writeError(rw, res.Err)
		return
	}
	writeJSON(rw, http.StatusCreated, res.Agent)
}

type moveRequest struct {
	ID       string            `json:"id"`
	Position protocol.Position `json:"position"`
}

func (s *Server) postMove(rw http.ResponseWriter, r *http.Request) {
	if !s.admit(rw, r, ratelimit.ScopeGeneral) {
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, errBody(protocol.ErrBadRequest, "malformed request body"))
		return
	}
	msg := protocol.MoveMsg{Type: protocol.TypeMove, Position: req.Position}
	if err := s.limits.CheckMove(&msg); err != nil {
		writeError(rw, err)
		return
	}
	res, err := s.dispatch(r.Context(), world.Envelope{SessionID: req.ID, Move: &msg})
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errBody(protocol.ErrInternal, "world unavailable"))
		return
	}
	if res.Err != nil {
		writeError(rw, res.Err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"ok": true})
}

type blockRequest struct {
	Action string  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Color  string  `json:"color"`
	Type   string  `json:"type"`
}

func (s *Server) postBlock(rw http.ResponseWriter, r *http.Request) {
	if !s.admit(rw, r, ratelimit.ScopeBlock) {
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, errBody(protocol.ErrBadRequest, "malformed request body"))
		return
	}

	env := world.Envelope{SessionID: "http:" + origin(r)}
	switch req.Action {
	case "place":
		msg := protocol.BlockPlaceMsg{
			Type: protocol.TypeBlockPlace,
			X:    req.X, Y: req.Y, Z: req.Z,
			Color:     req.Color,
			BlockType: req.Type,
		}
		if err := s.limits.CheckBlockPlace(&msg); err != nil {
			writeError(rw, err)
			return
		}
		env.BlockPlace = &msg
	case "remove":
		msg := protocol.BlockRemoveMsg{Type: protocol.TypeBlockRemove, X: req.X, Y: req.Y, Z: req.Z}
		if err := s.limits.CheckBlockRemove(&msg); err != nil {
			writeError(rw, err)
			return
		}
		env.BlockRemove = &msg
	default:
		writeJSON(rw, http.StatusBadRequest, errBody(protocol.ErrValidation, "action must be place or remove"))
		return
	}

	res, err := s.dispatch(r.Context(), env)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errBody(protocol.ErrInternal, "world unavailable"))
		return
	}
	if res.Err != nil {
		writeError(rw, res.Err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"ok": true})
}

// admit applies the per-origin rate cap before validation. Rejected
// requests are dropped, not queued.
func (s *Server) admit(rw http.ResponseWriter, r *http.Request, scope ratelimit.Scope) bool {
	o := origin(r)
	if s.limiter.Allow(o, scope) {
		return true
	}
	terr := &protocol.ThrottledError{Origin: o, Scope: "http"}
	writeJSON(rw, http.StatusTooManyRequests, errBody(protocol.ErrRateLimit, terr.Error()))
	return false
}

// dispatch hands the envelope to the world loop and waits for its
// result.
func (s *Server) dispatch(ctx context.Context, env world.Envelope) (world.Result, error) {
	resp := make(chan world.Result, 1)
	env.Resp = resp
	select {
	case s.world.Inbox() <- env:
	case <-ctx.Done():
		return world.Result{}, ctx.Err()
	}
	select {
	case res := <-resp:
		return res, nil
	case <-ctx.Done():
		return world.Result{}, ctx.Err()
	}
}

func origin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var nf *protocol.NotFoundError
	if errors.As(err, &nf) {
		status = http.StatusNotFound
	}
	writeJSON(rw, status, errBody(protocol.CodeFor(err), err.Error()))
}

func errBody(code, message string) map[string]string {
	return map[string]string{"code": code, "error": message}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
