// Package world holds the authoritative in-memory state: the block
// map, the agent roster and the connected clients. All state is owned
// by a single goroutine; every mutation arrives over a channel and is
// processed to completion before the next one. A snapshot taken
// between two mutations therefore reflects exactly one of them, never
// a mix.
package world

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"moltcraft.dev/internal/persistence"
	"moltcraft.dev/internal/protocol"
)

type Config struct {
	Limits protocol.Limits
}

// Block is one labeled cell of the grid. Identity is the coordinate
// triple; two blocks with the same coordinates are the same entity.
type Block struct {
	X, Y, Z int
	Color   string
	Type    string
}

// Agent is one spawned participant. Connected reports whether a live
// transport is attached; HTTP-spawned agents are permanent and never
// connected.
type Agent struct {
	ID        string
	Name      string
	Color     string
	Avatar    string
	Position  protocol.Position
	Connected bool
}

type clientState struct {
	Out chan []byte
}

// Envelope is one validated ingress event. Exactly one payload field
// is set; Resp is optional and only used by the stateless HTTP path.
type Envelope struct {
	SessionID string

	Spawn       *protocol.SpawnMsg
	Move        *protocol.MoveMsg
	BlockPlace  *protocol.BlockPlaceMsg
	BlockRemove *protocol.BlockRemoveMsg
	Chat        *protocol.ChatMsg

	Resp chan Result
}

// Result answers a request/response caller. Err is nil on success.
type Result struct {
	Err   error
	Agent *protocol.AgentState
}

// ConnectRequest registers a session's outbound queue. The world
// replies by queueing a full state snapshot on Out before any
// subsequent broadcast.
type ConnectRequest struct {
	SessionID string
	Out       chan []byte
}

type querySnapshot struct {
	Blocks []protocol.BlockState
	Agents []protocol.AgentState
}

type queryReq struct {
	Resp chan querySnapshot
}

// AuditEntry records one accepted mutation or session transition.
type AuditEntry struct {
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Z         int    `json:"z,omitempty"`
	Color     string `json:"color,omitempty"`
	BlockType string `json:"block_type,omitempty"`
	Name      string `json:"name,omitempty"`
}

// AuditLogger sinks audit entries. Implementations must be fast or
// internally asynchronous; a failed write is ignored.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// Metrics is a point-in-time gauge set for the /metrics endpoint.
type Metrics struct {
	Blocks     int `json:"blocks"`
	Agents     int `json:"agents"`
	Clients    int `json:"clients"`
	InboxDepth int `json:"inbox_depth"`
}

// World is the single-threaded authoritative core. All maps must be
// accessed only from the Run goroutine.
type World struct {
	cfg Config
	log *log.Logger

	blocks  map[string]Block
	agents  map[string]*Agent
	clients map[string]*clientState

	inbox      chan Envelope
	connect    chan ConnectRequest
	disconnect chan string
	query      chan queryReq
	stop       chan struct{}

	metrics atomic.Value

	// Optional sinks (may be nil). Persistence runs off-thread; the
	// mutation path never waits on it.
	snapshotSink chan persistence.WorldFile
	auditLogger  AuditLogger

	now func() time.Time
}

func New(cfg Config, logger *log.Logger) *World {
	w := &World{
		cfg:        cfg,
		log:        logger,
		blocks:     make(map[string]Block),
		agents:     make(map[string]*Agent),
		clients:    make(map[string]*clientState),
		inbox:      make(chan Envelope, 256),
		connect:    make(chan ConnectRequest, 16),
		disconnect: make(chan string, 16),
		query:      make(chan queryReq, 16),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	w.metrics.Store(Metrics{})
	return w
}

// SeedBlocks loads the persisted world file into the block map. Call
// before Run; entries with malformed keys are skipped.
func (w *World) SeedBlocks(wf persistence.WorldFile) {
	for key, rec := range wf {
		x, y, z, ok := ParseKey(key)
		if !ok {
			if w.log != nil {
				w.log.Printf("world file: skipping malformed key %q", key)
			}
			continue
		}
		w.blocks[key] = Block{X: x, Y: y, Z: z, Color: rec.Color, Type: rec.Type}
	}
}

// SetSnapshotSink installs the persistence writer's inbox. The world
// pushes a full block-map copy after every accepted block mutation;
// if the sink is saturated the oldest pending copy is dropped in
// favor of the newest.
func (w *World) SetSnapshotSink(ch chan persistence.WorldFile) { w.snapshotSink = ch }

func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Inbox() chan<- Envelope { return w.inbox }
func (w *World) Connect() chan<- ConnectRequest { return w.connect }
func (w *World) Disconnect() chan<- string { return w.disconnect }

func (w *World) Metrics() Metrics { return w.metrics.Load().(Metrics) }

// Run consumes ingress events one at a time until ctx is canceled or
// Stop is called.
func (w *World) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.connect:
			w.handleConnect(req)
		case id := <-w.disconnect:
			w.handleDisconnect(id)
		case req := <-w.query:
			req.Resp <- querySnapshot{Blocks: w.blockSnapshot(), Agents: w.agentSnapshot()}
		case env := <-w.inbox:
			w.handleEnvelope(env)
		}
		w.storeMetrics()
	}
}

func (w *World) Stop() { close(w.stop) }

// handleEnvelope dispatches one validated event to its typed handler.
func (w *World) handleEnvelope(env Envelope) {
	switch {
	case env.Spawn != nil:
		w.handleSpawn(env)
	case env.Move != nil:
		w.handleMove(env)
	case env.BlockPlace != nil:
		w.handleBlockPlace(env)
	case env.BlockRemove != nil:
		w.handleBlockRemove(env)
	case env.Chat != nil:
		w.handleChat(env)
	default:
		w.respond(env, Result{Err: &protocol.ValidationError{Field: "type", Reason: "unknown event"}})
	}
}

// respond routes a handler outcome back to the originator: the Resp
// channel when the caller waits (HTTP), the session's outbound queue
// otherwise. Errors are never broadcast.
func (w *World) respond(env Envelope, res Result) {
	if env.Resp != nil {
		env.Resp <- res
		return
	}
	if res.Err != nil {
		w.sendError(env.SessionID, res.Err)
	}
}

func (w *World) storeMetrics() {
	w.metrics.Store(Metrics{
		Blocks:     len(w.blocks),
		Agents:     len(w.agents),
		Clients:    len(w.clients),
		InboxDepth: len(w.inbox),
	})
}

// Snapshot returns a point-in-time copy of blocks and agents. It goes
// through the world goroutine, so it never observes a half-applied
// mutation.
func (w *World) Snapshot(ctx context.Context) ([]protocol.BlockState, []protocol.AgentState, error) {
	resp := make(chan querySnapshot, 1)
	select {
	case w.query <- queryReq{Resp: resp}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case snap := <-resp:
		return snap.Blocks, snap.Agents, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (w *World) audit(entry AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	entry.Ts = w.now().UnixMilli()
	if err := w.auditLogger.WriteAudit(entry); err != nil && w.log != nil {
		w.log.Printf("audit write: %v", err)
	}
}
