package world

import (
	"sort"

	"moltcraft.dev/internal/protocol"
)

// defaultSpawn is where a fresh agent appears.
var defaultSpawn = protocol.Position{X: 0, Y: 1, Z: 0}

func (w *World) agentSnapshot() []protocol.AgentState {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]protocol.AgentState, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.agents[id].state())
	}
	return out
}

func (a *Agent) state() protocol.AgentState {
	return protocol.AgentState{
		ID:        a.ID,
		Name:      a.Name,
		Color:     a.Color,
		Avatar:    a.Avatar,
		Position:  a.Position,
		Connected: a.Connected,
	}
}

// handleConnect registers a session's outbound queue and seeds it
// with the full current state. Late joiners converge through this
// snapshot, not through event replay.
func (w *World) handleConnect(req ConnectRequest) {
	if req.Out == nil {
		return
	}
	w.clients[req.SessionID] = &clientState{Out: req.Out}
	w.sendTo(req.SessionID, protocol.WorldStateMsg{
		Type:   protocol.TypeWorldState,
		Blocks: w.blockSnapshot(),
		Agents: w.agentSnapshot(),
	})
}

// handleDisconnect tears a session down. A leave broadcast fires only
// if the session had spawned; a connection that closes before
// spawning produces no event. Removal and broadcast happen in one
// step on the world goroutine, so no later snapshot can still contain
// the departed agent.
func (w *World) handleDisconnect(sessionID string) {
	delete(w.clients, sessionID)
	if _, ok := w.agents[sessionID]; !ok {
		return
	}
	delete(w.agents, sessionID)
	w.broadcast(sessionID, protocol.LeftMsg{Type: protocol.TypeLeft, ID: sessionID})
	w.audit(AuditEntry{SessionID: sessionID, Action: "leave"})
}

// handleSpawn creates the agent, or updates name/color/avatar in
// place when the session already spawned. Re-spawn never creates a
// second entry.
func (w *World) handleSpawn(env Envelope) {
	msg := env.Spawn
	a, known := w.agents[env.SessionID]
	if known {
		a.Name = msg.Name
		a.Color = msg.Color
		a.Avatar = msg.Avatar
	} else {
		a = &Agent{
			ID:        env.SessionID,
			Name:      msg.Name,
			Color:     msg.Color,
			Avatar:    msg.Avatar,
			Position:  defaultSpawn,
			Connected: w.clients[env.SessionID] != nil,
		}
		w.agents[env.SessionID] = a
		w.audit(AuditEntry{SessionID: env.SessionID, Action: "join", Name: a.Name})
	}

	joined := protocol.JoinedMsg{
		Type:     protocol.TypeJoined,
		ID:       a.ID,
		Name:     a.Name,
		Color:    a.Color,
		Avatar:   a.Avatar,
		Position: a.Position,
	}
	st := a.state()
	if env.Resp != nil {
		env.Resp <- Result{Agent: &st}
	} else {
		w.sendTo(env.SessionID, joined)
	}
	w.broadcast(env.SessionID, joined)
}

// handleMove overwrites the agent's position and announces it to
// everyone except the mover.
func (w *World) handleMove(env Envelope) {
	a, ok := w.agents[env.SessionID]
	if !ok {
		w.respond(env, Result{Err: &protocol.NotFoundError{Kind: "agent", ID: env.SessionID}})
		return
	}
	a.Position = env.Move.Position
	w.broadcast(env.SessionID, protocol.MovedMsg{
		Type:     protocol.TypeMoved,
		ID:       a.ID,
		Position: a.Position,
	})
	w.respond(env, Result{})
}

// handleChat fans the message out to every connected session,
// including the sender.
func (w *World) handleChat(env Envelope) {
	a, ok := w.agents[env.SessionID]
	if !ok {
		w.respond(env, Result{Err: &protocol.NotFoundError{Kind: "agent", ID: env.SessionID}})
		return
	}
	w.broadcast("", protocol.ChatBroadcastMsg{
		Type:      protocol.TypeChatBroadcast,
		From:      a.Name,
		Message:   env.Chat.Message,
		Timestamp: w.now().UnixMilli(),
	})
	w.respond(env, Result{})
}
