package world

import (
	"encoding/json"

	"moltcraft.dev/internal/protocol"
)

// broadcast marshals the event once and queues it on every connected
// session except excludeID. Delivery is best-effort, at-most-once: a
// saturated session queue drops its oldest frame rather than stalling
// the world loop. Events queue per session in the order they were
// produced here.
func (w *World) broadcast(excludeID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		if w.log != nil {
			w.log.Printf("broadcast marshal: %v", err)
		}
		return
	}
	for id, c := range w.clients {
		if id == excludeID {
			continue
		}
		sendLatest(c.Out, b)
	}
}

// sendTo queues one event for a single session.
func (w *World) sendTo(sessionID string, v any) {
	c := w.clients[sessionID]
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		if w.log != nil {
			w.log.Printf("send marshal: %v", err)
		}
		return
	}
	sendLatest(c.Out, b)
}

// sendError reports a failure to the originating session only.
func (w *World) sendError(sessionID string, err error) {
	w.sendTo(sessionID, protocol.ErrorMsg{
		Type:    protocol.TypeFor(err),
		Code:    protocol.CodeFor(err),
		Message: err.Error(),
	})
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
