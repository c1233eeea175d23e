package world

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"moltcraft.dev/internal/persistence"
	"moltcraft.dev/internal/protocol"
)

// Key derives the canonical block identity from its coordinates.
func Key(x, y, z int) string {
	return fmt.Sprintf("%d,%d,%d", x, y, z)
}

// ParseKey reverses Key. ok is false for malformed input.
func ParseKey(key string) (x, y, z int, ok bool) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

// place inserts or overwrites the block at its key. Repeated identical
// calls leave exactly one entry. Inputs are validated by the caller.
func (w *World) place(x, y, z int, color, blockType string) Block {
	b := Block{X: x, Y: y, Z: z, Color: color, Type: blockType}
	w.blocks[Key(x, y, z)] = b
	return b
}

// removeBlock deletes the entry if present. Removing an absent key is
// a no-op; removed reports whether anything changed.
func (w *World) removeBlock(x, y, z int) (removed bool) {
	key := Key(x, y, z)
	if _, ok := w.blocks[key]; !ok {
		return false
	}
	delete(w.blocks, key)
	return true
}

// blockSnapshot returns an ordered copy of every block currently
// present. Only called from the world goroutine.
func (w *World) blockSnapshot() []protocol.BlockState {
	keys := make([]string, 0, len(w.blocks))
	for k := range w.blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]protocol.BlockState, 0, len(keys))
	for _, k := range keys {
		b := w.blocks[k]
		out = append(out, protocol.BlockState{X: b.X, Y: b.Y, Z: b.Z, Color: b.Color, Kind: b.Type})
	}
	return out
}

// persistBlocks hands a full block-map copy to the persistence
// writer. The send never blocks: on a saturated sink the oldest
// pending copy is dropped so the newest always wins.
func (w *World) persistBlocks() {
	if w.snapshotSink == nil {
		return
	}
	wf := make(persistence.WorldFile, len(w.blocks))
	for k, b := range w.blocks {
		wf[k] = persistence.BlockRecord{Color: b.Color, Type: b.Type}
	}
	select {
	case w.snapshotSink <- wf:
		return
	default:
	}
	select {
	case <-w.snapshotSink:
	default:
	}
	select {
	case w.snapshotSink <- wf:
	default:
	}
}

func (w *World) handleBlockPlace(env Envelope) {
	msg := env.BlockPlace
	x, y, z := int(msg.X), int(msg.Y), int(msg.Z)
	b := w.place(x, y, z, msg.Color, msg.BlockType)

	w.broadcast("", protocol.BlockPlacedMsg{
		Type: protocol.TypeBlockPlaced,
		X:    b.X, Y: b.Y, Z: b.Z,
		Color:     b.Color,
		BlockType: b.Type,
	})
	w.audit(AuditEntry{SessionID: env.SessionID, Action: "place", X: x, Y: y, Z: z, Color: b.Color, BlockType: b.Type})
	w.persistBlocks()
	w.respond(env, Result{})
}

func (w *World) handleBlockRemove(env Envelope) {
	msg := env.BlockRemove
	x, y, z := int(msg.X), int(msg.Y), int(msg.Z)
	if !w.removeBlock(x, y, z) {
		// Absent key: nothing changed, nothing to announce.
		w.respond(env, Result{})
		return
	}

	w.broadcast("", protocol.BlockRemovedMsg{Type: protocol.TypeBlockRemoved, X: x, Y: y, Z: z})
	w.audit(AuditEntry{SessionID: env.SessionID, Action: "remove", X: x, Y: y, Z: z})
	w.persistBlocks()
	w.respond(env, Result{})
}
