package protocol

// Per-event gates. Each runs every applicable check and returns the
// first typed failure; a nil result means the whole event is clean.
// Both ingress paths (websocket and HTTP) call these before any state
// is touched.

func (l Limits) CheckSpawn(m *SpawnMsg) error {
	if err := l.ValidateAgentName(m.Name); err != nil {
		return err
	}
	return ValidateColor(m.Color)
}

func (l Limits) CheckMove(m *MoveMsg) error {
	return l.ValidatePosition(m.Position)
}

func (l Limits) CheckBlockPlace(m *BlockPlaceMsg) error {
	if err := l.ValidateCoordinates(m.X, m.Y, m.Z); err != nil {
		return err
	}
	if err := ValidateColor(m.Color); err != nil {
		return err
	}
	return ValidateBlockType(m.BlockType)
}

func (l Limits) CheckBlockRemove(m *BlockRemoveMsg) error {
	return l.ValidateCoordinates(m.X, m.Y, m.Z)
}

func (l Limits) CheckChat(m *ChatMsg) error {
	return l.ValidateMessage(m.Message)
}
