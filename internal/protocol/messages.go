package protocol

// Position is an agent position. Unlike block coordinates it is
// continuous: non-integer values are allowed on every axis.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SPAWN (client -> server)
type SpawnMsg struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Avatar string `json:"avatar"`
}

// MOVE (client -> server)
type MoveMsg struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// BLOCK:PLACE (client -> server). Coordinates arrive as JSON numbers;
// the gate rejects non-integer values rather than rounding them. The
// block type travels as block_type because type is the frame kind.
type BlockPlaceMsg struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Color     string  `json:"color"`
	BlockType string  `json:"block_type"`
}

// BLOCK:REMOVE (client -> server)
type BlockRemoveMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// CHAT (client -> server)
type ChatMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// JOINED (server -> client). Sent to the spawning session first, then
// broadcast to everyone else.
type JoinedMsg struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Color    string   `json:"color"`
	Avatar   string   `json:"avatar"`
	Position Position `json:"position"`
}

// MOVED (server -> client, broadcast to all but the mover)
type MovedMsg struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// LEFT (server -> client, broadcast)
type LeftMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// BLOCK:PLACED (server -> client, broadcast to all sessions)
type BlockPlacedMsg struct {
	Type      string `json:"type"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Color     string `json:"color"`
	BlockType string `json:"block_type"`
}

// BLOCK:REMOVED (server -> client, broadcast to all sessions)
type BlockRemovedMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
}

// CHAT:BROADCAST (server -> client, broadcast to all sessions)
type ChatBroadcastMsg struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// WORLD:STATE (server -> client, connect-time snapshot for that
// session only)
type WorldStateMsg struct {
	Type   string       `json:"type"`
	Blocks []BlockState `json:"blocks"`
	Agents []AgentState `json:"agents"`
}

// ErrorMsg carries every reportable failure back to the originating
// session; it is never broadcast.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// BlockState is the snapshot/REST representation of one block.
type BlockState struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Color string `json:"color"`
	Kind  string `json:"type"`
}

// AgentState is the snapshot/REST representation of one agent.
type AgentState struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	Avatar    string   `json:"avatar"`
	Position  Position `json:"position"`
	Connected bool     `json:"connected"`
}
