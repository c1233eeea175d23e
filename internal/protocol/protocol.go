package protocol

import "encoding/json"

// Inbound message types (client -> server).
const (
	TypeSpawn       = "spawn"
	TypeMove        = "move"
	TypeBlockPlace  = "block:place"
	TypeBlockRemove = "block:remove"
	TypeChat        = "chat"
)

// Outbound message types (server -> client).
const (
	TypeJoined        = "joined"
	TypeMoved         = "moved"
	TypeLeft          = "left"
	TypeBlockPlaced   = "block:placed"
	TypeBlockRemoved  = "block:removed"
	TypeChatBroadcast = "chat:broadcast"
	TypeWorldState    = "world:state"
	TypeErrValidation = "error:validation"
	TypeErrNotFound   = "error:not_found"
	TypeErrRateLimit  = "error:rate_limit"
)

// BaseMessage lets us route unknown JSON frames by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
