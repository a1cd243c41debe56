package ws

const (
	// client - server
	MsgPing = "ping"

	// server - client
	MsgReady = "ready"
	MsgPong  = "pong"
	MsgError = "error"
)

// Message is the envelope of every frame. Domain events use their event
// type (mission_completed, reward_settled, ...) as Type.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      int64       `json:"at,omitempty"`
}
