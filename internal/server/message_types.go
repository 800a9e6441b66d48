package server

// MessageType is the type field of a websocket envelope
type MessageType string

const (
	// Client → Server
	MessageTypeAuth       MessageType = "auth"
	MessageTypeStartRound MessageType = "start_round"
	MessageTypeHit        MessageType = "hit"
	MessageTypeStand      MessageType = "stand"
	MessageTypeDoubleDown MessageType = "double_down"
	MessageTypeGetRound   MessageType = "get_round"
	MessageTypeGetStats   MessageType = "get_stats"

	// Server → Client
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeRoundState   MessageType = "round_state"
	MessageTypeStats        MessageType = "stats"
	MessageTypeError        MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsClientMessage reports whether clients may send this type
func (mt MessageType) IsClientMessage() bool {
	switch mt {
	case MessageTypeAuth, MessageTypeStartRound, MessageTypeHit, MessageTypeStand,
		MessageTypeDoubleDown, MessageTypeGetRound, MessageTypeGetStats:
		return true
	}
	return false
}
