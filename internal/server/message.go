package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Decode unmarshals the message payload into v
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

type AuthData struct {
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

type StartRoundData struct {
	BetAmount int64 `json:"bet_amount"`
}

// RoundActionData is the payload of hit, stand, double_down and get_round
type RoundActionData struct {
	RoundID string `json:"round_id"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Balance int64  `json:"balance"`
	// ActiveRound is the user's unfinished round, if any
	ActiveRound *game.Snapshot `json:"active_round,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RoundStateData is sent after every round action
type RoundStateData = game.Snapshot

// StatsData is the response to get_stats
type StatsData = storage.Stats

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the HTTP error body
type ErrorResponse struct {
	Error ErrorData `json:"error"`
}

// NewErrorData maps err onto its API code
func NewErrorData(err error) ErrorData {
	code, _ := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return ErrorData{Code: code, Message: msg}
}
