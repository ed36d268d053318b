// internal/models/chat.go
package models

import (
	"encoding/json"
	"time"
)

// DefaultTemperature is sent upstream when neither the request nor its
// personality carries one.
const DefaultTemperature = 0.7

// ChatRequest is the body of POST /api/chat.
//
// When Personality is set the server renders the system prompt and wraps the
// last user turn in its character context; otherwise the messages are relayed
// as the client rendered them.
type ChatRequest struct {
	Messages       []ConversationTurn `json:"messages" validate:"required,min=1,dive"`
	Temperature    *float64           `json:"temperature" validate:"omitempty,gte=0,lte=1"`
	IsFirstMessage bool               `json:"isFirstMessage"`
	Personality    *Personality       `json:"personality,omitempty" validate:"omitempty"`
	Greeting       string             `json:"greeting,omitempty"`
}

// History returns the request messages as a conversation history.
func (r *ChatRequest) History() ConversationHistory {
	return ConversationHistory(r.Messages).Clone()
}

// EffectiveTemperature returns the requested temperature, then the attached
// personality's, then the default.
func (r *ChatRequest) EffectiveTemperature() float64 {
	switch {
	case r.Temperature != nil:
		return *r.Temperature
	case r.Personality != nil:
		return r.Personality.Temperature
	default:
		return DefaultTemperature
	}
}

// AssistantReply is a successful upstream answer.
type AssistantReply struct {
	// Content is choices[0].message.content.
	Content string
	// Raw is the upstream body, relayed to the caller.
	Raw json.RawMessage
}

// ReplyChunk is one streamed fragment of an assistant reply.
type ReplyChunk struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Done         bool   `json:"done"`
	Err          error  `json:"-"`
}

// SessionRequest asks for a session token. An empty UserID gets a generated one.
type SessionRequest struct {
	UserID string `json:"userId" validate:"omitempty,max=128"`
}

// SessionResponse carries a freshly issued session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TraitRequest asks the upstream for a generated trait list.
type TraitRequest struct {
	Reference string `json:"reference" validate:"required"`
	Language  string `json:"language"`
}

// ContextRequest asks the server to render a turn with its own clock.
type ContextRequest struct {
	Personality   Personality `json:"personality"`
	Message       string      `json:"message"`
	Greeting      string      `json:"greeting"`
	HistoryLength int         `json:"historyLength" validate:"gte=0"`
}
