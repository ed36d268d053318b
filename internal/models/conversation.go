// internal/models/conversation.go
package models

import (
	"strings"
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContinuationSentinel is the placeholder user message meaning "elaborate on
// your previous reply". Whitespace-only input is normalized to it; an empty
// content field fails validation.
const ContinuationSentinel = ".."

// ConversationTurn is one message of a conversation.
type ConversationTurn struct {
	Role      Role       `json:"role" validate:"required,oneof=system user assistant"`
	Content   string     `json:"content" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ConversationHistory is an append-only ordered list of turns whose first
// element is the rendered system prompt.
type ConversationHistory []ConversationTurn

// NewConversationHistory starts a history with the given system prompt.
func NewConversationHistory(systemPrompt string) ConversationHistory {
	return ConversationHistory{{Role: RoleSystem, Content: systemPrompt}}
}

// Append returns the history with turn added at the end.
func (h ConversationHistory) Append(turn ConversationTurn) ConversationHistory {
	return append(h, turn)
}

// HasSystemPrompt reports whether the first turn is a system turn.
func (h ConversationHistory) HasSystemPrompt() bool {
	return len(h) > 0 && h[0].Role == RoleSystem
}

// UserTurns counts the user turns in the history.
func (h ConversationHistory) UserTurns() int {
	n := 0
	for _, t := range h {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// Clone returns a copy that can be modified without touching h.
func (h ConversationHistory) Clone() ConversationHistory {
	out := make(ConversationHistory, len(h))
	copy(out, h)
	return out
}

// NormalizeUserMessage trims input and maps empty input to the continuation sentinel.
func NormalizeUserMessage(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ContinuationSentinel
	}
	return message
}
