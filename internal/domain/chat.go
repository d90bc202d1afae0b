// Package domain holds the chat API's core types and error taxonomy.
package domain

import (
	"fmt"
	"time"
)

// Role is the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a role coming from the wire.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	}
	return "", &ErrValidation{Field: "role", Message: fmt.Sprintf("Invalid history role: %s", s)}
}

// Identity is the verified caller. Token is the bearer credential it was
// resolved from and is empty when verification was bypassed.
type Identity struct {
	UserID string
	Token  string
}

// Chat is a persisted conversation owned by one identity.
type Chat struct {
	ID        string
	Name      string
	OwnerID   string
	UpdatedAt time.Time
}

// Message is one turn within a Chat. Messages are append-only.
type Message struct {
	ID        string
	ChatID    string
	OwnerID   string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ChatMessage is the role+content pair exchanged with the inference service.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the inference service's reply to a chat call.
type Completion struct {
	Message          ChatMessage
	CreatedAt        time.Time
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// ============================================================
// HTTP contract: POST /api/chat
// ============================================================

// HistoryEntry is a prior turn sent by the client. Older clients send the
// role as "messageRole"; see ToChatMessages.
type HistoryEntry struct {
	Role        string `json:"role,omitempty"`
	MessageRole string `json:"messageRole,omitempty"`
	Content     string `json:"content"`
}

// ChatTurnRequest is the body of POST /api/chat.
type ChatTurnRequest struct {
	Content string         `json:"content"`
	History []HistoryEntry `json:"history"`
	Model   string         `json:"model"`
	ChatID  string         `json:"chatId,omitempty"`
}

// ChatTurnResponse is returned by POST /api/chat.
type ChatTurnResponse struct {
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chatId"`
}

// ChatSummary is one element of GET /api/chats.
type ChatSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageView is one element of GET /api/chat/{chatId}.
type MessageView struct {
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// ToChatMessage maps a client history entry to the inference format.
// "role" wins over the legacy "messageRole" when both are present.
func (h HistoryEntry) ToChatMessage() (ChatMessage, error) {
	raw := h.Role
	if raw == "" {
		raw = h.MessageRole
	}
	role, err := ParseRole(raw)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Role: role, Content: h.Content}, nil
}

// ToChatMessages maps a whole history preserving order.
func ToChatMessages(history []HistoryEntry) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(history)+1)
	for _, h := range history {
		m, err := h.ToChatMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
