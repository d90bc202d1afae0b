// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service
// layer from the concrete Supabase, Postgres and Ollama adapters.
package port

import (
	"context"
	"time"

	"github.com/letschat/chat-api/internal/domain"
)

// IdentityResolver turns a bearer credential into a verified identity.
// Implementations return *domain.ErrUnauthorized when the credential is
// rejected and any other error when the provider itself failed.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
}

// ChatStore persists chat records. Every call is scoped to owner.
type ChatStore interface {
	CreateChat(ctx context.Context, owner domain.Identity, name string) (*domain.Chat, error)
	TouchChat(ctx context.Context, owner domain.Identity, chatID string, updatedAt time.Time) error
	ListChats(ctx context.Context, owner domain.Identity) ([]domain.Chat, error)
	ListMessages(ctx context.Context, owner domain.Identity, chatID string) ([]domain.Message, error)
	DeleteChat(ctx context.Context, owner domain.Identity, chatID string) error
}

// MessageStore appends messages to a chat.
type MessageStore interface {
	AppendMessage(ctx context.Context, owner domain.Identity, chatID string, role domain.Role, content string) error
}

// Store is a backend implementing both accessors.
type Store interface {
	ChatStore
	MessageStore
	Pinger
}

// ChatCompleter invokes the inference service.
type ChatCompleter interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (*domain.Completion, error)
}

// Pinger is implemented by dependencies that take part in readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
