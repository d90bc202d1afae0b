package service_test

import (
	"context"
	"fmt"
	"time"

	"github.com/letschat/chat-api/internal/domain"
)

// --- Mocks ---

// events records the order of side effects across all mocks of one test.
type events []string

func (e *events) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

type appendCall struct {
	ChatID  string
	Role    domain.Role
	Content string
	Owner   domain.Identity
}

type mockStore struct {
	log *events

	createdName string
	createChat  *domain.Chat
	createErr   error
	appendErr   error
	appendErrAt int // 1-based call index that fails, 0 = every call when appendErr is set
	touchErr    error
	listChats   []domain.Chat
	listErr     error
	messages    []domain.Message
	messagesErr error
	deleteErr   error

	appends []appendCall
	touched []string
	deleted []string
}

func (m *mockStore) CreateChat(_ context.Context, owner domain.Identity, name string) (*domain.Chat, error) {
	m.log.add("create_chat")
	m.createdName = name
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.createChat != nil {
		return m.createChat, nil
	}
	return &domain.Chat{ID: "chat-new", Name: name, OwnerID: owner.UserID}, nil
}

func (m *mockStore) TouchChat(_ context.Context, _ domain.Identity, chatID string, _ time.Time) error {
	m.log.add("touch_chat")
	m.touched = append(m.touched, chatID)
	return m.touchErr
}

func (m *mockStore) ListChats(_ context.Context, _ domain.Identity) ([]domain.Chat, error) {
	return m.listChats, m.listErr
}

func (m *mockStore) ListMessages(_ context.Context, _ domain.Identity, _ string) ([]domain.Message, error) {
	return m.messages, m.messagesErr
}

func (m *mockStore) DeleteChat(_ context.Context, _ domain.Identity, chatID string) error {
	m.deleted = append(m.deleted, chatID)
	return m.deleteErr
}

func (m *mockStore) AppendMessage(_ context.Context, owner domain.Identity, chatID string, role domain.Role, content string) error {
	m.log.add("append_%s", role)
	m.appends = append(m.appends, appendCall{ChatID: chatID, Role: role, Content: content, Owner: owner})
	if m.appendErr != nil && (m.appendErrAt == 0 || m.appendErrAt == len(m.appends)) {
		return m.appendErr
	}
	return nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

type llmCall struct {
	Model    string
	Messages []domain.ChatMessage
}

// mockLLM answers summary calls with title and everything else with reply.
type mockLLM struct {
	log *events

	title     string
	reply     string
	createdAt time.Time
	err       error
	errOnCall int // 1-based call index that fails, 0 = every call when err is set

	calls []llmCall
}

func (m *mockLLM) Chat(_ context.Context, model string, messages []domain.ChatMessage) (*domain.Completion, error) {
	msgs := make([]domain.ChatMessage, len(messages))
	copy(msgs, messages)
	m.calls = append(m.calls, llmCall{Model: model, Messages: msgs})
	m.log.add("inference")

	if m.err != nil && (m.errOnCall == 0 || m.errOnCall == len(m.calls)) {
		return nil, m.err
	}

	content := m.reply
	if len(messages) > 0 && messages[len(messages)-1].Role == domain.RoleSystem {
		content = m.title
	}
	return &domain.Completion{
		Message:   domain.ChatMessage{Role: domain.RoleAssistant, Content: content},
		CreatedAt: m.createdAt,
		Model:     model,
	}, nil
}

type mockResolver struct {
	identity *domain.Identity
	err      error
	calls    int
}

func (m *mockResolver) Resolve(_ context.Context, _ string) (*domain.Identity, error) {
	m.calls++
	return m.identity, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }
