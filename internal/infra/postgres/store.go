package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const (
	insertChatSQL    = `INSERT INTO chats (id, name, user_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	touchChatSQL     = `UPDATE chats SET updated_at = $1 WHERE id = $2 AND user_id = $3`
	listChatsSQL     = `SELECT id, name, user_id, updated_at FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`
	listMessagesSQL  = `SELECT id, chat_id, user_id, role, message, created_at FROM messages WHERE chat_id = $1 AND user_id = $2 ORDER BY created_at ASC`
	deleteChatSQL    = `DELETE FROM chats WHERE id = $1 AND user_id = $2`
	insertMessageSQL = `INSERT INTO messages (id, chat_id, user_id, role, message, created_at) ` +
		`SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::timestamptz ` +
		`WHERE EXISTS (SELECT 1 FROM chats WHERE id = $2::uuid AND user_id = $3::uuid)`
)

// errChatNotOwned is returned when a message targets a chat that does not
// exist or belongs to someone else.
var errChatNotOwned = errors.New("chat not found for owner")

// Store implements port.Store on PostgreSQL. Owner scoping is done with
// user_id predicates since there is no row-level security here.
type Store struct {
	db      *sql.DB
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *Store {
	return &Store{db: db, cb: cb, metrics: metrics, logger: logger}
}

// exec runs a statement through the breaker.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return resilience.Execute(ctx, s.cb, func() (sql.Result, error) {
		res, err := s.db.ExecContext(ctx, query, args...)
		return res, classify(err)
	})
}

// classify marks data exceptions (class 22, e.g. a malformed uuid) and
// constraint violations (class 23) as client faults.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return resilience.ClientFault(err)
		}
	}
	return err
}

// fail counts a failed call against service and wraps err for the caller.
func (s *Store) fail(service string, err error) error {
	s.metrics.IncrExternalError(service)
	return &domain.ErrExternalService{Service: service, Err: err}
}

// CreateChat inserts a chat with a fresh UUID.
func (s *Store) CreateChat(ctx context.Context, owner domain.Identity, name string) (*domain.Chat, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateChat")
	defer span.End()

	chat := &domain.Chat{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   owner.UserID,
		UpdatedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("chat.id", chat.ID))

	_, err := s.exec(ctx, insertChatSQL, chat.ID, chat.Name, chat.OwnerID, chat.UpdatedAt, chat.UpdatedAt)
	if err != nil {
		s.logger.Error("postgres: insert chat failed", zap.Error(err))
		return nil, s.fail("postgres/chats", err)
	}
	return chat, nil
}

// TouchChat sets updated_at on one of owner's chats.
func (s *Store) TouchChat(ctx context.Context, owner domain.Identity, chatID string, updatedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgres.TouchChat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	_, err := s.exec(ctx, touchChatSQL, updatedAt.UTC(), chatID, owner.UserID)
	if err != nil {
		s.logger.Error("postgres: touch chat failed", zap.String("chat_id", chatID), zap.Error(err))
		return s.fail("postgres/chats", err)
	}
	return nil
}

// ListChats returns owner's chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context, owner domain.Identity) ([]domain.Chat, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListChats")
	defer span.End()

	chats, err := resilience.Execute(ctx, s.cb, func() ([]domain.Chat, error) {
		rows, err := s.db.QueryContext(ctx, listChatsSQL, owner.UserID)
		if err != nil {
			return nil, classify(err)
		}
		defer rows.Close()

		out := []domain.Chat{}
		for rows.Next() {
			var c domain.Chat
			if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID, &c.UpdatedAt); err != nil {
				return nil, fmt.Errorf("scan chat: %w", err)
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
	if err != nil {
		s.logger.Error("postgres: list chats failed", zap.Error(err))
		return nil, s.fail("postgres/chats", err)
	}
	return chats, nil
}

// ListMessages returns the messages of one of owner's chats, oldest first.
func (s *Store) ListMessages(ctx context.Context, owner domain.Identity, chatID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	msgs, err := resilience.Execute(ctx, s.cb, func() ([]domain.Message, error) {
		rows, err := s.db.QueryContext(ctx, listMessagesSQL, chatID, owner.UserID)
		if err != nil {
			return nil, classify(err)
		}
		defer rows.Close()

		out := []domain.Message{}
		for rows.Next() {
			var (
				m    domain.Message
				role string
			)
			if err := rows.Scan(&m.ID, &m.ChatID, &m.OwnerID, &role, &m.Content, &m.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan message: %w", err)
			}
			m.Role = domain.Role(role)
			out = append(out, m)
		}
		return out, rows.Err()
	})
	if err != nil {
		s.logger.Error("postgres: list messages failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil, s.fail("postgres/messages", err)
	}
	return msgs, nil
}

// DeleteChat removes one of owner's chats; messages cascade.
func (s *Store) DeleteChat(ctx context.Context, owner domain.Identity, chatID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteChat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	_, err := s.exec(ctx, deleteChatSQL, chatID, owner.UserID)
	if err != nil {
		s.logger.Error("postgres: delete chat failed", zap.String("chat_id", chatID), zap.Error(err))
		return s.fail("postgres/chats", err)
	}
	return nil
}

// AppendMessage inserts one message stamped with the current time. The row
// is only written when chatID is one of owner's chats.
func (s *Store) AppendMessage(ctx context.Context, owner domain.Identity, chatID string, role domain.Role, content string) error {
	ctx, span := tracer.Start(ctx, "Postgres.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("message.role", string(role)),
	)

	res, err := s.exec(ctx, insertMessageSQL,
		uuid.NewString(), chatID, owner.UserID, string(role), content, time.Now().UTC())
	if err == nil {
		if n, rerr := res.RowsAffected(); rerr != nil {
			err = rerr
		} else if n == 0 {
			err = errChatNotOwned
		}
	}
	if err != nil {
		s.logger.Error("postgres: insert message failed", zap.String("chat_id", chatID), zap.Error(err))
		return s.fail("postgres/messages", err)
	}
	return nil
}

// Ping checks the connection. Used by /readyz.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	return nil
}
