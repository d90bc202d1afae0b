package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/infra/postgres"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var owner = domain.Identity{UserID: "11111111-1111-1111-1111-111111111111"}

const insertMessageSQL = `INSERT INTO messages (id, chat_id, user_id, role, message, created_at) ` +
	`SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::timestamptz ` +
	`WHERE EXISTS (SELECT 1 FROM chats WHERE id = $2::uuid AND user_id = $3::uuid)`

func newStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	store, mock, _ := newMeteredStore(t)
	return store, mock
}

func newMeteredStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock, *observability.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	metrics := observability.NewMetrics()
	return postgres.NewStore(db, resilience.NewCircuitBreaker("postgres-test"), metrics, zap.NewNop()), mock, metrics
}

func TestCreateChat(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(`INSERT INTO chats (id, name, user_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`).
		WithArgs(sqlmock.AnyArg(), "Trip planning", owner.UserID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	chat, err := store.CreateChat(context.Background(), owner, "Trip planning")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if chat.ID == "" || chat.Name != "Trip planning" || chat.OwnerID != owner.UserID {
		t.Errorf("unexpected chat %+v", chat)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateChat_Error(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(`INSERT INTO chats (id, name, user_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`).
		WillReturnError(errors.New("connection refused"))

	_, err := store.CreateChat(context.Background(), owner, "x")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %T: %v", err, err)
	}
}

func TestListChats(t *testing.T) {
	store, mock := newStore(t)

	newer := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, name, user_id, updated_at FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`).
		WithArgs(owner.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "user_id", "updated_at"}).
			AddRow("b", "Newer", owner.UserID, newer).
			AddRow("a", "Older", owner.UserID, older))

	chats, err := store.ListChats(context.Background(), owner)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chats) != 2 || chats[0].ID != "b" || !chats[1].UpdatedAt.Equal(older) {
		t.Errorf("unexpected chats %+v", chats)
	}
}

func TestListChats_Empty(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`SELECT id, name, user_id, updated_at FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`).
		WithArgs(owner.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "user_id", "updated_at"}))

	chats, err := store.ListChats(context.Background(), owner)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if chats == nil || len(chats) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", chats)
	}
}

func TestListMessages(t *testing.T) {
	store, mock := newStore(t)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, chat_id, user_id, role, message, created_at FROM messages WHERE chat_id = $1 AND user_id = $2 ORDER BY created_at ASC`).
		WithArgs("chat-1", owner.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "user_id", "role", "message", "created_at"}).
			AddRow("m1", "chat-1", owner.UserID, "user", "hi", at).
			AddRow("m2", "chat-1", owner.UserID, "assistant", "hello", at.Add(time.Second)))

	msgs, err := store.ListMessages(context.Background(), owner, "chat-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestAppendTouchDelete(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(insertMessageSQL).
		WithArgs(sqlmock.AnyArg(), "chat-1", owner.UserID, "user", "hi", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE chats SET updated_at = $1 WHERE id = $2 AND user_id = $3`).
		WithArgs(at, "chat-1", owner.UserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM chats WHERE id = $1 AND user_id = $2`).
		WithArgs("chat-1", owner.UserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.AppendMessage(ctx, owner, "chat-1", domain.RoleUser, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.TouchChat(ctx, owner, "chat-1", at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := store.DeleteChat(ctx, owner, "chat-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAppendMessage_OtherUsersChat(t *testing.T) {
	store, mock, metrics := newMeteredStore(t)

	mock.ExpectExec(insertMessageSQL).
		WithArgs(sqlmock.AnyArg(), "chat-of-bob", owner.UserID, "user", "hi", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.AppendMessage(context.Background(), owner, "chat-of-bob", domain.RoleUser, "hi")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %T: %v", err, err)
	}
	if ext.Service != "postgres/messages" {
		t.Errorf("unexpected service %q", ext.Service)
	}
	if n := metrics.ExternalErrorCount("postgres/messages"); n != 1 {
		t.Errorf("expected 1 external error counted, got %v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMalformedIDsDoNotTripBreaker(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mock.ExpectExec(insertMessageSQL).
			WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "x"`})
	}
	mock.ExpectQuery(`SELECT id, name, user_id, updated_at FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`).
		WithArgs(owner.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "user_id", "updated_at"}))

	for i := 0; i < 10; i++ {
		err := store.AppendMessage(ctx, owner, "x", domain.RoleUser, "hi")
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			t.Fatalf("call %d: circuit opened on malformed ids", i)
		}
	}

	if _, err := store.ListChats(ctx, owner); err != nil {
		t.Fatalf("expected other reads to keep working, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
