package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// ChatStore implementation (table "chats")
// ============================================================

type chatRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r chatRow) toDomain() domain.Chat {
	return domain.Chat{ID: r.ID, Name: r.Name, OwnerID: r.UserID, UpdatedAt: r.UpdatedAt}
}

type messageRow struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

var errNoChatID = errors.New("chat insert returned no id")

// CreateChat inserts a chat named name and returns it with its generated id.
func (c *Client) CreateChat(ctx context.Context, owner domain.Identity, name string) (*domain.Chat, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateChat")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner.UserID))

	chat, err := resilience.Execute(ctx, c.cb, func() (*domain.Chat, error) {
		body, err := c.doPost(ctx, "chats", map[string]any{
			"name":    name,
			"user_id": owner.UserID,
		}, c.bearer(owner), true)
		if err != nil {
			return nil, err
		}

		var rows []chatRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode chats: %w", err)
		}
		if len(rows) == 0 || rows[0].ID == "" {
			return nil, errNoChatID
		}
		chat := rows[0].toDomain()
		return &chat, nil
	})
	if err != nil {
		return nil, c.fail("supabase/chats", err)
	}

	span.SetAttributes(attribute.String("chat.id", chat.ID))
	return chat, nil
}

// TouchChat sets updated_at on one of owner's chats.
func (c *Client) TouchChat(ctx context.Context, owner domain.Identity, chatID string, updatedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.TouchChat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	filter := url.Values{}
	filter.Set("id", eq(chatID))
	filter.Set("user_id", eq(owner.UserID))

	_, err := resilience.Execute(ctx, c.cb, func() (struct{}, error) {
		return struct{}{}, c.doPatch(ctx, "chats", filter, map[string]any{
			"updated_at": updatedAt.UTC().Format(time.RFC3339Nano),
		}, c.bearer(owner))
	})
	if err != nil {
		return c.fail("supabase/chats", err)
	}
	return nil
}

// ListChats returns owner's chats, most recently updated first.
func (c *Client) ListChats(ctx context.Context, owner domain.Identity) ([]domain.Chat, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListChats")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", owner.UserID))

	query := url.Values{}
	query.Set("select", "id,name,user_id,updated_at")
	query.Set("user_id", eq(owner.UserID))
	query.Set("order", "updated_at.desc")

	chats, err := resilience.Execute(ctx, c.cb, func() ([]domain.Chat, error) {
		body, err := c.doGet(ctx, "chats", query, c.bearer(owner))
		if err != nil {
			return nil, err
		}

		var rows []chatRow
		if len(body) > 0 {
			if err := json.Unmarshal(body, &rows); err != nil {
				return nil, fmt.Errorf("decode chats: %w", err)
			}
		}

		out := make([]domain.Chat, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return out, nil
	})
	if err != nil {
		return nil, c.fail("supabase/chats", err)
	}
	return chats, nil
}

// ListMessages returns the messages of one of owner's chats, oldest first.
func (c *Client) ListMessages(ctx context.Context, owner domain.Identity, chatID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	query := url.Values{}
	query.Set("select", "id,chat_id,user_id,role,message,created_at")
	query.Set("chat_id", eq(chatID))
	query.Set("user_id", eq(owner.UserID))
	query.Set("order", "created_at.asc")

	msgs, err := resilience.Execute(ctx, c.cb, func() ([]domain.Message, error) {
		body, err := c.doGet(ctx, "messages", query, c.bearer(owner))
		if err != nil {
			return nil, err
		}

		var rows []messageRow
		if len(body) > 0 {
			if err := json.Unmarshal(body, &rows); err != nil {
				return nil, fmt.Errorf("decode messages: %w", err)
			}
		}

		out := make([]domain.Message, 0, len(rows))
		for _, r := range rows {
			out = append(out, domain.Message{
				ID:        r.ID,
				ChatID:    r.ChatID,
				OwnerID:   r.UserID,
				Role:      domain.Role(r.Role),
				Content:   r.Message,
				CreatedAt: r.CreatedAt,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, c.fail("supabase/messages", err)
	}
	return msgs, nil
}

// DeleteChat removes one of owner's chats. Messages go with it through
// the foreign key cascade.
func (c *Client) DeleteChat(ctx context.Context, owner domain.Identity, chatID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteChat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	filter := url.Values{}
	filter.Set("id", eq(chatID))
	filter.Set("user_id", eq(owner.UserID))

	_, err := resilience.Execute(ctx, c.cb, func() (struct{}, error) {
		return struct{}{}, c.doDelete(ctx, "chats", filter, c.bearer(owner))
	})
	if err != nil {
		return c.fail("supabase/chats", err)
	}
	return nil
}
