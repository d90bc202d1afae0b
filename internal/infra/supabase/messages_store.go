package supabase

import (
	"context"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// AppendMessage inserts one message row tagged with owner and the current time.
func (c *Client) AppendMessage(ctx context.Context, owner domain.Identity, chatID string, role domain.Role, content string) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("message.role", string(role)),
	)

	row := map[string]any{
		"chat_id":    chatID,
		"user_id":    owner.UserID,
		"role":       string(role),
		"message":    content,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}

	_, err := resilience.Execute(ctx, c.cb, func() ([]byte, error) {
		return c.doPost(ctx, "messages", row, c.bearer(owner), false)
	})
	if err != nil {
		return c.fail("supabase/messages", err)
	}
	return nil
}
