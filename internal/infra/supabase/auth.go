package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"go.uber.org/zap"
)

// ============================================================
// IdentityResolver implementation (GoTrue GET /auth/v1/user)
// ============================================================

type authUser struct {
	ID string `json:"id"`
}

// Resolve asks Supabase Auth who owns token.
// A rejected or unknown token yields *domain.ErrUnauthorized; anything else
// that goes wrong is an *domain.ErrExternalService.
func (c *Client) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Resolve")
	defer span.End()

	identity, err := resilience.Execute(ctx, c.cb, func() (*domain.Identity, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: auth request failed", zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			c.logger.Warn("supabase: auth non-2xx",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, &apiError{Method: http.MethodGet, Path: "auth/v1/user", Status: resp.StatusCode, Body: string(body)}
		}

		var user authUser
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, fmt.Errorf("decode auth user: %w", err)
		}
		if user.ID == "" {
			return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
		}
		return &domain.Identity{UserID: user.ID, Token: token}, nil
	})
	if err != nil {
		var unauth *domain.ErrUnauthorized
		if errors.As(err, &unauth) {
			return nil, unauth
		}
		return nil, c.fail("supabase/auth", err)
	}
	return identity, nil
}
