package service

import (
	"context"
	"errors"
	"strings"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/port"

	"go.uber.org/zap"
)

// IdentityVerifier turns an Authorization header into a verified identity.
type IdentityVerifier struct {
	resolver  port.IdentityResolver
	bypass    bool
	devUserID string
	logger    *zap.Logger
}

// NewIdentityVerifier creates the verifier. With bypass set every request
// runs as devUserID and resolver is never called.
func NewIdentityVerifier(resolver port.IdentityResolver, bypass bool, devUserID string, logger *zap.Logger) *IdentityVerifier {
	return &IdentityVerifier{
		resolver:  resolver,
		bypass:    bypass,
		devUserID: devUserID,
		logger:    logger,
	}
}

// Verify checks the "Bearer <token>" header value.
//
//	bypass active           -> dev identity, no token
//	no bearer credential    -> ErrUnauthorized "Authentication required"
//	credential rejected     -> ErrUnauthorized "Invalid or expired token"
//	provider failed         -> ErrInternal "Authentication failed"
func (v *IdentityVerifier) Verify(ctx context.Context, authorization string) (*domain.Identity, error) {
	if v.bypass {
		return &domain.Identity{UserID: v.devUserID}, nil
	}

	token, ok := bearerToken(authorization)
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "Authentication required"}
	}

	identity, err := v.resolver.Resolve(ctx, token)
	if err != nil {
		var unauth *domain.ErrUnauthorized
		if errors.As(err, &unauth) {
			return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
		}
		v.logger.Error("identity provider failed", zap.Error(err))
		return nil, &domain.ErrInternal{Message: "Authentication failed", Err: err}
	}
	if identity == nil || identity.UserID == "" {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}
	return identity, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
