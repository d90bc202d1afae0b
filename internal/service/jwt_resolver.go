package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/letschat/chat-api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// supabaseAudience is the aud claim GoTrue puts on signed-in users' tokens.
const supabaseAudience = "authenticated"

// JWTResolver verifies Supabase access tokens locally with the project's
// JWT secret instead of calling the Auth API.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for HS256 tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve implements port.IdentityResolver. Every failure is a rejection.
func (r *JWTResolver) Resolve(_ context.Context, tokenString string) (*domain.Identity, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}

	if len(claims.Audience) > 0 && !slices.Contains(claims.Audience, supabaseAudience) {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Invalid or expired token"}
	}

	return &domain.Identity{UserID: claims.Subject, Token: tokenString}, nil
}
