// Package session carries the authenticated principal and its bearer token
// through request contexts. Authentication itself belongs to the identity
// service; this subsystem only reads what the auth middleware verified.
package session

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey int

const (
	userIDKey contextKey = iota
	tokenKey
)

// GinUserIDKey is where the auth middleware stores the verified user ID.
const GinUserIDKey = "userID"

// WithUserID returns a context carrying the authenticated user.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// CurrentUserID returns the authenticated principal, or false when the
// session is anonymous.
func CurrentUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// WithToken returns a context carrying the raw bearer token, so outbound
// REST calls on behalf of this user reuse it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// Token returns the bearer token of the current session, or false when the
// caller is anonymous.
func Token(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// UserIDFromGin reads the verified user ID the auth middleware stored on the
// gin context.
func UserIDFromGin(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(GinUserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
