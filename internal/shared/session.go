package shared

import (
	"context"
	"time"
)

// Session describes the bearer token a request was authenticated with.
type Session struct {
	// ID is the token id, used to revoke it on logout.
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
