package shared

import (
	"context"
	"strings"
)

type sessionContextKey struct{}

type principalContextKey struct{}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID string
	Email  string
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipal stores the authenticated actor in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	p.UserID = strings.TrimSpace(p.UserID)
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the actor set by the bearer middleware, falling back
// to the user bound to the session.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if p, ok := ctx.Value(principalContextKey{}).(Principal); ok && p.UserID != "" {
		return p, true
	}
	if sess := SessionFromContext(ctx); sess != nil && strings.TrimSpace(sess.User()) != "" {
		return Principal{UserID: strings.TrimSpace(sess.User())}, true
	}
	return Principal{}, false
}
