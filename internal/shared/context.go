package shared

import "context"

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

// ActorID returns the authenticated admin id, or 0 for system callers.
func ActorID(ctx context.Context) int64 {
	if sess := SessionFromContext(ctx); sess.Authenticated() {
		return sess.AdminID
	}
	return 0
}
