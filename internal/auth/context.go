package auth

import "context"

type contextKey string

const contextKeySession contextKey = "auth.session"

// WithSession stores the resolved session in context.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(contextKeySession).(Session)
	return session, ok
}

// TenantIDFromContext extracts the session tenant id from context.
func TenantIDFromContext(ctx context.Context) string {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return ""
	}
	return session.TenantID
}
