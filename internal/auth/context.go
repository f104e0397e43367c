package auth

import "context"

type contextKey string

const contextKeySession contextKey = "session"

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKeySession).(*Session)
	return s, ok && s != nil
}
