package workspace

import "context"

type contextKey struct{}

func WithWorkspace(ctx context.Context, ws *Workspace) context.Context {
	return context.WithValue(ctx, contextKey{}, ws)
}

func FromContext(ctx context.Context) (*Workspace, bool) {
	ws, ok := ctx.Value(contextKey{}).(*Workspace)
	return ws, ok && ws != nil
}
