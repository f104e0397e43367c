package ui

import (
	"net/http"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/workspace"
)

// LoadWorkspace attaches the browser's workspace to the request, creating or
// restoring it from the session cookie, and keeps the cookie's tokens current.
func (h *Handler) LoadWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := h.sessions.Load(r)
		ws := h.registry.Resolve(r.Context(), state.WorkspaceID, state.Tokens())

		if ws.ID != state.WorkspaceID || ws.Controller.Tokens() != state.Tokens() {
			h.persist(w, r, ws, state.PKCEVerifier)
		}

		ctx := workspace.WithWorkspace(r.Context(), ws)
		if sess := ws.Gateway.Session(); sess != nil {
			ctx = auth.WithSession(ctx, sess)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession sends signed-out browsers to the login page.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.SessionFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// persist writes the workspace id and current tokens to the session cookie.
func (h *Handler) persist(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, pkceVerifier string) {
	tokens := ws.Controller.Tokens()
	err := h.sessions.Save(w, auth.CookieState{
		WorkspaceID:  ws.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		PKCEVerifier: pkceVerifier,
	})
	if err != nil {
		h.log.WithError(err).WithField("workspace_id", ws.ID).Error("failed to save session cookie")
	}
}

// mustWorkspace returns the workspace LoadWorkspace attached. Routes that call
// it are always mounted behind that middleware.
func mustWorkspace(r *http.Request) *workspace.Workspace {
	ws, ok := workspace.FromContext(r.Context())
	if !ok {
		panic("ui: request has no workspace")
	}
	return ws
}
