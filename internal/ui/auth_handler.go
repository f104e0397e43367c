package ui

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/foodlog/internal/auth"
	httperrors "github.com/jw6ventures/foodlog/internal/http/errors"
	"github.com/jw6ventures/foodlog/internal/tracker"
	"github.com/jw6ventures/foodlog/internal/validation"
)

const msgConfirmEmail = "Check your email to confirm your account!"

// LoginPage renders the sign-in form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderAuth(w, r, http.StatusOK, "login.html", "", "")
}

// Login signs in with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)
	email := strings.TrimSpace(r.FormValue("email"))

	id, err := ws.Controller.SignIn(r.Context(), email, r.FormValue("password"))
	if id == nil {
		h.renderAuth(w, r, authStatus(err), "login.html", email, tracker.Message(err))
		return
	}

	h.persist(w, r, ws, "")
	if err != nil {
		h.redirect(w, r, "/", map[string]string{"error": tracker.Message(err)})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignupPage renders the account creation form.
func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuth(w, r, http.StatusOK, "signup.html", "", "")
}

// Signup requests a new account. Unless the service confirms it immediately,
// the user is sent back to the login page to wait for the confirmation email.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)
	email := strings.TrimSpace(r.FormValue("email"))

	res, err := ws.Controller.SignUp(r.Context(), email, r.FormValue("password"))
	if res == nil {
		h.renderAuth(w, r, authStatus(err), "signup.html", email, tracker.Message(err))
		return
	}
	if res.PendingConfirmation {
		h.redirect(w, r, "/auth/login", map[string]string{"status": msgConfirmEmail})
		return
	}

	h.persist(w, r, ws, "")
	if err != nil {
		h.redirect(w, r, "/", map[string]string{"error": tracker.Message(err)})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Provider starts a sign-in with an external identity provider.
func (h *Handler) Provider(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !slices.Contains(h.cfg.Providers, provider) {
		http.NotFound(w, r)
		return
	}

	ws := mustWorkspace(r)
	authURL, verifier, err := ws.Controller.ProviderURL(provider)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	h.persist(w, r, ws, verifier)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes an external provider sign-in.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)
	q := r.URL.Query()

	if desc := q.Get("error_description"); desc != "" {
		h.persist(w, r, ws, "")
		h.redirect(w, r, "/auth/login", map[string]string{"error": desc})
		return
	}

	state, _ := h.sessions.Load(r)
	id, err := ws.Controller.CompleteProviderSignIn(r.Context(), q.Get("code"), state.PKCEVerifier)
	h.persist(w, r, ws, "")
	if id == nil {
		h.redirect(w, r, "/auth/login", map[string]string{"error": tracker.Message(err)})
		return
	}
	if err != nil {
		h.redirect(w, r, "/", map[string]string{"error": tracker.Message(err)})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout signs out, drops the workspace and clears the cookie. A failed remote
// revocation is logged; the browser is signed out regardless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)
	if err := ws.Controller.SignOut(r.Context()); err != nil {
		h.log.WithError(err).WithField("workspace_id", ws.ID).Warn("remote sign out failed")
	}
	h.registry.Drop(ws.ID)
	h.sessions.Clear(w)
	httperrors.LogInfo(r, "signed out and dropped workspace "+ws.ID)
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) renderAuth(w http.ResponseWriter, r *http.Request, status int, name, email, errMsg string) {
	data := map[string]any{
		"Title":     "Sign In",
		"Email":     email,
		"Providers": h.cfg.Providers,
	}
	if name == "signup.html" {
		data["Title"] = "Create Account"
	}
	data = h.withFlash(r, data)
	if errMsg != "" {
		data["FlashError"] = errMsg
	}
	h.render(w, r, status, name, data)
}

func authStatus(err error) int {
	var vErr *validation.Error
	var authErr *auth.Error
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr) && authErr.Rejected():
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
