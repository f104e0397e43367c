package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"github.com/jw6ventures/foodlog/internal/config"
)

const sessionTTL = 7 * 24 * time.Hour

// CookieState is what a browser carries between requests.
type CookieState struct {
	WorkspaceID  string `json:"workspace_id"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// PKCEVerifier is held only while a provider sign-in is in progress.
	PKCEVerifier string `json:"pkce_verifier,omitempty"`
	Exp          int64  `json:"exp"`
}

// Tokens returns the persisted auth tokens.
func (s CookieState) Tokens() Tokens {
	return Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// SessionManager manages web UI session cookies.
type SessionManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	secure     bool
	now        func() time.Time
}

func NewSessionManager(cfg *config.Config) (*SessionManager, error) {
	hashKey, err := deriveKey(cfg.Session.Secret, "foodlog cookie hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(cfg.Session.Secret, "foodlog cookie block", 32)
	if err != nil {
		return nil, err
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: "foodlog_session",
		codec:      sc,
		secure:     secure,
		now:        time.Now,
	}, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}

// Save writes state to the session cookie.
func (m *SessionManager) Save(w http.ResponseWriter, state CookieState) error {
	expires := m.now().Add(sessionTTL)
	state.Exp = expires.Unix()

	encoded, err := m.codec.Encode(m.cookieName, state)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}

// Load extracts the session state from the request cookie if present and unexpired.
func (m *SessionManager) Load(r *http.Request) (CookieState, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return CookieState{}, false
	}

	var state CookieState
	if err := m.codec.Decode(m.cookieName, c.Value, &state); err != nil {
		return CookieState{}, false
	}
	if state.Exp == 0 || time.Unix(state.Exp, 0).Before(m.now()) {
		return CookieState{}, false
	}
	if state.WorkspaceID == "" {
		return CookieState{}, false
	}
	return state, true
}
