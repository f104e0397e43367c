// Package auth wraps the hosted auth service: sign up, sign in, sign out,
// session restore and refresh, and session-change subscriptions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/foodlog/internal/supabase"
	"github.com/jw6ventures/foodlog/internal/validation"
)

const (
	refreshInterval = 30 * time.Second
	refreshMargin   = 90 * time.Second
)

// Backend is the auth service API the gateway drives. *supabase.AuthClient implements it.
type Backend interface {
	SignUp(ctx context.Context, email, password, redirectTo string) (*supabase.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.AuthResponse, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*supabase.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// Session is an authenticated identity and the tokens that prove it.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresWithin reports whether the access token expires within d of now. A
// session with an unknown expiry never does.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Sub(now) <= d
}

// Tokens returns the persisted form of the session.
func (s *Session) Tokens() Tokens {
	return Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// Tokens are what a browser keeps between requests to restore a session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether there is nothing to restore.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// SignUpResult describes a successful sign-up. Session is set when the service
// confirmed the account immediately.
type SignUpResult struct {
	PendingConfirmation bool
	Session             *Session
}

// Options configure a Gateway.
type Options struct {
	// Verifier checks restored access tokens locally. Without one, restores ask
	// the auth service for the token's user.
	Verifier TokenVerifier
	// ConfirmRedirectURL is where confirmation emails link back to.
	ConfirmRedirectURL string
	// CallbackURL is where external providers return to after sign-in.
	CallbackURL string
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

// Gateway owns one browser's auth session.
type Gateway struct {
	backend Backend
	opts    Options
	log     logrus.FieldLogger
	now     func() time.Time
	bus     *eventBus

	mu      sync.RWMutex
	session *Session
}

func NewGateway(backend Backend, opts Options) *Gateway {
	g := &Gateway{
		backend: backend,
		opts:    opts,
		log:     opts.Logger,
		now:     opts.Now,
		bus:     newEventBus(),
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Session returns a copy of the current session, or nil.
func (g *Gateway) Session() *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	cp := *g.session
	return &cp
}

// Subscribe registers for session transitions.
func (g *Gateway) Subscribe() *Subscription {
	return g.bus.subscribe()
}

// OnAuthStateChange calls handler for every session transition, in order, on
// a goroutine owned by the returned subscription.
func (g *Gateway) OnAuthStateChange(handler func(Event)) *Subscription {
	sub := g.bus.subscribe()
	go func() {
		for ev := range sub.Events() {
			handler(ev)
		}
	}()
	return sub
}

// SignUp requests account creation.
func (g *Gateway) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	if err := validation.First(validation.Email(email), validation.Password(password)); err != nil {
		return nil, err
	}

	resp, err := g.backend.SignUp(ctx, email, password, g.opts.ConfirmRedirectURL)
	if err != nil {
		return nil, wrapError("sign up", "Error creating account", err)
	}
	if resp.AccessToken == "" {
		return &SignUpResult{PendingConfirmation: true}, nil
	}
	return &SignUpResult{Session: g.establish(resp, SignedIn)}, nil
}

// SignIn exchanges credentials for a session.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := validation.Email(email).Err(); err != nil {
		return nil, err
	}

	resp, err := g.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, wrapError("sign in", "Invalid email or password", err)
	}
	return g.establish(resp, SignedIn), nil
}

// SignOut clears the local session, then revokes it remotely. SignedOut is
// published even when the remote call fails.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	cur := g.session
	g.session = nil
	g.mu.Unlock()

	g.bus.publish(Event{Kind: SignedOut})

	if cur == nil {
		return nil
	}
	if err := g.backend.SignOut(ctx, cur.AccessToken); err != nil {
		return wrapError("sign out", "Error logging out", err)
	}
	return nil
}

// Restore re-establishes a session from persisted tokens. An expired access
// token is refreshed. On failure the gateway stays signed out. InitialSession
// is always published.
func (g *Gateway) Restore(ctx context.Context, tokens Tokens) (*Session, error) {
	if tokens.Empty() {
		g.bus.publish(Event{Kind: InitialSession})
		return nil, nil
	}

	sess, err := g.resolve(ctx, tokens)
	if err != nil {
		g.mu.Lock()
		g.session = nil
		g.mu.Unlock()
		g.bus.publish(Event{Kind: InitialSession})
		return nil, err
	}

	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()
	g.bus.publish(Event{Kind: InitialSession, Session: sess})

	cp := *sess
	return &cp, nil
}

func (g *Gateway) resolve(ctx context.Context, tokens Tokens) (*Session, error) {
	if tokens.AccessToken == "" {
		return g.refreshTokens(ctx, tokens.RefreshToken)
	}

	if g.opts.Verifier != nil {
		claims, err := g.opts.Verifier.Verify(ctx, tokens.AccessToken)
		switch {
		case err == nil:
			sess := &Session{
				UserID:       claims.Subject,
				Email:        claims.Email,
				AccessToken:  tokens.AccessToken,
				RefreshToken: tokens.RefreshToken,
			}
			if claims.ExpiresAt != nil {
				sess.ExpiresAt = claims.ExpiresAt.Time
			}
			return sess, nil
		case errors.Is(err, ErrTokenExpired) && tokens.RefreshToken != "":
			return g.refreshTokens(ctx, tokens.RefreshToken)
		default:
			return nil, &Error{Op: "restore session", Message: "Session is no longer valid", Err: err}
		}
	}

	user, err := g.backend.GetUser(ctx, tokens.AccessToken)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && tokens.RefreshToken != "" {
			return g.refreshTokens(ctx, tokens.RefreshToken)
		}
		return nil, wrapError("restore session", "Session is no longer valid", err)
	}
	return &Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    unverifiedExpiry(tokens.AccessToken),
	}, nil
}

// Refresh exchanges the refresh token for a new session. When the service
// rejects the refresh token the session is cleared and SignedOut published.
func (g *Gateway) Refresh(ctx context.Context) (*Session, error) {
	cur := g.Session()
	if cur == nil {
		return nil, ErrNoSession
	}

	sess, err := g.refreshTokens(ctx, cur.RefreshToken)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) && authErr.Rejected() {
			g.mu.Lock()
			if g.session != nil && g.session.RefreshToken == cur.RefreshToken {
				g.session = nil
			}
			g.mu.Unlock()
			g.bus.publish(Event{Kind: SignedOut})
		}
		return nil, err
	}

	g.mu.Lock()
	if g.session == nil || g.session.RefreshToken != cur.RefreshToken {
		g.mu.Unlock()
		return nil, ErrSessionReplaced
	}
	g.session = sess
	g.mu.Unlock()
	g.bus.publish(Event{Kind: TokenRefreshed, Session: sess})

	cp := *sess
	return &cp, nil
}

// AutoRefresh refreshes the session shortly before it expires until ctx is done.
func (g *Gateway) AutoRefresh(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshIfDue(ctx)
		}
	}
}

func (g *Gateway) refreshIfDue(ctx context.Context) {
	cur := g.Session()
	if cur == nil || !cur.ExpiresWithin(g.now(), refreshMargin) {
		return
	}
	if _, err := g.Refresh(ctx); err != nil {
		g.log.WithError(err).WithField("user_id", cur.UserID).Warn("session refresh failed")
	}
}

func (g *Gateway) refreshTokens(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, &Error{Op: "refresh session", Message: "Session is no longer valid", Err: ErrNoSession}
	}
	resp, err := g.backend.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, wrapError("refresh session", "Session is no longer valid", err)
	}
	return g.sessionFrom(resp), nil
}

// ProviderURL starts a PKCE sign-in with an external provider. The returned
// verifier must be kept by the caller and passed to ExchangeCode.
func (g *Gateway) ProviderURL(provider string) (authURL, verifier string, err error) {
	if !providerPattern.MatchString(provider) {
		return "", "", fmt.Errorf("invalid provider %q", provider)
	}
	verifier = oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)
	return g.backend.AuthorizeURL(provider, g.opts.CallbackURL, challenge), verifier, nil
}

var providerPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// ExchangeCode completes a provider sign-in.
func (g *Gateway) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if code == "" || verifier == "" {
		return nil, &Error{Op: "provider sign in", Message: "Sign-in was not completed", Err: ErrNoSession}
	}
	resp, err := g.backend.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, wrapError("provider sign in", "Sign-in was not completed", err)
	}
	return g.establish(resp, SignedIn), nil
}

func (g *Gateway) establish(resp *supabase.AuthResponse, kind EventKind) *Session {
	sess := g.sessionFrom(resp)

	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()
	g.bus.publish(Event{Kind: kind, Session: sess})

	cp := *sess
	return &cp
}

func (g *Gateway) sessionFrom(resp *supabase.AuthResponse) *Session {
	sess := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.Expiry(g.now()),
	}
	if resp.User != nil {
		sess.UserID = resp.User.ID
		sess.Email = resp.User.Email
	}
	return sess
}
