// Package session tracks who is signed in to a workspace and starts the food
// list once an identity is established.
package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jw6ventures/foodlog/internal/auth"
)

// Gateway is the part of *auth.Gateway the controller drives.
type Gateway interface {
	Session() *auth.Session
	Restore(ctx context.Context, tokens auth.Tokens) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string) (*auth.SignUpResult, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Session, error)
	ProviderURL(provider string) (string, string, error)
	Subscribe() *auth.Subscription
	OnAuthStateChange(handler func(auth.Event)) *auth.Subscription
}

// Tracker is the food list the controller gates.
type Tracker interface {
	Load(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// Identity is the signed-in user as shown in the UI.
type Identity struct {
	UserID string
	Email  string
}

// Controller owns current-user state for one workspace.
type Controller struct {
	gateway Gateway
	tracker Tracker
	log     logrus.FieldLogger

	startOnce sync.Once
	closeOnce sync.Once
	sub       *auth.Subscription

	mu       sync.RWMutex
	identity *Identity
}

func NewController(gateway Gateway, tracker Tracker, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{gateway: gateway, tracker: tracker, log: log}
}

// Start subscribes to session changes and restores the persisted session. When
// a session is restored the tracker's initial fetch runs before Start returns.
// A restore failure leaves the controller signed out and is returned.
func (c *Controller) Start(ctx context.Context, tokens auth.Tokens) error {
	c.startOnce.Do(func() {
		c.sub = c.gateway.OnAuthStateChange(c.observe)
	})

	sess, err := c.gateway.Restore(ctx, tokens)
	if err != nil {
		c.setIdentity(nil)
		return err
	}
	c.setIdentity(sess)
	if sess == nil {
		return nil
	}
	return c.tracker.Load(ctx)
}

// observe follows gateway transitions. Only identity changes here; the food
// list is reloaded by the operation that signed the user in.
func (c *Controller) observe(ev auth.Event) {
	c.setIdentity(ev.Session)
	c.log.WithField("event", string(ev.Kind)).Debug("auth state changed")
}

// Identity returns the signed-in user, or nil.
func (c *Controller) Identity() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// Authenticated reports whether a session is present.
func (c *Controller) Authenticated() bool {
	return c.gateway.Session() != nil
}

// SignIn authenticates and loads today's entries. A non-nil Identity with an
// error means sign-in succeeded but the initial fetch failed.
func (c *Controller) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	sess, err := c.gateway.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.signedIn(ctx, sess)
}

// SignUp requests an account. When the service confirms immediately the new
// session is treated like a sign-in.
func (c *Controller) SignUp(ctx context.Context, email, password string) (*auth.SignUpResult, error) {
	res, err := c.gateway.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		if _, err := c.signedIn(ctx, res.Session); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ProviderURL starts an external provider sign-in.
func (c *Controller) ProviderURL(provider string) (authURL, verifier string, err error) {
	return c.gateway.ProviderURL(provider)
}

// CompleteProviderSignIn finishes an external provider sign-in and loads
// today's entries.
func (c *Controller) CompleteProviderSignIn(ctx context.Context, code, verifier string) (*Identity, error) {
	sess, err := c.gateway.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	return c.signedIn(ctx, sess)
}

// SignOut clears the food list and the session.
func (c *Controller) SignOut(ctx context.Context) error {
	err := c.tracker.SignOut(ctx)
	c.setIdentity(nil)
	return err
}

// Tokens returns what the browser should persist, or empty tokens when signed out.
func (c *Controller) Tokens() auth.Tokens {
	if sess := c.gateway.Session(); sess != nil {
		return sess.Tokens()
	}
	return auth.Tokens{}
}

// Events returns a new subscription to session transitions. Callers must
// Unsubscribe it.
func (c *Controller) Events() *auth.Subscription {
	return c.gateway.Subscribe()
}

// Close releases the controller's subscription. Later calls return false.
func (c *Controller) Close() bool {
	released := false
	c.closeOnce.Do(func() {
		if c.sub != nil {
			released = c.sub.Unsubscribe()
		}
	})
	return released
}

func (c *Controller) signedIn(ctx context.Context, sess *auth.Session) (*Identity, error) {
	c.setIdentity(sess)
	id := c.Identity()
	if err := c.tracker.Load(ctx); err != nil {
		c.log.WithError(err).WithField("user_id", sess.UserID).Warn("initial food fetch failed")
		return id, err
	}
	return id, nil
}

func (c *Controller) setIdentity(sess *auth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess == nil {
		c.identity = nil
		return
	}
	c.identity = &Identity{UserID: sess.UserID, Email: sess.Email}
}
