package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/supabase"
)

type fakeTracker struct {
	mu       sync.Mutex
	loads    int
	loadErr  error
	signOuts int
	gateway  *auth.Gateway
}

func (f *fakeTracker) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.loadErr
}

func (f *fakeTracker) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	return f.gateway.SignOut(ctx)
}

func (f *fakeTracker) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// authServer answers the auth endpoints the controller reaches through the gateway.
func authServer(t *testing.T) *supabase.Client {
	t.Helper()
	expires := time.Now().Add(time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] == "wrong!!" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_at":    expires,
				"user":          map[string]string{"id": "u1", "email": "u1@example.com"},
			})
		case "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer at-restored" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"u2","email":"u2@example.com"}`))
		case "/auth/v1/signup":
			_, _ = w.Write([]byte(`{"id":"u3","email":"u3@example.com","confirmation_sent_at":"2026-10-15T10:00:00Z"}`))
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := supabase.New(supabase.Config{URL: srv.URL, AnonKey: "anon"})
	require.NoError(t, err)
	return c
}

func newTestController(t *testing.T) (*Controller, *fakeTracker) {
	t.Helper()
	gw := auth.NewGateway(authServer(t).Auth(), auth.Options{})
	tr := &fakeTracker{gateway: gw}
	c := NewController(gw, tr, nil)
	t.Cleanup(func() { c.Close() })
	return c, tr
}

func TestStartWithoutTokensStaysSignedOut(t *testing.T) {
	c, tr := newTestController(t)

	require.NoError(t, c.Start(context.Background(), auth.Tokens{}))
	assert.False(t, c.Authenticated())
	assert.Nil(t, c.Identity())
	assert.Zero(t, tr.loadCount())
}

func TestStartRestoresSessionAndLoads(t *testing.T) {
	c, tr := newTestController(t)

	require.NoError(t, c.Start(context.Background(), auth.Tokens{AccessToken: "at-restored", RefreshToken: "rt"}))
	assert.True(t, c.Authenticated())
	require.NotNil(t, c.Identity())
	assert.Equal(t, "u2@example.com", c.Identity().Email)
	assert.Equal(t, 1, tr.loadCount())
	assert.Equal(t, auth.Tokens{AccessToken: "at-restored", RefreshToken: "rt"}, c.Tokens())
}

func TestStartWithRevokedTokensFails(t *testing.T) {
	c, tr := newTestController(t)

	err := c.Start(context.Background(), auth.Tokens{AccessToken: "stale"})
	require.Error(t, err)
	assert.False(t, c.Authenticated())
	assert.Nil(t, c.Identity())
	assert.Zero(t, tr.loadCount())
	assert.True(t, c.Tokens() == auth.Tokens{})
}

func TestSignInLoadsEntries(t *testing.T) {
	c, tr := newTestController(t)
	require.NoError(t, c.Start(context.Background(), auth.Tokens{}))

	id, err := c.SignIn(context.Background(), "u1@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "u1", Email: "u1@example.com"}, id)
	assert.Equal(t, 1, tr.loadCount())
	assert.Equal(t, "at-1", c.Tokens().AccessToken)
}

func TestSignInRejectedLeavesSignedOut(t *testing.T) {
	c, tr := newTestController(t)

	_, err := c.SignIn(context.Background(), "u1@example.com", "wrong!!")
	assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
	assert.Nil(t, c.Identity())
	assert.Zero(t, tr.loadCount())
}

func TestSignInWithFailedFetchStaysSignedIn(t *testing.T) {
	c, tr := newTestController(t)
	tr.loadErr = errors.New("fetch failed")

	id, err := c.SignIn(context.Background(), "u1@example.com", "secret1")
	require.Error(t, err)
	require.NotNil(t, id)
	assert.True(t, c.Authenticated())
}

func TestSignUpPendingConfirmationDoesNotLoad(t *testing.T) {
	c, tr := newTestController(t)

	res, err := c.SignUp(context.Background(), "u3@example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, res.PendingConfirmation)
	assert.False(t, c.Authenticated())
	assert.Zero(t, tr.loadCount())
}

func TestSignOutClearsIdentityAndNotifies(t *testing.T) {
	c, tr := newTestController(t)
	_, err := c.SignIn(context.Background(), "u1@example.com", "secret1")
	require.NoError(t, err)

	events := c.Events()
	defer events.Unsubscribe()

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 1, tr.signOuts)
	assert.False(t, c.Authenticated())
	assert.Nil(t, c.Identity())

	select {
	case ev := <-events.Events():
		assert.Equal(t, auth.SignedOut, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no sign-out event")
	}
}

func TestObservedTransitionsOnlyUpdateIdentity(t *testing.T) {
	c, tr := newTestController(t)
	require.NoError(t, c.Start(context.Background(), auth.Tokens{}))

	c.observe(auth.Event{Kind: auth.SignedIn, Session: &auth.Session{UserID: "u9", Email: "u9@example.com"}})
	assert.Equal(t, "u9", c.Identity().UserID)
	c.observe(auth.Event{Kind: auth.SignedOut})
	assert.Nil(t, c.Identity())
	assert.Zero(t, tr.loadCount())
}

func TestCloseUnsubscribesOnce(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), auth.Tokens{}))

	assert.True(t, c.Close())
	assert.False(t, c.Close())
}
