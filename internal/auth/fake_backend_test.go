package auth

import (
	"context"
	"sync"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

type fakeBackend struct {
	mu sync.Mutex

	signUpResp  *supabase.AuthResponse
	signUpErr   error
	signInResp  *supabase.AuthResponse
	signInErr   error
	refreshResp *supabase.AuthResponse
	refreshErr  error
	exchange    *supabase.AuthResponse
	user        *supabase.User
	userErr     error
	signOutErr  error
	// onRefresh runs while a refresh call is in flight.
	onRefresh func()

	signUpRedirect string
	signOutTokens  []string
	refreshTokens  []string
	exchanged      [2]string
	challenge      string
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password, redirectTo string) (*supabase.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpRedirect = redirectTo
	return f.signUpResp, f.signUpErr
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResponse, error) {
	return f.signInResp, f.signInErr
}

func (f *fakeBackend) RefreshSession(ctx context.Context, refreshToken string) (*supabase.AuthResponse, error) {
	f.mu.Lock()
	f.refreshTokens = append(f.refreshTokens, refreshToken)
	resp, err, hook := f.refreshResp, f.refreshErr, f.onRefresh
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return resp, err
}

func (f *fakeBackend) ExchangeCode(ctx context.Context, code, verifier string) (*supabase.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanged = [2]string{code, verifier}
	return f.exchange, nil
}

func (f *fakeBackend) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutTokens = append(f.signOutTokens, accessToken)
	return f.signOutErr
}

func (f *fakeBackend) GetUser(ctx context.Context, accessToken string) (*supabase.User, error) {
	return f.user, f.userErr
}

func (f *fakeBackend) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenge = codeChallenge
	return "https://proj.supabase.co/auth/v1/authorize?provider=" + provider + "&redirect_to=" + redirectTo
}

func sessionResponse(userID, access, refresh string, expiresAt int64) *supabase.AuthResponse {
	return &supabase.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         &supabase.User{ID: userID, Email: userID + "@example.com"},
	}
}
