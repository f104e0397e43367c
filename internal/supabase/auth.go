package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Auth returns a client for the GoTrue endpoints.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles authentication operations.
type AuthClient struct {
	client *Client
}

// AuthResponse is returned by the token and signup endpoints. AccessToken is
// empty when signup is waiting on email confirmation.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns the absolute access token expiry.
func (r *AuthResponse) Expiry(now time.Time) time.Time {
	if r.ExpiresAt > 0 {
		return time.Unix(r.ExpiresAt, 0)
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// User is a Supabase auth user.
type User struct {
	ID                 string         `json:"id"`
	Email              string         `json:"email"`
	Role               string         `json:"role"`
	EmailConfirmedAt   *time.Time     `json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time     `json:"confirmation_sent_at,omitempty"`
	UserMetadata       map[string]any `json:"user_metadata,omitempty"`
}

// SignUp requests account creation. redirectTo is where the confirmation email links back to.
func (a *AuthClient) SignUp(ctx context.Context, email, password, redirectTo string) (*AuthResponse, error) {
	endpoint := a.client.baseURL + "/auth/v1/signup"
	if redirectTo != "" {
		endpoint += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}

	resp, err := a.post(ctx, endpoint, "auth.signup", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	// Unconfirmed signups return the bare user object instead of a session.
	if out.AccessToken == "" && out.User == nil {
		var user User
		if err := json.Unmarshal(resp.Body, &user); err == nil && user.ID != "" {
			out.User = &user
		}
	}
	return &out, nil
}

// SignInWithPassword exchanges credentials for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	return a.token(ctx, "password", "auth.signin", map[string]string{
		"email":    email,
		"password": password,
	})
}

// RefreshSession exchanges a refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	return a.token(ctx, "refresh_token", "auth.refresh", map[string]string{
		"refresh_token": refreshToken,
	})
}

// ExchangeCode completes a PKCE provider sign-in.
func (a *AuthClient) ExchangeCode(ctx context.Context, code, verifier string) (*AuthResponse, error) {
	return a.token(ctx, "pkce", "auth.exchange_code", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
}

// SignOut revokes the session identified by accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, err := a.post(ctx, a.client.baseURL+"/auth/v1/logout", "auth.signout", nil, accessToken)
	return err
}

// GetUser returns the user owning accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(WithAccessToken(ctx, accessToken), http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req)

	resp, err := a.client.do(req, "auth.get_user")
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// AuthorizeURL builds the provider redirect for a PKCE sign-in.
func (a *AuthClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return a.client.baseURL + "/auth/v1/authorize?" + q.Encode()
}

func (a *AuthClient) token(ctx context.Context, grantType, operation string, body map[string]string) (*AuthResponse, error) {
	endpoint := a.client.baseURL + "/auth/v1/token?" + url.Values{"grant_type": {grantType}}.Encode()
	resp, err := a.post(ctx, endpoint, operation, body, "")
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%s: response carried no access token", operation)
	}
	return &out, nil
}

func (a *AuthClient) post(ctx context.Context, endpoint, operation string, body any, accessToken string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}
	if accessToken != "" {
		ctx = WithAccessToken(ctx, accessToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.client.do(req, operation)
}
