// Package supabase is a small REST client for the Supabase auth, PostgREST and
// storage endpoints used by foodlog.
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jw6ventures/foodlog/internal/metrics"
)

// Config holds client configuration.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// Client talks to a single Supabase project.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase anon key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type tokenKey struct{}

// WithAccessToken attaches a user access token to ctx. Requests made with the
// returned context authenticate as that user so row-level security applies.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFromContext returns the token stored by WithAccessToken.
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	bearer := c.anonKey
	if token := AccessTokenFromContext(req.Context()); token != "" {
		bearer = token
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// do executes req and returns an *APIError for any 4xx/5xx response.
func (c *Client) do(req *http.Request, operation string) (*Response, error) {
	start := time.Now()
	defer metrics.ObserveBackendLatency(req.Context(), operation, start)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", operation, err)
	}

	out := &Response{StatusCode: resp.StatusCode, Body: body, Headers: resp.Header}
	if err := out.Error(); err != nil {
		return out, err
	}
	return out, nil
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Error returns an *APIError when the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}
	return parseAPIError(r.StatusCode, r.Body)
}

// APIError is a rejection reported by one of the Supabase services. Message is
// the service's own wording and is passed to the user unmodified.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.Status)
}

// The auth, rest and storage services each use their own error body shape.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		for _, path := range []string{"msg", "error_description", "message", "error"} {
			if v := res.Get(path); v.Type == gjson.String && v.String() != "" {
				apiErr.Message = v.String()
				break
			}
		}
		for _, path := range []string{"error_code", "code", "error"} {
			if v := res.Get(path); v.Exists() && v.String() != "" {
				apiErr.Code = v.String()
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// PingContext checks that the project's auth service answers its health endpoint.
func (c *Client) PingContext(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	_, err = c.do(req, "health")
	return err
}
