package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jw6ventures/foodlog/internal/config"
)

type contextKey struct{}

const (
	cookieName = "foodlog_csrf"
	headerName = "X-CSRF-Token"
	FieldName  = "_csrf"

	maxMemory = 8 << 20
)

// Option adjusts the middleware.
type Option func(*options)

type options struct {
	tooLarge http.Handler
}

// WithTooLargeHandler answers requests whose body overran the size limit set by
// earlier middleware. The token cannot be checked on such requests, so h must
// not change any state. The default is a plain 413.
func WithTooLargeHandler(h http.Handler) Option {
	return func(o *options) {
		o.tooLarge = h
	}
}

// Middleware issues a double-submit token cookie and checks it on mutating requests.
func Middleware(cfg *config.Config, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		tooLarge: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		}),
	}
	for _, opt := range opts {
		opt(&o)
	}

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(cookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				var err error
				token, err = generateToken()
				if err != nil {
					http.Error(w, "failed to issue csrf token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if isStateChanging(r.Method) {
				provided := r.Header.Get(headerName)
				if provided == "" {
					if err := parseForm(r); err != nil {
						var tooLarge *http.MaxBytesError
						if errors.As(err, &tooLarge) {
							o.tooLarge.ServeHTTP(w, r)
							return
						}
					}
					provided = r.FormValue(FieldName)
				}
				if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
					http.Error(w, "invalid csrf token", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), contextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the token for embedding in forms.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// parseForm honours any body limit set by earlier middleware.
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxMemory)
	}
	return r.ParseForm()
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
