package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim Supabase puts on user access tokens.
const Audience = "authenticated"

// Claims are the access token claims foodlog relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenVerifier checks an access token's signature and lifetime locally.
// Implementations return an error wrapping ErrTokenExpired for expired tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// HMACVerifier verifies HS256 tokens signed with the project's JWT secret.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithAudience(Audience),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("verify token: missing sub claim")
	}
	return claims, nil
}

// JWKSVerifier verifies asymmetric tokens against the project's published key set.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWKSVerifier fetches keys lazily from <projectURL>/auth/v1/.well-known/jwks.json.
func NewJWKSVerifier(ctx context.Context, projectURL string) *JWKSVerifier {
	issuer := projectURL + "/auth/v1"
	keySet := oidc.NewRemoteKeySet(ctx, issuer+"/.well-known/jwks.json")
	return newJWKSVerifier(issuer, keySet, time.Now)
}

func newJWKSVerifier(issuer string, keySet oidc.KeySet, now func() time.Time) *JWKSVerifier {
	return &JWKSVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:             Audience,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
			Now:                  now,
		}),
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims := &Claims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return claims, nil
}

// unverifiedExpiry reads the exp claim without checking the signature. It is
// only used to schedule refreshes for tokens the auth service already accepted.
func unverifiedExpiry(token string) time.Time {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
