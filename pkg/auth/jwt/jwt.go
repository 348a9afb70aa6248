// Package jwt provides a JWT authenticator validating HMAC-signed bearer
// tokens against a shared secret, with optional issuer and audience checks.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/unillm/unillm/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the shared HMAC signing secret. Required.
	Secret string

	// Issuer is the expected iss claim. Empty means not validated.
	Issuer string

	// Audience is the expected aud claim. Empty means not validated.
	Audience string

	// TierClaim is the claim carrying the service tier. Default: "tier".
	TierClaim string
}

func (c *Config) applyDefaults() {
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
}

// Authenticator validates HMAC-signed JWT bearer tokens.
type Authenticator struct {
	config Config
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{config: cfg}
}

// Authenticate extracts a bearer token from the Authorization header and
// validates it.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature)
//   - Yes: valid JWT with the sub claim as the identity subject
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Result{Decision: auth.Abstain}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Result{Decision: auth.Abstain}
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("empty bearer token")}
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		return []byte(a.config.Secret), nil
	}, opts...)
	if err != nil {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("token has no subject")}
	}
	tier, _ := claims[a.config.TierClaim].(string)
	if tier == "" {
		tier = "default"
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: sub, ServiceTier: tier},
	}
}
