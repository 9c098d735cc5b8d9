package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/shopdesk/docs-service/pkg/middleware"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a new OIDC verifier for the given issuer and client ID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{provider: provider, verifier: verifier}, nil
}

// Verify checks signature, issuer, audience and expiry of raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Issuer builds the issuer URL. A realm is appended Keycloak-style
// (<url>/realms/<realm>); without one the URL is used as is.
func Issuer(url, realm string) string {
	url = strings.TrimRight(url, "/")
	if realm == "" {
		return url
	}
	return url + "/realms/" + realm
}

// Config selects how bearer tokens are checked.
type Config struct {
	Issuer             string
	ClientID           string
	AllowInsecureToken bool
}

// Enabled reports whether write routes should require a token.
func (c Config) Enabled() bool {
	return (c.Issuer != "" && c.ClientID != "") || c.AllowInsecureToken
}

// New returns the verifier for cfg, or nil when authentication is off. A
// configured issuer wins over the insecure verifier.
func New(ctx context.Context, cfg Config) (middleware.Verifier, error) {
	if cfg.Issuer != "" && cfg.ClientID != "" {
		v, err := NewVerifier(ctx, cfg.Issuer, cfg.ClientID)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	if cfg.AllowInsecureToken {
		return NewInsecureVerifier(), nil
	}
	return nil, nil
}
