// Package oidcprovider implements [authgate.IdentityProvider] on top of an
// OpenID Connect issuer. Discovery and key management are delegated to
// coreos/go-oidc; this package only translates a verified ID token into the
// gateway's identity assertion.
package oidcprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	authgate "github.com/sessionforge/authgate"
)

// Provider defines a public type used by authgate APIs.
//
// Provider instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Provider struct {
	verifier *oidc.IDTokenVerifier
}

// New runs OIDC discovery against the issuer and prepares a verifier bound
// to the given client ID.
func New(ctx context.Context, issuer, clientID string) (*Provider, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if clientID == "" {
		return nil, errors.New("client id is required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}

	return &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// VerifyIdentityToken describes the verifyidentitytoken operation and its observable behavior.
//
// VerifyIdentityToken may return an error when input validation, dependency calls, or security checks fail.
// VerifyIdentityToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) VerifyIdentityToken(ctx context.Context, raw string) (authgate.Identity, error) {
	tok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return authgate.Identity{}, fmt.Errorf("id token rejected: %w", err)
	}

	var claims struct {
		EmailVerified bool `json:"email_verified"`
	}
	if err := tok.Claims(&claims); err != nil {
		return authgate.Identity{}, fmt.Errorf("id token claims unreadable: %w", err)
	}

	return authgate.Identity{
		Subject:       tok.Subject,
		EmailVerified: claims.EmailVerified,
	}, nil
}
