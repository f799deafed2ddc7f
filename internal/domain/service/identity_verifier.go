package service

import (
	"context"

	"athlo/internal/domain/entity"
)

// FederatedIdentity is the verified claim set extracted from a third-party ID token.
type FederatedIdentity struct {
	Subject       string // Provider-specific user id (the 'sub' claim).
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
	Audience      string
}

// IdentityVerifier validates third-party identity tokens.
type IdentityVerifier interface {
	// Verify checks the token with the provider. It fails with
	// domainerrors.ErrInvalidToken when the provider rejects the token or the
	// audience does not match.
	Verify(ctx context.Context, idToken string) (*FederatedIdentity, error)

	// Provider returns the provider tag stored on linked accounts.
	Provider() entity.ProviderType
}
