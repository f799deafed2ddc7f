// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"athlo/internal/domain/entity"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput defines the data required for a user to log in.
type LoginInput struct {
	Email    string
	Password string
}

// --- Output DTOs ---

// TokenPair is a freshly issued access token and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // Lifetime of the access token.
}

// LoginOutput returns the authenticated user with a new token pair.
type LoginOutput struct {
	User *entity.User
	TokenPair
}

// AuthUsecase covers sign-up, sign-in and the refresh token lifecycle.
type AuthUsecase interface {
	// Register creates an email/password account. It issues no tokens.
	Register(ctx context.Context, input RegisterInput) (*entity.User, error)

	Login(ctx context.Context, input LoginInput) (*LoginOutput, error)

	// LoginWithFederatedIdentity signs in with a third-party ID token, linking
	// or creating the local account as needed.
	LoginWithFederatedIdentity(ctx context.Context, idToken string) (*LoginOutput, error)

	// RefreshTokens redeems a refresh token exactly once for a new pair.
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Logout revokes the refresh token if it is still active. It never fails.
	Logout(ctx context.Context, refreshToken string)
}
