package repository

import (
	"context"

	"athlo/internal/domain/entity"
	"athlo/internal/errors"

	"github.com/google/uuid"
)

var (
	// ErrRefreshTokenNotFound is returned when no stored token matches.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrRefreshTokenAlreadyRevoked is returned by Revoke when another caller
	// revoked the token first.
	ErrRefreshTokenAlreadyRevoked = errors.New("refresh token already revoked")

	// ErrRefreshTokenExists is returned when a token string collides with a stored one.
	ErrRefreshTokenExists = errors.New("refresh token already exists")
)

// RefreshTokenRepository defines the interface for refresh token persistence.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *entity.RefreshToken) error

	FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error)

	// Revoke flips the revoked flag from false to true as a single
	// compare-and-set. Exactly one concurrent caller succeeds; the others get
	// ErrRefreshTokenAlreadyRevoked.
	Revoke(ctx context.Context, id uuid.UUID) error

	// RevokeAllForUser revokes every active token of the user and returns how
	// many were changed.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error)
}
