package usecase

import (
	"context"

	"athlo/internal/domain/entity"

	"github.com/google/uuid"
)

// UpdateProfileInput carries the optional profile changes. Nil fields are left untouched.
type UpdateProfileInput struct {
	Name           *string
	PreferredUnits *string
}

// UserUsecase defines account management for an authenticated user.
type UserUsecase interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*entity.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*entity.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	DeactivateAccount(ctx context.Context, userID uuid.UUID) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}
