// Package repository defines the persistence contracts the domain depends on.
package repository

import (
	"context"

	"athlo/internal/domain/entity"
	"athlo/internal/errors"

	"github.com/google/uuid"
)

var (
	// ErrUserNotFound is returned when a user lookup matches no record.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnchanged is returned by a Modify callback to skip the write.
	// Modify then returns the stored user and no error.
	ErrUnchanged = errors.New("user unchanged")
)

// UserMutation changes a freshly read user in place.
type UserMutation func(user *entity.User) error

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	// Create persists a fully populated user. It fails with
	// domainerrors.ErrDuplicateEmail when the email is already taken.
	Create(ctx context.Context, user *entity.User) error

	// FindByID returns ErrUserNotFound when no user has the id.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByEmail matches the email exactly as stored.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// FindByProviderSubject finds the user linked to an external identity.
	FindByProviderSubject(ctx context.Context, provider entity.ProviderType, subject string) (*entity.User, error)

	// Modify reads the user, applies fn and stores the result as one atomic
	// step, so concurrent modifications never overwrite each other. The
	// update timestamp is refreshed. Any error from fn other than
	// ErrUnchanged aborts the write and is returned as is. Returns
	// ErrUserNotFound when the id is unknown.
	Modify(ctx context.Context, id uuid.UUID, fn UserMutation) (*entity.User, error)

	// Delete removes the user and reports whether a record existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	List(ctx context.Context) ([]*entity.User, error)
}
