package impl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"athlo/config"
	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/domain/service"
	"athlo/internal/errors"
	"athlo/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// userService implements the UserUsecase interface.
type userService struct {
	serviceSupport

	userRepo             repository.UserRepository
	refreshTokenRepo     repository.RefreshTokenRepository
	hasher               service.PasswordHasher
	minPasswordLength    int
	revokeTokensOnDelete bool
}

// UserServiceParams holds dependencies for UserService, injected by Fx.
type UserServiceParams struct {
	fx.In

	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.PasswordHasher
	Publisher        service.EventPublisher
	Metrics          service.AuthMetrics
	Config           *config.Config
	Logger           *slog.Logger
}

// NewUserService is the constructor for userService.
func NewUserService(params UserServiceParams) usecase.UserUsecase {
	return newUserService(params, time.Now)
}

func newUserService(params UserServiceParams, now func() time.Time) *userService {
	revokeOnDelete := false
	if params.Config != nil && params.Config.Auth != nil {
		revokeOnDelete = params.Config.Auth.RevokeTokensOnDelete
	}

	return &userService{
		serviceSupport: serviceSupport{
			events:  params.Publisher,
			metrics: params.Metrics,
			logger:  params.Logger,
			now:     now,
		},
		userRepo:             params.UserRepo,
		refreshTokenRepo:     params.RefreshTokenRepo,
		hasher:               params.Hasher,
		minPasswordLength:    minPasswordLength(params.Config),
		revokeTokensOnDelete: revokeOnDelete,
	}
}

func (srv *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (_ *entity.User, err error) {
	defer srv.observe(opGetUser, &err)

	return srv.findUser(ctx, userID)
}

// UpdateProfile applies the non-nil fields of input to the stored user.
func (srv *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, input usecase.UpdateProfileInput) (_ *entity.User, err error) {
	defer srv.observe(opUpdateProfile, &err)

	var name string
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domainerrors.ErrValidationFailed.WithDetails("name must not be empty")
		}
	}

	var units entity.UnitPreference
	if input.PreferredUnits != nil {
		units = entity.UnitPreference(*input.PreferredUnits)
		if !units.Valid() {
			return nil, domainerrors.ErrValidationFailed.WithDetails("preferred_units must be metric or imperial")
		}
	}

	if _, err := srv.findUser(ctx, userID); err != nil {
		return nil, err
	}

	return modifyUser(ctx, srv.userRepo, userID, "failed to update profile", func(user *entity.User) error {
		if input.Name != nil {
			user.Name = name
		}
		if input.PreferredUnits != nil {
			user.PreferredUnits = units
		}

		return nil
	})
}

// ChangePassword replaces the hash after the current password verifies.
// Existing refresh tokens stay valid.
func (srv *userService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) (err error) {
	defer srv.observe(opChangePassword, &err)

	user, err := srv.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() || !srv.hasher.Check(currentPassword, user.PasswordHash) {
		srv.log(ctx).Info("Password change rejected", slog.String("user_id", userID.String()))

		return domainerrors.ErrInvalidCredentials
	}

	if err := checkPasswordStrength(newPassword, srv.minPasswordLength); err != nil {
		return err
	}

	hash, err := srv.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// Hashing runs outside the write. The hash verified above must still be
	// the stored one, otherwise a concurrent change won and this one is stale.
	verified := user.PasswordHash
	_, err = modifyUser(ctx, srv.userRepo, userID, "failed to store new password", func(stored *entity.User) error {
		if stored.PasswordHash != verified {
			return domainerrors.ErrInvalidCredentials
		}
		stored.PasswordHash = hash

		return nil
	})
	if err != nil {
		return err
	}

	srv.log(ctx).Info("Password changed", slog.String("user_id", userID.String()))

	return nil
}

// DeactivateAccount clears the active flag. Deactivating twice is a no-op.
func (srv *userService) DeactivateAccount(ctx context.Context, userID uuid.UUID) (err error) {
	defer srv.observe(opDeactivateAccount, &err)

	if _, err := srv.findUser(ctx, userID); err != nil {
		return err
	}

	changed := false
	_, err = modifyUser(ctx, srv.userRepo, userID, "failed to deactivate account", func(user *entity.User) error {
		if !user.IsActive {
			return repository.ErrUnchanged
		}
		user.IsActive = false
		changed = true

		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		srv.publish(ctx, entity.EventUserDeactivated, userID, nil)
	}

	return nil
}

// DeleteAccount removes the user record. Refresh tokens are only revoked
// when auth.revokeTokensOnDelete is set; otherwise they fail the owner check
// on their next use.
func (srv *userService) DeleteAccount(ctx context.Context, userID uuid.UUID) (err error) {
	defer srv.observe(opDeleteAccount, &err)

	if srv.revokeTokensOnDelete {
		revoked, err := srv.refreshTokenRepo.RevokeAllForUser(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "failed to revoke refresh tokens")
		}
		srv.log(ctx).Debug("Revoked refresh tokens before delete",
			slog.String("user_id", userID.String()),
			slog.Int("count", revoked),
		)
	}

	deleted, err := srv.userRepo.Delete(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	if !deleted {
		return domainerrors.ErrNotFound
	}

	srv.publish(ctx, entity.EventUserDeleted, userID, nil)
	srv.log(ctx).Info("Account deleted", slog.String("user_id", userID.String()))

	return nil
}

func (srv *userService) findUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domainerrors.ErrNotFound
		}

		return nil, errors.Wrap(err, "failed to find user")
	}

	return user, nil
}
