// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"
	"time"

	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/errors"
	"athlo/internal/infra/persistence/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

// userRepository implements the repository.UserRepository interface using GORM.
type userRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserRepository is the constructor for userRepository.
// It returns the repository as a repository.UserRepository interface, adhering to dependency inversion.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new user. The unique index on email turns a concurrent
// duplicate registration into ErrDuplicateEmail.
func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrDuplicateEmail.WrapMessage("email already exists")
		}

		return domainerrors.NewStorageError(err, "failed to create user")
	}

	return nil
}

// FindByID reads from the primary so a user created a moment ago is visible.
func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.first(ctx, "find user by id", "id = ?", id)
}

func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.first(ctx, "find user by email", "email = ?", email)
}

func (repo *userRepository) FindByProviderSubject(ctx context.Context, provider entity.ProviderType, subject string) (*entity.User, error) {
	if subject == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.first(ctx, "find user by provider subject",
		"auth_provider = ? AND provider_subject = ?", string(provider), subject)
}

// Modify locks the row with SELECT ... FOR UPDATE, applies fn and writes
// every mutable column back inside the same transaction.
func (repo *userRepository) Modify(ctx context.Context, id uuid.UUID, fn repository.UserMutation) (*entity.User, error) {
	var (
		result *entity.User
		fnErr  error
	)

	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var userM model.UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&userM).Error; err != nil {
			return err
		}

		user := toUserDomain(&userM)
		if fnErr = fn(user); fnErr != nil {
			if errors.Is(fnErr, repository.ErrUnchanged) {
				result = toUserDomain(&userM)

				return nil
			}

			return fnErr
		}

		updated := fromUserDomain(user)
		updated.ID, updated.CreatedAt = userM.ID, userM.CreatedAt
		updated.UpdatedAt = repo.now()

		if err := tx.Model(&model.UserModel{}).
			Where("id = ?", id).
			Select("*").
			Omit("id", "created_at").
			UpdateColumns(updated).Error; err != nil {
			return err
		}

		result = toUserDomain(updated)

		return nil
	})
	switch {
	case err == nil:
		return result, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, repository.ErrUserNotFound
	case isUniqueConstraintViolation(err):
		return nil, domainerrors.ErrDuplicateEmail.WrapMessage("email already exists")
	default:
		return nil, domainerrors.NewStorageError(err, "failed to modify user")
	}
}

func (repo *userRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := repo.db.WithContext(ctx).Where("id = ?", id).Delete(&model.UserModel{})
	if result.Error != nil {
		return false, domainerrors.NewStorageError(result.Error, "failed to delete user")
	}

	return result.RowsAffected > 0, nil
}

func (repo *userRepository) List(ctx context.Context) ([]*entity.User, error) {
	var rows []*model.UserModel
	if err := repo.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to list users")
	}

	users := make([]*entity.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, toUserDomain(row))
	}

	return users, nil
}

func (repo *userRepository) first(ctx context.Context, op string, query string, args ...any) (*entity.User, error) {
	var userM model.UserModel

	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where(query, args...).
		First(&userM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, domainerrors.NewStorageError(err, "failed to "+op)
	}

	return toUserDomain(&userM), nil
}
