package jsonstore

import (
	"context"

	"athlo/internal/domain/entity"
	domainerrors "athlo/internal/domain/errors"
	"athlo/internal/domain/repository"
	"athlo/internal/errors"
	"athlo/internal/infra/persistence/recordstore"

	"github.com/google/uuid"
	"gocloud.dev/blob"
)

type userRepository struct {
	users *recordstore.Collection[userDocument]
}

// NewUserRepository stores users in the "users" collection of bucket.
func NewUserRepository(bucket *blob.Bucket, opts ...recordstore.Option) repository.UserRepository {
	return &userRepository{
		users: recordstore.NewCollection[userDocument](bucket, usersCollection, opts...),
	}
}

func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	doc := fromUserDomain(user)

	_, err := repo.users.CreateUnique(ctx, doc, func(existing userDocument) bool {
		return existing.Email == doc.Email || existing.ID == doc.ID
	})
	if errors.Is(err, recordstore.ErrConflict) {
		return domainerrors.ErrDuplicateEmail.WrapMessage("user with this email already exists")
	}
	if err != nil {
		return domainerrors.NewStorageError(err, "failed to create user")
	}

	return nil
}

func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.findOne(ctx, func(d userDocument) bool { return d.ID == id })
}

func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.findOne(ctx, func(d userDocument) bool { return d.Email == email })
}

func (repo *userRepository) FindByProviderSubject(ctx context.Context, provider entity.ProviderType, subject string) (*entity.User, error) {
	if subject == "" {
		return nil, repository.ErrUserNotFound
	}

	return repo.findOne(ctx, func(d userDocument) bool {
		return d.AuthProvider == string(provider) && deref(d.ProviderSubject) == subject
	})
}

func (repo *userRepository) Modify(ctx context.Context, id uuid.UUID, fn repository.UserMutation) (*entity.User, error) {
	var (
		current *entity.User
		fnErr   error
	)

	updated, err := repo.users.Modify(ctx,
		func(d userDocument) bool { return d.ID == id },
		func(d userDocument) (userDocument, error) {
			current = d.toDomain()
			user := d.toDomain()
			if fnErr = fn(user); fnErr != nil {
				return d, fnErr
			}
			user.ID, user.CreatedAt = d.ID, d.CreatedAt

			return fromUserDomain(user), nil
		},
	)
	switch {
	case err == nil:
		return updated.toDomain(), nil
	case errors.Is(fnErr, repository.ErrUnchanged):
		return current, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, recordstore.ErrNotFound):
		return nil, repository.ErrUserNotFound
	default:
		return nil, domainerrors.NewStorageError(err, "failed to modify user")
	}
}

func (repo *userRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := repo.users.Delete(ctx, id)
	if err != nil {
		return false, domainerrors.NewStorageError(err, "failed to delete user")
	}

	return deleted, nil
}

func (repo *userRepository) List(ctx context.Context) ([]*entity.User, error) {
	docs, err := repo.users.List(ctx)
	if err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to list users")
	}

	users := make([]*entity.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toDomain())
	}

	return users, nil
}

func (repo *userRepository) findOne(ctx context.Context, match func(userDocument) bool) (*entity.User, error) {
	doc, ok, err := repo.users.FindOne(ctx, match)
	if err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to find user")
	}
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return doc.toDomain(), nil
}
