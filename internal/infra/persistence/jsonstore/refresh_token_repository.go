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

type refreshTokenRepository struct {
	tokens *recordstore.Collection[refreshTokenDocument]
}

// NewRefreshTokenRepository stores tokens in the "refresh_tokens" collection of bucket.
func NewRefreshTokenRepository(bucket *blob.Bucket, opts ...recordstore.Option) repository.RefreshTokenRepository {
	return &refreshTokenRepository{
		tokens: recordstore.NewCollection[refreshTokenDocument](bucket, refreshTokensCollection, opts...),
	}
}

func (repo *refreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	doc := fromRefreshTokenDomain(token)

	_, err := repo.tokens.CreateUnique(ctx, doc, func(existing refreshTokenDocument) bool {
		return existing.Token == doc.Token || existing.ID == doc.ID
	})
	if errors.Is(err, recordstore.ErrConflict) {
		return repository.ErrRefreshTokenExists
	}
	if err != nil {
		return domainerrors.NewStorageError(err, "failed to create refresh token")
	}

	return nil
}

func (repo *refreshTokenRepository) FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error) {
	doc, ok, err := repo.tokens.FindOne(ctx, func(d refreshTokenDocument) bool { return d.Token == token })
	if err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to find refresh token")
	}
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}

	return doc.toDomain(), nil
}

func (repo *refreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := repo.tokens.Modify(ctx,
		func(d refreshTokenDocument) bool { return d.ID == id },
		func(d refreshTokenDocument) (refreshTokenDocument, error) {
			if d.Revoked {
				return d, repository.ErrRefreshTokenAlreadyRevoked
			}
			d.Revoked = true

			return d, nil
		},
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recordstore.ErrNotFound):
		return repository.ErrRefreshTokenNotFound
	case errors.Is(err, repository.ErrRefreshTokenAlreadyRevoked):
		return repository.ErrRefreshTokenAlreadyRevoked
	default:
		return domainerrors.NewStorageError(err, "failed to revoke refresh token")
	}
}

func (repo *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	changed, err := repo.tokens.ModifyAll(ctx,
		func(d refreshTokenDocument) bool { return d.UserID == userID },
		func(d refreshTokenDocument) (refreshTokenDocument, bool) {
			if d.Revoked {
				return d, false
			}
			d.Revoked = true

			return d, true
		},
	)
	if err != nil {
		return 0, domainerrors.NewStorageError(err, "failed to revoke user refresh tokens")
	}

	return changed, nil
}

func (repo *refreshTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error) {
	docs, err := repo.tokens.FindBy(ctx, func(d refreshTokenDocument) bool { return d.UserID == userID })
	if err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to list refresh tokens")
	}

	tokens := make([]*entity.RefreshToken, 0, len(docs))
	for _, doc := range docs {
		tokens = append(tokens, doc.toDomain())
	}

	return tokens, nil
}
