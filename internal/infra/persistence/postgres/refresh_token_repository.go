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
	"gorm.io/plugin/dbresolver"
)

// refreshTokenRepository implements the repository.RefreshTokenRepository interface.
type refreshTokenRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (repo *refreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	if err := repo.db.WithContext(ctx).Create(fromRefreshTokenDomain(token)).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrRefreshTokenExists
		}
		if isForeignKeyConstraintViolation(err) {
			return domainerrors.NewStorageError(err, "refresh token references an unknown user")
		}

		return domainerrors.NewStorageError(err, "failed to create refresh token")
	}

	return nil
}

// FindByToken reads from the primary; a replica may not have seen a
// revocation yet.
func (repo *refreshTokenRepository) FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error) {
	return repo.first(ctx, "token = ?", token)
}

// Revoke is a conditional update on revoked = false. When no row changed the
// token is read back to tell a lost race from a missing token.
func (repo *refreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("id = ? AND revoked = ?", id, false).
		UpdateColumns(map[string]any{"revoked": true, "updated_at": repo.now()})
	if result.Error != nil {
		return domainerrors.NewStorageError(result.Error, "failed to revoke refresh token")
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := repo.first(ctx, "id = ?", id); err != nil {
		return err
	}

	return repository.ErrRefreshTokenAlreadyRevoked
}

func (repo *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		UpdateColumns(map[string]any{"revoked": true, "updated_at": repo.now()})
	if result.Error != nil {
		return 0, domainerrors.NewStorageError(result.Error, "failed to revoke user refresh tokens")
	}

	return int(result.RowsAffected), nil
}

func (repo *refreshTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error) {
	var rows []*model.RefreshTokenModel
	err := repo.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, domainerrors.NewStorageError(err, "failed to list refresh tokens")
	}

	tokens := make([]*entity.RefreshToken, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, toRefreshTokenDomain(row))
	}

	return tokens, nil
}

func (repo *refreshTokenRepository) first(ctx context.Context, query string, args ...any) (*entity.RefreshToken, error) {
	var tokenM model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where(query, args...).
		First(&tokenM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}

		return nil, domainerrors.NewStorageError(err, "failed to find refresh token")
	}

	return toRefreshTokenDomain(&tokenM), nil
}
