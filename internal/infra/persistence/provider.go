// Package persistence selects the storage backend for the domain repositories.
package persistence

import (
	"context"
	"log/slog"

	"athlo/config"
	"athlo/internal/domain/constants"
	"athlo/internal/domain/repository"
	"athlo/internal/errors"
	"athlo/internal/infra/persistence/jsonstore"
	"athlo/internal/infra/persistence/postgres"
	"athlo/internal/infra/persistence/recordstore"

	"go.uber.org/fx"
)

// Params holds dependencies for the repository provider, injected by Fx.
type Params struct {
	fx.In
	fx.Lifecycle

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// Repositories exposes every repository to the Fx graph.
type Repositories struct {
	fx.Out

	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
}

// NewRepositories opens the backend named by storage.driver.
func NewRepositories(params Params) (Repositories, error) {
	driver := params.Config.Storage.Driver

	switch driver {
	case constants.StorageDriverBlob, "":
		bucket, err := recordstore.NewBucket(recordstore.BucketParams{
			Lifecycle: params.Lifecycle,
			Ctx:       params.Ctx,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return Repositories{}, err
		}

		return Repositories{
			Users:         jsonstore.NewUserRepository(bucket),
			RefreshTokens: jsonstore.NewRefreshTokenRepository(bucket),
		}, nil

	case constants.StorageDriverPostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lifecycle,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return Repositories{}, err
		}

		return Repositories{
			Users:         postgres.NewUserRepository(db),
			RefreshTokens: postgres.NewRefreshTokenRepository(db),
		}, nil

	default:
		return Repositories{}, errors.Errorf("unsupported storage driver %q", driver)
	}
}
