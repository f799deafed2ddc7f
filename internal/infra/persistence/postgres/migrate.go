package postgres

import (
	"context"
	"database/sql"

	"athlo/internal/errors"
	"athlo/internal/infra/persistence/postgres/migrations"

	"github.com/pressly/goose/v3"
)

// gooseUp is swapped out in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}

	if err := gooseUp(ctx, db, "."); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	return nil
}
