package recordstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"athlo/config"
	"athlo/internal/errors"

	"go.uber.org/fx"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	// URL openers for gs:// and mem:// buckets. fileblob registers file://.
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
)

// BucketParams holds dependencies for the record store bucket, injected by Fx.
type BucketParams struct {
	fx.In
	fx.Lifecycle

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewBucket opens the bucket configured under storage and closes it on shutdown.
func NewBucket(params BucketParams) (*blob.Bucket, error) {
	bucket, err := OpenBucket(params.Ctx, params.Config.Storage)
	if err != nil {
		return nil, err
	}

	params.Logger.Info("Record store bucket opened",
		slog.String("bucket_url", params.Config.Storage.BucketURL),
		slog.String("data_dir", params.Config.Storage.DataDir),
	)

	params.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return errors.WithStack(bucket.Close())
		},
	})

	return bucket, nil
}

// OpenBucket opens BucketURL when set, otherwise the local DataDir, creating
// the directory if needed.
func OpenBucket(ctx context.Context, cfg *config.StorageConfig) (*blob.Bucket, error) {
	if cfg.BucketURL != "" {
		bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
		if err != nil {
			return nil, errors.Wrapf(err, "open bucket %s", cfg.BucketURL)
		}

		return bucket, nil
	}

	dir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolve data dir")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}

	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open data dir %s", dir)
	}

	return bucket, nil
}
