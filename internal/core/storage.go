package core

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"designcore/internal/config"
	"designcore/internal/infra/blob"
	blobfs "designcore/internal/infra/blob/fs"
	blobmemory "designcore/internal/infra/blob/memory"
	blobs3 "designcore/internal/infra/blob/s3"
	"designcore/internal/infra/persistence/badger"
	"designcore/internal/infra/persistence/memory"
	"designcore/internal/infra/persistence/postgres"
	"designcore/internal/infra/persistence/sqlite"
	"designcore/pkg/domain"
)

// StorageDriver identifies a persistent store implementation.
type StorageDriver string

// Storage drivers.
const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageBadger   StorageDriver = "badger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenPersistentStore opens the backend selected by cfg.Driver. The returned
// closer releases backend resources. A nil engine installs the default rules.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *domain.RulesEngine, zl *zap.Logger) (domain.PersistentStore, io.Closer, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch StorageDriver(cfg.Driver) {
	case StorageMemory:
		return memory.NewStore(engine), nopCloser{}, nil
	case StorageSQLite, "":
		s, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StorageBadger:
		s, err := badger.Open(badger.Config{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.BadgerInMemory,
			SyncWrites: true,
			Logger:     zl,
		}, engine)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenBlobStore opens the export destination selected by cfg.Driver. An
// empty driver disables exports and returns a nil store.
func OpenBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch blob.Driver(cfg.Driver) {
	case "":
		return nil, nil
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverFilesystem:
		store, err := blobfs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case blob.DriverS3:
		store, err := blobs3.New(ctx, blobs3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
