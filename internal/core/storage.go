package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"outletops/internal/infra/blob"
	blobfs "outletops/internal/infra/blob/fs"
	blobmemory "outletops/internal/infra/blob/memory"
	blobs3 "outletops/internal/infra/blob/s3"
	"outletops/internal/infra/persistence/memory"
	"outletops/internal/infra/persistence/postgres"
	"outletops/internal/infra/persistence/sqlite"
	"outletops/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Environment variables read by StorageOptionsFromEnv.
const (
	EnvStorageDriver = "OUTLETOPS_STORAGE_DRIVER"
	EnvSQLitePath    = "OUTLETOPS_SQLITE_PATH"
	EnvPostgresDSN   = "OUTLETOPS_POSTGRES_DSN"
)

// StorageOptions selects and parameterises the outlet repository backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageOptionsFromEnv reads backend selection from the environment.
// Defaults to sqlite when unset.
//
//	OUTLETOPS_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	OUTLETOPS_SQLITE_PATH: path to sqlite file (default ./outletops.db)
//	OUTLETOPS_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageOptionsFromEnv() StorageOptions {
	driver := StorageDriver(os.Getenv(EnvStorageDriver))
	if driver == "" {
		driver = StorageSQLite
	}
	return StorageOptions{
		Driver:      driver,
		SQLitePath:  os.Getenv(EnvSQLitePath),
		PostgresDSN: os.Getenv(EnvPostgresDSN),
	}
}

// OpenPersistentStore constructs the backend named by opts.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	switch opts.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(opts.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}

// CloseStore releases resources held by stores that own a connection.
func CloseStore(store PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BlobOptions selects the backend used to archive import uploads.
type BlobOptions struct {
	Driver blob.Driver
	FSRoot string
	S3     blobs3.Config
}

// OpenBlobStore constructs the archive backend named by opts. It returns a
// nil store when archiving is disabled.
func OpenBlobStore(ctx context.Context, opts BlobOptions) (blob.Store, error) {
	switch opts.Driver {
	case blob.DriverNone, "":
		return nil, nil
	case blob.DriverMemory:
		return blobmemory.New(), nil
	case blob.DriverFilesystem:
		store, err := blobfs.New(opts.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case blob.DriverS3:
		store, err := blobs3.New(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", opts.Driver)
	}
}
