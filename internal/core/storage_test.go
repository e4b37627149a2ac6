package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletops/internal/infra/blob"
	"outletops/internal/infra/persistence/memory"
	"outletops/internal/infra/persistence/sqlite"
)

func TestStorageOptionsFromEnv(t *testing.T) {
	t.Setenv(EnvStorageDriver, "")
	t.Setenv(EnvSQLitePath, "")
	t.Setenv(EnvPostgresDSN, "")
	assert.Equal(t, StorageOptions{Driver: StorageSQLite}, StorageOptionsFromEnv())

	t.Setenv(EnvStorageDriver, "postgres")
	t.Setenv(EnvPostgresDSN, "postgres://db/outletops")
	t.Setenv(EnvSQLitePath, "/tmp/x.db")
	assert.Equal(t, StorageOptions{
		Driver:      StoragePostgres,
		SQLitePath:  "/tmp/x.db",
		PostgresDSN: "postgres://db/outletops",
	}, StorageOptionsFromEnv())
}

func TestOpenPersistentStoreMemory(t *testing.T) {
	engine := NewDefaultRulesEngine()
	store, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: StorageMemory}, engine)
	require.NoError(t, err)
	mem, ok := store.(*memory.Store)
	require.True(t, ok)
	assert.Same(t, engine, mem.RulesEngine())
	assert.NoError(t, CloseStore(store))
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "outlets.db")
	opts := StorageOptions{Driver: StorageSQLite, SQLitePath: path}

	store, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	_, ok := store.(*sqlite.Store)
	require.True(t, ok)
	svc := NewService(store)
	created, _, err := svc.AddOutlet(ctx, OutletInput{Name: "Durable"})
	require.NoError(t, err)
	require.NoError(t, CloseStore(store))

	reopened, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseStore(reopened) })
	got, err := NewService(reopened).GetOutlet(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Durable", got.Name)
	assert.Len(t, got.History, 1)
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: "mongo"}, nil)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()
	none, err := OpenBlobStore(ctx, BlobOptions{})
	require.NoError(t, err)
	assert.Nil(t, none)

	mem, err := OpenBlobStore(ctx, BlobOptions{Driver: blob.DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverMemory, mem.Driver())

	fs, err := OpenBlobStore(ctx, BlobOptions{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, fs.Driver())

	bad, err := OpenBlobStore(ctx, BlobOptions{Driver: "ftp"})
	assert.Error(t, err)
	assert.Nil(t, bad)

	missingBucket, err := OpenBlobStore(ctx, BlobOptions{Driver: blob.DriverS3})
	assert.Error(t, err)
	assert.Nil(t, missingBucket)
}
