package core

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"designcore/internal/config"
	"designcore/internal/infra/blob"
	blobfs "designcore/internal/infra/blob/fs"
	"designcore/internal/infra/persistence/badger"
	"designcore/internal/infra/persistence/memory"
	"designcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		cfg   config.StorageConfig
		check func(t *testing.T, store any)
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Driver: "memory"},
			check: func(t *testing.T, store any) {
				if _, ok := store.(*memory.Store); !ok {
					t.Fatalf("expected memory store, got %T", store)
				}
			},
		},
		{
			name: "sqlite",
			cfg:  config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "designs.db")},
			check: func(t *testing.T, store any) {
				if _, ok := store.(*sqlite.Store); !ok {
					t.Fatalf("expected sqlite store, got %T", store)
				}
			},
		},
		{
			name: "badger",
			cfg:  config.StorageConfig{Driver: "badger", BadgerInMemory: true},
			check: func(t *testing.T, store any) {
				if _, ok := store.(*badger.Store); !ok {
					t.Fatalf("expected badger store, got %T", store)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, closer, err := OpenPersistentStore(ctx, tc.cfg, nil, zap.NewNop())
			if err != nil {
				t.Fatalf("open %s: %v", tc.name, err)
			}
			t.Cleanup(func() { _ = closer.Close() })
			tc.check(t, store)

			svc := NewService(store)
			if _, err := svc.SeedDefaultRoles(ctx, Actor{}); err != nil {
				t.Fatalf("seed: %v", err)
			}
			id := mustPart(t, svc, Actor{}, PartSpec{Name: "persisted", Sequence: "ATG", Role: "CDS"})
			mustCompose(t, svc, id)
		})
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	if _, _, err := OpenPersistentStore(context.Background(), config.StorageConfig{Driver: "cassandra"}, nil, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBlobStore(ctx, config.BlobConfig{})
	if err != nil || store != nil {
		t.Fatalf("empty driver disables exports, got %v %v", store, err)
	}
	store, err = OpenBlobStore(ctx, config.BlobConfig{Driver: "memory"})
	if err != nil || store.Driver() != blob.DriverMemory {
		t.Fatalf("expected memory blob store, got %v", err)
	}
	root := t.TempDir()
	store, err = OpenBlobStore(ctx, config.BlobConfig{Driver: "fs", FSRoot: root})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	fs, ok := store.(*blobfs.Store)
	if !ok || fs.Root() != root {
		t.Fatalf("expected fs store rooted at %s, got %T", root, store)
	}
	if _, err := OpenBlobStore(ctx, config.BlobConfig{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown blob driver error")
	}
}
