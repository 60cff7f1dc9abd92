package integration

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"designcore/internal/cache"
	"designcore/internal/core"
	"designcore/internal/infra/blob"
	blobfs "designcore/internal/infra/blob/fs"
	blobmemory "designcore/internal/infra/blob/memory"
	"designcore/internal/infra/persistence/badger"
	"designcore/internal/infra/persistence/memory"
	"designcore/internal/infra/persistence/sqlite"
	"designcore/pkg/domain"
)

// TestIntegrationSmoke runs the main design workflow against every
// in-process store and blob adapter.
func TestIntegrationSmoke(t *testing.T) {
	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "designs.db"), core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "badger-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := badger.Open(badger.Config{InMemory: true}, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("open badger store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blobmemory.New() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blobfs.New(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				blobs := bv.open(t)
				var spans bytes.Buffer
				metrics := core.NewExpvarMetricsRecorder("")
				svc := core.NewService(sv.open(t),
					core.WithBlobStore(blobs),
					core.WithCache(cache.NewLRU(16, 0)),
					core.WithMetricsRecorder(metrics),
					core.WithTracer(core.NewJSONTracer(&spans, 0)),
				)
				runWorkflow(t, svc, blobs)
				if metrics.Snapshot()["compose"].Success == 0 {
					t.Fatalf("expected compose metrics, got %+v", metrics.Snapshot())
				}
				if spans.Len() == 0 {
					t.Fatalf("expected trace exporter to emit spans")
				}
			})
		}
	}
}

func runWorkflow(t *testing.T, svc *core.Service, blobs blob.Store) {
	t.Helper()
	ctx := context.Background()
	alice := core.Actor{OwnerID: "alice"}
	if _, err := svc.SeedDefaultRoles(ctx, alice); err != nil {
		t.Fatalf("seed roles: %v", err)
	}

	d1, err := svc.CreatePart(ctx, alice, core.PartSpec{Name: "pTet", Sequence: "ATGCGT", Role: "PROMOTER"})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	ids, err := svc.Search(ctx, alice, core.Criteria{Sequence: "atgcgt"})
	if err != nil || len(ids) != 1 || ids[0] != d1 {
		t.Fatalf("expected [%s], got %v %v", d1, ids, err)
	}
	ids, err = svc.Search(ctx, alice, core.Criteria{Sequence: "ATGCGT", Role: "PROMOTER"})
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no module role match, got %v %v", ids, err)
	}

	d2, err := svc.CreateRevision(ctx, alice, d1, domain.BioDesign{Name: "pTet v2", Kind: domain.KindPart})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	res, err := svc.ResolveCurrent(ctx, d1)
	if err != nil || res.ID != d2 || res.VersionNumber != 2 {
		t.Fatalf("expected {%s 2}, got %+v %v", d2, res, err)
	}
	if _, err := svc.CreateRevision(ctx, alice, d1, domain.BioDesign{Name: "stale", Kind: domain.KindPart}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}

	dev, err := svc.CreateDevice(ctx, alice, core.DeviceSpec{Name: "reporter", SubDesignIDs: []string{d1}})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	trees, err := svc.Compose(ctx, []string{dev}, core.ComposeOptions{})
	if err != nil || len(trees) != 1 || len(trees[0].Subdesigns) != 1 {
		t.Fatalf("unexpected composition %+v %v", trees, err)
	}
	if sub := trees[0].Subdesigns[0]; sub.Design.ID != d1 || len(sub.Parts) != 1 || len(sub.Parts[0].Sequences) != 1 {
		t.Fatalf("expected populated sub design, got %+v", sub)
	}
	latest, err := svc.Compose(ctx, []string{d1}, core.ComposeOptions{ResolveLatest: true})
	if err != nil || latest[0].Design.ID != d2 {
		t.Fatalf("expected latest revision %s, got %+v %v", d2, latest, err)
	}

	if err := svc.SoftDelete(ctx, alice, domain.EntityDesign, dev); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := svc.Compose(ctx, []string{dev}, core.ComposeOptions{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted device to be hidden, got %v", err)
	}
	if n, err := svc.Restore(ctx, alice, core.RestoreFilter{IDs: []string{dev}}); err != nil || n == 0 {
		t.Fatalf("restore: %d %v", n, err)
	}

	if _, err := svc.ExportDesigns(ctx, alice, []string{dev}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := blobs.Head(ctx, core.ExportKey(dev)); err != nil {
		t.Fatalf("expected exported tree: %v", err)
	}
}

func TestSQLiteReopenKeepsVersionChains(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "designs.db")
	store, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	svc := core.NewService(store)
	d1, err := svc.CreatePart(ctx, core.Actor{}, core.PartSpec{Name: "p", Sequence: "GATTACA"})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	d2, err := svc.CreateRevision(ctx, core.Actor{}, d1, domain.BioDesign{Name: "p2", Kind: domain.KindPart})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	svc = core.NewService(reopened)
	res, err := svc.ResolveCurrent(ctx, d1)
	if err != nil || res.ID != d2 || res.VersionNumber != 2 {
		t.Fatalf("expected chain to survive reopen, got %+v %v", res, err)
	}
	ids, err := svc.Search(ctx, core.Actor{}, core.Criteria{Sequence: "gattaca"})
	if err != nil || len(ids) != 1 || ids[0] != d1 {
		t.Fatalf("expected sequence match after reopen, got %v %v", ids, err)
	}
}
