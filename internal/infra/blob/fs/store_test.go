package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"designcore/internal/infra/blob"
	"designcore/pkg/domain"
)

func TestFilesystemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "exports")
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != blob.DriverFilesystem || s.Root() != root {
		t.Fatalf("unexpected store %s %s", s.Driver(), s.Root())
	}
	info, err := s.Put(ctx, "designs/a.json", strings.NewReader("hello"), blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ETag == "" || info.Key != "designs/a.json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "designs", "a.json")); err != nil {
		t.Fatalf("expected data file: %v", err)
	}

	got, rc, err := s.Get(ctx, "designs/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" || got.Metadata["k"] != "v" || got.ContentType != "application/json" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}

	if _, err := s.Put(ctx, "designs/a.json", strings.NewReader("bye"), blob.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := s.Put(ctx, "other.json", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "designs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Size != 3 {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key != "designs/a.json" || all[1].Key != "other.json" {
		t.Fatalf("unexpected full listing %+v", all)
	}

	existed, err := s.Delete(ctx, "designs/a.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if existed, _ := s.Delete(ctx, "designs/a.json"); existed {
		t.Fatalf("second delete must report absence")
	}
	if _, err := s.Head(ctx, "designs/a.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFilesystemStoreRejectsUnsafeKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "/abs", "../escape"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("key %q: expected invalid argument, got %v", key, err)
		}
	}
	if _, err := s.Put(context.Background(), "a.meta", strings.NewReader("x"), blob.PutOptions{}); err == nil {
		t.Fatalf("expected reserved suffix rejection")
	}
}
