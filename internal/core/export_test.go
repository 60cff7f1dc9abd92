package core

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	blobmemory "designcore/internal/infra/blob/memory"
	"designcore/pkg/domain"
)

func TestExportDesignsWritesTrees(t *testing.T) {
	ctx := context.Background()
	blobs := blobmemory.New()
	svc := newTestService(t, WithBlobStore(blobs))
	a := mustPart(t, svc, Actor{OwnerID: "alice"}, PartSpec{Name: "a", Sequence: "ATG"})
	dev := mustDevice(t, svc, Actor{OwnerID: "alice"}, "dev", a)

	infos, err := svc.ExportDesigns(ctx, Actor{OwnerID: "bob"}, []string{dev, a})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != ExportKey(dev) || infos[1].Key != ExportKey(a) {
		t.Fatalf("unexpected exports %+v", infos)
	}
	info, body, err := blobs.Get(ctx, ExportKey(dev))
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	defer func() { _ = body.Close() }()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var tree domain.DesignTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if tree.Design.ID != dev || len(tree.Subdesigns) != 1 || tree.Subdesigns[0].Design.ID != a {
		t.Fatalf("unexpected exported tree %+v", tree.Design)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", info.ContentType)
	}
	if info.Metadata["design-name"] != "dev" || info.Metadata["owner-id"] != "alice" || info.Metadata["exported-by"] != "bob" {
		t.Fatalf("unexpected metadata %v", info.Metadata)
	}

	if _, err := svc.ExportDesigns(ctx, Actor{}, []string{a}); err != nil {
		t.Fatalf("re-export must overwrite: %v", err)
	}
	listed, err := blobs.List(ctx, "designs/")
	if err != nil || len(listed) != 2 {
		t.Fatalf("expected two exports, got %d %v", len(listed), err)
	}
}

func TestExportDesignsErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id := mustPart(t, svc, Actor{}, PartSpec{Name: "a"})
	_, err := svc.ExportDesigns(ctx, Actor{}, []string{id})
	expectKind(t, err, domain.ErrInvalidArgument)

	svc = newTestService(t, WithBlobStore(blobmemory.New()))
	_, err = svc.ExportDesigns(ctx, Actor{}, []string{domain.NewID()})
	expectKind(t, err, domain.ErrNotFound)
}
