package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"designcore/internal/infra/blob"
	"designcore/pkg/domain"
)

// ExportKey is the blob key a design tree is written to.
func ExportKey(designID string) string {
	return fmt.Sprintf("designs/%s.json", designID)
}

// ExportDesigns composes the requested designs and writes each tree as an
// indented JSON document to the blob store, replacing earlier exports.
func (s *Service) ExportDesigns(ctx context.Context, actor Actor, ids []string) ([]blob.Info, error) {
	var written []blob.Info
	err := s.run(ctx, "export_designs", actor, func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return "", domain.InvalidArgumentf("no blob store configured for exports")
		}
		trees, err := s.compose(ctx, ids, ComposeOptions{})
		if err != nil {
			return "", err
		}
		written = make([]blob.Info, 0, len(trees))
		for _, tree := range trees {
			raw, err := json.MarshalIndent(tree, "", "  ")
			if err != nil {
				return tree.Design.ID, fmt.Errorf("encode design %s: %w", tree.Design.ID, err)
			}
			info, err := s.blobs.Put(ctx, ExportKey(tree.Design.ID), bytes.NewReader(raw), blob.PutOptions{
				ContentType: "application/json",
				Metadata: map[string]string{
					"design-name": tree.Design.Name,
					"owner-id":    tree.Design.OwnerID,
					"exported-by": actor.OwnerID,
				},
			})
			if err != nil {
				return tree.Design.ID, domain.WrapStore("export "+string(s.blobs.Driver()), err)
			}
			written = append(written, info)
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}
