package core

import (
	"context"

	"designcore/pkg/domain"
)

type docRef struct {
	entity domain.EntityType
	id     string
}

type cascadeEdge struct {
	child domain.EntityType
	field string
}

// cascadeEdges lists, per collection, the owned documents that share its
// lifecycle.
var cascadeEdges = map[domain.EntityType][]cascadeEdge{
	domain.EntityDesign: {
		{domain.EntityPart, "design_id"},
		{domain.EntityModule, "design_id"},
		{domain.EntityParameter, "design_id"},
	},
	domain.EntityPart: {
		{domain.EntitySequence, "part_id"},
		{domain.EntityAssembly, "super_sub_part_id"},
	},
	domain.EntitySequence: {
		{domain.EntityAnnotation, "sequence_id"},
		{domain.EntityAnnotation, "super_sequence_id"},
	},
	domain.EntityAnnotation: {
		{domain.EntityFeature, "annotation_id"},
	},
	domain.EntityModule: {
		{domain.EntityFeature, "module_id"},
	},
}

// lifecycleCollections are the collections lifecycle operations touch.
// Version records are history and never change status.
var lifecycleCollections = []domain.EntityType{
	domain.EntityDesign,
	domain.EntityPart,
	domain.EntitySequence,
	domain.EntityAnnotation,
	domain.EntityFeature,
	domain.EntityModule,
	domain.EntityParameter,
	domain.EntityAssembly,
	domain.EntityRole,
}

func isLifecycleCollection(entity domain.EntityType) bool {
	for _, e := range lifecycleCollections {
		if e == entity {
			return true
		}
	}
	return false
}

// cascade returns roots followed by every owned document reachable from
// them whose status matches status, without duplicates.
func cascade(v domain.TransactionView, roots []docRef, status domain.StatusFilter) ([]docRef, error) {
	seen := make(map[docRef]struct{}, len(roots))
	out := make([]docRef, 0, len(roots))
	queue := append([]docRef(nil), roots...)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
		for _, edge := range cascadeEdges[ref.entity] {
			children, err := v.FindDocuments(edge.child, domain.Query{Status: status, Match: []domain.Criterion{domain.Eq(edge.field, ref.id)}})
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				queue = append(queue, docRef{entity: edge.child, id: child.DocumentID()})
			}
		}
	}
	return out, nil
}

// SoftDelete marks a document deleted together with everything it owns.
// Deleting an already deleted document is a no-op.
func (s *Service) SoftDelete(ctx context.Context, actor Actor, kind domain.EntityType, id string) error {
	return s.run(ctx, "soft_delete", actor, func(ctx context.Context) (string, error) {
		if !isLifecycleCollection(kind) {
			return id, domain.InvalidArgumentf("cannot delete %q documents", kind)
		}
		if err := domain.ValidateID(id); err != nil {
			return id, err
		}
		return id, s.write(ctx, "soft delete", func(tx domain.Transaction) error {
			docs, err := tx.FindDocuments(kind, domain.ByIDs(domain.StatusFilterAny, id))
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return domain.ErrEntityNotFound{Entity: kind, ID: id}
			}
			if docs[0].DocumentStatus() == domain.StatusDeleted {
				return nil
			}
			refs, err := cascade(tx, []docRef{{entity: kind, id: id}}, domain.StatusFilterActive)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if err := tx.SetStatus(ref.entity, ref.id, domain.StatusDeleted); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// selectDeleted resolves f to deleted documents. Explicit ids cascade to
// the documents they own; an owner filter alone matches documents by owner.
func selectDeleted(v domain.TransactionView, f RestoreFilter) ([]docRef, error) {
	var roots []docRef
	for _, entity := range lifecycleCollections {
		q := domain.Query{Status: domain.StatusFilterDeleted}
		if len(f.IDs) > 0 {
			q.IDs = f.IDs
		}
		if f.OwnerID != "" {
			q = q.With(domain.Eq("owner_id", f.OwnerID))
		}
		docs, err := v.FindDocuments(entity, q)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			roots = append(roots, docRef{entity: entity, id: d.DocumentID()})
		}
	}
	if len(f.IDs) == 0 {
		return roots, nil
	}
	return cascade(v, roots, domain.StatusFilterDeleted)
}

func validateRestoreFilter(f RestoreFilter) error {
	if len(f.IDs) == 0 && f.OwnerID == "" {
		return domain.InvalidArgumentf("restore filter needs ids or an owner")
	}
	return domain.ValidateIDs(f.IDs)
}

// Restore flips matching deleted documents back to active and returns how
// many changed.
func (s *Service) Restore(ctx context.Context, actor Actor, f RestoreFilter) (int, error) {
	var n int
	err := s.run(ctx, "restore", actor, func(ctx context.Context) (string, error) {
		if err := validateRestoreFilter(f); err != nil {
			return "", err
		}
		return "", s.write(ctx, "restore", func(tx domain.Transaction) error {
			refs, err := selectDeleted(tx, f)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if err := tx.SetStatus(ref.entity, ref.id, domain.StatusActive); err != nil {
					return err
				}
			}
			n = len(refs)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Purge permanently removes matching deleted documents and returns how many
// were removed.
func (s *Service) Purge(ctx context.Context, f RestoreFilter) (int, error) {
	var n int
	err := s.run(ctx, "purge", Actor{OwnerID: f.OwnerID}, func(ctx context.Context) (string, error) {
		if err := validateRestoreFilter(f); err != nil {
			return "", err
		}
		return "", s.write(ctx, "purge", func(tx domain.Transaction) error {
			refs, err := selectDeleted(tx, f)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if err := tx.Delete(ref.entity, ref.id); err != nil {
					return err
				}
			}
			n = len(refs)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
