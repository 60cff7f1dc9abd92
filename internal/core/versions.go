package core

import (
	"context"
	"sort"

	"designcore/pkg/domain"
)

// versionedCollections lists the collections whose documents may carry a
// version chain.
var versionedCollections = []domain.EntityType{
	domain.EntityDesign,
	domain.EntityPart,
	domain.EntitySequence,
	domain.EntityAnnotation,
	domain.EntityFeature,
	domain.EntityModule,
	domain.EntityParameter,
}

// revisionPayload dereferences pointer payloads and rejects nil ones.
func revisionPayload(p domain.Revisable) (domain.Revisable, error) {
	switch v := p.(type) {
	case nil:
		return nil, domain.InvalidArgumentf("revision payload is required")
	case *domain.BioDesign:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Part:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Sequence:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Annotation:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Feature:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Module:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case *domain.Parameter:
		if v == nil {
			return nil, domain.InvalidArgumentf("revision payload is required")
		}
		return *v, nil
	case domain.BioDesign, domain.Part, domain.Sequence, domain.Annotation, domain.Feature, domain.Module, domain.Parameter:
		return v, nil
	}
	return nil, domain.InvalidArgumentf("unsupported revision payload %T", p)
}

// insertRevision stores payload as a brand new document owned by actor
// unless the payload names an owner.
func insertRevision(tx domain.Transaction, actor Actor, payload domain.Revisable) (string, error) {
	owner := func(current string) string {
		if current != "" {
			return current
		}
		return actor.OwnerID
	}
	switch v := payload.(type) {
	case domain.BioDesign:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		d, err := tx.InsertDesign(v)
		return d.ID, err
	case domain.Part:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		p, err := tx.InsertPart(v)
		return p.ID, err
	case domain.Sequence:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		sq, err := tx.InsertSequence(v)
		return sq.ID, err
	case domain.Annotation:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		a, err := tx.InsertAnnotation(v)
		return a.ID, err
	case domain.Feature:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		v.Role = domain.NormalizeRole(v.Role)
		f, err := tx.InsertFeature(v)
		return f.ID, err
	case domain.Module:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		v.Role = domain.NormalizeRole(v.Role)
		m, err := tx.InsertModule(v)
		return m.ID, err
	case domain.Parameter:
		v.Base, v.OwnerID = domain.Base{}, owner(v.OwnerID)
		p, err := tx.InsertParameter(v)
		return p.ID, err
	}
	return "", domain.InvalidArgumentf("unsupported revision payload %T", payload)
}

// versionOf returns the version record of objectID in any status.
func versionOf(v domain.TransactionView, objectID string) (domain.Version, bool) {
	records := v.FindVersions(domain.Query{Status: domain.StatusFilterAny, Match: []domain.Criterion{domain.Eq("object_id", objectID)}})
	if len(records) == 0 {
		return domain.Version{}, false
	}
	return records[0], true
}

// documentExists reports whether id names a document in any versioned
// collection, whatever its status.
func documentExists(v domain.TransactionView, id string) (bool, error) {
	for _, entity := range versionedCollections {
		docs, err := v.FindDocuments(entity, domain.ByIDs(domain.StatusFilterAny, id))
		if err != nil {
			return false, err
		}
		if len(docs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// CreateRevision stores payload as a new document. With an empty oldID it
// starts a chain at version 1; otherwise the new document becomes version
// n+1 of oldID's chain. Linking fails with domain.ErrConflict when oldID
// has already been revised.
func (s *Service) CreateRevision(ctx context.Context, actor Actor, oldID string, payload domain.Revisable) (string, error) {
	var newID string
	err := s.run(ctx, "create_revision", actor, func(ctx context.Context) (string, error) {
		var err error
		newID, err = s.createRevision(ctx, actor, oldID, payload)
		return newID, err
	})
	return newID, err
}

func (s *Service) createRevision(ctx context.Context, actor Actor, oldID string, payload domain.Revisable) (string, error) {
	doc, err := revisionPayload(payload)
	if err != nil {
		return "", err
	}
	if oldID != "" {
		if err := domain.ValidateID(oldID); err != nil {
			return "", err
		}
	}
	if err := validateStruct(doc); err != nil {
		return "", err
	}
	switch v := doc.(type) {
	case domain.Sequence:
		if err := domain.ValidateNucleotides(v.RawSequence); err != nil {
			return "", err
		}
	case domain.Module:
		if err := s.checkRole(ctx, v.Role, domain.RoleTypeModule); err != nil {
			return "", err
		}
	case domain.Feature:
		if err := s.checkRole(ctx, v.Role, domain.RoleTypeFeature); err != nil {
			return "", err
		}
	case domain.BioDesign:
		if !v.Kind.Valid() {
			return "", domain.InvalidArgumentf("unknown design kind %q", v.Kind)
		}
	}

	kind := doc.EntityType()
	var newID string
	err = s.write(ctx, "create revision", func(tx domain.Transaction) error {
		number := 1
		if oldID != "" {
			prev, err := tx.FindDocuments(kind, domain.ByIDs(domain.StatusFilterActive, oldID))
			if err != nil {
				return err
			}
			if len(prev) == 0 {
				return domain.ErrEntityNotFound{Entity: kind, ID: oldID}
			}
			record, ok := versionOf(tx, oldID)
			if !ok {
				record, err = tx.InsertVersion(domain.Version{
					ObjectID:      oldID,
					Collection:    kind,
					VersionNumber: 1,
					UserID:        actor.OwnerID,
				})
				if err != nil {
					return err
				}
			}
			if !record.Current() {
				return domain.Conflictf("%s %s was already revised by %s", kind, oldID, *record.ReplacementVersionID)
			}
			number = record.VersionNumber + 1
		}
		var err error
		newID, err = insertRevision(tx, actor, doc)
		if err != nil {
			return err
		}
		if _, err := tx.InsertVersion(domain.Version{
			ObjectID:      newID,
			Collection:    kind,
			VersionNumber: number,
			UserID:        actor.OwnerID,
		}); err != nil {
			return err
		}
		if oldID != "" {
			if _, err := tx.LinkVersion(oldID, newID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// ResolveCurrent follows the version chain from id to its current revision.
// A document without a version record resolves to itself as version 1.
func (s *Service) ResolveCurrent(ctx context.Context, id string) (Resolution, error) {
	var res Resolution
	err := s.run(ctx, "resolve_current", Actor{}, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.resolveCurrent(ctx, id)
		return id, err
	})
	return res, err
}

func (s *Service) resolveCurrent(ctx context.Context, id string) (Resolution, error) {
	if err := domain.ValidateID(id); err != nil {
		return Resolution{}, err
	}
	var res Resolution
	err := s.view(ctx, "resolve current", func(v domain.TransactionView) error {
		record, ok := versionOf(v, id)
		if !ok {
			exists, err := documentExists(v, id)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrEntityNotFound{Entity: domain.EntityVersion, ID: id}
			}
			res = Resolution{ID: id, VersionNumber: 1}
			return nil
		}
		tip, err := walkForward(v, record)
		if err != nil {
			return err
		}
		res = Resolution{ID: tip[len(tip)-1].ObjectID, VersionNumber: tip[len(tip)-1].VersionNumber}
		return nil
	})
	return res, err
}

// walkForward returns the chain from record to the current revision.
func walkForward(v domain.TransactionView, record domain.Version) ([]domain.Version, error) {
	chain := []domain.Version{record}
	seen := map[string]struct{}{record.ObjectID: {}}
	for cur := record; !cur.Current(); {
		next := *cur.ReplacementVersionID
		if _, loop := seen[next]; loop {
			return nil, domain.CorruptChainf("version chain of %s loops back to %s", record.ObjectID, next)
		}
		rec, ok := versionOf(v, next)
		if !ok {
			return nil, domain.CorruptChainf("%s points at %s which has no version record", cur.ObjectID, next)
		}
		seen[next] = struct{}{}
		chain = append(chain, rec)
		cur = rec
	}
	return chain, nil
}

// History returns every version record of the chain containing id, oldest
// first. A document that was never revised has an empty history.
func (s *Service) History(ctx context.Context, id string) ([]domain.Version, error) {
	var out []domain.Version
	err := s.run(ctx, "history", Actor{}, func(ctx context.Context) (string, error) {
		if err := domain.ValidateID(id); err != nil {
			return id, err
		}
		return id, s.view(ctx, "history", func(v domain.TransactionView) error {
			record, ok := versionOf(v, id)
			if !ok {
				exists, err := documentExists(v, id)
				if err != nil {
					return err
				}
				if !exists {
					return domain.ErrEntityNotFound{Entity: domain.EntityVersion, ID: id}
				}
				out = []domain.Version{}
				return nil
			}
			var back []domain.Version
			seen := map[string]struct{}{record.ObjectID: {}}
			for cur := record; ; {
				prev := v.FindVersions(domain.Query{
					Status: domain.StatusFilterAny,
					Match:  []domain.Criterion{domain.Eq("replacement_version_id", cur.ObjectID)},
				})
				if len(prev) == 0 {
					break
				}
				if _, loop := seen[prev[0].ObjectID]; loop {
					return domain.CorruptChainf("version chain of %s loops back to %s", id, prev[0].ObjectID)
				}
				seen[prev[0].ObjectID] = struct{}{}
				back = append(back, prev[0])
				cur = prev[0]
			}
			forward, err := walkForward(v, record)
			if err != nil {
				return err
			}
			out = append(back, forward...)
			sort.SliceStable(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
			return nil
		})
	})
	return out, err
}
