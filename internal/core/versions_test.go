package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"designcore/pkg/domain"
)

// reviseChain creates a design and revises it n-1 times, returning the ids
// oldest first.
func reviseChain(t *testing.T, svc *Service, n int) []string {
	t.Helper()
	ctx := context.Background()
	first, err := svc.CreateRevision(ctx, Actor{OwnerID: "alice"}, "", domain.BioDesign{Name: "rev1", Kind: domain.KindPart})
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	ids := []string{first}
	for i := 2; i <= n; i++ {
		next, err := svc.CreateRevision(ctx, Actor{OwnerID: "alice"}, ids[len(ids)-1], &domain.BioDesign{Name: "rev", Kind: domain.KindPart})
		if err != nil {
			t.Fatalf("revise %d: %v", i, err)
		}
		ids = append(ids, next)
	}
	return ids
}

func TestCreateRevisionNumbersMonotonically(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ids := reviseChain(t, svc, 3)

	for _, id := range ids {
		res, err := svc.ResolveCurrent(ctx, id)
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		if res.ID != ids[2] || res.VersionNumber != 3 {
			t.Fatalf("expected %s@3, got %+v", ids[2], res)
		}
	}

	history, err := svc.History(ctx, ids[1])
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	for i, v := range history {
		if v.VersionNumber != i+1 || v.ObjectID != ids[i] {
			t.Fatalf("unexpected history entry %d: %+v", i, v)
		}
		if v.Collection != domain.EntityDesign || v.UserID != "alice" {
			t.Fatalf("unexpected record metadata %+v", v)
		}
	}
	if !history[2].Current() || history[0].Current() {
		t.Fatalf("only the tip may be current")
	}
}

func TestCreateRevisionSecondReviseConflicts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ids := reviseChain(t, svc, 2)
	_, err := svc.CreateRevision(ctx, Actor{}, ids[0], domain.BioDesign{Name: "fork", Kind: domain.KindPart})
	expectKind(t, err, domain.ErrConflict)

	res, err := svc.ResolveCurrent(ctx, ids[0])
	if err != nil || res.ID != ids[1] {
		t.Fatalf("failed revision must leave chain intact, got %+v %v", res, err)
	}
	if n := countStatus(t, svc, domain.EntityDesign, domain.StatusFilterAny); n != 2 {
		t.Fatalf("failed revision must not store a document, got %d designs", n)
	}
}

func TestCreateRevisionConcurrentRevisionsConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tail := reviseChain(t, svc, 1)[0]

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = svc.CreateRevision(ctx, Actor{OwnerID: "alice"}, tail, domain.BioDesign{Name: "racer", Kind: domain.KindPart})
		}()
	}
	wg.Wait()

	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != "" {
				t.Fatalf("two revisions of %s succeeded: %s and %s", tail, winner, ids[i])
			}
			winner = ids[i]
		case !errors.Is(err, domain.ErrConflict):
			t.Fatalf("worker %d: expected conflict, got %v", i, err)
		}
	}
	if winner == "" {
		t.Fatalf("expected one revision to succeed")
	}
	res, err := svc.ResolveCurrent(ctx, tail)
	if err != nil || res.ID != winner || res.VersionNumber != 2 {
		t.Fatalf("expected %s@2, got %+v %v", winner, res, err)
	}
	if n := countStatus(t, svc, domain.EntityDesign, domain.StatusFilterAny); n != 2 {
		t.Fatalf("losing revisions must not store documents, got %d designs", n)
	}
}

func TestCreateRevisionStartsImplicitChain(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	design := mustPart(t, svc, Actor{}, PartSpec{Name: "host", Parameters: []ParameterSpec{{Name: "copies", Value: 10}}})
	var paramID string
	if err := svc.Store().View(ctx, func(v domain.TransactionView) error {
		params := v.FindParameters(domain.Active(domain.Eq("design_id", design)))
		if len(params) != 1 {
			t.Fatalf("expected one parameter, got %d", len(params))
		}
		paramID = params[0].ID
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	res, err := svc.ResolveCurrent(ctx, paramID)
	if err != nil || res.ID != paramID || res.VersionNumber != 1 {
		t.Fatalf("unversioned document resolves to itself, got %+v %v", res, err)
	}
	history, err := svc.History(ctx, paramID)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v %v", history, err)
	}

	next, err := svc.CreateRevision(ctx, Actor{}, paramID, domain.Parameter{Name: "copies", Value: 20, DesignID: &design})
	if err != nil {
		t.Fatalf("revise parameter: %v", err)
	}
	res, err = svc.ResolveCurrent(ctx, paramID)
	if err != nil || res.ID != next || res.VersionNumber != 2 {
		t.Fatalf("expected %s@2, got %+v %v", next, res, err)
	}
}

func TestCreateRevisionValidatesPayload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	design := mustPart(t, svc, Actor{}, PartSpec{Name: "host"})

	cases := map[string]domain.Revisable{
		"nil":              nil,
		"nil pointer":      (*domain.BioDesign)(nil),
		"unknown kind":     domain.BioDesign{Name: "x", Kind: "PLASMID"},
		"missing name":     domain.BioDesign{Kind: domain.KindPart},
		"bad nucleotides":  domain.Sequence{PartID: domain.NewID(), RawSequence: "ATGQ"},
		"unknown role":     domain.Module{Name: "m", DesignID: design, Role: "FLYING"},
		"wrong role usage": domain.Feature{Name: "f", Role: "SENSOR"},
		"bad range":        domain.Annotation{SequenceID: domain.NewID(), Start: 5, End: 2},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateRevision(ctx, Actor{}, "", payload)
			expectKind(t, err, domain.ErrInvalidArgument)
		})
	}
	_, err := svc.CreateRevision(ctx, Actor{}, "nope", domain.BioDesign{Name: "x", Kind: domain.KindPart})
	expectKind(t, err, domain.ErrInvalidArgument)
}

func TestCreateRevisionOfMissingOrDeletedDocument(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreateRevision(ctx, Actor{}, domain.NewID(), domain.BioDesign{Name: "x", Kind: domain.KindPart})
	expectKind(t, err, domain.ErrNotFound)

	id := mustPart(t, svc, Actor{}, PartSpec{Name: "old"})
	if err := svc.SoftDelete(ctx, Actor{}, domain.EntityDesign, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = svc.CreateRevision(ctx, Actor{}, id, domain.BioDesign{Name: "x", Kind: domain.KindPart})
	expectKind(t, err, domain.ErrNotFound)
}

func TestCreateRevisionDefaultsOwnerToActor(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id, err := svc.CreateRevision(ctx, Actor{OwnerID: "carol"}, "", domain.BioDesign{Name: "mine", Kind: domain.KindPart})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tree := mustCompose(t, svc, id); tree.Design.OwnerID != "carol" {
		t.Fatalf("expected owner carol, got %q", tree.Design.OwnerID)
	}
}

func TestResolveCurrentErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.ResolveCurrent(ctx, domain.NewID())
	expectKind(t, err, domain.ErrNotFound)
	_, err = svc.ResolveCurrent(ctx, "")
	expectKind(t, err, domain.ErrInvalidArgument)
	_, err = svc.History(ctx, domain.NewID())
	expectKind(t, err, domain.ErrNotFound)
}

func TestResolveCurrentCorruptChain(t *testing.T) {
	ctx := context.Background()
	relink := func(t *testing.T, svc *Service, from, to string) {
		t.Helper()
		if _, err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.LinkVersion(from, to)
			return err
		}); err != nil {
			t.Fatalf("relink: %v", err)
		}
	}

	t.Run("dangling link", func(t *testing.T) {
		svc := newTestService(t)
		ids := reviseChain(t, svc, 2)
		relink(t, svc, ids[1], domain.NewID())
		_, err := svc.ResolveCurrent(ctx, ids[0])
		expectKind(t, err, domain.ErrCorruptChain)
	})

	t.Run("loop", func(t *testing.T) {
		svc := newTestService(t)
		ids := reviseChain(t, svc, 3)
		relink(t, svc, ids[2], ids[0])
		_, err := svc.ResolveCurrent(ctx, ids[0])
		expectKind(t, err, domain.ErrCorruptChain)
		_, err = svc.History(ctx, ids[1])
		expectKind(t, err, domain.ErrCorruptChain)
	})
}
