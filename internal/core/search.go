package core

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"designcore/pkg/domain"
)

// coerceNumber converts a parameter filter value to float64. Integer and
// float kinds, json.Number and numeric strings are accepted.
func coerceNumber(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case nil:
		return 0, domain.InvalidArgumentf("parameter value is required")
	case bool:
		return 0, domain.InvalidArgumentf("parameter value %v is not numeric", n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return 0, domain.InvalidArgumentf("parameter value of type %T is not numeric", v)
		}
	}
	if err != nil {
		return 0, domain.InvalidArgumentf("parameter value %v is not numeric", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, domain.InvalidArgumentf("parameter value %v is not finite", v)
	}
	return f, nil
}

type idSet map[string]struct{}

func newIDSet(ids ...string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s idSet) intersect(other idSet) idSet {
	out := make(idSet)
	for id := range s {
		if _, ok := other[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type parameterQuery struct {
	filter ParameterFilter
	// value is nil when the filter does not constrain the value.
	value *float64
}

func (p parameterQuery) query() domain.Query {
	q := domain.Active()
	if p.value != nil {
		q = q.With(domain.Eq("value", *p.value))
	}
	if p.filter.Name != "" {
		q = q.With(domain.ContainsFold("name", p.filter.Name))
	}
	if p.filter.Variable != "" {
		q = q.With(domain.ContainsFold("variable", p.filter.Variable))
	}
	if p.filter.Units != "" {
		q = q.With(domain.ContainsFold("units", p.filter.Units))
	}
	return q
}

// searcher evaluates one Criteria against a view.
type searcher struct {
	view  domain.TransactionView
	limit int
}

func (s *searcher) bySequence(raw string) idSet {
	seqs := s.view.FindSequences(domain.Active(domain.EqFold("sequence", raw)))
	partIDs := make([]string, len(seqs))
	for i, seq := range seqs {
		partIDs[i] = seq.PartID
	}
	parts := s.view.FindParts(domain.ByIDs(domain.StatusFilterActive, partIDs...))
	designIDs := make([]string, len(parts))
	for i, p := range parts {
		designIDs[i] = p.DesignID
	}
	return newIDSet(designIDs...)
}

// byParameters runs one query per filter concurrently and intersects the
// owning design ids.
func (s *searcher) byParameters(ctx context.Context, filters []parameterQuery) (idSet, error) {
	sets := make([]idSet, len(filters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, f := range filters {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			params := s.view.FindParameters(f.query())
			ids := make([]string, 0, len(params))
			for _, p := range params {
				if p.DesignID != nil {
					ids = append(ids, *p.DesignID)
				}
			}
			sets[i] = newIDSet(ids...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	acc := sets[0]
	for _, set := range sets[1:] {
		acc = acc.intersect(set)
	}
	return acc, nil
}

func (s *searcher) byRole(role string) idSet {
	modules := s.view.FindModules(domain.Active(domain.EqFold("role", domain.NormalizeRole(role))))
	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = m.DesignID
	}
	return newIDSet(ids...)
}

// Search returns the ids of active designs matching every non-empty
// criterion, sorted ascending. Criteria are evaluated in turn and their id
// sets intersected; the first empty set ends the search. Empty criteria
// match every active design.
func (s *Service) Search(ctx context.Context, actor Actor, c Criteria) ([]string, error) {
	var ids []string
	err := s.run(ctx, "search", actor, func(ctx context.Context) (string, error) {
		var err error
		ids, err = s.search(ctx, actor, c)
		return "", err
	})
	return ids, err
}

func (s *Service) search(ctx context.Context, actor Actor, c Criteria) ([]string, error) {
	if c.Sequence != "" {
		if err := domain.ValidateNucleotides(c.Sequence); err != nil {
			return nil, err
		}
	}
	params := make([]parameterQuery, len(c.Parameters))
	for i, f := range c.Parameters {
		params[i] = parameterQuery{filter: f}
		if f.Value == nil {
			continue
		}
		v, err := coerceNumber(f.Value)
		if err != nil {
			return nil, err
		}
		params[i].value = &v
	}
	if c.ScopeToOwner && actor.OwnerID == "" {
		return nil, domain.InvalidArgumentf("owner scope requires an actor")
	}

	ids := []string{}
	err := s.view(ctx, "search", func(v domain.TransactionView) error {
		sr := &searcher{view: v, limit: s.concurrency}
		var acc idSet
		narrowed := false
		// narrow folds the next criterion into the accumulator and reports
		// whether the search can continue.
		narrow := func(set idSet) bool {
			if !narrowed {
				acc, narrowed = set, true
			} else {
				acc = acc.intersect(set)
			}
			return len(acc) > 0
		}
		if c.Sequence != "" && !narrow(sr.bySequence(c.Sequence)) {
			return nil
		}
		if len(params) > 0 {
			set, err := sr.byParameters(ctx, params)
			if err != nil {
				return err
			}
			if !narrow(set) {
				return nil
			}
		}
		if strings.TrimSpace(c.Role) != "" && !narrow(sr.byRole(c.Role)) {
			return nil
		}

		q := domain.Active(DesignFilter{Name: c.Name, DisplayID: c.DisplayID}.criteria()...)
		if narrowed {
			q.IDs = acc.sorted()
		}
		if c.ScopeToOwner {
			q = q.With(domain.Eq("owner_id", actor.OwnerID))
		}
		designs := v.FindDesigns(q)
		for _, d := range designs {
			ids = append(ids, d.ID)
		}
		sort.Strings(ids)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchDesigns runs Search and composes the matching designs. No match
// yields an empty slice.
func (s *Service) SearchDesigns(ctx context.Context, actor Actor, c Criteria, opts ComposeOptions) ([]domain.DesignTree, error) {
	var trees []domain.DesignTree
	err := s.run(ctx, "search_designs", actor, func(ctx context.Context) (string, error) {
		ids, err := s.search(ctx, actor, c)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			trees = []domain.DesignTree{}
			return "", nil
		}
		trees, err = s.compose(ctx, ids, opts)
		if errors.Is(err, domain.ErrNotFound) {
			trees, err = []domain.DesignTree{}, nil
		}
		return "", err
	})
	return trees, err
}
