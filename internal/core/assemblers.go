package core

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"designcore/pkg/domain"
)

// Assemblers attach owned documents to their parents. Each level fans out
// over its inputs and writes results into the slot matching the input index.

func sortByName[T any](items []T, name, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ni, nj := name(items[i]), name(items[j])
		if ni != nj {
			return ni < nj
		}
		return id(items[i]) < id(items[j])
	})
}

func (c *composer) parts(ctx context.Context, designID string) ([]domain.PartTree, error) {
	parts := c.view.FindParts(domain.Active(domain.Eq("design_id", designID)))
	sortByName(parts, func(p domain.Part) string { return p.Name }, func(p domain.Part) string { return p.ID })
	out := make([]domain.PartTree, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, p := range parts {
		g.Go(func() error {
			seqs, err := c.sequences(gctx, p.ID)
			if err != nil {
				return err
			}
			assemblies := c.view.FindAssemblies(domain.Active(domain.Eq("super_sub_part_id", p.ID)))
			sort.Slice(assemblies, func(a, b int) bool { return assemblies[a].ID < assemblies[b].ID })
			out[i] = domain.PartTree{Part: p, Sequences: seqs, Assemblies: assemblies}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *composer) sequences(ctx context.Context, partID string) ([]domain.SequenceTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqs := c.view.FindSequences(domain.Active(domain.Eq("part_id", partID)))
	sortByName(seqs, func(s domain.Sequence) string { return s.Name }, func(s domain.Sequence) string { return s.ID })
	out := make([]domain.SequenceTree, len(seqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, seq := range seqs {
		g.Go(func() error {
			anns, err := c.annotations(gctx, seq.ID)
			if err != nil {
				return err
			}
			out[i] = domain.SequenceTree{Sequence: seq, Annotations: anns}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// annotations returns annotations placed directly on the sequence or on it
// as a super-sequence.
func (c *composer) annotations(ctx context.Context, sequenceID string) ([]domain.AnnotationTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	direct := c.view.FindAnnotations(domain.Active(domain.Eq("sequence_id", sequenceID)))
	super := c.view.FindAnnotations(domain.Active(domain.Eq("super_sequence_id", sequenceID)))
	seen := make(map[string]struct{}, len(direct)+len(super))
	anns := make([]domain.Annotation, 0, len(direct)+len(super))
	for _, a := range append(direct, super...) {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		anns = append(anns, a)
	}
	sort.SliceStable(anns, func(i, j int) bool {
		if anns[i].Start != anns[j].Start {
			return anns[i].Start < anns[j].Start
		}
		if anns[i].End != anns[j].End {
			return anns[i].End < anns[j].End
		}
		return anns[i].ID < anns[j].ID
	})
	out := make([]domain.AnnotationTree, len(anns))
	for i, a := range anns {
		out[i] = domain.AnnotationTree{Annotation: a, Features: c.features("annotation_id", a.ID)}
	}
	return out, nil
}

func (c *composer) features(field, id string) []domain.Feature {
	features := c.view.FindFeatures(domain.Active(domain.Eq(field, id)))
	sortByName(features, func(f domain.Feature) string { return f.Name }, func(f domain.Feature) string { return f.ID })
	return features
}

func (c *composer) modules(ctx context.Context, designID string) ([]domain.ModuleTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	modules := c.view.FindModules(domain.Active(domain.Eq("design_id", designID)))
	sortByName(modules, func(m domain.Module) string { return m.Name }, func(m domain.Module) string { return m.ID })
	out := make([]domain.ModuleTree, len(modules))
	for i, m := range modules {
		out[i] = domain.ModuleTree{Module: m, Features: c.features("module_id", m.ID)}
	}
	return out, nil
}

func (c *composer) parameters(ctx context.Context, designID string) ([]domain.Parameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := c.view.FindParameters(domain.Active(domain.Eq("design_id", designID)))
	sortByName(params, func(p domain.Parameter) string { return p.Name }, func(p domain.Parameter) string { return p.ID })
	return params, nil
}
