package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"designcore/pkg/domain"
)

// pathNode is an immutable linked list of the design ids on the current
// composition path. Siblings share their parent's prefix.
type pathNode struct {
	id     string
	parent *pathNode
}

func (p *pathNode) contains(id string) bool {
	for n := p; n != nil; n = n.parent {
		if n.id == id {
			return true
		}
	}
	return false
}

func (p *pathNode) push(id string) *pathNode { return &pathNode{id: id, parent: p} }

// composer builds design trees from a single consistent view.
type composer struct {
	view     domain.TransactionView
	logger   Logger
	maxDepth int
	limit    int
}

// designs composes siblings concurrently. depth is the nesting level of the
// designs being composed, starting at 1.
func (c *composer) designs(ctx context.Context, designs []domain.BioDesign, path *pathNode, depth int) ([]domain.DesignTree, error) {
	out := make([]domain.DesignTree, len(designs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, d := range designs {
		g.Go(func() error {
			tree, err := c.design(gctx, d, path, depth)
			if err != nil {
				return err
			}
			out[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *composer) design(ctx context.Context, d domain.BioDesign, path *pathNode, depth int) (domain.DesignTree, error) {
	if err := ctx.Err(); err != nil {
		return domain.DesignTree{}, err
	}
	if path.contains(d.ID) {
		return domain.DesignTree{}, domain.InvalidArgumentf("sub-design cycle detected at design %s", d.ID)
	}
	if depth > c.maxDepth {
		return domain.DesignTree{}, domain.InvalidArgumentf("design %s exceeds maximum nesting depth %d", d.ID, c.maxDepth)
	}
	here := path.push(d.ID)
	tree := domain.DesignTree{Design: d}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tree.Parts, err = c.parts(gctx, d.ID)
		return err
	})
	g.Go(func() error {
		var err error
		tree.Modules, err = c.modules(gctx, d.ID)
		return err
	})
	g.Go(func() error {
		var err error
		tree.Parameters, err = c.parameters(gctx, d.ID)
		return err
	})
	g.Go(func() error {
		var err error
		tree.Subdesigns, err = c.designs(gctx, c.subDesigns(d), here, depth+1)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DesignTree{}, err
	}
	return tree, nil
}

// subDesigns resolves d.SubDesignIDs in declaration order. References to
// missing or deleted designs are skipped.
func (c *composer) subDesigns(d domain.BioDesign) []domain.BioDesign {
	if len(d.SubDesignIDs) == 0 {
		return nil
	}
	found := make(map[string]domain.BioDesign, len(d.SubDesignIDs))
	for _, sub := range c.view.FindDesigns(domain.ByIDs(domain.StatusFilterActive, d.SubDesignIDs...)) {
		found[sub.ID] = sub
	}
	out := make([]domain.BioDesign, 0, len(d.SubDesignIDs))
	seen := make(map[string]struct{}, len(d.SubDesignIDs))
	for _, id := range d.SubDesignIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sub, ok := found[id]
		if !ok {
			c.logger.Warn("skipping dangling sub-design reference", "design_id", d.ID, "sub_design_id", id)
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Compose returns the trees of the requested designs in input order.
// Duplicate ids are collapsed. When nothing matches it fails with
// domain.ErrNotFound.
func (s *Service) Compose(ctx context.Context, ids []string, opts ComposeOptions) ([]domain.DesignTree, error) {
	var trees []domain.DesignTree
	err := s.run(ctx, "compose", Actor{}, func(ctx context.Context) (string, error) {
		var err error
		trees, err = s.compose(ctx, ids, opts)
		if len(ids) == 1 {
			return ids[0], err
		}
		return "", err
	})
	return trees, err
}

func (s *Service) compose(ctx context.Context, ids []string, opts ComposeOptions) ([]domain.DesignTree, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no design ids requested", domain.ErrNotFound)
	}
	if err := domain.ValidateIDs(ids); err != nil {
		return nil, err
	}
	cacheable := s.cache != nil && len(ids) == 1 && !opts.ResolveLatest && opts.Filter.empty()
	epoch := s.epoch.Load()
	if cacheable {
		tree, ok, err := s.cache.Get(ctx, ids[0])
		if err != nil {
			s.logger.Warn("tree cache read failed", "design_id", ids[0], "error", err)
		} else if ok {
			return []domain.DesignTree{tree}, nil
		}
	}
	if opts.ResolveLatest {
		resolved := make([]string, len(ids))
		for i, id := range ids {
			res, err := s.resolveCurrent(ctx, id)
			if err != nil {
				return nil, err
			}
			resolved[i] = res.ID
		}
		ids = resolved
	}

	var trees []domain.DesignTree
	err := s.view(ctx, "compose", func(v domain.TransactionView) error {
		q := domain.ByIDs(domain.StatusFilterActive, ids...).With(opts.Filter.criteria()...)
		found := make(map[string]domain.BioDesign)
		for _, d := range v.FindDesigns(q) {
			found[d.ID] = d
		}
		roots := make([]domain.BioDesign, 0, len(found))
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if d, ok := found[id]; ok {
				roots = append(roots, d)
			}
		}
		c := &composer{view: v, logger: s.logger, maxDepth: s.maxDepth, limit: s.concurrency}
		var err error
		trees, err = c.designs(ctx, roots, nil, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: no active design matches %v", domain.ErrNotFound, ids)
	}
	if cacheable && s.epoch.Load() == epoch {
		s.cacheTree(ctx, trees[0], epoch)
	}
	return trees, nil
}

// cacheTree stores tree, then evicts it again if a write committed after
// epoch was read.
func (s *Service) cacheTree(ctx context.Context, tree domain.DesignTree, epoch uint64) {
	if err := s.cache.Set(ctx, tree); err != nil {
		s.logger.Warn("tree cache write failed", "design_id", tree.Design.ID, "error", err)
		return
	}
	if s.epoch.Load() == epoch {
		return
	}
	if err := s.cache.Invalidate(ctx, tree.Design.ID); err != nil {
		s.logger.Warn("tree cache invalidation failed", "design_id", tree.Design.ID, "error", err)
	}
}
