// Package cache provides TreeCache implementations for composed design
// trees: a bounded in-process LRU and a shared Redis cache.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"designcore/pkg/domain"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 1024

// LRU is an in-process, size-bounded tree cache with optional expiry.
type LRU struct {
	entries *lru.LRU[string, domain.DesignTree]
}

// NewLRU returns a cache holding at most size trees. A zero ttl disables
// expiry.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	return &LRU{entries: lru.NewLRU[string, domain.DesignTree](size, nil, ttl)}
}

// Get returns a copy of the cached tree for id.
func (c *LRU) Get(_ context.Context, id string) (domain.DesignTree, bool, error) {
	tree, ok := c.entries.Get(id)
	if !ok {
		return domain.DesignTree{}, false, nil
	}
	return tree.Clone(), true, nil
}

// Set stores a copy of tree under its design id.
func (c *LRU) Set(_ context.Context, tree domain.DesignTree) error {
	c.entries.Add(tree.Design.ID, tree.Clone())
	return nil
}

// Invalidate drops the given ids, or everything when none are given.
func (c *LRU) Invalidate(_ context.Context, ids ...string) error {
	if len(ids) == 0 {
		c.entries.Purge()
		return nil
	}
	for _, id := range ids {
		c.entries.Remove(id)
	}
	return nil
}

// Len reports the number of cached trees.
func (c *LRU) Len() int { return c.entries.Len() }
