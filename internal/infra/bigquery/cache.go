package bigquery

import (
	"context"

	"github.com/dvloznov/churn-scorer/internal/table"
)

// tableLoader is the fetch operation CachedLoader memoizes.
type tableLoader interface {
	LoadTable(ctx context.Context, name string) (*table.Table, error)
}

// CachedLoader memoizes table fetches by name for the lifetime of one
// process, so repeated feature-engineering runs over the same snapshot do
// not hit the warehouse again. A scoring run is a one-shot batch job, so
// there is no invalidation.
type CachedLoader struct {
	inner tableLoader
	cache map[string]*table.Table
}

// NewCachedLoader wraps a loader with a per-table-name cache.
func NewCachedLoader(inner tableLoader) *CachedLoader {
	return &CachedLoader{
		inner: inner,
		cache: make(map[string]*table.Table),
	}
}

// LoadTable returns the cached table if present, fetching it otherwise.
// Failed fetches are not cached; a retry by the caller fetches again.
func (c *CachedLoader) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	if t, ok := c.cache[name]; ok {
		return t, nil
	}
	t, err := c.inner.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache[name] = t
	return t, nil
}
