package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forest-guardian/leaf-mosaic/internal/cache"
)

// Cached serves repeated searches from a file cache.
type Cached struct {
	Catalog Catalog
	Cache   cache.CacheService[[]Item]
	Logger  zerolog.Logger
}

func (c *Cached) Search(ctx context.Context, q Query) ([]Item, error) {
	key := c.Cache.GenerateKey(
		q.CatalogID,
		q.Region,
		q.Start.Format(time.RFC3339),
		q.End.Format(time.RFC3339),
		q.CloudProperty,
		q.MaxCloud,
		q.Property,
		q.Value,
		strings.Join(q.IDs, ","),
	)
	if items, ok := c.Cache.Get(key); ok {
		c.Logger.Debug().Str("catalog", q.CatalogID).Int("items", len(items)).Msg("catalog cache hit")
		return items, nil
	}

	items, err := c.Catalog.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Set(key, items); err != nil {
		c.Logger.Warn().Err(err).Msg("failed to cache catalog search")
	}
	return items, nil
}
