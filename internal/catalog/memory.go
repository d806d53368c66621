package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/forest-guardian/leaf-mosaic/internal/scene"
)

// Memory is a catalog held in memory, keyed by catalog ID.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]Item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]Item)}
}

// Add appends items to catalogID.
func (m *Memory) Add(catalogID string, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[catalogID] = append(m.items[catalogID], items...)
}

// Search filters by catalog, IDs, footprint bound and acquisition time. Cloud
// and spacecraft filters are left to the selector.
func (m *Memory) Search(ctx context.Context, q Query) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, it := range m.items[q.CatalogID] {
		if len(q.IDs) > 0 {
			if slices.Contains(q.IDs, it.ID) {
				out = append(out, it)
			}
			continue
		}
		if len(q.Region) > 0 && len(it.Footprint) > 0 && !it.Footprint.Bound().Intersects(q.Region.Bound()) {
			continue
		}
		if !q.Start.IsZero() {
			ms, err := scene.Number(it.Properties, scene.PropTimeStart)
			if err != nil {
				continue
			}
			t := time.UnixMilli(int64(ms))
			if t.Before(q.Start) || !t.Before(q.End) {
				continue
			}
		}
		out = append(out, it)
	}
	return out, nil
}
