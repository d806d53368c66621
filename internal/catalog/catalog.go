// Package catalog selects the scenes of a (sensor, region, window) request
// from a scene catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

var (
	// ErrEmptyCollection is returned when no scene survives the filters. The
	// driver treats it as a soft failure.
	ErrEmptyCollection = errors.New("empty collection")
)

// RemoteError is a request the catalog service rejected. It is surfaced
// unchanged and never retried by the driver.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Query is what a catalog filters on. Catalogs may return a superset; the
// selector applies every filter again.
type Query struct {
	CatalogID string
	Region    orb.Polygon
	Start     time.Time
	End       time.Time
	// CloudProperty and MaxCloud form a "less than" filter when set.
	CloudProperty string
	MaxCloud      float64
	// Property/Value equality, used to tell Sentinel-2A from 2B.
	Property string
	Value    string
	// IDs restricts the search to known scene IDs, used to link siblings.
	IDs []string
}

// Item is one catalog entry.
type Item struct {
	ID         string            `json:"id"`
	Footprint  orb.Polygon       `json:"footprint"`
	Properties map[string]any    `json:"properties"`
	Assets     map[string]string `json:"assets"`
}

// Catalog searches a scene catalog.
type Catalog interface {
	Search(ctx context.Context, q Query) ([]Item, error)
}
