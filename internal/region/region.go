// Package region resolves run region names to WGS84 polygons.
package region

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	ErrUnknownRegion     = errors.New("unknown region")
	ErrUnsupportedFormat = errors.New("unsupported vector format")
)

// DefaultExpansion pads every region so mosaics overlap their neighbours.
const DefaultExpansion = 0.02

type Region struct {
	Name    string
	Polygon orb.Polygon
}

// Expand pads the region bound by frac of its larger side.
func (r Region) Expand(frac float64) orb.Polygon {
	b := r.Polygon.Bound()
	side := max(b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y())
	return b.Pad(side * frac).ToPolygon()
}

// Centroid returns latitude and longitude of the region centroid.
func (r Region) Centroid() (float64, float64, error) {
	if len(r.Polygon) == 0 {
		return 0, 0, fmt.Errorf("region %s: empty polygon", r.Name)
	}
	centroid, area := planar.CentroidArea(r.Polygon)
	if area <= 0 {
		return 0, 0, fmt.Errorf("region %s: error getting centroid", r.Name)
	}
	return centroid.Y(), centroid.X(), nil
}

// Registry is a name-indexed set of regions, typically a tile grid plus ad
// hoc polygons from the run configuration.
type Registry struct {
	regions map[string]Region
}

func NewRegistry() *Registry {
	return &Registry{regions: make(map[string]Region)}
}

// Add registers a polygon, replacing any region of the same name.
func (r *Registry) Add(name string, poly orb.Polygon) error {
	if len(poly) == 0 || len(poly[0]) < 4 {
		return fmt.Errorf("region %s: polygon needs a closed outer ring", name)
	}
	r.regions[name] = Region{Name: name, Polygon: poly}
	return nil
}

func (r *Registry) Lookup(name string) (Region, error) {
	rg, ok := r.regions[name]
	if !ok {
		return Region{}, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	return rg, nil
}

// Names lists every region, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.regions))
	for k := range r.regions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadFile reads a GeoJSON file of named polygons. Other vector formats
// return ErrUnsupportedFormat and are read through gdalio.LoadRegions.
func (r *Registry) LoadFile(path, nameField string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return r.LoadGeoJSON(data, nameField)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// LoadGeoJSON registers every polygon feature of a FeatureCollection under
// its nameField property. Multipolygons keep their largest part.
func (r *Registry) LoadGeoJSON(data []byte, nameField string) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to decode regions: %w", err)
	}
	for i, f := range fc.Features {
		var name string
		if v, ok := f.Properties[nameField]; ok && v != nil {
			name = fmt.Sprint(v)
		}
		if name == "" {
			return fmt.Errorf("feature %d has no %s", i, nameField)
		}
		poly, err := Polygon(f.Geometry)
		if err != nil {
			return fmt.Errorf("region %s: %w", name, err)
		}
		if err := r.Add(name, poly); err != nil {
			return err
		}
	}
	return nil
}

// Polygon reduces a geometry to one polygon. Multipolygons keep their
// largest part.
func Polygon(g orb.Geometry) (orb.Polygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return v, nil
	case orb.MultiPolygon:
		var best orb.Polygon
		var bestArea float64
		for _, p := range v {
			if a := planar.Area(p); best == nil || a > bestArea {
				best, bestArea = p, a
			}
		}
		if best != nil {
			return best, nil
		}
	}
	return nil, fmt.Errorf("geometry %T is not a polygon", g)
}
