package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog"

	"github.com/forest-guardian/leaf-mosaic/internal/mask"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

const (
	// MinAssetSize drops catalog stubs.
	MinAssetSize = 1_000_000
	// LandsatMergeYear is the first year Landsat 8 and 9 requests are merged.
	LandsatMergeYear = 2022
	// CloudScoreCatalog holds the per-pixel cloud score of Sentinel-2 scenes.
	CloudScoreCatalog = "GOOGLE/CLOUD_SCORE_PLUS/V1/S2_HARMONIZED"
)

// Extra selects auxiliary data linked onto each scene.
type Extra struct {
	CloudScore bool
	Angles     bool
	// SingleSpacecraft keeps a Sentinel-2 request to its own spacecraft.
	SingleSpacecraft bool
}

// Selector turns catalog items into scene collections.
type Selector struct {
	Catalog  Catalog
	Registry *sensor.Registry
	// Loader is attached to every selected scene.
	Loader scene.Loader
	Logger zerolog.Logger
}

// Select returns the scenes of desc over region in [start, end) with a
// cloud percentage under ceiling. A ceiling <= 0 takes the sensor default at
// the region's centroid latitude. Sibling sensors sharing the request are
// merged in, each scene keeping its own descriptor.
func (s *Selector) Select(ctx context.Context, desc sensor.Descriptor, region orb.Polygon, start, end time.Time, ceiling float64, extra Extra) (*scene.Collection, error) {
	if ceiling <= 0 {
		ceiling = sensor.DefaultCloudCeiling(desc.Code(), CentroidLat(region))
	}

	var out *scene.Collection
	for _, d := range s.siblings(desc, start, extra.SingleSpacecraft) {
		scenes, err := s.selectOne(ctx, d, region, start, end, ceiling, extra)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Key(), err)
		}
		c := scene.NewCollection(desc, start, end, scenes)
		if out == nil {
			out = c
		} else {
			out = out.Merge(c)
		}
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s under %.0f%% cloud", ErrEmptyCollection,
			desc.Key(), start.Format(time.DateOnly), end.Format(time.DateOnly), ceiling)
	}
	s.Logger.Debug().Str("sensor", desc.Key()).Int("scenes", out.Len()).Msg("collection selected")
	return out, nil
}

// siblings lists the descriptors a request for desc covers.
func (s *Selector) siblings(desc sensor.Descriptor, start time.Time, single bool) []sensor.Descriptor {
	out := []sensor.Descriptor{desc}
	var other sensor.Code
	switch desc.Code() {
	case sensor.S2A:
		if !single {
			other = sensor.S2B
		}
	case sensor.S2B:
		if !single {
			other = sensor.S2A
		}
	case sensor.L8:
		if start.Year() >= LandsatMergeYear {
			other = sensor.L9
		}
	case sensor.L9:
		if start.Year() >= LandsatMergeYear {
			other = sensor.L8
		}
	}
	if other == 0 || s.Registry == nil {
		return out
	}
	if d, err := s.Registry.Lookup(other, desc.Unit()); err == nil {
		out = append(out, d)
	}
	return out
}

func (s *Selector) selectOne(ctx context.Context, d sensor.Descriptor, region orb.Polygon, start, end time.Time, ceiling float64, extra Extra) ([]scene.Scene, error) {
	craftProp, craftName := d.Spacecraft()
	items, err := s.Catalog.Search(ctx, Query{
		CatalogID:     d.CatalogID(),
		Region:        region,
		Start:         start,
		End:           end,
		CloudProperty: d.CloudProperty(),
		MaxCloud:      ceiling,
		Property:      craftProp,
		Value:         craftName,
	})
	if err != nil {
		return nil, err
	}

	regionBound := region.Bound()
	var scenes []scene.Scene
	for _, it := range items {
		if craftProp != "" {
			if v, ok := it.Properties[craftProp]; ok && fmt.Sprint(v) != craftName {
				continue
			}
		}
		sc, err := scene.FromProperties(d, withIndex(it))
		if err != nil {
			s.Logger.Warn().Err(err).Str("item", it.ID).Msg("skipping catalog item")
			continue
		}
		sc.Footprint = it.Footprint
		sc.Assets = it.Assets
		sc.Loader = s.Loader

		switch {
		case len(sc.Footprint) == 0 || !sc.Footprint.Bound().Intersects(regionBound):
			continue
		case sc.Acquired.Before(start) || !sc.Acquired.Before(end):
			continue
		case d.CloudProperty() != "" && !(sc.CloudPercent < ceiling):
			continue
		case sc.AssetSize <= MinAssetSize:
			continue
		}
		scenes = append(scenes, sc)
	}
	if len(scenes) == 0 {
		return nil, nil
	}

	if extra.CloudScore && d.Family() == sensor.Sentinel2 {
		if scenes, err = s.linkCloudScore(ctx, scenes); err != nil {
			return nil, fmt.Errorf("cloud score: %w", err)
		}
	}
	if extra.Angles && d.Unit() == sensor.SR && d.TOACatalogID() != "" {
		if scenes, err = s.linkAngles(ctx, d, scenes); err != nil {
			return nil, fmt.Errorf("angles: %w", err)
		}
	}
	return scenes, nil
}

func withIndex(it Item) map[string]any {
	props := make(map[string]any, len(it.Properties)+1)
	for k, v := range it.Properties {
		props[k] = v
	}
	if _, ok := props[scene.PropIndex]; !ok {
		props[scene.PropIndex] = it.ID
	}
	return props
}

func ids(scenes []scene.Scene) []string {
	out := make([]string, len(scenes))
	for i, s := range scenes {
		out[i] = s.ID
	}
	return out
}

// siblingItems searches another catalog for the same scene IDs.
func (s *Selector) siblingItems(ctx context.Context, catalogID string, scenes []scene.Scene) (map[string]Item, error) {
	items, err := s.Catalog.Search(ctx, Query{CatalogID: catalogID, IDs: ids(scenes)})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID, nil
}

func (s *Selector) linkCloudScore(ctx context.Context, scenes []scene.Scene) ([]scene.Scene, error) {
	byID, err := s.siblingItems(ctx, CloudScoreCatalog, scenes)
	if err != nil {
		return nil, err
	}
	out := make([]scene.Scene, len(scenes))
	for i, sc := range scenes {
		out[i] = sc
		it, ok := byID[sc.ID]
		if !ok {
			s.Logger.Debug().Str("scene", sc.ID).Msg("no cloud score")
			continue
		}
		href, ok := it.Assets[mask.CloudScoreBand]
		if !ok {
			continue
		}
		out[i] = sc.WithAsset(mask.CloudScoreBand, href)
	}
	return out, nil
}

func (s *Selector) linkAngles(ctx context.Context, d sensor.Descriptor, scenes []scene.Scene) ([]scene.Scene, error) {
	byID, err := s.siblingItems(ctx, d.TOACatalogID(), scenes)
	if err != nil {
		return nil, err
	}
	out := make([]scene.Scene, len(scenes))
	for i, sc := range scenes {
		out[i] = sc
		if it, ok := byID[sc.ID]; ok {
			out[i] = sc.LinkAngles(d.AngleProperties(), it.Properties)
		}
	}
	return out, nil
}

// CentroidLat is the latitude of the region centroid, in the region's
// coordinates (degrees for EPSG:4326 regions).
func CentroidLat(region orb.Polygon) float64 {
	if len(region) == 0 {
		return 0
	}
	c, _ := planar.CentroidArea(region)
	return c[1]
}
