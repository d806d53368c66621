// Package scene holds single acquisitions and the lazy collections built from
// them. Nothing is read from disk or network until a collection is
// materialized.
package scene

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Property keys shared by every catalog.
const (
	PropIndex     = "system:index"
	PropTimeStart = "system:time_start"
	PropAssetSize = "system:asset_size"
)

// Epoch is day zero of the date band.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Loader reads the rasters of one scene onto a grid. Bands are returned
// under their physical names.
type Loader interface {
	Load(ctx context.Context, s Scene, grid raster.Grid) (*raster.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, s Scene, grid raster.Grid) (*raster.Image, error)

func (f LoaderFunc) Load(ctx context.Context, s Scene, grid raster.Grid) (*raster.Image, error) {
	return f(ctx, s, grid)
}

// Angles are the scene mean sun/view angles in degrees.
type Angles struct {
	SunZenith   float64
	SunAzimuth  float64
	ViewZenith  float64
	ViewAzimuth float64
}

// Scene is one acquisition. It is immutable once built by the selector.
type Scene struct {
	ID           string
	Descriptor   sensor.Descriptor
	Acquired     time.Time
	CloudPercent float64
	Angles       Angles
	AssetSize    int64
	Footprint    orb.Polygon
	// Assets maps physical band names, plus linked auxiliary bands such as
	// the cloud score, to their location.
	Assets map[string]string
	Loader Loader
}

// Day is the acquisition date as whole days since Epoch.
func (s Scene) Day() int {
	return DaysSinceEpoch(s.Acquired)
}

// DaysSinceEpoch truncates t to whole days since Epoch.
func DaysSinceEpoch(t time.Time) int {
	return int(math.Floor(t.Sub(Epoch).Hours() / 24))
}

// WithAsset returns a copy of s with an additional asset.
func (s Scene) WithAsset(name, href string) Scene {
	assets := make(map[string]string, len(s.Assets)+1)
	for k, v := range s.Assets {
		assets[k] = v
	}
	assets[name] = href
	s.Assets = assets
	return s
}

// FromProperties builds a scene from a catalog property bag. Landsat only
// publishes a sun elevation, so the zenith is derived from it and the view
// angles reuse the sun angles.
func FromProperties(d sensor.Descriptor, props map[string]any) (Scene, error) {
	s := Scene{Descriptor: d}

	id, ok := props[PropIndex]
	if !ok {
		return Scene{}, fmt.Errorf("missing %s", PropIndex)
	}
	s.ID = fmt.Sprint(id)

	ms, err := Number(props, PropTimeStart)
	if err != nil {
		return Scene{}, fmt.Errorf("scene %s: %w", s.ID, err)
	}
	s.Acquired = time.UnixMilli(int64(ms)).UTC()

	if prop := d.CloudProperty(); prop != "" {
		if s.CloudPercent, err = Number(props, prop); err != nil {
			return Scene{}, fmt.Errorf("scene %s: %w", s.ID, err)
		}
	}

	if size, err := Number(props, PropAssetSize); err == nil {
		s.AssetSize = int64(size)
	}

	s.Angles = anglesFromProperties(d.AngleProperties(), props)
	return s, nil
}

func anglesFromProperties(names sensor.Angles, props map[string]any) Angles {
	get := func(key string) float64 {
		if key == "" {
			return 0
		}
		v, err := Number(props, key)
		if err != nil {
			return 0
		}
		return v
	}
	a := Angles{
		SunZenith:   get(names.SunZenith),
		SunAzimuth:  get(names.SunAzimuth),
		ViewZenith:  get(names.ViewZenith),
		ViewAzimuth: get(names.ViewAzimuth),
	}
	if names.SunElevation {
		a.SunZenith = 90 - a.SunZenith
		a.ViewZenith = a.SunZenith
		a.ViewAzimuth = a.SunAzimuth
	}
	return a
}

// LinkAngles copies the angle properties of a sibling scene, typically the
// TOA acquisition matching an SR scene.
func (s Scene) LinkAngles(names sensor.Angles, props map[string]any) Scene {
	s.Angles = anglesFromProperties(names, props)
	return s
}

// Number reads a numeric property, accepting JSON numbers and numeric
// strings.
func Number(props map[string]any, key string) (float64, error) {
	v, ok := props[key]
	if !ok {
		return 0, fmt.Errorf("missing property %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("property %s: %w", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("property %s has type %T", key, v)
}
