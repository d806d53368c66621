// Package gdalio reads scene assets onto a common grid and writes
// GeoTIFFs, both through GDAL.
package gdalio

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

const WGS84 = 4326

// GridFor returns the north-up grid covering a WGS84 region in epsg at the
// given pixel size.
func GridFor(region orb.Polygon, resolution float64, epsg int) (raster.Grid, error) {
	if len(region) == 0 || len(region[0]) == 0 {
		return raster.Grid{}, fmt.Errorf("empty region")
	}
	if resolution <= 0 {
		return raster.Grid{}, fmt.Errorf("invalid resolution %v", resolution)
	}
	if epsg == WGS84 {
		return GridFromBound(region.Bound(), resolution, epsg), nil
	}

	src, err := godal.NewSpatialRefFromEPSG(WGS84)
	if err != nil {
		return raster.Grid{}, err
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return raster.Grid{}, fmt.Errorf("EPSG:%d: %w", epsg, err)
	}
	defer dst.Close()
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return raster.Grid{}, err
	}
	defer tr.Close()

	ring := region[0]
	xs := make([]float64, len(ring))
	ys := make([]float64, len(ring))
	for i, p := range ring {
		xs[i], ys[i] = p.X(), p.Y()
	}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return raster.Grid{}, fmt.Errorf("transform error: %w", err)
	}
	var mp orb.MultiPoint
	for i := range xs {
		mp = append(mp, orb.Point{xs[i], ys[i]})
	}
	return GridFromBound(mp.Bound(), resolution, epsg), nil
}

// GridFromBound snaps b outward to whole pixels.
func GridFromBound(b orb.Bound, resolution float64, epsg int) raster.Grid {
	minX := math.Floor(b.Min.X()/resolution) * resolution
	maxY := math.Ceil(b.Max.Y()/resolution) * resolution
	w := int(math.Ceil((b.Max.X() - minX) / resolution))
	h := int(math.Ceil((maxY - b.Min.Y()) / resolution))
	return raster.Grid{
		Width:        max(w, 1),
		Height:       max(h, 1),
		GeoTransform: [6]float64{minX, resolution, 0, maxY, 0, -resolution},
		EPSG:         epsg,
	}
}

// Bounds is the extent of a north-up grid.
func Bounds(g raster.Grid) orb.Bound {
	gt := g.GeoTransform
	return orb.Bound{
		Min: orb.Point{gt[0], gt[3] + gt[5]*float64(g.Height)},
		Max: orb.Point{gt[0] + gt[1]*float64(g.Width), gt[3]},
	}
}
