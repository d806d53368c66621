package gdalio_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/gdalio"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

func TestGridFromBound(t *testing.T) {
	g := gdalio.GridFromBound(orb.Bound{Min: orb.Point{95, 205}, Max: orb.Point{301, 390}}, 30, 3979)
	assert.Equal(t, 8, g.Width)
	assert.Equal(t, 7, g.Height)
	assert.Equal(t, [6]float64{90, 30, 0, 390, 0, -30}, g.GeoTransform)

	b := gdalio.Bounds(g)
	assert.Equal(t, orb.Point{90, 180}, b.Min)
	assert.Equal(t, orb.Point{330, 390}, b.Max)
}

func TestGridFor_WGS84(t *testing.T) {
	region := orb.Polygon{orb.Ring{{-76, 45}, {-75, 45}, {-75, 46}, {-76, 46}, {-76, 45}}}
	g, err := gdalio.GridFor(region, 0.25, gdalio.WGS84)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Width)
	assert.Equal(t, 4, g.Height)

	_, err = gdalio.GridFor(nil, 30, 3979)
	assert.Error(t, err)
	_, err = gdalio.GridFor(region, 0, 3979)
	assert.Error(t, err)
}

func TestVSIPath(t *testing.T) {
	assert.Equal(t, "/vsicurl/https://x/a.tif", gdalio.VSIPath("https://x/a.tif"))
	assert.Equal(t, "/vsigs/bucket/a.tif", gdalio.VSIPath("gs://bucket/a.tif"))
	assert.Equal(t, "/data/a.tif", gdalio.VSIPath("/data/a.tif"))
}

func TestGeoTIFF_RoundTrip(t *testing.T) {
	godal.RegisterAll()
	grid := raster.Grid{Width: 3, Height: 2, GeoTransform: [6]float64{0, 30, 0, 60, 0, -30}, EPSG: 3979}
	path := filepath.Join(t.TempDir(), "out", "mosaic.tif")

	err := gdalio.WriteGeoTIFF(path, grid, godal.UInt16, 0,
		gdalio.Layer{Name: "NIR", Data: []float64{100, 200, 0, 400, 500, 600}},
		gdalio.Layer{Name: "date", Data: []float64{1, 2, 3, 4, 5, 6}},
	)
	require.NoError(t, err)

	img, err := gdalio.ReadGeoTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NIR", "date"}, img.Names())
	assert.Equal(t, grid.GeoTransform, img.Grid().GeoTransform)
	nir, err := img.Band("NIR")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200, 0, 400, 500, 600}, nir)
	assert.False(t, img.Valid(2))
	assert.True(t, img.Valid(0))

	err = gdalio.WriteGeoTIFF(path, grid, godal.UInt16, 0, gdalio.Layer{Name: "x", Data: []float64{1}})
	assert.ErrorIs(t, err, raster.ErrGridMismatch)
}

func TestExporter_SubmitAndCancel(t *testing.T) {
	godal.RegisterAll()
	root := t.TempDir()
	ex := &gdalio.Exporter{Root: root, Logger: zerolog.Nop()}
	grid := raster.Grid{Width: 2, Height: 1, GeoTransform: [6]float64{0, 30, 0, 30, 0, -30}, EPSG: 3979}

	task, err := ex.Submit(context.Background(), export.Request{
		Name:     "T1_July_L8_SR_30m",
		Location: export.Storage,
		Bucket:   "bucket",
		Folder:   "mosaics",
		Grid:     grid,
		Type:     export.UInt16,
		Layers:   []export.Layer{{Name: "NIR", Data: []float64{3000, 4000}}},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bucket", "mosaics", "T1_July_L8_SR_30m.tif"), task.Path)
	assert.FileExists(t, task.Path)

	require.NoError(t, ex.Cancel(context.Background(), task))
	assert.NoFileExists(t, task.Path)

	_, err = ex.Submit(context.Background(), export.Request{Name: "x", Location: export.Storage, Grid: grid})
	assert.Error(t, err)
}
