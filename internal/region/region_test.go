package region_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/region"
)

const tiles = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"tile":"T18TVR"},"geometry":{"type":"Polygon","coordinates":[[[-76,45],[-75,45],[-75,46],[-76,46],[-76,45]]]}},
{"type":"Feature","properties":{"tile":42},"geometry":{"type":"MultiPolygon","coordinates":[
  [[[0,0],[1,0],[1,1],[0,1],[0,0]]],
  [[[10,10],[14,10],[14,14],[10,14],[10,10]]]]}}
]}`

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.geojson")
	require.NoError(t, os.WriteFile(path, []byte(tiles), 0644))

	reg := region.NewRegistry()
	require.NoError(t, reg.LoadFile(path, "tile"))
	assert.Equal(t, []string{"42", "T18TVR"}, reg.Names())

	big, err := reg.Lookup("42")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{14, 14}}, big.Polygon.Bound())

	_, err = reg.Lookup("nowhere")
	assert.ErrorIs(t, err, region.ErrUnknownRegion)
}

func TestRegistry_Errors(t *testing.T) {
	reg := region.NewRegistry()
	err := reg.LoadGeoJSON([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`), "tile")
	assert.Error(t, err)

	err = reg.LoadGeoJSON([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"tile":"p"},"geometry":{"type":"Point","coordinates":[0,0]}}]}`), "tile")
	assert.Error(t, err)

	assert.Error(t, reg.Add("open", orb.Polygon{orb.Ring{{0, 0}, {1, 0}}}))

	assert.ErrorIs(t, reg.LoadFile("tiles.shp", "tile"), region.ErrUnsupportedFormat)
}

func TestRegion_ExpandAndCentroid(t *testing.T) {
	rg := region.Region{Name: "t", Polygon: orb.Polygon{orb.Ring{{-76, 45}, {-75, 45}, {-75, 46}, {-76, 46}, {-76, 45}}}}

	b := rg.Expand(region.DefaultExpansion).Bound()
	assert.InDelta(t, -76.02, b.Min.X(), 1e-9)
	assert.InDelta(t, 44.98, b.Min.Y(), 1e-9)
	assert.InDelta(t, -74.98, b.Max.X(), 1e-9)
	assert.InDelta(t, 46.02, b.Max.Y(), 1e-9)

	lat, lon, err := rg.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 45.5, lat, 1e-9)
	assert.InDelta(t, -75.5, lon, 1e-9)

	_, _, err = region.Region{Name: "empty"}.Centroid()
	assert.Error(t, err)
}
