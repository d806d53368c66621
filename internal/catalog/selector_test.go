package catalog_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/cache"
	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/mask"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

var region = square(-76, 45, 1)

func item(id string, at time.Time, props map[string]any) catalog.Item {
	p := map[string]any{
		scene.PropTimeStart: float64(at.UnixMilli()),
		scene.PropAssetSize: 5e6,
	}
	for k, v := range props {
		p[k] = v
	}
	return catalog.Item{ID: id, Footprint: square(-76.5, 44.5, 1), Properties: p, Assets: map[string]string{"SR_B2": id + "/B2.tif"}}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 0, 0, 0, time.UTC)
}

func selector(t *testing.T, cat catalog.Catalog) *catalog.Selector {
	t.Helper()
	return &catalog.Selector{Catalog: cat, Registry: sensor.NewRegistry(), Logger: zerolog.Nop()}
}

func sceneIDs(c *scene.Collection) []string {
	var out []string
	for _, s := range c.Scenes() {
		out = append(out, s.ID)
	}
	return out
}

func TestSelector_Filters(t *testing.T) {
	reg := sensor.NewRegistry()
	l8, err := reg.Parse("L8_SR")
	require.NoError(t, err)

	far := item("far", date(2020, 7, 3), map[string]any{"CLOUD_COVER": 5.0})
	far.Footprint = square(10, 10, 1)
	small := item("small", date(2020, 7, 4), map[string]any{"CLOUD_COVER": 5.0})
	small.Properties[scene.PropAssetSize] = 1000.0

	mem := catalog.NewMemory()
	mem.Add(l8.CatalogID(),
		item("keep", date(2020, 7, 5), map[string]any{"CLOUD_COVER": 10.0}),
		item("cloudy", date(2020, 7, 6), map[string]any{"CLOUD_COVER": 60.0}),
		item("early", date(2020, 5, 1), map[string]any{"CLOUD_COVER": 1.0}),
		far, small,
	)

	loader := scene.Static{}
	sel := selector(t, mem)
	sel.Loader = loader
	c, err := sel.Select(context.Background(), l8, region, date(2020, 6, 1), date(2020, 9, 1), 50, catalog.Extra{})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, sceneIDs(c))

	s := c.Scenes()[0]
	assert.Equal(t, sensor.L8, s.Descriptor.Code())
	assert.Equal(t, 10.0, s.CloudPercent)
	assert.NotNil(t, s.Loader)
	assert.Equal(t, "keep/B2.tif", s.Assets["SR_B2"])
}

func TestSelector_Empty(t *testing.T) {
	reg := sensor.NewRegistry()
	s2, err := reg.Parse("S2_SR")
	require.NoError(t, err)

	_, err = selector(t, catalog.NewMemory()).Select(context.Background(), s2, region,
		date(2020, 6, 1), date(2020, 9, 1), 0, catalog.Extra{})
	assert.ErrorIs(t, err, catalog.ErrEmptyCollection)
}

func TestSelector_LandsatSiblings(t *testing.T) {
	reg := sensor.NewRegistry()
	l8, _ := reg.Parse("L8_SR")
	l9, _ := reg.Parse("L9_SR")

	mem := catalog.NewMemory()
	for _, y := range []int{2020, 2023} {
		mem.Add(l8.CatalogID(), item("l8", date(y, 7, 1), map[string]any{"CLOUD_COVER": 1.0}))
		mem.Add(l9.CatalogID(), item("l9", date(y, 7, 2), map[string]any{"CLOUD_COVER": 1.0}))
	}

	c, err := selector(t, mem).Select(context.Background(), l8, region, date(2023, 6, 1), date(2023, 9, 1), 50, catalog.Extra{})
	require.NoError(t, err)
	require.Equal(t, []string{"l8", "l9"}, sceneIDs(c))
	assert.Equal(t, sensor.L8, c.Scenes()[0].Descriptor.Code())
	assert.Equal(t, sensor.L9, c.Scenes()[1].Descriptor.Code())
	assert.Equal(t, sensor.L8, c.Descriptor().Code())

	c, err = selector(t, mem).Select(context.Background(), l8, region, date(2020, 6, 1), date(2020, 9, 1), 50, catalog.Extra{})
	require.NoError(t, err)
	assert.Equal(t, []string{"l8"}, sceneIDs(c))
}

func TestSelector_SentinelPairAndDefaultCeiling(t *testing.T) {
	reg := sensor.NewRegistry()
	s2, _ := reg.Parse("S2A_SR")

	mem := catalog.NewMemory()
	mem.Add(s2.CatalogID(),
		item("a", date(2020, 7, 1), map[string]any{"CLOUDY_PIXEL_PERCENTAGE": 85.0, "SPACECRAFT_NAME": "Sentinel-2A"}),
		item("b", date(2020, 7, 2), map[string]any{"CLOUDY_PIXEL_PERCENTAGE": 20.0, "SPACECRAFT_NAME": "Sentinel-2B"}),
	)

	// Below 50 degrees the default ceiling is 90%.
	c, err := selector(t, mem).Select(context.Background(), s2, region, date(2020, 6, 1), date(2020, 9, 1), 0, catalog.Extra{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, sceneIDs(c))
	assert.Equal(t, sensor.S2A, c.Scenes()[0].Descriptor.Code())
	assert.Equal(t, sensor.S2B, c.Scenes()[1].Descriptor.Code())

	c, err = selector(t, mem).Select(context.Background(), s2, region, date(2020, 6, 1), date(2020, 9, 1), 0,
		catalog.Extra{SingleSpacecraft: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, sceneIDs(c))

	north := square(-76, 65, 1)
	mem.Add(s2.CatalogID(), func() catalog.Item {
		it := item("n", date(2020, 7, 3), map[string]any{"CLOUDY_PIXEL_PERCENTAGE": 70.0, "SPACECRAFT_NAME": "Sentinel-2A"})
		it.Footprint = square(-76.5, 64.5, 1)
		return it
	}())
	_, err = selector(t, mem).Select(context.Background(), s2, north, date(2020, 6, 1), date(2020, 9, 1), 0, catalog.Extra{})
	assert.ErrorIs(t, err, catalog.ErrEmptyCollection)
}

func TestSelector_LinksCloudScoreAndAngles(t *testing.T) {
	reg := sensor.NewRegistry()
	s2, _ := reg.Parse("S2A_SR")

	mem := catalog.NewMemory()
	mem.Add(s2.CatalogID(), item("a", date(2020, 7, 1), map[string]any{
		"CLOUDY_PIXEL_PERCENTAGE": 5.0, "SPACECRAFT_NAME": "Sentinel-2A",
	}))
	mem.Add(catalog.CloudScoreCatalog, catalog.Item{ID: "a", Assets: map[string]string{mask.CloudScoreBand: "cs/a.tif"}})
	mem.Add(s2.TOACatalogID(), catalog.Item{ID: "a", Properties: map[string]any{
		"MEAN_SOLAR_ZENITH_ANGLE":          30.0,
		"MEAN_SOLAR_AZIMUTH_ANGLE":         150.0,
		"MEAN_INCIDENCE_ZENITH_ANGLE_B8A":  5.0,
		"MEAN_INCIDENCE_AZIMUTH_ANGLE_B8A": 100.0,
	}})

	c, err := selector(t, mem).Select(context.Background(), s2, region, date(2020, 6, 1), date(2020, 9, 1), 50,
		catalog.Extra{CloudScore: true, Angles: true})
	require.NoError(t, err)
	s := c.Scenes()[0]
	assert.Equal(t, "cs/a.tif", s.Assets[mask.CloudScoreBand])
	assert.Equal(t, scene.Angles{SunZenith: 30, SunAzimuth: 150, ViewZenith: 5, ViewAzimuth: 100}, s.Angles)
}

type countingCatalog struct {
	catalog.Catalog
	calls atomic.Int32
}

func (c *countingCatalog) Search(ctx context.Context, q catalog.Query) ([]catalog.Item, error) {
	c.calls.Add(1)
	return c.Catalog.Search(ctx, q)
}

func TestCached(t *testing.T) {
	reg := sensor.NewRegistry()
	l8, _ := reg.Parse("L8_SR")
	mem := catalog.NewMemory()
	mem.Add(l8.CatalogID(), item("keep", date(2020, 7, 5), map[string]any{"CLOUD_COVER": 10.0}))

	inner := &countingCatalog{Catalog: mem}
	cached := &catalog.Cached{
		Catalog: inner,
		Cache:   cache.NewFileCache[[]catalog.Item](t.TempDir(), "catalog"),
		Logger:  zerolog.Nop(),
	}
	sel := selector(t, cached)
	for i := 0; i < 2; i++ {
		c, err := sel.Select(context.Background(), l8, region, date(2020, 6, 1), date(2020, 9, 1), 50, catalog.Extra{})
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, sceneIDs(c))
		assert.Equal(t, date(2020, 7, 5), c.Scenes()[0].Acquired)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
}
