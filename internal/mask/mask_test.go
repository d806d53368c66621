package mask_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/mask"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

const R = sensor.MaxReflectance

// pixel holds rescaled canonical bands plus raw vendor bands.
type pixel struct {
	blu, grn, red, nir, sw1, sw2 float64
	qa, scl, radsat              float64
}

var (
	vegetated = pixel{blu: 3, grn: 6, red: 4, nir: 35, sw1: 18, sw2: 9}
	cloudy    = pixel{blu: 40, grn: 42, red: 44, nir: 50, sw1: 30, sw2: 25}
	lake      = pixel{blu: 5, grn: 6, red: 4, nir: 2, sw1: 1, sw2: 0.5}
	snowfield = pixel{blu: 80, grn: 85, red: 82, nir: 75, sw1: 10, sw2: 8}
)

func observation(t *testing.T, code sensor.Code, pixels ...pixel) scene.Observation {
	t.Helper()
	d, err := sensor.NewRegistry().Lookup(code, sensor.SR)
	require.NoError(t, err)

	grid := raster.Grid{Width: len(pixels), Height: 1}
	get := map[sensor.Band]func(p pixel) float64{
		sensor.BLU: func(p pixel) float64 { return p.blu }, sensor.GRN: func(p pixel) float64 { return p.grn },
		sensor.RED: func(p pixel) float64 { return p.red }, sensor.NIR: func(p pixel) float64 { return p.nir },
		sensor.SW1: func(p pixel) float64 { return p.sw1 }, sensor.SW2: func(p pixel) float64 { return p.sw2 },
		sensor.QA: func(p pixel) float64 { return p.qa }, sensor.SCL: func(p pixel) float64 { return p.scl },
		sensor.RADSAT: func(p pixel) float64 { return p.radsat },
	}
	var names []string
	var data [][]float64
	for _, b := range d.Logicals(sensor.RoleAll) {
		name, _ := d.Band(b)
		col := make([]float64, len(pixels))
		for i, p := range pixels {
			if f, ok := get[b]; ok {
				col[i] = f(p)
			} else {
				col[i] = p.nir // red edges and aerosol are not inspected
			}
		}
		names = append(names, name)
		data = append(data, col)
	}
	img, err := raster.FromBands(grid, names, data)
	require.NoError(t, err)
	return scene.Observation{Scene: scene.Scene{ID: "s", Descriptor: d, Acquired: time.Now()}, Image: img}
}

func TestClearMask_Sentinel2(t *testing.T) {
	opaque, cirrus, shadow := cloudy, cloudy, vegetated
	opaque.qa = 1 << 10
	cirrus.qa = 1 << 11
	shadow.scl = 3

	o := observation(t, sensor.S2A, vegetated, opaque, cirrus, shadow)
	m, err := mask.ClearMask(o)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true}, m.Bits)
	assert.Equal(t, mask.Clear, m.Kind)
}

func TestClearMask_Landsat(t *testing.T) {
	p := []pixel{vegetated, vegetated, vegetated, vegetated}
	p[1].qa = 1 << 3 // cloud
	p[2].qa = 1 << 4 // shadow
	p[3].qa = 1 << 6 // clear bit, not in the cloud set

	m, err := mask.ClearMask(observation(t, sensor.L8, p...))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, false}, m.Bits)
}

func TestClearMask_CloudScore(t *testing.T) {
	o := observation(t, sensor.S2B, vegetated, vegetated)
	img, err := o.Image.WithBand(mask.CloudScoreBand, []float64{0.9, 0.2})
	require.NoError(t, err)
	o.Image = img

	m, err := mask.ClearMask(o)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, m.Bits)
}

func TestSaturationMask(t *testing.T) {
	sat := vegetated
	sat.scl = 1
	m, err := mask.SaturationMask(observation(t, sensor.S2A, vegetated, sat))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, m.Bits)

	// L8: SR_B2..SR_B7 are bits 1..6; bit 0 is the aerosol band
	aer, nir := vegetated, vegetated
	aer.radsat = 1 << 0
	nir.radsat = 1 << 4
	m, err = mask.SaturationMask(observation(t, sensor.L8, vegetated, aer, nir))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, m.Bits)

	m, err = mask.SaturationMask(observation(t, sensor.HLS, vegetated))
	require.NoError(t, err)
	assert.Zero(t, m.Count())
}

func TestValueMask(t *testing.T) {
	low, high := vegetated, vegetated
	low.red = -0.6
	high.sw1 = 105.5
	m, err := mask.ValueMask(observation(t, sensor.L8, vegetated, low, high), R)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, m.Bits)
}

func TestWaterSnowVegetation(t *testing.T) {
	o := observation(t, sensor.L8, vegetated, lake, snowfield)

	water, err := mask.WaterMask(o, R)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, water.Bits)

	snow, err := mask.SnowMask(o, R)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, snow.Bits)

	veg, err := mask.VegetationMask(o)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, veg.Bits)

	flagged := vegetated
	flagged.qa = 1 << 7
	water, err = mask.WaterMask(observation(t, sensor.L8, flagged), R)
	require.NoError(t, err)
	assert.True(t, water.Bits[0])
}

func TestNonVegetation(t *testing.T) {
	soil := pixel{blu: 10, grn: 14, red: 20, nir: 25, sw1: 35, sw2: 30}
	o := observation(t, sensor.L8, vegetated, soil)

	for _, idx := range []mask.Index{mask.LXI, mask.NBI, mask.NDBI, mask.BUI} {
		v, err := mask.NonVegetationIndex(o, idx)
		require.NoError(t, err, idx)
		for _, x := range v {
			assert.GreaterOrEqual(t, x, 0.0, idx)
		}
		assert.Greater(t, v[1], 0.0, idx)
	}

	ndbi, err := mask.NonVegetationIndex(o, mask.NDBI)
	require.NoError(t, err)
	assert.Zero(t, ndbi[0])
	assert.InDelta(t, 10.0/60, ndbi[1], 1e-12)

	m, err := mask.NonVegetationMask(o, mask.NDBI)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, m.Bits)

	_, err = mask.ParseIndex("evi")
	assert.Error(t, err)
}

func TestInvalidMask_Monotone(t *testing.T) {
	opaque, sat, neg := vegetated, vegetated, vegetated
	opaque.qa = 1 << 10
	sat.scl = 1
	neg.grn = -1
	o := observation(t, sensor.S2A, vegetated, opaque, sat, neg, lake)
	o.Image = o.Image.UpdateMask([]bool{true, true, true, true, false})

	inv, err := mask.InvalidMask(o, R)
	require.NoError(t, err)
	for _, build := range []func() (mask.PixelMask, error){
		func() (mask.PixelMask, error) { return mask.ClearMask(o) },
		func() (mask.PixelMask, error) { return mask.SaturationMask(o) },
		func() (mask.PixelMask, error) { return mask.ValueMask(o, R) },
	} {
		part, err := build()
		require.NoError(t, err)
		for i, b := range part.Bits {
			if b {
				assert.True(t, inv.Bits[i], "%s pixel %d", part.Kind, i)
			}
		}
	}
	assert.Equal(t, []bool{false, true, true, true, true}, inv.Bits)

	keep, err := mask.Keepers(o, R)
	require.NoError(t, err)
	assert.Equal(t, inv.Not(), keep)

	applied, err := mask.Apply(R)(o)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Image.CountValid())
}

func TestLandMask(t *testing.T) {
	m := mask.LandMask([]float64{0, 1, 18, 5}, 18)
	assert.Equal(t, []bool{false, true, false, true}, m.Bits)
}
