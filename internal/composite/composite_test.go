package composite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/composite"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/reference"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/score"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var (
	reg  = sensor.NewRegistry()
	july = time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	aug  = time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC)
)

func lookup(t *testing.T, code sensor.Code) sensor.Descriptor {
	t.Helper()
	d, err := reg.Lookup(code, sensor.SR)
	require.NoError(t, err)
	return d
}

// scored builds an observation whose every out band equals fill, with the
// given score and temporal term per pixel.
func scored(t *testing.T, d sensor.Descriptor, at time.Time, fill float64, scores, times []float64, valid []bool) scene.Observation {
	t.Helper()
	n := len(scores)
	names := append(d.Bands(sensor.RoleOut), score.Band, score.TimeBand)
	var data [][]float64
	for range d.Bands(sensor.RoleOut) {
		col := make([]float64, n)
		for i := range col {
			col[i] = fill
		}
		data = append(data, col)
	}
	data = append(data, scores, times)
	img, err := raster.FromBands(raster.Grid{Width: n, Height: 1}, names, data)
	require.NoError(t, err)
	return scene.Observation{
		Scene: scene.Scene{ID: at.Format(time.DateOnly), Descriptor: d, Acquired: at},
		Image: img.UpdateMask(valid),
	}
}

func band(t *testing.T, m *composite.Mosaic, b sensor.Band) []float64 {
	t.Helper()
	data, err := m.Band(b)
	require.NoError(t, err)
	return data
}

func raw(t *testing.T, m *composite.Mosaic, name string) []float64 {
	t.Helper()
	data, err := m.Image.Band(name)
	require.NoError(t, err)
	return data
}

func TestQualityMosaic_Argmax(t *testing.T) {
	l8, l9 := lookup(t, sensor.L8), lookup(t, sensor.L9)
	obs := []scene.Observation{
		scored(t, l8, july.AddDate(0, 0, 2), 10, []float64{1, 5, 2, 3, 0}, []float64{0.5, 0.5, 0.5, 0.5, 0.5}, []bool{true, true, true, true, false}),
		scored(t, l9, july.AddDate(0, 0, 9), 20, []float64{2, 4, 2, 3, 0}, []float64{0.9, 0.9, 0.9, 0.4, 0.9}, []bool{true, true, true, true, false}),
		scored(t, l8, july.AddDate(0, 0, 20), 30, []float64{9, 9, 9, 9, 9}, []float64{1, 1, 1, 1, 1}, []bool{false, false, false, false, false}),
	}

	m, err := composite.QualityMosaic(l8, obs)
	require.NoError(t, err)

	// pixel 2 ties on score and goes to the larger temporal term, pixel 3 to
	// the earlier observation's larger temporal term
	assert.Equal(t, []float64{20, 10, 20, 10, 0}, band(t, m, sensor.NIR))
	assert.Equal(t, []float64{2, 5, 2, 3, 0}, raw(t, m, composite.BandScore))
	assert.Equal(t, []float64{9, 8, 9, 8, 0}, raw(t, m, composite.BandSensor))
	assert.Equal(t, []bool{true, true, true, true, false}, m.Image.Mask())

	date := raw(t, m, composite.BandDate)
	assert.Equal(t, float64(scene.DaysSinceEpoch(july.AddDate(0, 0, 9))), date[0])

	for i := 0; i < 4; i++ {
		assert.NotZero(t, raw(t, m, composite.BandSensor)[i])
	}

	_, err = composite.QualityMosaic(l8, nil)
	assert.ErrorIs(t, err, composite.ErrNoObservations)
}

func TestQualityMosaic_ExactTieKeepsCollectionOrder(t *testing.T) {
	l8 := lookup(t, sensor.L8)
	obs := []scene.Observation{
		scored(t, l8, july, 1, []float64{3}, []float64{0.7}, []bool{true}),
		scored(t, l8, july.AddDate(0, 0, 1), 2, []float64{3}, []float64{0.7}, []bool{true}),
	}
	m, err := composite.QualityMosaic(l8, obs)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, band(t, m, sensor.BLU))
}

func mosaic(t *testing.T, d sensor.Descriptor, at time.Time, fill float64, scores []float64, valid []bool) *composite.Mosaic {
	t.Helper()
	m, err := composite.QualityMosaic(d, []scene.Observation{scored(t, d, at, fill, scores, scores, valid)})
	require.NoError(t, err)
	return m
}

func TestMerge_Ordering(t *testing.T) {
	l8 := lookup(t, sensor.L8)
	base := mosaic(t, l8, july, 1, []float64{1, 1, 1, 0}, []bool{true, true, true, false})
	backup := mosaic(t, l8, july.AddDate(-1, 0, 0), 2, []float64{3, 3.5, 0, 1}, []bool{true, true, true, true})

	m, err := composite.Merge(base, backup, composite.SameFamilyGap)
	require.NoError(t, err)

	// 3-2 <= 1 keeps base, 3.5-2 > 1 takes backup, gaps come from backup
	assert.Equal(t, []float64{1, 2, 1, 2}, band(t, m, sensor.RED))
	assert.Equal(t, []float64{1, 3.5, 1, 1}, raw(t, m, composite.BandScore))
	assert.Equal(t, []bool{true, true, true, true}, m.Image.Mask())
	assert.False(t, m.Canonical)
}

func TestMerge_OlderLandsatIsCanonicalized(t *testing.T) {
	l8, l7 := lookup(t, sensor.L8), lookup(t, sensor.L7)
	base := mosaic(t, l8, july, 1, []float64{4, 1, 0}, []bool{true, true, false})
	backup := mosaic(t, l7, july, 2, []float64{5, 6, 1}, []bool{true, true, true})

	m, err := composite.Merge(base, backup, composite.DefaultGap(base, backup))
	require.NoError(t, err)
	assert.True(t, m.Canonical)
	assert.Equal(t, sensor.L8, m.Descriptor.Code())
	for _, b := range sensor.SixBands {
		assert.Equal(t, []float64{1, 2, 2}, band(t, m, b), b)
	}
	assert.Equal(t, []float64{8, 7, 7}, raw(t, m, composite.BandSensor))
	assert.False(t, m.Image.Has("SR_B6"))
}

func TestMergeFamilies_SentinelStaysBase(t *testing.T) {
	l8, s2 := lookup(t, sensor.L8), lookup(t, sensor.S2A)
	landsat := mosaic(t, l8, july, 1, []float64{5, 9}, []bool{true, true})
	sentinel := mosaic(t, s2, july, 2, []float64{4, 4}, []bool{true, true})

	m, err := composite.MergeFamilies(landsat, sentinel)
	require.NoError(t, err)
	assert.True(t, m.Canonical)
	assert.Equal(t, sensor.Sentinel2, m.Descriptor.Family())
	assert.Equal(t, []string{"BLU", "GRN", "RED", "NIR", "SW1", "SW2"}, m.SpectralBands())
	// 5-3 <= 4 keeps S2, 9-3 > 4 takes Landsat
	assert.Equal(t, []float64{2, 1}, band(t, m, sensor.SW2))
	assert.Equal(t, []float64{21, 8}, raw(t, m, composite.BandSensor))
	assert.False(t, m.Image.Has("B8A"))
}

// A pixel masked in the target year is carried by the previous year.
func TestExtendYears_FillsFromPreviousYear(t *testing.T) {
	l8 := lookup(t, sensor.L8)
	build := func(_ context.Context, year int) (*composite.Mosaic, error) {
		at := time.Date(year, 7, 15, 0, 0, 0, 0, time.UTC)
		if year == 2020 {
			return mosaic(t, l8, at, 1, []float64{2, 0}, []bool{true, false}), nil
		}
		return mosaic(t, l8, at, 2, []float64{2, 2}, []bool{true, true}), nil
	}

	m, err := composite.ExtendYears(context.Background(), build, 2020, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, band(t, m, sensor.BLU))
	date := raw(t, m, composite.BandDate)
	assert.NotZero(t, date[1])
	assert.Equal(t, float64(scene.DaysSinceEpoch(time.Date(2019, 7, 15, 0, 0, 0, 0, time.UTC))), date[1])
}

func TestExtendYears_EmptyTargetFallsBack(t *testing.T) {
	l8 := lookup(t, sensor.L8)
	empty := errors.New("empty")
	var built []int
	build := func(_ context.Context, year int) (*composite.Mosaic, error) {
		built = append(built, year)
		if year == 2020 {
			return nil, empty
		}
		return mosaic(t, l8, time.Date(year, 7, 1, 0, 0, 0, 0, time.UTC), float64(year), []float64{1}, []bool{true}), nil
	}

	m, err := composite.ExtendYears(context.Background(), build, 2020, 3, empty)
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2019, 2021}, built)
	assert.Equal(t, []float64{2019}, band(t, m, sensor.BLU))

	_, err = composite.ExtendYears(context.Background(), build, 2020, 1, empty)
	assert.ErrorIs(t, err, empty)

	_, err = composite.ExtendYears(context.Background(), build, 2020, 4, empty)
	assert.Error(t, err)
}

// On a water pixel the scene with the lower blue wins.
func TestWaterPixel_LowerBlueWins(t *testing.T) {
	l8 := lookup(t, sensor.L8)
	obs := func(at time.Time, blu float64) scene.Observation {
		data := [][]float64{{blu}, {4}, {3}, {2}, {1}, {0.5}}
		img, err := raster.FromBands(raster.Grid{Width: 1, Height: 1}, l8.Bands(sensor.RoleSix), data)
		require.NoError(t, err)
		return scene.Observation{Scene: scene.Scene{ID: at.String(), Descriptor: l8, Acquired: at, CloudPercent: 10}, Image: img}
	}
	stack := []scene.Observation{obs(july.AddDate(0, 0, 15), 5), obs(july.AddDate(0, 0, 15), 3)}

	ref, err := reference.Build(stack, july, aug)
	require.NoError(t, err)
	s := score.Scorer{Reference: ref, Water: []float64{score.WaterAlways}, Start: july, End: aug}
	var scoredObs []scene.Observation
	for _, o := range stack {
		so, err := s.Score(o)
		require.NoError(t, err)
		scoredObs = append(scoredObs, so)
	}

	m, err := composite.QualityMosaic(l8, scoredObs)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, band(t, m, sensor.BLU))
}
