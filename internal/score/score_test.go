package score_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/reference"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/score"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var (
	july  = time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC)
	mid   = time.Date(2020, 7, 16, 12, 0, 0, 0, time.UTC)
	six   = func(blu, grn, red, nir, sw1, sw2 float64) [6]float64 { return [6]float64{blu, grn, red, nir, sw1, sw2} }
	grid4 = raster.Grid{Width: 4, Height: 1}
)

func observation(t *testing.T, code sensor.Code, at time.Time, cloud float64, rows ...[6]float64) scene.Observation {
	t.Helper()
	d, err := sensor.NewRegistry().Lookup(code, sensor.SR)
	require.NoError(t, err)
	data := make([][]float64, 6)
	for b := range data {
		for _, r := range rows {
			data[b] = append(data[b], r[b])
		}
	}
	img, err := raster.FromBands(raster.Grid{Width: len(rows), Height: 1}, d.Bands(sensor.RoleSix), data)
	require.NoError(t, err)
	return scene.Observation{Scene: scene.Scene{ID: at.Format(time.DateOnly), Descriptor: d, Acquired: at, CloudPercent: cloud}, Image: img}
}

func ref(t *testing.T, rows ...[6]float64) *reference.Reference {
	t.Helper()
	data := make([][]float64, 6)
	for b := range data {
		for _, r := range rows {
			data[b] = append(data[b], r[b])
		}
	}
	img, err := raster.FromBands(raster.Grid{Width: len(rows), Height: 1}, []string{"BLU", "GRN", "RED", "NIR", "SW1", "SW2"}, data)
	require.NoError(t, err)
	return &reference.Reference{Image: img}
}

func TestTimeTerm(t *testing.T) {
	s := score.Scorer{Start: july, End: end}
	d, _ := sensor.NewRegistry().Lookup(sensor.S2A, sensor.SR)

	assert.Equal(t, 1.0, s.TimeTerm(scene.Scene{Descriptor: d, Acquired: mid}))
	got := s.TimeTerm(scene.Scene{Descriptor: d, Acquired: mid.AddDate(0, 0, 12)})
	assert.InDelta(t, math.Exp(-0.5), got, 1e-12)

	// midpoint is projected onto the scene's year
	assert.Equal(t, 1.0, s.TimeTerm(scene.Scene{Descriptor: d, Acquired: mid.AddDate(-1, 0, 0)}))
}

func TestHybrid_Determinism(t *testing.T) {
	r := ref(t, six(4, 6, 3, 40, 20, 10), six(5, 6, 4, 2, 1, 0.5), six(10, 12, 14, 20, 25, 22), six(4, 6, 3, 40, 20, 10))
	o := observation(t, sensor.L8, july.AddDate(0, 0, 10), 20,
		six(5, 7, 4, 38, 19, 9), six(4, 5, 3, 2, 1, 0.4), six(11, 13, 15, 21, 26, 23), six(9, 7, 4, 38, 19, 9))
	o.Image = o.Image.UpdateMask([]bool{true, true, true, false})

	s := score.Scorer{Reference: r, Start: july, End: end}
	a, err := s.Score(o)
	require.NoError(t, err)
	b, err := s.Step()(o)
	require.NoError(t, err)

	sa, _ := a.Image.Band(score.Band)
	sb, _ := b.Image.Band(score.Band)
	for i := range sa {
		assert.Equal(t, math.Float64bits(sa[i]), math.Float64bits(sb[i]))
	}
	assert.Zero(t, sa[3])
	assert.False(t, a.Image.Valid(3))

	tm, _ := a.Image.Band(score.TimeBand)
	assert.Equal(t, s.TimeTerm(o.Scene), tm[0])
}

func TestHybrid_Overrides(t *testing.T) {
	r := ref(t, six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10))
	o := observation(t, sensor.L8, mid, 0,
		six(4, 6, 3, 40, 20, 10),   // matches the reference
		six(9, 10, 8, 40, 20, 10),  // blue above twice the reference
		six(4, 6, 3, 40, 20, 0.01), // dark band
		six(4, 6, 3, 40, 20, 10),
	)
	s := score.Scorer{Reference: r, Start: july, End: end, Water: []float64{1, 1, 1, 2}}
	scored, err := s.Score(o)
	require.NoError(t, err)
	got, _ := scored.Image.Band(score.Band)

	land := 40.0 / (4 + 1)
	assert.InDelta(t, land/(land+1)+1+1, got[0], 1e-12)
	assert.InDelta(t, -9.0+1+1, got[1], 1e-12)
	assert.InDelta(t, -10.0+1+1, got[2], 1e-12)
	// forced water class: SWIR is bright so the water hypothesis is zero
	assert.InDelta(t, 0+1+1, got[3], 1e-12)
}

func TestHybrid_NeedsReference(t *testing.T) {
	o := observation(t, sensor.L8, mid, 0, six(4, 6, 3, 40, 20, 10))
	_, err := score.Scorer{Start: july, End: end}.Score(o)
	assert.Error(t, err)
}

func TestAlternativeModes(t *testing.T) {
	rows := [][6]float64{six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10), six(4, 6, 3, 40, 20, 10)}
	o := observation(t, sensor.L8, mid, 0, rows...)
	require.Equal(t, grid4, o.Image.Grid())

	ndvi, err := score.Scorer{Mode: score.MaxNDVI, Start: july, End: end}.Score(o)
	require.NoError(t, err)
	got, _ := ndvi.Image.Band(score.Band)
	for _, v := range got {
		assert.InDelta(t, 37.0/43+2, v, 1e-12)
	}

	nbr, err := score.Scorer{Mode: score.MaxNBR, Start: july, End: end}.Score(o)
	require.NoError(t, err)
	got, _ = nbr.Image.Band(score.Band)
	for _, v := range got {
		assert.InDelta(t, 40.0/4+2, v, 1e-12)
	}

	m, err := score.ParseMode("maxNDVI")
	require.NoError(t, err)
	assert.Equal(t, score.MaxNDVI, m)
	_, err = score.ParseMode("median")
	assert.Error(t, err)
}
