// Package composite reduces scored observations to a single mosaic and
// merges mosaics across years and sensor families.
package composite

import (
	"errors"
	"fmt"
	"math"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/score"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Bands carried by every mosaic next to the spectral bands.
const (
	BandScore  = score.Band
	BandDate   = "date"
	BandSensor = "ssr_code"
)

var ErrNoObservations = errors.New("no observations to composite")

// Mosaic is the per-pixel best observation of a window. Spectral bands use
// the physical names of Descriptor unless Canonical is set, in which case
// they use the logical six-band vocabulary.
type Mosaic struct {
	Descriptor sensor.Descriptor
	Canonical  bool
	Image      *raster.Image
}

// SpectralBands returns the names of the spectral bands of the mosaic.
func (m *Mosaic) SpectralBands() []string {
	if m.Canonical {
		names := make([]string, len(sensor.SixBands))
		for i, b := range sensor.SixBands {
			names[i] = string(b)
		}
		return names
	}
	return m.Descriptor.Bands(sensor.RoleOut)
}

// Band resolves a logical band of the mosaic.
func (m *Mosaic) Band(b sensor.Band) ([]float64, error) {
	if m.Canonical {
		return m.Image.Band(string(b))
	}
	name, err := m.Descriptor.Band(b)
	if err != nil {
		return nil, err
	}
	return m.Image.Band(name)
}

// QualityMosaic picks, for every pixel, the observation with the highest
// score. Exact ties go to the larger temporal term, then to the earlier
// observation in collection order. extra names additional per-observation
// bands (angles, NDVI) to carry into the mosaic.
func QualityMosaic(desc sensor.Descriptor, obs []scene.Observation, extra ...string) (*Mosaic, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}
	grid := obs[0].Image.Grid()
	n := grid.Size()

	carry := append(desc.Bands(sensor.RoleOut), extra...)
	type source struct {
		bands [][]float64
		score []float64
		time  []float64
	}
	srcs := make([]source, len(obs))
	for k, o := range obs {
		if !o.Image.Grid().SameShape(grid) {
			return nil, fmt.Errorf("%w: observation %s", raster.ErrGridMismatch, o.Scene.ID)
		}
		var s source
		var err error
		if s.score, err = o.Image.Band(score.Band); err != nil {
			return nil, fmt.Errorf("observation %s is not scored: %w", o.Scene.ID, err)
		}
		if s.time, err = o.Image.Band(score.TimeBand); err != nil {
			return nil, fmt.Errorf("observation %s is not scored: %w", o.Scene.ID, err)
		}
		for _, name := range carry {
			b, err := o.Image.Band(name)
			if err != nil {
				return nil, fmt.Errorf("observation %s: %w", o.Scene.ID, err)
			}
			s.bands = append(s.bands, b)
		}
		srcs[k] = s
	}

	data := make([][]float64, len(carry)+3)
	for b := range data {
		data[b] = make([]float64, n)
	}
	sc, date, code := data[len(carry)], data[len(carry)+1], data[len(carry)+2]
	valid := make([]bool, n)

	for i := 0; i < n; i++ {
		best := -1
		for k, o := range obs {
			if !o.Image.Valid(i) {
				continue
			}
			if best < 0 || better(srcs[k].score[i], srcs[k].time[i], srcs[best].score[i], srcs[best].time[i]) {
				best = k
			}
		}
		if best < 0 {
			continue
		}
		valid[i] = true
		for b := range carry {
			data[b][i] = srcs[best].bands[b][i]
		}
		sc[i] = srcs[best].score[i]
		date[i] = float64(obs[best].Scene.Day())
		code[i] = float64(obs[best].Scene.Descriptor.Code())
	}

	names := append(append([]string{}, carry...), BandScore, BandDate, BandSensor)
	img, err := raster.FromBands(grid, names, data)
	if err != nil {
		return nil, err
	}
	return &Mosaic{Descriptor: desc, Image: img.UpdateMask(valid)}, nil
}

// better orders candidates by score, then by temporal term. NaN never wins.
func better(score, time, bestScore, bestTime float64) bool {
	if math.IsNaN(score) {
		return false
	}
	if math.IsNaN(bestScore) || score > bestScore {
		return true
	}
	return score == bestScore && time > bestTime
}
