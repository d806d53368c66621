// Package reference builds the per-window blue/NIR plausibility target the
// scorer compares every observation against. References are never
// exported.
package reference

import (
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

const (
	// MultiYearDays is the window length from which the monthly-centered
	// median is skipped.
	MultiYearDays = 1000
	// CenterDays is the half width of the monthly-centered subset.
	CenterDays = 15

	vegetationNDVI = 0.3
	blueFromSWIR   = 0.25
)

var ErrNoObservations = errors.New("no observations for reference")

// Reference holds the six canonical bands under their logical names.
type Reference struct {
	Image *raster.Image
}

func (r *Reference) band(b sensor.Band) []float64 {
	data, _ := r.Image.Band(string(b))
	return data
}

func (r *Reference) Blue() []float64 { return r.band(sensor.BLU) }
func (r *Reference) NIR() []float64  { return r.band(sensor.NIR) }

// Build computes the reference of masked, rescaled observations over
// [start, end). The whole-period median M gets the vegetation blue
// correction; short windows return a median of the scenes within CenterDays
// of the window midpoint instead, gap-filled from M.
func Build(obs []scene.Observation, start, end time.Time) (*Reference, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}
	canon := make([]*raster.Image, 0, len(obs))
	for _, o := range obs {
		img, err := canonical(o)
		if err != nil {
			return nil, err
		}
		canon = append(canon, img)
	}

	names := logicalNames()
	m, err := raster.Median(canon, names)
	if err != nil {
		return nil, fmt.Errorf("window median: %w", err)
	}
	if m, err = vegetationBlue(m); err != nil {
		return nil, err
	}
	if end.Sub(start) >= MultiYearDays*24*time.Hour {
		return &Reference{Image: m}, nil
	}

	mid := start.Add(end.Sub(start) / 2)
	var centered []*raster.Image
	for i, o := range obs {
		d := o.Scene.Acquired.Sub(mid)
		if d < 0 {
			d = -d
		}
		if d <= CenterDays*24*time.Hour {
			centered = append(centered, canon[i])
		}
	}
	if len(centered) == 0 {
		return &Reference{Image: m}, nil
	}

	mc, err := raster.Median(centered, names)
	if err != nil {
		return nil, fmt.Errorf("centered median: %w", err)
	}
	if mc, err = mc.Fill(m); err != nil {
		return nil, err
	}
	if mc, err = vegetationBlue(mc); err != nil {
		return nil, err
	}
	return &Reference{Image: mc}, nil
}

// canonical selects the six bands of an observation under logical names.
func canonical(o scene.Observation) (*raster.Image, error) {
	d := o.Scene.Descriptor
	rename := make(map[string]string, len(sensor.SixBands))
	for _, b := range sensor.SixBands {
		name, err := d.Band(b)
		if err != nil {
			return nil, err
		}
		rename[name] = string(b)
	}
	img, err := o.Image.Select(d.Bands(sensor.RoleSix)...)
	if err != nil {
		return nil, err
	}
	return img.Rename(rename), nil
}

func logicalNames() []string {
	names := make([]string, len(sensor.SixBands))
	for i, b := range sensor.SixBands {
		names[i] = string(b)
	}
	return names
}

// vegetationBlue sets BLU to 0.25·SW2 wherever NDVI > 0.3. On the centered
// median this also covers the 0.3·SW2 ceiling, which can only fire where
// NDVI > 0.3.
func vegetationBlue(img *raster.Image) (*raster.Image, error) {
	return rewriteBlue(img, func(blu, sw2, ndvi float64) (float64, bool) {
		return blueFromSWIR * sw2, ndvi > vegetationNDVI
	})
}

func rewriteBlue(img *raster.Image, rule func(blu, sw2, ndvi float64) (float64, bool)) (*raster.Image, error) {
	blu, err := img.Band(string(sensor.BLU))
	if err != nil {
		return nil, err
	}
	sw2, err := img.Band(string(sensor.SW2))
	if err != nil {
		return nil, err
	}
	nir, err := img.Band(string(sensor.NIR))
	if err != nil {
		return nil, err
	}
	red, err := img.Band(string(sensor.RED))
	if err != nil {
		return nil, err
	}
	ndvi := raster.NormalizedDifference(nir, red)

	out := make([]float64, len(blu))
	for i := range blu {
		out[i] = blu[i]
		if v, ok := rule(blu[i], sw2[i], ndvi[i]); ok {
			out[i] = v
		}
	}
	return img.WithBand(string(sensor.BLU), out)
}
