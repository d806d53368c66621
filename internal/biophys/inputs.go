package biophys

import (
	"math"

	"github.com/forest-guardian/leaf-mosaic/internal/composite"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Geometry regressors derived from the mosaic angle bands.
const (
	CosSZA = "cosSZA"
	CosVZA = "cosVZA"
	CosRAA = "cosRAA"
)

// Inputs converts a mosaic to the regressor image trees are applied to:
// spectral bands under their logical names as reflectance in [0, 1], plus
// cosines of the sun/view geometry when the mosaic carries angle bands.
func Inputs(m *composite.Mosaic, maxRef float64) (*raster.Image, error) {
	img := raster.New(m.Image.Grid()).UpdateMask(m.Image.Mask())

	var logicals []sensor.Band
	if m.Canonical {
		logicals = sensor.SixBands
	} else {
		logicals = m.Descriptor.Logicals(sensor.RoleOut)
	}
	for _, b := range logicals {
		data, err := m.Band(b)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = v / maxRef
		}
		if img, err = img.WithBand(string(b), out); err != nil {
			return nil, err
		}
	}

	if !m.Image.Has(scene.BandSunZenith) || !m.Image.Has(scene.BandViewZenith) {
		return img, nil
	}
	sza, _ := m.Image.Band(scene.BandSunZenith)
	vza, _ := m.Image.Band(scene.BandViewZenith)
	saa, _ := m.Image.Band(scene.BandSunAzimuth)
	vaa, _ := m.Image.Band(scene.BandViewAzimuth)

	cos := func(f func(i int) float64) []float64 {
		out := make([]float64, len(sza))
		for i := range out {
			out[i] = math.Cos(f(i) * math.Pi / 180)
		}
		return out
	}
	var err error
	for _, g := range []struct {
		name string
		data []float64
	}{
		{CosSZA, cos(func(i int) float64 { return sza[i] })},
		{CosVZA, cos(func(i int) float64 { return vza[i] })},
		{CosRAA, cos(func(i int) float64 {
			if saa == nil || vaa == nil {
				return 0
			}
			return saa[i] - vaa[i]
		})},
	} {
		if img, err = img.WithBand(g.name, g.data); err != nil {
			return nil, err
		}
	}
	return img, nil
}
