package scene

import (
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Extra band names attached on request.
const (
	BandNDVI        = "NDVI"
	BandSunZenith   = "SZA"
	BandSunAzimuth  = "SAA"
	BandViewZenith  = "VZA"
	BandViewAzimuth = "VAA"
)

// Rescale converts the reflectance bands of each scene to [0, maxRef] using
// the scene's own descriptor. QA bands keep their raw bit patterns.
func Rescale(maxRef float64) Step {
	return func(o Observation) (Observation, error) {
		d := o.Scene.Descriptor
		img := o.Image
		for _, name := range d.Spectral() {
			if !img.Has(name) {
				continue
			}
			data, err := img.Map(name, func(v float64) float64 {
				return sensor.ApplyGainOffset(v, d, maxRef)
			})
			if err != nil {
				return Observation{}, err
			}
			if img, err = img.WithBand(name, data); err != nil {
				return Observation{}, err
			}
		}
		o.Image = img
		return o, nil
	}
}

// AttachNDVI adds an NDVI band computed from the rescaled NIR and RED.
func AttachNDVI() Step {
	return func(o Observation) (Observation, error) {
		nir, err := LogicalBand(o, sensor.NIR)
		if err != nil {
			return Observation{}, err
		}
		red, err := LogicalBand(o, sensor.RED)
		if err != nil {
			return Observation{}, err
		}
		img, err := o.Image.WithBand(BandNDVI, raster.NormalizedDifference(nir, red))
		if err != nil {
			return Observation{}, err
		}
		o.Image = img
		return o, nil
	}
}

// AttachAngles adds the four scene mean angles as constant bands.
func AttachAngles() Step {
	return func(o Observation) (Observation, error) {
		n := o.Image.Grid().Size()
		img := o.Image
		for _, a := range []struct {
			name  string
			value float64
		}{
			{BandSunZenith, o.Scene.Angles.SunZenith},
			{BandSunAzimuth, o.Scene.Angles.SunAzimuth},
			{BandViewZenith, o.Scene.Angles.ViewZenith},
			{BandViewAzimuth, o.Scene.Angles.ViewAzimuth},
		} {
			var err error
			if img, err = img.WithBand(a.name, constant(n, a.value)); err != nil {
				return Observation{}, err
			}
		}
		o.Image = img
		return o, nil
	}
}

// LogicalBand resolves a logical band of an observation through the scene's
// descriptor.
func LogicalBand(o Observation, b sensor.Band) ([]float64, error) {
	name, err := o.Scene.Descriptor.Band(b)
	if err != nil {
		return nil, err
	}
	return o.Image.Band(name)
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
