// Package mask builds per-pixel boolean masks from rescaled scene images.
// A set bit always means the named condition holds; Keepers is the only
// helper returning pixels to retain.
package mask

import (
	"fmt"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

type Kind int

const (
	// Clear marks cloud, cirrus and shadow, the pixels that are not clear
	// sky.
	Clear Kind = iota
	Water
	Snow
	Saturation
	Value
	Vegetation
	NonVegetation
	Land
	Invalid
)

var kindNames = [...]string{"clear", "water", "snow", "saturation", "value", "vegetation", "nonvegetation", "land", "invalid"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// PixelMask is a single-band 0/1 raster of one kind.
type PixelMask struct {
	Kind Kind
	Bits []bool
}

func newMask(kind Kind, n int) PixelMask {
	return PixelMask{Kind: kind, Bits: make([]bool, n)}
}

// Count returns the number of set pixels.
func (m PixelMask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Union combines masks of equal size under a new kind.
func Union(kind Kind, masks ...PixelMask) PixelMask {
	if len(masks) == 0 {
		return PixelMask{Kind: kind}
	}
	out := newMask(kind, len(masks[0].Bits))
	for _, m := range masks {
		for i, b := range m.Bits {
			out.Bits[i] = out.Bits[i] || b
		}
	}
	return out
}

// Not returns the complement of the mask bits.
func (m PixelMask) Not() []bool {
	out := make([]bool, len(m.Bits))
	for i, b := range m.Bits {
		out[i] = !b
	}
	return out
}

// bands resolves the six canonical bands of an observation.
type bands struct {
	blu, grn, red, nir, sw1, sw2 []float64
}

func sixBands(o scene.Observation) (bands, error) {
	var b bands
	for _, p := range []struct {
		band sensor.Band
		dst  *[]float64
	}{
		{sensor.BLU, &b.blu}, {sensor.GRN, &b.grn}, {sensor.RED, &b.red},
		{sensor.NIR, &b.nir}, {sensor.SW1, &b.sw1}, {sensor.SW2, &b.sw2},
	} {
		data, err := scene.LogicalBand(o, p.band)
		if err != nil {
			return bands{}, err
		}
		*p.dst = data
	}
	return b, nil
}

// qaBand returns a vendor band as integers, or nil if the descriptor does
// not provide it.
func qaBand(o scene.Observation, b sensor.Band) ([]uint32, error) {
	if !o.Scene.Descriptor.Has(b) {
		return nil, nil
	}
	data, err := scene.LogicalBand(o, b)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(data))
	for i, v := range data {
		if v > 0 {
			out[i] = uint32(v)
		}
	}
	return out, nil
}

func size(o scene.Observation) int {
	return o.Image.Grid().Size()
}

// Apply returns a collection step that drops every invalid pixel of a
// rescaled observation.
func Apply(maxRef float64) scene.Step {
	return func(o scene.Observation) (scene.Observation, error) {
		inv, err := InvalidMask(o, maxRef)
		if err != nil {
			return scene.Observation{}, err
		}
		o.Image = o.Image.UpdateMask(inv.Not())
		return o, nil
	}
}

// Keepers is the complement of InvalidMask, the pixels a scorer may use.
func Keepers(o scene.Observation, maxRef float64) ([]bool, error) {
	inv, err := InvalidMask(o, maxRef)
	if err != nil {
		return nil, err
	}
	return inv.Not(), nil
}

// InvalidMask is clear ∪ saturation ∪ value ∪ pixels the reader already
// flagged as no-data.
func InvalidMask(o scene.Observation, maxRef float64) (PixelMask, error) {
	cloud, err := ClearMask(o)
	if err != nil {
		return PixelMask{}, err
	}
	sat, err := SaturationMask(o)
	if err != nil {
		return PixelMask{}, err
	}
	val, err := ValueMask(o, maxRef)
	if err != nil {
		return PixelMask{}, err
	}
	nodata := newMask(Invalid, size(o))
	for i := range nodata.Bits {
		nodata.Bits[i] = !o.Image.Valid(i)
	}
	return Union(Invalid, cloud, sat, val, nodata), nil
}

// ValueMask marks pixels where any output band falls outside
// [-0.005·maxRef, 1.05·maxRef].
func ValueMask(o scene.Observation, maxRef float64) (PixelMask, error) {
	m := newMask(Value, size(o))
	lo, hi := -0.005*maxRef, 1.05*maxRef
	for _, name := range o.Scene.Descriptor.Bands(sensor.RoleOut) {
		data, err := o.Image.Band(name)
		if err != nil {
			return PixelMask{}, err
		}
		for i, v := range data {
			if v < lo || v > hi {
				m.Bits[i] = true
			}
		}
	}
	return m, nil
}

// VegetationMask marks NDVI > 0.3 where green dominates blue and red.
func VegetationMask(o scene.Observation) (PixelMask, error) {
	b, err := sixBands(o)
	if err != nil {
		return PixelMask{}, err
	}
	m := newMask(Vegetation, size(o))
	ndvi := raster.NormalizedDifference(b.nir, b.red)
	for i := range m.Bits {
		m.Bits[i] = ndvi[i] > 0.3 && b.grn[i] > b.blu[i] && b.grn[i] > b.red[i]
	}
	return m, nil
}

// LandMask marks partition classes other than water and no-data (0).
func LandMask(partition []float64, waterClass int) PixelMask {
	m := newMask(Land, len(partition))
	for i, v := range partition {
		c := int(v)
		m.Bits[i] = c != 0 && c != waterClass
	}
	return m
}
