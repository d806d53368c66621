package mask

import (
	"fmt"
	"strings"

	"github.com/forest-guardian/leaf-mosaic/internal/scene"
)

// Index selects a non-vegetation index.
type Index string

const (
	LXI  Index = "lxi"  // bare soil: ((SW1+RED)-(NIR+BLU)) / ((SW1+RED)+(NIR+BLU))
	NBI  Index = "nbi"  // new built-up: RED·SW1/NIR
	NDBI Index = "ndbi" // (SW1-NIR) / (SW1+NIR)
	BUI  Index = "bui"  // ndbi - ndvi
)

func ParseIndex(s string) (Index, error) {
	switch i := Index(strings.ToLower(s)); i {
	case LXI, NBI, NDBI, BUI:
		return i, nil
	}
	return "", fmt.Errorf("unknown non-vegetation index %q", s)
}

// NonVegetationIndex computes the index clipped to >= 0.
func NonVegetationIndex(o scene.Observation, idx Index) ([]float64, error) {
	b, err := sixBands(o)
	if err != nil {
		return nil, err
	}
	out := make([]float64, size(o))
	for i := range out {
		var v float64
		switch idx {
		case LXI:
			num := (b.sw1[i] + b.red[i]) - (b.nir[i] + b.blu[i])
			den := (b.sw1[i] + b.red[i]) + (b.nir[i] + b.blu[i])
			v = ratio(num, den)
		case NBI:
			v = ratio(b.red[i]*b.sw1[i], b.nir[i])
		case NDBI:
			v = ratio(b.sw1[i]-b.nir[i], b.sw1[i]+b.nir[i])
		case BUI:
			v = ratio(b.sw1[i]-b.nir[i], b.sw1[i]+b.nir[i]) - ratio(b.nir[i]-b.red[i], b.nir[i]+b.red[i])
		default:
			return nil, fmt.Errorf("unknown non-vegetation index %q", idx)
		}
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// NonVegetationMask marks pixels with a positive index.
func NonVegetationMask(o scene.Observation, idx Index) (PixelMask, error) {
	v, err := NonVegetationIndex(o, idx)
	if err != nil {
		return PixelMask{}, err
	}
	m := newMask(NonVegetation, len(v))
	for i, x := range v {
		m.Bits[i] = x > 0
	}
	return m, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
