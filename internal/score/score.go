// Package score attaches a per-pixel quality score to masked, rescaled
// observations. Higher is better; negative scores are only chosen when no
// alternative exists.
package score

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/reference"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Bands attached to every scored observation.
const (
	Band     = "score"
	TimeBand = "score_time"
)

type Mode int

const (
	Hybrid Mode = iota
	MaxNBR
	MaxNDVI
)

func (m Mode) String() string {
	switch m {
	case MaxNBR:
		return "MaxNBR"
	case MaxNDVI:
		return "MaxNDVI"
	}
	return "Hybrid"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "hybrid":
		return Hybrid, nil
	case "maxnbr":
		return MaxNBR, nil
	case "maxndvi":
		return MaxNDVI, nil
	}
	return 0, fmt.Errorf("unknown score mode %q", s)
}

// Water classes of the optional water map.
const (
	WaterDynamic = 0
	WaterLand    = 1
	WaterAlways  = 2
)

const (
	smoothRadius = 2
	darkSWIR     = 3     // max(SW1,SW2) below this reads as water
	darkBand     = 0.011 // any six-band value below this is unusable
	darkPenalty  = -10
)

// Scorer scores observations of one window.
type Scorer struct {
	Mode Mode
	// Reference is required in Hybrid mode.
	Reference *reference.Reference
	// Water is the per-pixel water class; nil means every pixel is dynamic.
	Water []float64
	Start time.Time
	End   time.Time
}

// Step adapts Score to a collection step.
func (s Scorer) Step() scene.Step {
	return s.Score
}

// Score returns the observation with the score and temporal term attached.
// Masked pixels keep a zero score and stay masked.
func (s Scorer) Score(o scene.Observation) (scene.Observation, error) {
	if s.Mode == Hybrid && s.Reference == nil {
		return scene.Observation{}, fmt.Errorf("hybrid score needs a reference")
	}
	b, err := loadBands(o)
	if err != nil {
		return scene.Observation{}, err
	}

	n := o.Image.Grid().Size()
	cov := 1 - o.Scene.CloudPercent/100
	tm := s.TimeTerm(o.Scene)

	var rb, rn []float64
	if s.Mode == Hybrid {
		rb, rn = s.Reference.Blue(), s.Reference.NIR()
		if len(rb) != n || len(rn) != n {
			return scene.Observation{}, raster.ErrGridMismatch
		}
	}
	if s.Water != nil && len(s.Water) != n {
		return scene.Observation{}, raster.ErrGridMismatch
	}

	total := make([]float64, n)
	for i := 0; i < n; i++ {
		if !o.Image.Valid(i) {
			continue
		}
		var spec float64
		switch s.Mode {
		case Hybrid:
			w := WaterDynamic
			if s.Water != nil {
				w = int(s.Water[i])
			}
			spec = hybrid(b.at(i), rb[i], rn[i], w)
		case MaxNBR:
			p := b.at(i)
			spec = p.nir / math.Max(p.blu, math.Max(0.5*p.red+0.8, 0.25*p.sw2))
		case MaxNDVI:
			p := b.at(i)
			spec = ratio(p.nir-p.red, p.nir+p.red)
		}
		total[i] = spec + cov + tm
	}
	if s.Mode != Hybrid {
		total = raster.DiskMean(o.Image.Grid(), total, o.Image.Mask(), smoothRadius)
	}

	img, err := o.Image.WithBand(Band, total)
	if err != nil {
		return scene.Observation{}, err
	}
	if img, err = img.WithBand(TimeBand, constant(n, tm)); err != nil {
		return scene.Observation{}, err
	}
	o.Image = img
	return o, nil
}

// TimeTerm is exp(-0.5·(Δ/σ)²) where Δ is the distance in days between the
// acquisition and the window midpoint moved onto the acquisition's year.
func (s Scorer) TimeTerm(sc scene.Scene) float64 {
	mid := s.Start.Add(s.End.Sub(s.Start) / 2)
	acq := sc.Acquired
	projected := time.Date(acq.Year(), mid.Month(), mid.Day(), mid.Hour(), mid.Minute(), mid.Second(), 0, time.UTC)
	delta := acq.Sub(projected).Hours() / 24
	sigma := sc.Descriptor.TimeSigma()
	if sigma <= 0 {
		sigma = 16
	}
	return 1 / math.Exp(0.5*math.Pow(delta/sigma, 2))
}

type px struct {
	blu, grn, red, nir, sw1, sw2 float64
}

type stack struct {
	blu, grn, red, nir, sw1, sw2 []float64
}

func (s stack) at(i int) px {
	return px{s.blu[i], s.grn[i], s.red[i], s.nir[i], s.sw1[i], s.sw2[i]}
}

func loadBands(o scene.Observation) (stack, error) {
	var s stack
	for _, p := range []struct {
		band sensor.Band
		dst  *[]float64
	}{
		{sensor.BLU, &s.blu}, {sensor.GRN, &s.grn}, {sensor.RED, &s.red},
		{sensor.NIR, &s.nir}, {sensor.SW1, &s.sw1}, {sensor.SW2, &s.sw2},
	} {
		data, err := scene.LogicalBand(o, p.band)
		if err != nil {
			return stack{}, err
		}
		*p.dst = data
	}
	return s, nil
}

// hybrid is the spectral term of the default mode against reference blue rb
// and NIR rn.
func hybrid(p px, rb, rn float64, w int) float64 {
	swMax := math.Max(p.sw1, p.sw2)

	var land float64
	if !(p.blu > p.nir || swMax < darkSWIR) {
		var below float64
		if p.nir < rn && p.blu < rb {
			below = math.Abs(rn - p.nir)
		}
		land = p.nir / (p.blu + math.Exp(math.Abs(rb-p.blu)) + below)
	}
	var water float64
	if swMax < darkSWIR {
		water = rb / math.Max(p.blu, 0.01)
	}
	land = land / (land + 1)
	water = water / (water + 1)

	spec := land
	if w == WaterAlways ||
		(w == WaterDynamic && math.Max(p.blu, p.grn) > math.Max(swMax, p.nir)) ||
		swMax < darkSWIR || rn < darkSWIR {
		spec = water
	}

	if p.blu > 2*rb {
		spec = -p.blu
	}
	if math.Min(p.blu, math.Min(p.grn, math.Min(p.red, math.Min(p.nir, math.Min(p.sw1, p.sw2))))) < darkBand {
		spec = darkPenalty
	}
	return spec
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
