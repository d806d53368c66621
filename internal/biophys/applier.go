// Package biophys applies two-level decision-tree ensembles to a mosaic to
// estimate LAI, fAPAR, fCOVER and Albedo per land-cover biome.
package biophys

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

var ErrMissingInputBand = errors.New("missing input band")

const (
	// InputScale is applied after the bundle scaling, before rounding.
	InputScale = 10000
)

// QC bits.
const (
	QCDomainOutOfRange = 1 << 0
	QCNoChildModel     = 1 << 1
)

// BiomeCount is one row of the child routing histogram.
type BiomeCount struct {
	Product string `csv:"product"`
	Biome   int    `csv:"biome"`
	Child   int    `csv:"child"`
	Pixels  int    `csv:"pixels"`
	Modeled bool   `csv:"modeled"`
}

// Result holds the per-pixel layers of one product.
type Result struct {
	Product     Product
	Estimate    []float64
	Uncertainty []float64
	QC          []float64
	Valid       []bool
	Histogram   []BiomeCount
}

// Encoded clips the estimate at zero, scales it for the product and packs
// it into 0..255. Water pixels and masked pixels are 0.
func (r *Result) Encoded(partition []float64) []float64 {
	out := make([]float64, len(r.Estimate))
	scale := r.Product.Scale()
	for i, v := range r.Estimate {
		if !r.Valid[i] || int(partition[i]) == WaterClass {
			continue
		}
		out[i] = pack(v * scale)
	}
	return out
}

// EncodedUncertainty packs the uncertainty layer like the estimate.
func (r *Result) EncodedUncertainty(partition []float64) []float64 {
	out := make([]float64, len(r.Uncertainty))
	scale := r.Product.Scale()
	for i, v := range r.Uncertainty {
		if !r.Valid[i] || int(partition[i]) == WaterClass {
			continue
		}
		out[i] = pack(v * scale)
	}
	return out
}

func pack(v float64) float64 {
	return math.Min(math.Max(math.Round(v), 0), 255)
}

// Applier runs bundles over mosaics.
type Applier struct {
	Logger zerolog.Logger
	// Progress receives a per-biome progress bar; nil discards it.
	Progress io.Writer
}

// Apply estimates bundle.Product over every biome of the partition that has
// a parent model. inputs must carry every regressor named by those parents.
func (a *Applier) Apply(inputs *raster.Image, partition []float64, bundle *Bundle) (*Result, error) {
	n := inputs.Grid().Size()
	if len(partition) != n {
		return nil, fmt.Errorf("%w: partition has %d pixels, inputs %d", raster.ErrGridMismatch, len(partition), n)
	}

	r := &Result{
		Product:     bundle.Product,
		Estimate:    make([]float64, n),
		Uncertainty: make([]float64, n),
		QC:          make([]float64, n),
		Valid:       make([]bool, n),
	}

	biomes := make([]int, 0, len(bundle.Parents))
	for b := range bundle.Parents {
		biomes = append(biomes, b)
	}
	sort.Ints(biomes)

	w := a.Progress
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(len(biomes),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(fmt.Sprintf("Applying %s", bundle.Product)),
	)
	defer bar.Finish()

	for _, biome := range biomes {
		if err := a.applyBiome(r, inputs, partition, bundle, biome); err != nil {
			return nil, fmt.Errorf("biome %d: %w", biome, err)
		}
		bar.Add(1)
	}
	return r, nil
}

func (a *Applier) applyBiome(r *Result, inputs *raster.Image, partition []float64, bundle *Bundle, biome int) error {
	parent := bundle.Parents[biome]

	// 1. restrict to the biome
	var pixels []int
	for i, c := range partition {
		if int(c) == biome && inputs.Valid(i) {
			pixels = append(pixels, i)
		}
	}
	if len(pixels) == 0 {
		return nil
	}

	// 2. scale the regressors and rename them to the generic names
	src := make([][]float64, len(parent.Regressors))
	for k, name := range parent.Regressors {
		band, err := inputs.Band(name)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingInputBand, name)
		}
		src[k] = band
	}
	index := make(map[string]int, len(parent.GENames))
	for k, name := range parent.GENames {
		index[name] = k
	}
	scaled := make([]float64, len(parent.Regressors))
	get := func(name string) (float64, bool) {
		k, ok := index[name]
		if !ok {
			return 0, false
		}
		return scaled[k], true
	}
	load := func(i int) {
		for k := range src {
			x := src[k][i]
			scaled[k] = math.Round((x*parent.Scaling[k] + parent.Offset[k]) * InputScale)
			d := x*parent.DomainScaling[k] + parent.DomainOffset[k]
			if d < 0 || d > 1 {
				r.QC[i] = float64(int(r.QC[i]) | QCDomainOutOfRange)
			}
		}
	}

	// 3. parent output rounded to three decimals names the child
	childOf := make(map[int]int, len(pixels))
	codes := make([]float64, len(pixels))
	valid := make([]bool, len(pixels))
	for j, i := range pixels {
		load(i)
		v, err := parent.Tree.Predict(get)
		if err != nil {
			return err
		}
		code := int(math.Round(raster.Round(v, 3) * 1000))
		childOf[i] = code
		codes[j] = float64(code)
		valid[j] = true
	}

	// 4. histogram; children absent from the bundle never reach step 5
	hist := raster.Histogram(codes, valid)
	keys := make([]int, 0, len(hist))
	for c := range hist {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	modeled := make(map[int]bool, len(keys))
	for _, c := range keys {
		_, ok := bundle.Child(biome, c)
		modeled[c] = ok && hist[c] > 0
		r.Histogram = append(r.Histogram, BiomeCount{
			Product: string(bundle.Product), Biome: biome, Child: c, Pixels: hist[c], Modeled: modeled[c],
		})
		if !ok {
			a.Logger.Warn().Str("product", string(bundle.Product)).Int("biome", biome).Int("child", c).
				Int("pixels", hist[c]).Msg("no child model, pixels left at zero")
		}
	}

	// 5-7. child ensembles over disjoint supports, re-masked to the biome
	for _, i := range pixels {
		r.Valid[i] = true
		c := childOf[i]
		if !modeled[c] {
			r.QC[i] = float64(int(r.QC[i]) | QCNoChildModel)
			continue
		}
		e, _ := bundle.Child(biome, c)
		load(i)
		mean, std, err := e.Predict(get)
		if err != nil {
			return err
		}
		r.Estimate[i] = math.Max(r.Estimate[i], mean)
		r.Uncertainty[i] = std
	}
	return nil
}
