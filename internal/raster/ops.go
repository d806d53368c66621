package raster

import (
	"fmt"
	"math"
	"sort"
)

// NormalizedDifference returns (a-b)/(a+b), zero where the denominator is.
func NormalizedDifference(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		den := a[i] + b[i]
		if den != 0 {
			out[i] = (a[i] - b[i]) / den
		}
	}
	return out
}

// Median reduces a stack of images band by band, considering only valid
// pixels. A pixel of the result is valid when at least one input is.
func Median(images []*Image, bands []string) (*Image, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("median of empty stack")
	}
	grid := images[0].Grid()
	for _, im := range images[1:] {
		if !im.Grid().SameShape(grid) {
			return nil, ErrGridMismatch
		}
	}

	data := make([][]float64, len(bands))
	for b := range bands {
		data[b] = make([]float64, grid.Size())
	}
	srcs := make([][][]float64, len(bands))
	for b, name := range bands {
		srcs[b] = make([][]float64, len(images))
		for k, im := range images {
			band, err := im.Band(name)
			if err != nil {
				return nil, err
			}
			srcs[b][k] = band
		}
	}

	valid := make([]bool, grid.Size())
	buf := make([]float64, 0, len(images))
	for i := 0; i < grid.Size(); i++ {
		for b := range bands {
			buf = buf[:0]
			for k, im := range images {
				if im.valid[i] {
					buf = append(buf, srcs[b][k][i])
				}
			}
			if len(buf) == 0 {
				continue
			}
			valid[i] = true
			data[b][i] = median(buf)
		}
	}

	out, err := FromBands(grid, bands, data)
	if err != nil {
		return nil, err
	}
	out.valid = valid
	return out, nil
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// DiskMean averages the valid neighbours of every pixel within radius
// pixels. Masked pixels stay masked and keep their value.
func DiskMean(grid Grid, data []float64, valid []bool, radius int) []float64 {
	out := make([]float64, len(data))
	r2 := radius * radius
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			i := y*grid.Width + x
			if !valid[i] {
				out[i] = data[i]
				continue
			}
			var sum float64
			var n int
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= grid.Height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= grid.Width || dx*dx+dy*dy > r2 {
						continue
					}
					j := yy*grid.Width + xx
					if valid[j] {
						sum += data[j]
						n++
					}
				}
			}
			out[i] = sum / float64(n)
		}
	}
	return out
}

// Histogram counts valid pixels per integer value.
func Histogram(data []float64, valid []bool) map[int]int {
	hist := make(map[int]int)
	for i, v := range data {
		if valid[i] && !math.IsNaN(v) {
			hist[int(v)]++
		}
	}
	return hist
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
