// Package raster is the in-process raster engine: multi-band float64 grids
// with a per-pixel validity mask. Band slices are never modified after an
// image is built; every derivation allocates.
package raster

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrMissingBand  = errors.New("missing band")
	ErrGridMismatch = errors.New("grid mismatch")
)

// Grid is the pixel layout shared by every image of a window.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	EPSG         int
}

func (g Grid) Size() int { return g.Width * g.Height }

// SameShape reports whether two grids can be combined pixel for pixel.
func (g Grid) SameShape(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Image is a set of named bands on one grid.
type Image struct {
	grid  Grid
	names []string
	bands map[string][]float64
	valid []bool
}

// New returns an empty image where every pixel is valid.
func New(grid Grid) *Image {
	valid := make([]bool, grid.Size())
	for i := range valid {
		valid[i] = true
	}
	return &Image{grid: grid, bands: make(map[string][]float64), valid: valid}
}

// FromBands builds an image from band slices; every slice must have
// grid.Size() elements.
func FromBands(grid Grid, names []string, data [][]float64) (*Image, error) {
	if len(names) != len(data) {
		return nil, fmt.Errorf("%d names for %d bands", len(names), len(data))
	}
	img := New(grid)
	for i, name := range names {
		if len(data[i]) != grid.Size() {
			return nil, fmt.Errorf("%w: band %s has %d pixels, grid has %d", ErrGridMismatch, name, len(data[i]), grid.Size())
		}
		img.names = append(img.names, name)
		img.bands[name] = data[i]
	}
	return img, nil
}

func (im *Image) Grid() Grid      { return im.grid }
func (im *Image) Names() []string { return slices.Clone(im.names) }
func (im *Image) Has(name string) bool {
	_, ok := im.bands[name]
	return ok
}

// Band returns the data of one band. Callers must not modify it.
func (im *Image) Band(name string) ([]float64, error) {
	b, ok := im.bands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingBand, name)
	}
	return b, nil
}

// Valid reports whether pixel i is unmasked.
func (im *Image) Valid(i int) bool { return im.valid[i] }

// Mask returns the validity mask. Callers must not modify it.
func (im *Image) Mask() []bool { return im.valid }

// CountValid returns the number of unmasked pixels.
func (im *Image) CountValid() int {
	n := 0
	for _, v := range im.valid {
		if v {
			n++
		}
	}
	return n
}

func (im *Image) shallow() *Image {
	bands := make(map[string][]float64, len(im.bands))
	for k, v := range im.bands {
		bands[k] = v
	}
	return &Image{grid: im.grid, names: slices.Clone(im.names), bands: bands, valid: im.valid}
}

// WithBand returns a copy of the image with a band added or replaced.
func (im *Image) WithBand(name string, data []float64) (*Image, error) {
	if len(data) != im.grid.Size() {
		return nil, fmt.Errorf("%w: band %s has %d pixels, grid has %d", ErrGridMismatch, name, len(data), im.grid.Size())
	}
	out := im.shallow()
	if _, ok := out.bands[name]; !ok {
		out.names = append(out.names, name)
	}
	out.bands[name] = data
	return out, nil
}

// Select returns a copy restricted to the named bands, in that order.
func (im *Image) Select(names ...string) (*Image, error) {
	out := &Image{grid: im.grid, bands: make(map[string][]float64, len(names)), valid: im.valid}
	for _, name := range names {
		b, err := im.Band(name)
		if err != nil {
			return nil, err
		}
		out.names = append(out.names, name)
		out.bands[name] = b
	}
	return out, nil
}

// Rename returns a copy with bands renamed; bands absent from the mapping
// keep their name.
func (im *Image) Rename(mapping map[string]string) *Image {
	out := &Image{grid: im.grid, bands: make(map[string][]float64, len(im.bands)), valid: im.valid}
	for _, name := range im.names {
		to := name
		if n, ok := mapping[name]; ok {
			to = n
		}
		out.names = append(out.names, to)
		out.bands[to] = im.bands[name]
	}
	return out
}

// UpdateMask returns a copy whose mask is the intersection of the current
// mask and keep. A nil keep leaves the mask unchanged.
func (im *Image) UpdateMask(keep []bool) *Image {
	if keep == nil {
		return im
	}
	out := im.shallow()
	out.valid = make([]bool, len(im.valid))
	for i := range im.valid {
		out.valid[i] = im.valid[i] && keep[i]
	}
	return out
}

// Unmask returns a copy where masked pixels hold fill and every pixel is
// valid.
func (im *Image) Unmask(fill float64) *Image {
	out := New(im.grid)
	for _, name := range im.names {
		src := im.bands[name]
		dst := make([]float64, len(src))
		for i := range src {
			if im.valid[i] {
				dst[i] = src[i]
			} else {
				dst[i] = fill
			}
		}
		out.names = append(out.names, name)
		out.bands[name] = dst
	}
	return out
}

// Fill returns a copy where pixels masked here take the value of other,
// band by band. other must carry every band of im.
func (im *Image) Fill(other *Image) (*Image, error) {
	if !im.grid.SameShape(other.grid) {
		return nil, ErrGridMismatch
	}
	out := &Image{grid: im.grid, bands: make(map[string][]float64, len(im.bands)), valid: make([]bool, len(im.valid))}
	for _, name := range im.names {
		src := im.bands[name]
		alt, err := other.Band(name)
		if err != nil {
			return nil, err
		}
		dst := make([]float64, len(src))
		for i := range src {
			switch {
			case im.valid[i]:
				dst[i] = src[i]
			case other.valid[i]:
				dst[i] = alt[i]
			}
		}
		out.names = append(out.names, name)
		out.bands[name] = dst
	}
	for i := range out.valid {
		out.valid[i] = im.valid[i] || other.valid[i]
	}
	return out, nil
}

// Map applies fn to every pixel of band src and returns the result as a new
// slice. Masked pixels are passed through unchanged.
func (im *Image) Map(src string, fn func(v float64) float64) ([]float64, error) {
	b, err := im.Band(src)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(b))
	for i, v := range b {
		if im.valid[i] {
			out[i] = fn(v)
		} else {
			out[i] = v
		}
	}
	return out, nil
}

// Pixel returns every band value at index i, keyed by band name.
func (im *Image) Pixel(i int) map[string]float64 {
	px := make(map[string]float64, len(im.names))
	for _, name := range im.names {
		px[name] = im.bands[name][i]
	}
	return px
}
