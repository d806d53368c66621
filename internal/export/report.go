package export

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/leaf-mosaic/internal/biophys"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

// WriteHistogram writes the biome/child routing counts of a product run.
func WriteHistogram(w io.Writer, rows []biophys.BiomeCount) error {
	return gocsv.Marshal(&rows, w)
}

// Quicklook renders red, green and blue reflectance (0..maxRef) to a PNG,
// stretched linearly to stretch·maxRef. Masked pixels are transparent.
func Quicklook(path string, grid raster.Grid, red, green, blue []float64, valid []bool, maxRef, stretch float64) error {
	if len(red) != grid.Size() || len(green) != grid.Size() || len(blue) != grid.Size() {
		return fmt.Errorf("%w: quicklook bands", raster.ErrGridMismatch)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	top := maxRef * stretch
	level := func(v float64) uint8 {
		return uint8(math.Round(math.Min(math.Max(v/top, 0), 1) * 255))
	}
	dc := gg.NewContext(grid.Width, grid.Height)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			i := y*grid.Width + x
			if valid != nil && !valid[i] {
				continue
			}
			dc.SetColor(color.NRGBA{R: level(red[i]), G: level(green[i]), B: level(blue[i]), A: 255})
			dc.SetPixel(x, y)
		}
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
