package gdalio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

// BandNamesKey is the dataset metadata item listing band names.
const BandNamesKey = "BAND_NAMES"

// Layer is one band to write.
type Layer struct {
	Name string
	Data []float64
}

// WriteGeoTIFF writes layers to a tiled, compressed GeoTIFF of type dtype.
// Values are converted by GDAL; callers pack them beforehand.
func WriteGeoTIFF(path string, grid raster.Grid, dtype godal.DataType, nodata float64, layers ...Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("no layers for %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	ds, err := godal.Create(godal.GTiff, path, len(layers), dtype, grid.Width, grid.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fillDataset(ds, grid, nodata, layers); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ds.Close()
}

func fillDataset(ds *godal.Dataset, grid raster.Grid, nodata float64, layers []Layer) error {
	if err := ds.SetGeoTransform(grid.GeoTransform); err != nil {
		return err
	}
	if grid.EPSG != 0 {
		sr, err := godal.NewSpatialRefFromEPSG(grid.EPSG)
		if err != nil {
			return err
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return err
		}
	}

	names := make([]string, len(layers))
	for i, band := range ds.Bands() {
		l := layers[i]
		if len(l.Data) != grid.Size() {
			return fmt.Errorf("%w: layer %s", raster.ErrGridMismatch, l.Name)
		}
		if err := band.SetNoData(nodata); err != nil {
			return err
		}
		if err := band.Write(0, 0, l.Data, grid.Width, grid.Height); err != nil {
			return err
		}
		names[i] = l.Name
	}
	return ds.SetMetadata(BandNamesKey, strings.Join(names, ","))
}

// ReadGeoTIFF reads every band of path at its native grid. Nodata pixels
// are masked.
func ReadGeoTIFF(path string) (*raster.Image, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open TIFF file: %w", err)
	}
	defer ds.Close()

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, err
	}
	grid := raster.Grid{Width: st.SizeX, Height: st.SizeY, GeoTransform: gt}
	if sr := ds.SpatialRef(); sr != nil {
		grid.EPSG, _ = strconv.Atoi(sr.AuthorityCode(""))
		sr.Close()
	}

	names := strings.Split(ds.Metadata(BandNamesKey), ",")
	img := raster.New(grid)
	keep := make([]bool, grid.Size())
	for i := range keep {
		keep[i] = true
	}
	for i, band := range ds.Bands() {
		name := "b" + strconv.Itoa(i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		data := make([]float64, grid.Size())
		if err := band.Read(0, 0, data, grid.Width, grid.Height); err != nil {
			return nil, fmt.Errorf("failed to read raster data: %w", err)
		}
		if nd, ok := band.NoData(); ok {
			for j, v := range data {
				if v == nd {
					keep[j] = false
				}
			}
		}
		if img, err = img.WithBand(name, data); err != nil {
			return nil, err
		}
	}
	return img.UpdateMask(keep), nil
}
