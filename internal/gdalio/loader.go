package gdalio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"

	"github.com/forest-guardian/leaf-mosaic/internal/mask"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var ErrMissingAsset = errors.New("missing asset")

// Loader warps scene assets onto the requested grid. Pixels that are
// nodata in any spectral band are masked.
type Loader struct {
	Logger zerolog.Logger
	// Resampling is a gdalwarp -r method. Default: near
	Resampling string
}

func (l *Loader) Load(ctx context.Context, s scene.Scene, grid raster.Grid) (*raster.Image, error) {
	optional := map[string]bool{mask.CloudScoreBand: true}
	if name, err := s.Descriptor.Band(sensor.RADSAT); err == nil {
		optional[name] = true
	}

	names := s.Descriptor.Bands(sensor.RoleAll)
	if _, ok := s.Assets[mask.CloudScoreBand]; ok {
		names = append(names, mask.CloudScoreBand)
	}
	spectral := make(map[string]bool)
	for _, name := range s.Descriptor.Spectral() {
		spectral[name] = true
	}

	img := raster.New(grid)
	keep := img.Mask()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		href, ok := s.Assets[name]
		if !ok {
			if optional[name] {
				continue
			}
			return nil, fmt.Errorf("%w: scene %s band %s", ErrMissingAsset, s.ID, name)
		}
		data, valid, err := l.Warp(href, grid)
		if err != nil {
			return nil, fmt.Errorf("scene %s band %s: %w", s.ID, name, err)
		}
		if spectral[name] {
			next := make([]bool, len(keep))
			for i := range next {
				next[i] = keep[i] && valid[i]
			}
			keep = next
		}
		if img, err = img.WithBand(name, data); err != nil {
			return nil, err
		}
	}
	l.Logger.Debug().Str("scene", s.ID).Int("bands", len(img.Names())).Msg("scene loaded")
	return img.UpdateMask(keep), nil
}

// Warp reads the first band of href resampled onto grid. Nodata pixels are
// returned as 0 with valid false.
func (l *Loader) Warp(href string, grid raster.Grid) ([]float64, []bool, error) {
	src, err := godal.Open(VSIPath(href), godal.ErrLogger(l.handler))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", href, err)
	}
	defer src.Close()

	b := Bounds(grid)
	resampling := l.Resampling
	if resampling == "" {
		resampling = "near"
	}
	switches := []string{
		"-of", "MEM",
		"-t_srs", "EPSG:" + strconv.Itoa(grid.EPSG),
		"-te", ftoa(b.Min.X()), ftoa(b.Min.Y()), ftoa(b.Max.X()), ftoa(b.Max.Y()),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", resampling,
		"-ot", "Float64",
		"-dstnodata", "nan",
	}
	dst, err := src.Warp("", switches, godal.ErrLogger(l.handler))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to warp %s: %w", href, err)
	}
	defer dst.Close()

	data := make([]float64, grid.Size())
	if err := dst.Bands()[0].Read(0, 0, data, grid.Width, grid.Height); err != nil {
		return nil, nil, fmt.Errorf("failed to read raster data: %w", err)
	}
	valid := make([]bool, len(data))
	for i, v := range data {
		if math.IsNaN(v) {
			data[i] = 0
			continue
		}
		valid[i] = true
	}
	return data, valid, nil
}

func (l *Loader) handler(ec godal.ErrorCategory, code int, msg string) error {
	if ec <= godal.CE_Warning {
		l.Logger.Debug().Int("code", code).Msg(msg)
		return nil
	}
	return errors.New(msg)
}

// VSIPath routes remote assets through GDAL's network file systems.
func VSIPath(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return "/vsicurl/" + href
	case strings.HasPrefix(href, "gs://"):
		return "/vsigs/" + strings.TrimPrefix(href, "gs://")
	case strings.HasPrefix(href, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(href, "s3://")
	}
	return href
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
