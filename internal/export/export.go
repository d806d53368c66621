// Package export names, packs and submits output rasters, and keeps the
// list of submitted tasks.
package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

var (
	ErrUnknownLocation = errors.New("unknown export location")
	ErrUnknownStyle    = errors.New("unknown export style")
)

// Location is where an exporter places its output.
type Location string

const (
	Drive   Location = "drive"
	Storage Location = "storage"
	Asset   Location = "asset"
)

func ParseLocation(s string) (Location, error) {
	switch l := Location(strings.ToLower(strings.TrimSpace(s))); l {
	case Drive, Storage, Asset:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLocation, s)
}

// Style selects one task per band or a single multi-band task.
type Style string

const (
	Separate Style = "separate"
	Compact  Style = "compact"
)

func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case Separate, Compact:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// DataType is the packed pixel type of an export.
type DataType int

const (
	UInt8 DataType = iota
	UInt16
)

func (t DataType) Max() float64 {
	if t == UInt16 {
		return math.MaxUint16
	}
	return math.MaxUint8
}

func (t DataType) String() string {
	if t == UInt16 {
		return "UInt16"
	}
	return "Byte"
}

// Band names with a fixed packing; anything else is spectral.
const (
	BandDate      = "date"
	BandSensor    = "ssr_code"
	BandQC        = "QC"
	BandPartition = "partition"
	BandNDVI      = "NDVI"
)

// Packing converts band values to stored integers as v·Scale + Offset.
// 0 is nodata.
type Packing struct {
	Scale  float64
	Offset float64
	Type   DataType
}

// SpectralScale packs reflectance in [0, 100] into 0..10000.
const SpectralScale = 100

// NDVI in [-1, 1] is stored as 1..201.
const (
	NDVIScale  = 100
	NDVIOffset = 101
)

// PackingFor returns the packing of a band. Biophysical products arrive
// already encoded to 0..255.
func PackingFor(band string) Packing {
	switch band {
	case BandDate:
		return Packing{Scale: 1, Type: UInt16}
	case BandNDVI:
		return Packing{Scale: NDVIScale, Offset: NDVIOffset, Type: UInt8}
	case BandSensor, BandQC, BandPartition,
		"LAI", "fAPAR", "fCOVER", "Albedo":
		return Packing{Scale: 1, Type: UInt8}
	}
	if strings.HasSuffix(band, UncertaintySuffix) || strings.HasSuffix(band, QCSuffix) {
		return Packing{Scale: 1, Type: UInt8}
	}
	return Packing{Scale: SpectralScale, Type: UInt16}
}

// Suffixes of the per-product uncertainty and QC layers.
const (
	UncertaintySuffix = "_unc"
	QCSuffix          = "_" + BandQC
)

// Pack scales, rounds and clamps data; pixels with valid false become 0.
func (p Packing) Pack(data []float64, valid []bool) []float64 {
	out := make([]float64, len(data))
	hi := p.Type.Max()
	for i, v := range data {
		if valid != nil && !valid[i] {
			continue
		}
		out[i] = math.Min(math.Max(math.Round(v*p.Scale+p.Offset), 0), hi)
	}
	return out
}

// Name builds <region>_<time>_<sensor>[_<band>]_<scale>m.
func Name(region, window, sensorKey, band string, resolution float64) string {
	parts := []string{clean(region), clean(window), sensorKey}
	if band != "" {
		parts = append(parts, clean(band))
	}
	parts = append(parts, strconv.FormatFloat(resolution, 'f', -1, 64)+"m")
	return strings.Join(parts, "_")
}

func clean(s string) string {
	return strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(s)
}

// Layer is one packed band of a request.
type Layer struct {
	Name string
	Data []float64
}

// Request is one export task.
type Request struct {
	Name     string
	Location Location
	Folder   string
	Bucket   string
	Grid     raster.Grid
	Type     DataType
	Layers   []Layer
	Labels   Labels
}

// Labels identify the (region, window, product) a task belongs to.
type Labels struct {
	Region  string
	Window  string
	Sensor  string
	Product string
}

// Exporter submits and cancels export tasks.
type Exporter interface {
	Submit(ctx context.Context, req Request) (Task, error)
	Cancel(ctx context.Context, t Task) error
}

// NewRequest packs bands for export. Layers with mixed packing are
// written with the widest type.
func NewRequest(name string, grid raster.Grid, valid []bool, bands map[string][]float64, order []string) (Request, error) {
	req := Request{Name: name, Grid: grid, Type: UInt8}
	for _, b := range order {
		data, ok := bands[b]
		if !ok {
			return Request{}, fmt.Errorf("%w: %s", raster.ErrMissingBand, b)
		}
		if len(data) != grid.Size() {
			return Request{}, fmt.Errorf("%w: band %s", raster.ErrGridMismatch, b)
		}
		p := PackingFor(b)
		if p.Type > req.Type {
			req.Type = p.Type
		}
		req.Layers = append(req.Layers, Layer{Name: b, Data: p.Pack(data, valid)})
	}
	return req, nil
}
