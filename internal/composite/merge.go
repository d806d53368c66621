package composite

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Score gaps a backup must beat the base by before replacing it.
const (
	SameFamilyGap  = 2.0
	CrossFamilyGap = 3.0
)

// DefaultGap returns the score gap for merging b into a.
func DefaultGap(a, b *Mosaic) float64 {
	if a.Descriptor.Family() == b.Descriptor.Family() {
		return SameFamilyGap
	}
	return CrossFamilyGap
}

// Canonicalize renames the spectral bands of a mosaic to the six logical
// bands shared by every family and drops the other spectral bands.
func Canonicalize(m *Mosaic) (*Mosaic, error) {
	if m.Canonical {
		return m, nil
	}
	rename := make(map[string]string, len(sensor.SixBands))
	var keep []string
	for _, b := range sensor.SixBands {
		name, err := m.Descriptor.Band(b)
		if err != nil {
			return nil, err
		}
		rename[name] = string(b)
		keep = append(keep, name)
	}
	keep = append(keep, BandScore, BandDate, BandSensor)
	img, err := m.Image.Select(keep...)
	if err != nil {
		return nil, err
	}
	return &Mosaic{Descriptor: m.Descriptor, Canonical: true, Image: img.Rename(rename)}, nil
}

// Merge fills the gaps of base from backup and replaces base wherever
// backup.score - gap > base.score. Mosaics whose six bands go by different
// physical names are canonicalized first.
func Merge(base, backup *Mosaic, gap float64) (*Mosaic, error) {
	if !base.Image.Grid().SameShape(backup.Image.Grid()) {
		return nil, raster.ErrGridMismatch
	}
	if base.Canonical != backup.Canonical || !sameSixBands(base.Descriptor, backup.Descriptor) {
		var err error
		if base, err = Canonicalize(base); err != nil {
			return nil, err
		}
		if backup, err = Canonicalize(backup); err != nil {
			return nil, err
		}
	}

	names := base.Image.Names()
	baseScore, err := base.Image.Band(BandScore)
	if err != nil {
		return nil, err
	}
	backupScore, err := backup.Image.Band(BandScore)
	if err != nil {
		return nil, err
	}

	n := base.Image.Grid().Size()
	take := make([]bool, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		bv, kv := base.Image.Valid(i), backup.Image.Valid(i)
		switch {
		case bv && kv:
			take[i] = backupScore[i]-gap > baseScore[i]
		case kv:
			take[i] = true
		}
		valid[i] = bv || kv
	}

	data := make([][]float64, len(names))
	for b, name := range names {
		from, err := base.Image.Band(name)
		if err != nil {
			return nil, err
		}
		alt, err := backup.Image.Band(name)
		if err != nil {
			return nil, fmt.Errorf("backup mosaic: %w", err)
		}
		out := make([]float64, n)
		for i := range out {
			if take[i] {
				out[i] = alt[i]
			} else {
				out[i] = from[i]
			}
		}
		data[b] = out
	}
	img, err := raster.FromBands(base.Image.Grid(), names, data)
	if err != nil {
		return nil, err
	}
	return &Mosaic{Descriptor: base.Descriptor, Canonical: base.Canonical, Image: img.UpdateMask(valid)}, nil
}

func sameSixBands(a, b sensor.Descriptor) bool {
	return slices.Equal(a.Bands(sensor.RoleSix), b.Bands(sensor.RoleSix))
}

// MergeFamilies merges two mosaics with the default gap, always keeping a
// Sentinel-2 mosaic as the base against a Landsat one.
func MergeFamilies(a, b *Mosaic) (*Mosaic, error) {
	if a.Descriptor.Family() == sensor.Landsat && b.Descriptor.Family() == sensor.Sentinel2 {
		a, b = b, a
	}
	return Merge(a, b, DefaultGap(a, b))
}

// BuildFunc builds the mosaic of one year. It returns an error matching
// empty when the year has no usable scenes.
type BuildFunc func(ctx context.Context, year int) (*Mosaic, error)

// ExtendYears builds year Y and, depending on nYears, Y-1 (n >= 2) and Y+1
// (n = 3) as backups merged in that order. When Y is empty the first
// available sibling becomes the base. Errors matching empty are skipped;
// if every year is empty the last such error is returned.
func ExtendYears(ctx context.Context, build BuildFunc, year, nYears int, empty error) (*Mosaic, error) {
	if nYears < 1 || nYears > 3 {
		return nil, fmt.Errorf("nYears must be 1..3, got %d", nYears)
	}
	years := []int{year}
	if nYears >= 2 {
		years = append(years, year-1)
	}
	if nYears == 3 {
		years = append(years, year+1)
	}

	var (
		out     *Mosaic
		lastErr error
	)
	for _, y := range years {
		m, err := build(ctx, y)
		if err != nil {
			if empty != nil && errors.Is(err, empty) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("year %d: %w", y, err)
		}
		if out == nil {
			out = m
			continue
		}
		if out, err = Merge(out, m, DefaultGap(out, m)); err != nil {
			return nil, fmt.Errorf("merge year %d: %w", y, err)
		}
	}
	if out == nil {
		return nil, lastErr
	}
	return out, nil
}
