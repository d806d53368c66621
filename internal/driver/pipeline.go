package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/composite"
	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/mask"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/reference"
	"github.com/forest-guardian/leaf-mosaic/internal/scene"
	"github.com/forest-guardian/leaf-mosaic/internal/score"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// Mosaic composites one window over region, extended to neighbouring years
// as configured, and merges in the backup sensor when one is set. water may
// be nil.
func (d *Driver) Mosaic(ctx context.Context, desc sensor.Descriptor, region orb.Polygon, grid raster.Grid, w config.Window, water []float64) (*composite.Mosaic, error) {
	m, err := d.extended(ctx, desc, config.SingleSpacecraft(d.Config.Sensor), region, grid, w, water)
	if d.Config.BackupSensor == "" {
		return m, err
	}
	if err != nil && !errors.Is(err, catalog.ErrEmptyCollection) {
		return nil, err
	}

	bd, berr := d.Config.BackupDescriptor(d.Registry)
	if berr != nil {
		return nil, berr
	}
	backup, berr := d.extended(ctx, bd, config.SingleSpacecraft(d.Config.BackupSensor), region, grid, w, water)
	switch {
	case errors.Is(berr, catalog.ErrEmptyCollection):
		return m, err
	case berr != nil:
		return nil, fmt.Errorf("backup %s: %w", bd.Key(), berr)
	case m == nil:
		return backup, nil
	}
	return composite.MergeFamilies(m, backup)
}

func (d *Driver) extended(ctx context.Context, desc sensor.Descriptor, single bool, region orb.Polygon, grid raster.Grid, w config.Window, water []float64) (*composite.Mosaic, error) {
	build := func(ctx context.Context, year int) (*composite.Mosaic, error) {
		return d.mosaicYear(ctx, desc, single, region, grid, w.ShiftYears(year-d.Config.Year), water)
	}
	return composite.ExtendYears(ctx, build, d.Config.Year, d.Config.NbYears, catalog.ErrEmptyCollection)
}

func (d *Driver) mosaicYear(ctx context.Context, desc sensor.Descriptor, single bool, region orb.Polygon, grid raster.Grid, w config.Window, water []float64) (*composite.Mosaic, error) {
	mode, err := score.ParseMode(d.Config.ScoreMode)
	if err != nil {
		return nil, err
	}

	extra := catalog.Extra{
		CloudScore:       d.Config.CloudScore,
		Angles:           d.Config.ExtraBands == config.ExtraAngles,
		SingleSpacecraft: single,
	}
	coll, err := d.Selector.Select(ctx, desc, region, w.Start, w.End, d.Config.CloudCeiling, extra)
	if err != nil {
		return nil, err
	}
	coll = coll.Map(scene.Rescale(sensor.MaxReflectance)).Map(mask.Apply(sensor.MaxReflectance))

	var carry []string
	switch d.Config.ExtraBands {
	case config.ExtraNDVI:
		coll = coll.Map(scene.AttachNDVI())
		carry = []string{scene.BandNDVI}
	case config.ExtraAngles:
		coll = coll.Map(scene.AttachAngles())
		carry = []string{scene.BandSunZenith, scene.BandSunAzimuth, scene.BandViewZenith, scene.BandViewAzimuth}
	}

	obs, err := coll.Materialize(ctx, grid, d.Config.Workers)
	if err != nil {
		return nil, err
	}
	d.Logger.Debug().Str("sensor", desc.Key()).Str("window", w.Label).Int("year", w.Start.Year()).
		Int("scenes", len(obs)).Msg("collection materialized")

	scorer := score.Scorer{Mode: mode, Water: water, Start: w.Start, End: w.End}
	if mode == score.Hybrid {
		if scorer.Reference, err = reference.Build(obs, w.Start, w.End); err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
	}
	for i := range obs {
		if obs[i], err = scorer.Score(obs[i]); err != nil {
			return nil, fmt.Errorf("score %s: %w", obs[i].Scene.ID, err)
		}
	}
	return composite.QualityMosaic(coll.Descriptor(), obs, carry...)
}
