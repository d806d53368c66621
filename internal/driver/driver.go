// Package driver runs a configured job. Every region × window pair is
// composited, optionally turned into biophysical products, and handed to
// the export layer.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/leaf-mosaic/internal/biophys"
	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/region"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var ErrNoAuxReader = errors.New("auxiliary raster requested but no reader configured")

// GridFunc lays out the output grid covering a WGS84 region.
type GridFunc func(region orb.Polygon, resolution float64, epsg int) (raster.Grid, error)

// AuxReader reads a single-band auxiliary raster onto a grid.
type AuxReader func(href string, grid raster.Grid) ([]float64, []bool, error)

// Driver holds everything a run needs. Regions must already contain the
// tiles named by the configuration; inline regions are added by Run.
type Driver struct {
	Config   *config.Config
	Registry *sensor.Registry
	Regions  *region.Registry
	Selector *catalog.Selector
	Grid     GridFunc
	Aux      AuxReader
	Exporter export.Exporter
	Tasks    *export.TaskList
	Applier  *biophys.Applier
	// ReportDir receives quicklooks and biome histograms; empty disables
	// them.
	ReportDir string
	Logger    zerolog.Logger
	// Progress receives the run progress bar; nil discards it.
	Progress io.Writer
}

// Summary counts the outcome of a run.
type Summary struct {
	Pairs   int
	Skipped int
	Failed  int
	Tasks   int
}

// target is one expanded region with its grid and auxiliary layers.
type target struct {
	name      string
	polygon   orb.Polygon
	grid      raster.Grid
	water     []float64
	partition []float64
}

// Run processes every region × window pair in order. Empty collections
// and per-pair failures are logged and counted; only setup errors and
// cancellation end the run early.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	cfg := d.Config
	if d.Tasks == nil {
		d.Tasks = &export.TaskList{}
	}

	desc, err := cfg.Descriptor(d.Registry)
	if err != nil {
		return sum, err
	}
	windows, err := cfg.Windows()
	if err != nil {
		return sum, err
	}
	epsg, err := cfg.EPSG()
	if err != nil {
		return sum, err
	}
	names, err := d.regionNames()
	if err != nil {
		return sum, err
	}
	bundles, err := d.loadBundles()
	if err != nil {
		return sum, err
	}

	w := d.Progress
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(len(names)*len(windows),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(fmt.Sprintf("Compositing %s", desc.Key())),
	)
	defer bar.Finish()

	for _, name := range names {
		t, err := d.prepare(name, epsg)
		if err != nil {
			d.Logger.Error().Err(err).Str("region", name).Msg("cannot prepare region")
			sum.Pairs += len(windows)
			sum.Failed += len(windows)
			bar.Add(len(windows))
			continue
		}

		for _, win := range windows {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Pairs++
			log := d.Logger.With().Str("region", name).Str("window", win.Label).Logger()
			log.Info().Msg("window started")

			n, err := d.runPair(ctx, desc, t, win, bundles, &sum, log)
			sum.Tasks += n
			bar.Add(1)
			switch {
			case err == nil:
				log.Info().Int("tasks", n).Msg("window finished")
			case errors.Is(err, catalog.ErrEmptyCollection):
				sum.Skipped++
				log.Warn().Err(err).Msg("no usable scenes, window skipped")
			case ctx.Err() != nil:
				return sum, ctx.Err()
			default:
				sum.Failed++
				log.Error().Err(err).Msg("window failed")
			}
		}
	}
	return sum, nil
}

// Cancel withdraws every submitted task matching filter.
func (d *Driver) Cancel(ctx context.Context, filter export.Filter) (int, error) {
	if d.Tasks == nil {
		return 0, nil
	}
	return d.Tasks.Cancel(ctx, d.Exporter, filter)
}

// regionNames registers inline regions and checks that every named tile
// is known.
func (d *Driver) regionNames() ([]string, error) {
	if d.Regions == nil {
		d.Regions = region.NewRegistry()
	}
	if len(d.Config.Regions) > 0 {
		names := make([]string, 0, len(d.Config.Regions))
		for _, spec := range d.Config.Regions {
			poly, err := spec.Polygon()
			if err != nil {
				return nil, err
			}
			if err := d.Regions.Add(spec.Name, poly); err != nil {
				return nil, err
			}
			names = append(names, spec.Name)
		}
		return names, nil
	}
	for _, name := range d.Config.TileNames {
		if _, err := d.Regions.Lookup(name); err != nil {
			return nil, err
		}
	}
	return d.Config.TileNames, nil
}

func (d *Driver) loadBundles() (map[biophys.Product]*biophys.Bundle, error) {
	out := make(map[biophys.Product]*biophys.Bundle)
	for _, p := range d.Config.BiophysProducts() {
		b, err := biophys.LoadBundleFiles(d.Config.BundleDir, p)
		if err != nil {
			return nil, fmt.Errorf("%s bundle: %w", p, err)
		}
		out[p] = b
	}
	return out, nil
}

// prepare expands the region, lays out its grid and reads the auxiliary
// rasters the run needs.
func (d *Driver) prepare(name string, epsg int) (target, error) {
	rg, err := d.Regions.Lookup(name)
	if err != nil {
		return target{}, err
	}
	t := target{name: name, polygon: rg.Expand(region.DefaultExpansion)}
	if t.grid, err = d.Grid(t.polygon, d.Config.Resolution, epsg); err != nil {
		return target{}, fmt.Errorf("grid: %w", err)
	}

	if d.Config.WaterMap != "" {
		if t.water, err = d.readAux(d.Config.WaterMap, t.grid); err != nil {
			return target{}, fmt.Errorf("water map: %w", err)
		}
	}
	if d.Config.Partition != "" && (len(d.Config.BiophysProducts()) > 0 || d.Config.Wants(config.ProductPartition)) {
		if t.partition, err = d.readAux(d.Config.Partition, t.grid); err != nil {
			return target{}, fmt.Errorf("partition: %w", err)
		}
		if d.Config.PartitionFormat == config.PartitionCGLS {
			t.partition = biophys.RemapCGLS(t.partition)
		}
	}
	return t, nil
}

// readAux reads an auxiliary raster; no-data pixels read as 0.
func (d *Driver) readAux(href string, grid raster.Grid) ([]float64, error) {
	if d.Aux == nil {
		return nil, ErrNoAuxReader
	}
	data, valid, err := d.Aux(href, grid)
	if err != nil {
		return nil, err
	}
	if len(data) != grid.Size() {
		return nil, fmt.Errorf("%w: %s", raster.ErrGridMismatch, href)
	}
	out := make([]float64, len(data))
	for i, v := range data {
		if (valid == nil || valid[i]) && !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out, nil
}
