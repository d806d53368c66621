package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/leaf-mosaic/internal/biophys"
	"github.com/forest-guardian/leaf-mosaic/internal/composite"
	"github.com/forest-guardian/leaf-mosaic/internal/config"
	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

const (
	// exportLimit bounds concurrent band exports of one window.
	exportLimit = 4
	// quicklookStretch maps 30% reflectance to full brightness.
	quicklookStretch = 0.3
)

// layer is one output band with the product it belongs to.
type layer struct {
	name    string
	product string
	data    []float64
}

// runPair builds and exports one (region, window) pair. A failing
// biophysical product is logged and counted without stopping the others.
func (d *Driver) runPair(ctx context.Context, desc sensor.Descriptor, t target, w config.Window, bundles map[biophys.Product]*biophys.Bundle, sum *Summary, log zerolog.Logger) (int, error) {
	m, err := d.Mosaic(ctx, desc, t.polygon, t.grid, w, t.water)
	if err != nil {
		return 0, err
	}

	var layers []layer
	if d.Config.Wants(config.ProductMosaic) {
		for _, name := range mosaicBands(m) {
			data, err := m.Image.Band(name)
			if err != nil {
				return 0, err
			}
			layers = append(layers, layer{name: name, product: config.ProductMosaic, data: data})
		}
	}
	if d.Config.Wants(config.ProductDate) {
		for _, name := range []string{composite.BandDate, composite.BandSensor} {
			data, err := m.Image.Band(name)
			if err != nil {
				return 0, err
			}
			layers = append(layers, layer{name: name, product: config.ProductDate, data: data})
		}
	}
	if d.Config.Wants(config.ProductPartition) && t.partition != nil {
		layers = append(layers, layer{name: export.BandPartition, product: config.ProductPartition, data: t.partition})
	}

	for _, p := range d.Config.BiophysProducts() {
		pl, err := d.biophysical(m, t, w, bundles[p])
		if err != nil {
			sum.Failed++
			log.Error().Err(err).Str("product", string(p)).Msg("product failed")
			continue
		}
		layers = append(layers, pl...)
	}

	if d.Config.Quicklook && d.ReportDir != "" {
		if err := d.quicklook(m, t, w, desc); err != nil {
			log.Warn().Err(err).Msg("quicklook failed")
		}
	}
	if len(layers) == 0 {
		return 0, nil
	}
	return d.export(ctx, t, w, desc, m.Image.Mask(), layers)
}

// mosaicBands lists the spectral bands of a mosaic followed by any extra
// per-observation bands it carries.
func mosaicBands(m *composite.Mosaic) []string {
	out := m.SpectralBands()
	fixed := map[string]bool{composite.BandScore: true, composite.BandDate: true, composite.BandSensor: true}
	for _, name := range out {
		fixed[name] = true
	}
	for _, name := range m.Image.Names() {
		if !fixed[name] {
			out = append(out, name)
		}
	}
	return out
}

func (d *Driver) biophysical(m *composite.Mosaic, t target, w config.Window, bundle *biophys.Bundle) ([]layer, error) {
	if t.partition == nil {
		return nil, fmt.Errorf("no partition for region %s", t.name)
	}
	inputs, err := biophys.Inputs(m, sensor.MaxReflectance)
	if err != nil {
		return nil, err
	}
	applier := d.Applier
	if applier == nil {
		applier = &biophys.Applier{Logger: d.Logger}
	}
	res, err := applier.Apply(inputs, t.partition, bundle)
	if err != nil {
		return nil, err
	}

	p := string(bundle.Product)
	out := []layer{
		{name: p, product: p, data: res.Encoded(t.partition)},
		{name: p + export.UncertaintySuffix, product: p, data: res.EncodedUncertainty(t.partition)},
	}
	if d.Config.Wants(config.ProductQC) {
		out = append(out, layer{name: p + export.QCSuffix, product: p, data: res.QC})
	}

	if d.ReportDir != "" {
		name := export.Name(t.name, w.Label, m.Descriptor.Key(), p, d.Config.Resolution)
		if err := d.histogram(filepath.Join(d.ReportDir, name+"_histogram.csv"), res.Histogram); err != nil {
			d.Logger.Warn().Err(err).Str("product", p).Msg("histogram report failed")
		}
	}
	return out, nil
}

func (d *Driver) histogram(path string, rows []biophys.BiomeCount) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.WriteHistogram(f, rows)
}

func (d *Driver) quicklook(m *composite.Mosaic, t target, w config.Window, desc sensor.Descriptor) error {
	var rgb [3][]float64
	for i, b := range []sensor.Band{sensor.RED, sensor.GRN, sensor.BLU} {
		data, err := m.Band(b)
		if err != nil {
			return err
		}
		rgb[i] = data
	}
	name := export.Name(t.name, w.Label, desc.Key(), "", d.Config.Resolution)
	return export.Quicklook(filepath.Join(d.ReportDir, name+".png"), t.grid, rgb[0], rgb[1], rgb[2],
		m.Image.Mask(), sensor.MaxReflectance, quicklookStretch)
}

// export submits one task per layer, or a single multi-band task in
// compact style. Tasks are appended to the list from the calling
// goroutine only.
func (d *Driver) export(ctx context.Context, t target, w config.Window, desc sensor.Descriptor, valid []bool, layers []layer) (int, error) {
	cfg := d.Config
	bands := make(map[string][]float64, len(layers))
	order := make([]string, len(layers))
	for i, l := range layers {
		bands[l.name] = l.data
		order[i] = l.name
	}
	labels := export.Labels{Region: t.name, Window: w.Label, Sensor: desc.Key()}
	request := func(name string, bandOrder []string, product string) (export.Request, error) {
		req, err := export.NewRequest(name, t.grid, valid, bands, bandOrder)
		if err != nil {
			return export.Request{}, err
		}
		req.Location = export.Location(cfg.OutLocation)
		req.Folder = cfg.OutFolder
		req.Bucket = cfg.GCSBucket
		req.Labels = labels
		req.Labels.Product = product
		return req, nil
	}

	if export.Style(cfg.ExportStyle) == export.Compact {
		req, err := request(export.Name(t.name, w.Label, desc.Key(), "", cfg.Resolution), order, products(layers))
		if err != nil {
			return 0, err
		}
		task, err := d.Exporter.Submit(ctx, req)
		if err != nil {
			return 0, fmt.Errorf("submit %s: %w", req.Name, err)
		}
		d.Tasks.Append(task)
		d.Logger.Info().Str("task", task.Name).Str("id", task.ID).Msg("export submitted")
		return 1, nil
	}

	tasks := make([]export.Task, len(layers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportLimit)
	for i, l := range layers {
		g.Go(func() error {
			req, err := request(export.Name(t.name, w.Label, desc.Key(), l.name, cfg.Resolution), []string{l.name}, l.product)
			if err != nil {
				return err
			}
			task, err := d.Exporter.Submit(gctx, req)
			if err != nil {
				return fmt.Errorf("submit %s: %w", req.Name, err)
			}
			tasks[i] = task
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, task := range tasks {
		if task.ID == "" {
			continue
		}
		d.Tasks.Append(task)
		d.Logger.Info().Str("task", task.Name).Str("id", task.ID).Msg("export submitted")
		n++
	}
	return n, err
}

func products(layers []layer) string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range layers {
		if !seen[l.product] {
			seen[l.product] = true
			out = append(out, l.product)
		}
	}
	return strings.Join(out, "+")
}
