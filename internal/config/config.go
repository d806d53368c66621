// Package config loads and validates run configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/forest-guardian/leaf-mosaic/internal/biophys"
	"github.com/forest-guardian/leaf-mosaic/internal/export"
	"github.com/forest-guardian/leaf-mosaic/internal/score"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var ErrInvalidConfig = errors.New("invalid config")

// Products a run may emit.
const (
	ProductMosaic    = "mosaic"
	ProductQC        = "QC"
	ProductDate      = "date"
	ProductPartition = "partition"
)

// Extra band sets attached to every observation.
const (
	ExtraNone   = "none"
	ExtraAngles = "angles"
	ExtraNDVI   = "ndvi"
)

// Partition raster encodings.
const (
	PartitionNALCMS = "nalcms"
	PartitionCGLS   = "cgls"
)

const (
	DefaultProjection = "EPSG:3979"
	DefaultResolution = 30
	DefaultTileField  = "tile"
)

// RegionSpec is an ad hoc region given inline as WGS84 polygon rings.
type RegionSpec struct {
	Name        string        `yaml:"name"`
	Coordinates [][][]float64 `yaml:"coordinates"`
}

// Polygon converts the rings; the outer ring is closed if needed.
func (r RegionSpec) Polygon() (orb.Polygon, error) {
	var poly orb.Polygon
	for _, ring := range r.Coordinates {
		var rg orb.Ring
		for _, p := range ring {
			if len(p) != 2 {
				return nil, fmt.Errorf("%w: region %s: point needs two coordinates", ErrInvalidConfig, r.Name)
			}
			rg = append(rg, orb.Point{p[0], p[1]})
		}
		if len(rg) > 0 && rg[0] != rg[len(rg)-1] {
			rg = append(rg, rg[0])
		}
		poly = append(poly, rg)
	}
	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, fmt.Errorf("%w: region %s: outer ring needs at least three points", ErrInvalidConfig, r.Name)
	}
	return poly, nil
}

// Config is one run.
type Config struct {
	Sensor      string       `yaml:"sensor"`
	Unit        string       `yaml:"unit"`
	Year        int          `yaml:"year"`
	NbYears     int          `yaml:"nbYears"`
	Months      []int        `yaml:"months"`
	TileNames   []string     `yaml:"tile_names"`
	TilesFile   string       `yaml:"tiles_file"`
	TileField   string       `yaml:"tile_field"`
	Regions     []RegionSpec `yaml:"regions"`
	StartDates  []string     `yaml:"start_dates"`
	EndDates    []string     `yaml:"end_dates"`
	ProdNames   []string     `yaml:"prod_names"`
	Resolution  float64      `yaml:"resolution"`
	OutLocation string       `yaml:"out_location"`
	OutFolder   string       `yaml:"out_folder"`
	GCSBucket   string       `yaml:"GCS_bucket"`
	ExportStyle string       `yaml:"export_style"`
	Projection  string       `yaml:"projection"`
	CloudScore  bool         `yaml:"CloudScore"`
	ExtraBands  string       `yaml:"extra_bands"`

	CloudCeiling float64 `yaml:"cloud_ceiling"`
	ScoreMode    string  `yaml:"score_mode"`
	BundleDir    string  `yaml:"bundle_dir"`
	Partition    string  `yaml:"partition"`
	WaterMap     string  `yaml:"water_map"`
	Workers      int     `yaml:"workers"`
	Quicklook    bool    `yaml:"quicklook"`

	// PartitionFormat is nalcms (used as is) or cgls (remapped on load).
	PartitionFormat string `yaml:"partition_format"`
	// BackupSensor, when set, is composited over the same windows and
	// merged into the sensor's mosaic.
	BackupSensor string `yaml:"backup_sensor"`
}

// Load reads, schema-checks, defaults and validates a YAML run file.
func Load(path string, reg *sensor.Registry) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML config: %w", err)
	}
	return Parse(data, reg)
}

func Parse(data []byte, reg *sensor.Registry) (*Config, error) {
	if err := ValidateWithCue(data); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(reg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Unit == "" {
		c.Unit = "SR"
	}
	if c.NbYears == 0 {
		c.NbYears = 1
	}
	if c.Resolution == 0 {
		c.Resolution = DefaultResolution
	}
	if c.OutLocation == "" {
		c.OutLocation = string(export.Drive)
	}
	if c.ExportStyle == "" {
		c.ExportStyle = string(export.Separate)
	}
	if c.Projection == "" {
		c.Projection = DefaultProjection
	}
	if c.ExtraBands == "" {
		c.ExtraBands = ExtraNone
	}
	if len(c.ProdNames) == 0 {
		c.ProdNames = []string{ProductMosaic}
	}
	if c.TileField == "" {
		c.TileField = DefaultTileField
	}
	if c.PartitionFormat == "" {
		c.PartitionFormat = PartitionNALCMS
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate applies the cross-field rules the schema cannot express.
func (c *Config) Validate(reg *sensor.Registry) error {
	if _, err := c.Descriptor(reg); err != nil {
		return invalid("%v", err)
	}
	if c.BackupSensor != "" {
		if _, err := c.BackupDescriptor(reg); err != nil {
			return invalid("backup_sensor: %v", err)
		}
	}
	if c.NbYears < 1 || c.NbYears > 3 {
		return invalid("nbYears must be 1..3, got %d", c.NbYears)
	}
	for _, m := range c.Months {
		if m < 1 || m > 12 {
			return invalid("month %d out of range", m)
		}
	}
	if (len(c.TileNames) > 0) == (len(c.Regions) > 0) {
		return invalid("exactly one of tile_names and regions must be set")
	}
	if len(c.TileNames) > 0 && c.TilesFile == "" {
		return invalid("tile_names needs tiles_file")
	}
	for _, r := range c.Regions {
		if _, err := r.Polygon(); err != nil {
			return err
		}
	}
	if len(c.StartDates) != len(c.EndDates) {
		return invalid("start_dates and end_dates differ in length")
	}
	if len(c.StartDates) > 0 && len(c.Months) > 0 {
		return invalid("months and start_dates are exclusive")
	}
	if _, err := c.Windows(); err != nil {
		return err
	}
	for _, p := range c.ProdNames {
		switch p {
		case ProductMosaic, ProductQC, ProductDate, ProductPartition:
		default:
			if _, err := biophys.ParseProduct(p); err != nil {
				return invalid("%v", err)
			}
		}
	}
	if c.Resolution <= 0 {
		return invalid("resolution must be positive")
	}
	loc, err := export.ParseLocation(c.OutLocation)
	if err != nil {
		return invalid("%v", err)
	}
	if loc == export.Storage && c.GCSBucket == "" {
		return invalid("out_location storage needs GCS_bucket")
	}
	if _, err := export.ParseStyle(c.ExportStyle); err != nil {
		return invalid("%v", err)
	}
	if _, err := c.EPSG(); err != nil {
		return err
	}
	switch c.ExtraBands {
	case ExtraNone, ExtraAngles, ExtraNDVI:
	default:
		return invalid("unknown extra_bands %q", c.ExtraBands)
	}
	if _, err := score.ParseMode(c.ScoreMode); err != nil {
		return invalid("%v", err)
	}
	if c.PartitionFormat != PartitionNALCMS && c.PartitionFormat != PartitionCGLS {
		return invalid("unknown partition_format %q", c.PartitionFormat)
	}
	if c.needsBundles() && (c.BundleDir == "" || c.Partition == "") {
		return invalid("biophysical products need bundle_dir and partition")
	}
	return nil
}

// Descriptor resolves sensor and unit.
func (c *Config) Descriptor(reg *sensor.Registry) (sensor.Descriptor, error) {
	return reg.Parse(c.sensorKey(c.Sensor))
}

// BackupDescriptor resolves backup_sensor in the run's unit.
func (c *Config) BackupDescriptor(reg *sensor.Registry) (sensor.Descriptor, error) {
	return reg.Parse(c.sensorKey(c.BackupSensor))
}

// SingleSpacecraft reports whether a sensor name picks one Sentinel-2
// spacecraft rather than the S2 pair.
func SingleSpacecraft(name string) bool {
	code, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(name)), "_")
	return code == "S2A" || code == "S2B"
}

func (c *Config) sensorKey(key string) string {
	if !strings.Contains(key, "_") {
		key += "_" + c.Unit
	}
	return key
}

// EPSG parses the projection code.
func (c *Config) EPSG() (int, error) {
	code, ok := strings.CutPrefix(strings.ToUpper(c.Projection), "EPSG:")
	if !ok {
		return 0, invalid("projection %q is not EPSG:<code>", c.Projection)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, invalid("projection %q is not EPSG:<code>", c.Projection)
	}
	return n, nil
}

// BiophysProducts lists the requested tree-ensemble products.
func (c *Config) BiophysProducts() []biophys.Product {
	var out []biophys.Product
	for _, p := range c.ProdNames {
		if bp, err := biophys.ParseProduct(p); err == nil {
			out = append(out, bp)
		}
	}
	return out
}

// Wants reports whether a product name was requested.
func (c *Config) Wants(product string) bool {
	for _, p := range c.ProdNames {
		if p == product {
			return true
		}
	}
	return false
}

func (c *Config) needsBundles() bool {
	return len(c.BiophysProducts()) > 0
}
