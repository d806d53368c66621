package gdalio

import (
	"errors"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/leaf-mosaic/internal/region"
)

// LoadRegions fills reg from any vector file GDAL can open. GeoJSON goes
// through the registry's own reader.
func LoadRegions(reg *region.Registry, path, nameField string) error {
	err := reg.LoadFile(path, nameField)
	if !errors.Is(err, region.ErrUnsupportedFormat) {
		return err
	}

	godal.RegisterInternalDrivers()
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return err
	}
	defer ds.Close()

	for _, layer := range ds.Layers() {
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			val, ok := feat.Fields()[nameField]
			if !ok {
				feat.Close()
				continue
			}
			js, err := feat.Geometry().GeoJSON()
			name := val.String()
			feat.Close()
			if err != nil {
				return fmt.Errorf("region %s: %w", name, err)
			}
			g, err := geojson.UnmarshalGeometry([]byte(js))
			if err != nil {
				return fmt.Errorf("region %s: %w", name, err)
			}
			poly, err := region.Polygon(g.Coordinates)
			if err != nil {
				return fmt.Errorf("region %s: %w", name, err)
			}
			if err := reg.Add(name, poly); err != nil {
				return err
			}
		}
	}
	return nil
}
