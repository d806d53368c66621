package gdalio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/rs/zerolog"

	"github.com/forest-guardian/leaf-mosaic/internal/export"
)

// Exporter writes export requests as GeoTIFFs under Root. Storage exports
// go to Root/<bucket>/<folder>, asset exports to Root/assets/<folder>.
type Exporter struct {
	Root   string
	Logger zerolog.Logger
}

func (e *Exporter) Submit(ctx context.Context, req export.Request) (export.Task, error) {
	if err := ctx.Err(); err != nil {
		return export.Task{}, err
	}
	dir, err := e.dir(req)
	if err != nil {
		return export.Task{}, err
	}
	path := filepath.Join(dir, req.Name+".tif")

	dtype := godal.Byte
	if req.Type == export.UInt16 {
		dtype = godal.UInt16
	}
	layers := make([]Layer, len(req.Layers))
	for i, l := range req.Layers {
		layers[i] = Layer{Name: l.Name, Data: l.Data}
	}
	if err := WriteGeoTIFF(path, req.Grid, dtype, 0, layers...); err != nil {
		return export.Task{}, err
	}
	e.Logger.Info().Str("task", req.Name).Str("path", path).Msg("export written")
	return export.NewTask(req, path, export.Completed), nil
}

// Cancel withdraws a written export.
func (e *Exporter) Cancel(_ context.Context, t export.Task) error {
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (e *Exporter) dir(req export.Request) (string, error) {
	switch req.Location {
	case export.Drive, "":
		return filepath.Join(e.Root, req.Folder), nil
	case export.Storage:
		if req.Bucket == "" {
			return "", fmt.Errorf("storage export %s needs a bucket", req.Name)
		}
		return filepath.Join(e.Root, req.Bucket, req.Folder), nil
	case export.Asset:
		return filepath.Join(e.Root, "assets", req.Folder), nil
	}
	return "", fmt.Errorf("%w: %q", export.ErrUnknownLocation, req.Location)
}
