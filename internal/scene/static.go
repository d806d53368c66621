package scene

import (
	"context"
	"fmt"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
)

// Static serves images already held in memory, keyed by scene ID.
type Static map[string]*raster.Image

func (st Static) Load(_ context.Context, s Scene, grid raster.Grid) (*raster.Image, error) {
	img, ok := st[s.ID]
	if !ok {
		return nil, fmt.Errorf("no raster for scene %s", s.ID)
	}
	if !img.Grid().SameShape(grid) {
		return nil, fmt.Errorf("%w: scene %s is %dx%d, grid is %dx%d", raster.ErrGridMismatch,
			s.ID, img.Grid().Width, img.Grid().Height, grid.Width, grid.Height)
	}
	return img, nil
}
