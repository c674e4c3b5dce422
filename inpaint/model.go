package inpaint

import (
	"context"
	"fmt"

	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/tiling"
)

// Model fills the selected pixels of an image tile. The tile is always RGB;
// the mask has the same dimensions and is binary (0/255). Implementations
// should return an image of the same size but callers tolerate a different
// size and resample the result.
type Model interface {
	Name() string
	Inpaint(ctx context.Context, img *raster.Image, mask *raster.Mask) (*raster.Image, error)
}

// Releaser is implemented by models that hold transient accelerator memory
// between calls. The compositor calls Release after every band.
type Releaser interface {
	Release(ctx context.Context) error
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, img *raster.Image, mask *raster.Mask) (*raster.Image, error)

func (f ModelFunc) Name() string { return "func" }

func (f ModelFunc) Inpaint(ctx context.Context, img *raster.Image, mask *raster.Mask) (*raster.Image, error) {
	return f(ctx, img, mask)
}

// EngineError reports a model failure on one band.
type EngineError struct {
	Model string
	Band  int
	Rows  tiling.Range
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("model %s failed on band %d rows %v: %v", e.Model, e.Band, e.Rows, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
