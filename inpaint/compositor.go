package inpaint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wudi/inkclean/observability"
	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/tiling"
)

// ErrEmptyImage is returned when there is no image to process.
var ErrEmptyImage = errors.New("no image loaded")

// DefaultMaskThreshold clears faint mask samples before tiling.
const DefaultMaskThreshold = 10

type Config struct {
	Logger observability.Logger
	Tracer observability.Tracer
}

// Options controls a single compositor run.
type Options struct {
	Tiling tiling.Options
	// MaskThreshold binarizes the mask: samples above it are selected.
	MaskThreshold uint8
}

// Result is the outcome of a successful run.
type Result struct {
	// Image is a new buffer; the input image is never modified.
	Image *raster.Image
	// Touched lists the core ranges of the processed bands in ascending
	// order. Rows outside these ranges are identical to the input.
	Touched []tiling.Range
	// Planned and Processed count the bands of the plan and the bands that
	// were sent to the model.
	Planned   int
	Processed int
}

// Compositor runs a Model over the bands of a tiling plan and blends the
// outputs into a single image.
type Compositor struct {
	model  Model
	log    observability.Logger
	tracer observability.Tracer
}

func New(model Model, cfg Config) *Compositor {
	c := &Compositor{model: model, log: observability.OrNop(cfg.Logger), tracer: cfg.Tracer}
	if c.tracer == nil {
		c.tracer = observability.NopTracer()
	}
	return c
}

// Run inpaints the selected pixels of img. progress, when non-nil, receives a
// percentage after every planned band, including skipped ones. A model
// failure aborts the run and no partial image is returned.
func (c *Compositor) Run(ctx context.Context, img *raster.Image, mask *raster.Mask, opts Options, progress func(int)) (Result, error) {
	if img.Empty() {
		return Result{}, ErrEmptyImage
	}
	if err := raster.CheckSize(img, mask); err != nil {
		return Result{}, err
	}
	report := func(done, total int) {
		if progress != nil && total > 0 {
			progress(done * 100 / total)
		}
	}

	bin := mask.Binarize(opts.MaskThreshold)
	plan := tiling.New(img.Height, opts.Tiling)
	active := plan.Active(bin)
	res := Result{Planned: len(plan.Bands), Processed: len(active)}
	c.log.Debug("inpaint plan",
		observability.Int("height", img.Height),
		observability.Int("bands", len(plan.Bands)),
		observability.Int(observability.MetricBandsActive, len(active)),
		observability.Int(observability.MetricBandsSkipped, len(plan.Bands)-len(active)))

	if len(active) == 0 {
		res.Image = img.Clone()
		report(1, 1)
		return res, nil
	}

	acc := newAccumulator(img, active)
	isActive := make(map[int]bool, len(active))
	for _, b := range active {
		isActive[b.Index] = true
	}
	for i, band := range plan.Bands {
		if isActive[band.Index] {
			if err := c.runBand(ctx, img, bin, band, acc); err != nil {
				return Result{}, err
			}
			res.Touched = append(res.Touched, band.Core)
		}
		report(i+1, len(plan.Bands))
	}
	res.Image = acc.resolve(img, bin)
	return res, nil
}

func (c *Compositor) runBand(ctx context.Context, img *raster.Image, mask *raster.Mask, band tiling.Band, acc *accumulator) (err error) {
	ctx, span := c.tracer.StartSpan(ctx, "inpaint.band")
	span.SetTag("band", band.Index)
	span.SetTag("crop", band.Crop.String())
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	defer c.release(ctx, band)

	start := time.Now()
	tile := img.CropRows(band.Crop.Start, band.Crop.End).ToRGB()
	tileMask := mask.CropRows(band.Crop.Start, band.Crop.End)
	out, err := c.model.Inpaint(ctx, tile, tileMask)
	if err == nil && out == nil {
		err = errors.New("model returned no image")
	}
	if err != nil {
		return &EngineError{Model: c.model.Name(), Band: band.Index, Rows: band.Crop, Err: err}
	}
	if out.Width != tile.Width || out.Height != tile.Height {
		c.log.Debug("resampling model output",
			observability.Int("band", band.Index),
			observability.String("got", fmt.Sprintf("%dx%d", out.Width, out.Height)),
			observability.String("want", fmt.Sprintf("%dx%d", tile.Width, tile.Height)))
		out = Resample(out, tile.Width, tile.Height)
	}
	out = out.WithChannels(img.Channels)
	acc.add(band, out)
	c.log.Debug("band inpainted",
		observability.Int("band", band.Index),
		observability.String("rows", band.Crop.String()),
		observability.Duration(observability.MetricBandTime, time.Since(start)))
	return nil
}

// release reclaims transient model memory before the next band starts.
func (c *Compositor) release(ctx context.Context, band tiling.Band) {
	r, ok := c.model.(Releaser)
	if !ok {
		return
	}
	if err := r.Release(ctx); err != nil {
		c.log.Warn("model release failed", observability.Int("band", band.Index), observability.Error("err", err))
	}
}

// accumulator holds weighted band outputs for the rows covered by active
// bands. Samples stay in floating point until resolve.
type accumulator struct {
	rows   tiling.Range
	stride int
	sum    []float32
	weight []float64
}

func newAccumulator(img *raster.Image, active []tiling.Band) *accumulator {
	rows := active[0].Crop
	for _, b := range active[1:] {
		rows.Start = min(rows.Start, b.Crop.Start)
		rows.End = max(rows.End, b.Crop.End)
	}
	stride := img.Stride()
	return &accumulator{
		rows:   rows,
		stride: stride,
		sum:    make([]float32, rows.Len()*stride),
		weight: make([]float64, rows.Len()),
	}
}

func (a *accumulator) add(band tiling.Band, out *raster.Image) {
	for i, w := range band.Weights() {
		if w == 0 {
			continue
		}
		r := band.Crop.Start + i - a.rows.Start
		a.weight[r] += w
		dst := a.sum[r*a.stride : (r+1)*a.stride]
		src := out.Row(i)
		fw := float32(w)
		for x, v := range src {
			dst[x] += fw * float32(v)
		}
	}
}

// resolve writes the blended samples of selected pixels into a copy of img.
// Unselected pixels keep their original values.
func (a *accumulator) resolve(img *raster.Image, mask *raster.Mask) *raster.Image {
	out := img.Clone()
	ch := img.Channels
	for r := 0; r < a.rows.Len(); r++ {
		w := a.weight[r]
		if w == 0 {
			continue
		}
		y := a.rows.Start + r
		mrow := mask.Row(y)
		dst := out.Row(y)
		src := a.sum[r*a.stride : (r+1)*a.stride]
		for x, m := range mrow {
			if m == 0 {
				continue
			}
			for k := x * ch; k < (x+1)*ch; k++ {
				dst[k] = quantize(float64(src[k]) / w)
			}
		}
	}
	return out
}

func quantize(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
