// Package diffuse provides a CPU inpainting model that fills selected pixels
// by harmonic diffusion from their unselected neighbours. It needs no
// accelerator and is deterministic, which makes it a fallback when no remote
// model is configured.
package diffuse

import (
	"context"
	"math"

	"github.com/wudi/inkclean/raster"
)

// DefaultIterations is the number of relaxation sweeps when Config leaves it
// unset.
const DefaultIterations = 150

type Config struct {
	Iterations int
}

// Model implements inpaint.Model.
type Model struct {
	iterations int
}

func New(cfg Config) *Model {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	return &Model{iterations: cfg.Iterations}
}

func (m *Model) Name() string { return "diffuse" }

// Inpaint returns a copy of img whose selected pixels are replaced by the
// diffused values of the surrounding pixels.
func (m *Model) Inpaint(ctx context.Context, img *raster.Image, mask *raster.Mask) (*raster.Image, error) {
	if err := raster.CheckSize(img, mask); err != nil {
		return nil, err
	}
	out := img.Clone()
	w, h, ch := img.Width, img.Height, img.Channels
	var holes []int
	for i, v := range mask.Pix {
		if v != 0 {
			holes = append(holes, i)
		}
	}
	if len(holes) == 0 {
		return out, nil
	}

	buf := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		buf[i] = float32(v)
	}
	seed(buf, mask, w, h, ch)

	next := make([]float32, ch)
	for it := 0; it < m.iterations; it++ {
		if it%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, i := range holes {
			x, y := i%w, i/w
			n := 0
			for k := range next {
				next[k] = 0
			}
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := (ny*w + nx) * ch
				for k := 0; k < ch; k++ {
					next[k] += buf[j+k]
				}
				n++
			}
			if n == 0 {
				continue
			}
			for k := 0; k < ch; k++ {
				buf[i*ch+k] = next[k] / float32(n)
			}
		}
	}

	for _, i := range holes {
		for k := 0; k < ch; k++ {
			out.Pix[i*ch+k] = uint8(math.Round(float64(clamp(buf[i*ch+k]))))
		}
	}
	return out, nil
}

// seed initializes every hole with the mean of the unselected pixels of its
// row, falling back to the image mean, so relaxation starts close to the
// surrounding tone.
func seed(buf []float32, mask *raster.Mask, w, h, ch int) {
	global := make([]float64, ch)
	globalN := 0
	rowMean := make([]float64, ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Pix[y*w+x] != 0 {
				continue
			}
			for k := 0; k < ch; k++ {
				global[k] += float64(buf[(y*w+x)*ch+k])
			}
			globalN++
		}
	}
	for k := range global {
		if globalN > 0 {
			global[k] /= float64(globalN)
		} else {
			global[k] = 128
		}
	}
	for y := 0; y < h; y++ {
		n := 0
		for k := range rowMean {
			rowMean[k] = 0
		}
		for x := 0; x < w; x++ {
			if mask.Pix[y*w+x] != 0 {
				continue
			}
			for k := 0; k < ch; k++ {
				rowMean[k] += float64(buf[(y*w+x)*ch+k])
			}
			n++
		}
		for k := range rowMean {
			if n > 0 {
				rowMean[k] /= float64(n)
			} else {
				rowMean[k] = global[k]
			}
		}
		for x := 0; x < w; x++ {
			if mask.Pix[y*w+x] == 0 {
				continue
			}
			for k := 0; k < ch; k++ {
				buf[(y*w+x)*ch+k] = float32(rowMean[k])
			}
		}
	}
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
