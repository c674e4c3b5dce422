// Package morph implements the binary morphology used to clean up text masks:
// elliptical dilation, median filtering, connected components and hole
// filling. All operations treat any non-zero sample as foreground and emit
// 0/255 masks.
package morph

import (
	"github.com/wudi/inkclean/raster"
)

// Kernel is a structuring element stored as the horizontal half-extent of
// each row, indexed from -Radius to +Radius. A negative extent marks an empty
// row.
type Kernel struct {
	Radius int
	Extent []int
}

// Ellipse returns an elliptical structuring element inscribed in a
// size×size square. Even sizes are rounded up to the next odd size.
func Ellipse(size int) Kernel {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	r := size / 2
	k := Kernel{Radius: r, Extent: make([]int, size)}
	if r == 0 {
		return k
	}
	rf := float64(r) + 0.5
	for dy := -r; dy <= r; dy++ {
		ext := -1
		for dx := 0; dx <= r; dx++ {
			fx, fy := float64(dx)/rf, float64(dy)/rf
			if fx*fx+fy*fy <= 1 {
				ext = dx
			}
		}
		k.Extent[dy+r] = ext
	}
	return k
}

// Contains reports whether offset (dx, dy) belongs to the kernel.
func (k Kernel) Contains(dx, dy int) bool {
	if dy < -k.Radius || dy > k.Radius {
		return false
	}
	ext := k.Extent[dy+k.Radius]
	return ext >= 0 && dx >= -ext && dx <= ext
}

// Dilate grows the foreground of m by k, repeated iterations times.
func Dilate(m *raster.Mask, k Kernel, iterations int) *raster.Mask {
	out := m
	for i := 0; i < iterations; i++ {
		out = dilateOnce(out, k)
	}
	if out == m {
		return m.Binarize(0)
	}
	return out
}

func dilateOnce(m *raster.Mask, k Kernel) *raster.Mask {
	w, h := m.Width, m.Height
	out := raster.NewMask(w, h)
	if w == 0 || h == 0 {
		return out
	}
	// prefix[y][x] counts foreground samples in row y before column x.
	prefix := make([]int32, h*(w+1))
	for y := 0; y < h; y++ {
		row := m.Row(y)
		p := prefix[y*(w+1) : (y+1)*(w+1)]
		for x, v := range row {
			p[x+1] = p[x]
			if v != 0 {
				p[x+1]++
			}
		}
	}
	for y := 0; y < h; y++ {
		dst := out.Row(y)
		for dy := -k.Radius; dy <= k.Radius; dy++ {
			sy := y + dy
			ext := k.Extent[dy+k.Radius]
			if sy < 0 || sy >= h || ext < 0 {
				continue
			}
			p := prefix[sy*(w+1) : (sy+1)*(w+1)]
			if p[w] == 0 {
				continue
			}
			for x := 0; x < w; x++ {
				if dst[x] != 0 {
					continue
				}
				lo, hi := max(x-ext, 0), min(x+ext+1, w)
				if p[hi]-p[lo] > 0 {
					dst[x] = 0xff
				}
			}
		}
	}
	return out
}

// Median applies a size×size median filter with replicated borders. For
// binary masks this is a majority vote over the window.
func Median(m *raster.Mask, size int) *raster.Mask {
	if size < 3 {
		return m.Clone()
	}
	if size%2 == 0 {
		size++
	}
	r := size / 2
	w, h := m.Width, m.Height
	out := raster.NewMask(w, h)
	window := make([]uint8, 0, size*size)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				sy := clamp(y+dy, 0, h-1)
				for dx := -r; dx <= r; dx++ {
					sx := clamp(x+dx, 0, w-1)
					window = append(window, m.Pix[sy*w+sx])
				}
			}
			out.Pix[y*w+x] = median(window)
		}
	}
	return out
}

func median(v []uint8) uint8 {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
	return v[len(v)/2]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
