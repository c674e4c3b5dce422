// Package tiling partitions an image into horizontal bands for tiled
// inpainting. Each band owns a contiguous core range of rows and reads a
// cropped range that extends the core by an overlap margin on each side that
// borders another band. Overlapping rows are resolved with linear feather
// weights that sum to one across neighbouring bands, so the order in which
// bands are processed does not affect the composite.
package tiling

import (
	"fmt"

	"github.com/wudi/inkclean/raster"
)

// DefaultOverlap is the overlap margin used when Options.Overlap is negative.
const DefaultOverlap = 64

// Range is a half-open row interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether row y is inside the range.
func (r Range) Contains(y int) bool { return y >= r.Start && y < r.End }

// Overlaps reports whether the two ranges share at least one row.
func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Options controls how a plan is built.
type Options struct {
	// Bands is the requested number of bands. Zero derives the count from
	// MaxBandHeight.
	Bands int
	// MaxBandHeight bounds the core height when Bands is zero.
	MaxBandHeight int
	// Overlap is the margin added on each shared side. Negative selects
	// DefaultOverlap.
	Overlap int
	// AutoSplitHeight forces at least two bands for images taller than this.
	// Zero disables the rule.
	AutoSplitHeight int
}

// Band is one horizontal tile.
type Band struct {
	Index   int
	Core    Range
	Crop    Range
	overlap int
	top     bool // shares its top boundary with a neighbour
	bottom  bool // shares its bottom boundary with a neighbour
}

// Plan is an ordered partition of an image height into bands.
type Plan struct {
	Height  int
	Overlap int
	Bands   []Band
}

// BandCount resolves the effective number of bands for an image height.
func BandCount(height int, opts Options) int {
	n := 1
	switch {
	case opts.Bands > 0:
		n = opts.Bands
	case opts.MaxBandHeight > 0:
		n = (height + opts.MaxBandHeight - 1) / opts.MaxBandHeight
	}
	if opts.AutoSplitHeight > 0 && height > opts.AutoSplitHeight && n < 2 {
		n = 2
	}
	if n > height {
		n = height
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New builds a plan for an image of the given height.
func New(height int, opts Options) Plan {
	overlap := opts.Overlap
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	p := Plan{Height: height, Overlap: overlap}
	if height <= 0 {
		return p
	}
	n := BandCount(height, opts)
	step := height / n
	p.Bands = make([]Band, n)
	for i := 0; i < n; i++ {
		core := Range{Start: i * step, End: (i + 1) * step}
		if i == n-1 {
			core.End = height
		}
		b := Band{
			Index:   i,
			Core:    core,
			overlap: overlap,
			top:     i > 0,
			bottom:  i < n-1,
		}
		b.Crop = Range{Start: core.Start, End: core.End}
		if b.top {
			b.Crop.Start = max(0, core.Start-overlap)
		}
		if b.bottom {
			b.Crop.End = min(height, core.End+overlap)
		}
		p.Bands[i] = b
	}
	return p
}

// Weight returns the feather weight of row y for this band. Rows inside the
// core and farther than the overlap from a shared boundary weigh 1. Across a
// shared boundary b the weight ramps linearly over [b-overlap, b+overlap) so
// that the weights of the two neighbours sum to 1 and each is 0.5 at b. Image
// edges have no ramp. Rows outside the cropped range weigh 0.
func (b Band) Weight(y int) float64 {
	if !b.Crop.Contains(y) {
		return 0
	}
	if b.overlap == 0 {
		if b.Core.Contains(y) {
			return 1
		}
		return 0
	}
	w := 1.0
	span := float64(2 * b.overlap)
	fy := float64(y) + 0.5
	if b.top {
		w = min(w, clamp01((fy-float64(b.Core.Start-b.overlap))/span))
	}
	if b.bottom {
		w = min(w, clamp01((float64(b.Core.End+b.overlap)-fy)/span))
	}
	return w
}

// Weights returns Weight for every row of the cropped range, in order.
func (b Band) Weights() []float64 {
	out := make([]float64, b.Crop.Len())
	for i := range out {
		out[i] = b.Weight(b.Crop.Start + i)
	}
	return out
}

// Active returns the bands whose cropped rows contain at least one selected
// mask sample. Bands without selected samples need no inference.
func (p Plan) Active(mask *raster.Mask) []Band {
	var out []Band
	for _, b := range p.Bands {
		if mask.AnyRows(b.Crop.Start, b.Crop.End) {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks the partition invariants: cores are contiguous, disjoint
// and cover [0, Height); crops lie within [0, Height) and contain their core.
func (p Plan) Validate() error {
	next := 0
	for i, b := range p.Bands {
		if b.Core.Start != next || b.Core.Len() <= 0 {
			return fmt.Errorf("band %d core %v does not continue at row %d", i, b.Core, next)
		}
		if b.Crop.Start < 0 || b.Crop.End > p.Height || b.Crop.Start > b.Core.Start || b.Crop.End < b.Core.End {
			return fmt.Errorf("band %d crop %v invalid for core %v", i, b.Crop, b.Core)
		}
		next = b.Core.End
	}
	if next != p.Height {
		return fmt.Errorf("cores end at row %d, want %d", next, p.Height)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
