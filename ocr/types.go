package ocr

import (
	"context"
	"image"

	"github.com/wudi/inkclean/raster"
)

// Region describes a rectangular area in pixel coordinates with the origin in
// the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Rect converts the region to integer pixel bounds.
func (r Region) Rect() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width+0.5), int(r.Y+r.Height+0.5))
}

// Input encapsulates a single image submitted for detection.
type Input struct {
	// ID is an optional caller-provided identifier used in logs and errors.
	ID string
	// Image is the raster to scan. Detectors must not modify or retain it.
	Image *raster.Image
	// RowOffset is the row of Image within the full page. Detectors report
	// polygons relative to Image; ChunkedDetect adds the offset back.
	RowOffset int
	// DPI carries the effective dots-per-inch for the image; zero means unknown.
	DPI int
	// Languages is a list of short language codes ("en", "ko", "ja", "zh")
	// that providers can use to select trained data.
	Languages []string
	// Region restricts detection to a subsection of the image. Nil means the
	// full image should be processed.
	Region *Region
	// Metadata allows callers to pass through engine-specific knobs without
	// hard-coding them into the API surface.
	Metadata map[string]string
}

// Detection is one text region reported by a detector.
type Detection struct {
	// Polygon outlines the region in image pixel coordinates, in order.
	Polygon []image.Point
	// Text is the recognized text, possibly empty.
	Text string
	// Confidence is in [0, 1].
	Confidence float64
}

// Bounds returns the bounding rectangle of the polygon.
func (d Detection) Bounds() image.Rectangle {
	if len(d.Polygon) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: d.Polygon[0], Max: d.Polygon[0].Add(image.Pt(1, 1))}
	for _, p := range d.Polygon[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}

// Translate returns a copy of the detection shifted by (dx, dy).
func (d Detection) Translate(dx, dy int) Detection {
	out := Detection{Text: d.Text, Confidence: d.Confidence, Polygon: make([]image.Point, len(d.Polygon))}
	for i, p := range d.Polygon {
		out.Polygon[i] = image.Pt(p.X+dx, p.Y+dy)
	}
	return out
}

// Detector is the detection provider contract: one image in, text regions out.
type Detector interface {
	Name() string
	Detect(ctx context.Context, input Input) ([]Detection, error)
}

// BatchDetector handles multiple images in a single call, enabling providers
// that amortize setup costs or remote round-trips.
type BatchDetector interface {
	Detector
	DetectBatch(ctx context.Context, inputs []Input) ([][]Detection, error)
}
