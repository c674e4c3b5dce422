package ocr

import (
	"context"
	"fmt"

	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/recovery"
)

var defaultDetector Detector = noopDetector{}

// DefaultDetector returns the library's default detector (Tesseract when the
// ocr/tesseract package is linked in).
func DefaultDetector() Detector {
	return defaultDetector
}

// SetDefaultDetector sets the library's default detector.
func SetDefaultDetector(d Detector) {
	defaultDetector = d
}

// EngineError reports a detector failure together with the rows it covered.
type EngineError struct {
	Detector string
	RowStart int
	RowEnd   int
	Err      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("detector %s failed on rows %d-%d: %v", e.Detector, e.RowStart, e.RowEnd, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Chunks splits [0, height) into consecutive row ranges of at most chunkHeight
// rows. A non-positive chunkHeight yields a single range.
func Chunks(height, chunkHeight int) [][2]int {
	if height <= 0 {
		return nil
	}
	if chunkHeight <= 0 || chunkHeight >= height {
		return [][2]int{{0, height}}
	}
	out := make([][2]int, 0, (height+chunkHeight-1)/chunkHeight)
	for y := 0; y < height; y += chunkHeight {
		out = append(out, [2]int{y, min(y+chunkHeight, height)})
	}
	return out
}

// Chunking controls DetectChunked.
type Chunking struct {
	// Height bounds the rows per detector call. Zero sends the whole image.
	Height int
	// Progress, when non-nil, is called after each chunk.
	Progress func(done, total int)
	// Recovery decides whether a failed chunk aborts the scan. Nil fails.
	Recovery recovery.Strategy
}

// DetectChunked runs the detector over horizontal chunks of img so that very
// tall pages stay within the engine's memory limits. Polygons are returned in
// full-image coordinates. Batch detectors are used when no per-chunk progress
// or recovery is requested.
func DetectChunked(ctx context.Context, d Detector, img *raster.Image, ch Chunking, opts ...InputOption) ([]Detection, error) {
	chunks := Chunks(img.Height, ch.Height)
	inputs := make([]Input, 0, len(chunks))
	for i, c := range chunks {
		in := Input{
			ID:        fmt.Sprintf("chunk-%d", i),
			Image:     img.CropRows(c[0], c[1]),
			RowOffset: c[0],
		}
		for _, opt := range opts {
			opt(&in)
		}
		inputs = append(inputs, in)
	}

	if b, ok := d.(BatchDetector); ok && len(inputs) > 1 && ch.Progress == nil && ch.Recovery == nil {
		batches, err := b.DetectBatch(ctx, inputs)
		if err != nil {
			return nil, &EngineError{Detector: d.Name(), RowStart: 0, RowEnd: img.Height, Err: err}
		}
		var out []Detection
		for i, dets := range batches {
			for _, det := range dets {
				out = append(out, det.Translate(0, inputs[i].RowOffset))
			}
		}
		return out, nil
	}

	var out []Detection
	for i, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		dets, err := d.Detect(ctx, in)
		if err != nil {
			loc := recovery.Location{Component: d.Name(), RowStart: chunks[i][0], RowEnd: chunks[i][1]}
			if ch.Recovery == nil || ch.Recovery.OnError(ctx, err, loc) == recovery.ActionFail {
				return nil, &EngineError{Detector: d.Name(), RowStart: chunks[i][0], RowEnd: chunks[i][1], Err: err}
			}
			dets = nil
		}
		for _, det := range dets {
			out = append(out, det.Translate(0, in.RowOffset))
		}
		if ch.Progress != nil {
			ch.Progress(i+1, len(chunks))
		}
	}
	return out, nil
}

// NopDetector returns a detector that never finds text.
func NopDetector() Detector { return noopDetector{} }

type noopDetector struct{}

func (noopDetector) Name() string {
	return "noop"
}

func (noopDetector) Detect(ctx context.Context, input Input) ([]Detection, error) {
	return nil, nil
}
