package ocr

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"

	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/recovery"
)

type recordingDetector struct {
	inputs []Input
	fail   int
}

func (r *recordingDetector) Name() string { return "recording" }

func (r *recordingDetector) Detect(ctx context.Context, in Input) ([]Detection, error) {
	r.inputs = append(r.inputs, in)
	if r.fail > 0 && len(r.inputs) == r.fail {
		return nil, errors.New("engine exploded")
	}
	return []Detection{{
		Polygon:    []image.Point{{1, 1}, {3, 1}, {3, 2}, {1, 2}},
		Text:       "hi",
		Confidence: 0.9,
	}}, nil
}

func TestChunks(t *testing.T) {
	got := Chunks(4500, 2000)
	want := [][2]int{{0, 2000}, {2000, 4000}, {4000, 4500}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Chunks() = %v, want %v", got, want)
	}
	if got := Chunks(100, 0); !reflect.DeepEqual(got, [][2]int{{0, 100}}) {
		t.Fatalf("Chunks(100, 0) = %v", got)
	}
	if Chunks(0, 10) != nil {
		t.Fatalf("empty height must yield no chunks")
	}
}

func TestDetectChunkedTranslatesPolygons(t *testing.T) {
	img := raster.NewImage(8, 25, 3)
	d := &recordingDetector{}
	var calls []int
	dets, err := DetectChunked(context.Background(), d, img, Chunking{Height: 10, Progress: func(done, total int) {
		if total != 3 {
			t.Fatalf("total = %d", total)
		}
		calls = append(calls, done)
	}}, WithLanguages("ko"))
	if err != nil {
		t.Fatalf("DetectChunked() error = %v", err)
	}
	if len(dets) != 3 {
		t.Fatalf("expected 3 detections, got %d", len(dets))
	}
	if dets[2].Polygon[0] != image.Pt(1, 21) {
		t.Fatalf("polygon not translated: %v", dets[2].Polygon)
	}
	if d.inputs[2].Image.Height != 5 || d.inputs[2].RowOffset != 20 {
		t.Fatalf("unexpected last chunk: h=%d off=%d", d.inputs[2].Image.Height, d.inputs[2].RowOffset)
	}
	if !reflect.DeepEqual(d.inputs[0].Languages, []string{"ko"}) {
		t.Fatalf("options not applied: %+v", d.inputs[0].Languages)
	}
	if !reflect.DeepEqual(calls, []int{1, 2, 3}) {
		t.Fatalf("progress calls = %v", calls)
	}
}

func TestDetectChunkedWrapsEngineError(t *testing.T) {
	img := raster.NewImage(4, 30, 1)
	_, err := DetectChunked(context.Background(), &recordingDetector{fail: 2}, img, Chunking{Height: 10})
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if engErr.RowStart != 10 || engErr.RowEnd != 20 {
		t.Fatalf("unexpected rows: %d-%d", engErr.RowStart, engErr.RowEnd)
	}
}

func TestDetectChunkedLenientSkipsFailedChunk(t *testing.T) {
	img := raster.NewImage(4, 30, 1)
	rec := recovery.NewLenientStrategy(nil)
	dets, err := DetectChunked(context.Background(), &recordingDetector{fail: 2}, img, Chunking{Height: 10, Recovery: rec})
	if err != nil {
		t.Fatalf("DetectChunked() error = %v", err)
	}
	if len(dets) != 2 || dets[1].Polygon[0] != image.Pt(1, 21) {
		t.Fatalf("unexpected detections %v", dets)
	}
	if len(rec.Errors()) != 1 {
		t.Fatalf("skipped errors = %v", rec.Errors())
	}
}

type batchDetector struct {
	recordingDetector
	batches int
}

func (b *batchDetector) DetectBatch(ctx context.Context, inputs []Input) ([][]Detection, error) {
	b.batches++
	out := make([][]Detection, len(inputs))
	for i, in := range inputs {
		dets, err := b.Detect(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = dets
	}
	return out, nil
}

func TestDetectChunkedUsesBatch(t *testing.T) {
	img := raster.NewImage(4, 30, 1)
	b := &batchDetector{}
	dets, err := DetectChunked(context.Background(), b, img, Chunking{Height: 10})
	if err != nil {
		t.Fatalf("DetectChunked() error = %v", err)
	}
	if b.batches != 1 || len(dets) != 3 || dets[2].Polygon[0] != image.Pt(1, 21) {
		t.Fatalf("batches=%d dets=%v", b.batches, dets)
	}
	b = &batchDetector{}
	if _, err := DetectChunked(context.Background(), b, img, Chunking{Height: 10, Progress: func(int, int) {}}); err != nil {
		t.Fatalf("DetectChunked() error = %v", err)
	}
	if b.batches != 0 || len(b.inputs) != 3 {
		t.Fatalf("progress reporting must use per-chunk calls")
	}
}

func TestDetectionBounds(t *testing.T) {
	d := Detection{Polygon: []image.Point{{2, 5}, {9, 4}, {7, 12}}}
	if got := d.Bounds(); got != image.Rect(2, 4, 10, 13) {
		t.Fatalf("Bounds() = %v", got)
	}
}

func TestNoopDetector(t *testing.T) {
	dets, err := DefaultDetector().Detect(context.Background(), Input{})
	if err != nil || dets != nil {
		t.Fatalf("noop detector returned %v, %v", dets, err)
	}
}
