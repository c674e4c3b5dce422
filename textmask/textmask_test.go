package textmask

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"

	"github.com/wudi/inkclean/ocr"
	"github.com/wudi/inkclean/raster"
)

type fakeDetector struct {
	dets []ocr.Detection
	err  error
	seen []ocr.Input
}

func (f *fakeDetector) Name() string { return "fake" }

func (f *fakeDetector) Detect(ctx context.Context, in ocr.Input) ([]ocr.Detection, error) {
	f.seen = append(f.seen, in)
	if f.err != nil {
		return nil, f.err
	}
	if in.RowOffset != 0 {
		return nil, nil
	}
	return f.dets, nil
}

func rect(x0, y0, x1, y1 int) []image.Point {
	return []image.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func whitePage(w, h int) *raster.Image {
	img := raster.NewImage(w, h, 3)
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fill(img *raster.Image, x0, y0, x1, y1 int, c [3]uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			copy(img.Row(y)[3*x:3*x+3], c[:])
		}
	}
}

func rawConfig() Config {
	cfg := DefaultConfig()
	cfg.DilateKernel = 0
	cfg.MedianSize = 0
	cfg.ChunkHeight = 0
	return cfg
}

func TestSynthesizeKeepsInkInsidePolygon(t *testing.T) {
	img := whitePage(60, 30)
	fill(img, 10, 10, 20, 15, [3]uint8{0, 0, 0})
	fill(img, 40, 10, 50, 15, [3]uint8{0, 0, 0})
	fill(img, 21, 16, 23, 17, [3]uint8{0, 0, 0})
	det := &fakeDetector{dets: []ocr.Detection{{Polygon: rect(8, 8, 24, 18), Text: "hello", Confidence: 0.9}}}

	res, err := New(det, rawConfig()).Synthesize(context.Background(), img, "en", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Detections != 1 || res.Kept != 1 {
		t.Fatalf("detections=%d kept=%d", res.Detections, res.Kept)
	}
	if res.Mask.At(12, 12) != 255 {
		t.Fatalf("ink inside the polygon is not selected")
	}
	if res.Mask.At(45, 12) != 0 {
		t.Fatalf("ink outside every polygon is selected")
	}
	if res.Mask.At(21, 16) != 0 {
		t.Fatalf("small speck should be dropped")
	}
	if got := res.Mask.Count(); got != 50 {
		t.Fatalf("mask pixels = %d, want 50", got)
	}
	if langs := det.seen[0].Languages; !reflect.DeepEqual(langs, []string{"en"}) {
		t.Fatalf("language hints = %v", langs)
	}
}

func TestSynthesizeDropsImplausibleLowConfidence(t *testing.T) {
	img := whitePage(40, 20)
	fill(img, 5, 5, 15, 10, [3]uint8{0, 0, 0})
	fill(img, 25, 5, 35, 10, [3]uint8{0, 0, 0})
	det := &fakeDetector{dets: []ocr.Detection{
		{Polygon: rect(3, 3, 17, 12), Text: "hello", Confidence: 0.1},
		{Polygon: rect(23, 3, 37, 12), Text: "world", Confidence: 0.5},
	}}
	res, err := New(det, rawConfig()).Synthesize(context.Background(), img, "ko", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Kept != 1 {
		t.Fatalf("kept = %d, want 1", res.Kept)
	}
	if res.Mask.At(10, 7) != 0 {
		t.Fatalf("low confidence wrong-script detection was kept")
	}
	if res.Mask.At(30, 7) != 255 {
		t.Fatalf("confident detection was dropped")
	}
}

func TestSynthesizeSelectsGlow(t *testing.T) {
	glow := [3]uint8{255, 255, 100}
	img := whitePage(30, 20)
	fill(img, 5, 5, 15, 12, glow)
	det := &fakeDetector{dets: []ocr.Detection{{Polygon: rect(2, 2, 20, 15), Text: "abc", Confidence: 1}}}

	res, err := New(det, rawConfig()).Synthesize(context.Background(), img, "en", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Mask.Count() != 70 {
		t.Fatalf("glow pixels selected = %d, want 70", res.Mask.Count())
	}

	gray := img.WithChannels(1)
	res, err = New(det, rawConfig()).Synthesize(context.Background(), gray, "en", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Mask.Any() {
		t.Fatalf("grayscale images have no glow")
	}
}

func TestSynthesizeDilatesAndSmooths(t *testing.T) {
	img := whitePage(40, 40)
	fill(img, 15, 15, 25, 25, [3]uint8{0, 0, 0})
	det := &fakeDetector{dets: []ocr.Detection{{Polygon: rect(10, 10, 30, 30), Text: "x", Confidence: 1}}}
	cfg := DefaultConfig()
	res, err := New(det, cfg).Synthesize(context.Background(), img, "en", nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Mask.At(12, 20) != 255 {
		t.Fatalf("dilation did not grow the mask")
	}
	if res.Mask.At(5, 20) != 0 {
		t.Fatalf("dilation grew too far")
	}
}

func TestSynthesizeNoDetections(t *testing.T) {
	img := whitePage(10, 10)
	var seen []int
	res, err := New(&fakeDetector{}, DefaultConfig()).Synthesize(context.Background(), img, "", func(p int) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Mask.Any() {
		t.Fatalf("expected an empty mask")
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("progress = %v", seen)
	}
}

func TestSynthesizeProgressPerChunk(t *testing.T) {
	img := whitePage(10, 30)
	cfg := DefaultConfig()
	cfg.ChunkHeight = 10
	var seen []int
	det := &fakeDetector{}
	if _, err := New(det, cfg).Synthesize(context.Background(), img, "en", func(p int) { seen = append(seen, p) }); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !reflect.DeepEqual(seen, []int{30, 60, 90, 100}) {
		t.Fatalf("progress = %v", seen)
	}
	if len(det.seen) != 3 || det.seen[2].RowOffset != 20 {
		t.Fatalf("chunks = %d", len(det.seen))
	}
}

func TestSynthesizeDetectorFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("engine crashed")}
	_, err := New(det, DefaultConfig()).Synthesize(context.Background(), whitePage(5, 5), "en", nil)
	var engErr *ocr.EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if _, err := New(det, DefaultConfig()).Synthesize(context.Background(), raster.NewImage(0, 0, 3), "en", nil); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestFillPolygonIncludesOutline(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	m, err := fillPolygon(rect(2, 3, 6, 7), bounds)
	if err != nil {
		t.Fatalf("fillPolygon() error = %v", err)
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			inside := x >= 2 && x <= 6 && y >= 3 && y <= 7
			if (m.At(x, y) != 0) != inside {
				t.Fatalf("pixel (%d,%d) inside=%v mask=%d", x, y, inside, m.At(x, y))
			}
		}
	}
}

func TestPlausible(t *testing.T) {
	cases := []struct {
		text, lang string
		want       bool
	}{
		{"안녕하세요", "ko", true},
		{"hello", "ko", false},
		{"こんにちは", "ja", true},
		{"漢字", "ja", true},
		{"hello", "ja", false},
		{"你好", "zh", true},
		{"こんにちは", "zh", false},
		{"hello", "en", true},
		{"ｈｅｌｌｏ", "en", true},
		{"hello 안녕", "en", false},
		{"123", "en", false},
		{"مرحبا", "ar", true},
		{"", "ar", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := Plausible(tc.text, tc.lang); got != tc.want {
			t.Fatalf("Plausible(%q, %q) = %v, want %v", tc.text, tc.lang, got, tc.want)
		}
	}
}
