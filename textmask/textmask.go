// Package textmask turns raw text detections into a pixel mask that covers
// the glyphs of each plausible detection, ready for inpainting.
//
// For every detection the polygon is rasterized, intersected with the ink and
// glow pixels inside it, and cleaned of tiny specks. The union of all kept
// components is finally grown with an elliptical dilation and smoothed with a
// median filter.
package textmask

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/gogpu/gg"

	"github.com/wudi/inkclean/morph"
	"github.com/wudi/inkclean/observability"
	"github.com/wudi/inkclean/ocr"
	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/recovery"
)

// ErrNoImage is returned when Synthesize is given an empty image.
var ErrNoImage = errors.New("textmask: no image")

type Config struct {
	// MinConfidence keeps detections whose text fails the language check
	// when their confidence reaches it.
	MinConfidence float64
	// InkThreshold selects pixels whose gray level is at most this value.
	InkThreshold uint8
	// GlowThreshold selects pixels whose HSV saturation exceeds this value.
	GlowThreshold uint8
	// MinComponentArea drops connected components of at most this many
	// pixels.
	MinComponentArea int
	// DilateKernel is the diameter of the elliptical dilation element. Zero
	// disables dilation.
	DilateKernel     int
	DilateIterations int
	// MedianSize is the median filter window. Zero disables it.
	MedianSize int
	// ChunkHeight bounds the rows sent to the detector at once. Zero sends
	// the whole image.
	ChunkHeight int
	// DPI is passed to the detector when positive.
	DPI int
	// DetectOptions are appended to every detector input.
	DetectOptions []ocr.InputOption
	// Recovery decides whether a failed detection chunk aborts the scan.
	// Nil aborts.
	Recovery recovery.Strategy
	Logger   observability.Logger
}

func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.3,
		InkThreshold:     200,
		GlowThreshold:    45,
		MinComponentArea: 5,
		DilateKernel:     9,
		DilateIterations: 1,
		MedianSize:       3,
		ChunkHeight:      2000,
	}
}

// Result is the output of a scan.
type Result struct {
	Mask       *raster.Mask
	Detections int
	Kept       int
}

type Synthesizer struct {
	detector ocr.Detector
	cfg      Config
	log      observability.Logger
}

func New(detector ocr.Detector, cfg Config) *Synthesizer {
	if detector == nil {
		detector = ocr.DefaultDetector()
	}
	return &Synthesizer{detector: detector, cfg: cfg, log: observability.OrNop(cfg.Logger)}
}

// Synthesize scans img and returns a mask of the text that plausibly belongs
// to lang. progress, when non-nil, receives percentages: detection covers
// 0..90 and the final morphology reports 100. No detections yield an empty
// mask. A detector failure is returned as an *ocr.EngineError.
func (s *Synthesizer) Synthesize(ctx context.Context, img *raster.Image, lang string, progress func(int)) (Result, error) {
	if img.Empty() {
		return Result{}, ErrNoImage
	}
	report := func(p int) {
		if progress != nil {
			progress(p)
		}
	}
	start := time.Now()

	var opts []ocr.InputOption
	if lang != "" {
		opts = append(opts, ocr.WithLanguages(lang))
	}
	if s.cfg.DPI > 0 {
		opts = append(opts, ocr.WithDPI(s.cfg.DPI))
	}
	opts = append(opts, s.cfg.DetectOptions...)
	dets, err := ocr.DetectChunked(ctx, s.detector, img, ocr.Chunking{
		Height:   s.cfg.ChunkHeight,
		Progress: func(done, total int) { report(done * 90 / total) },
		Recovery: s.cfg.Recovery,
	}, opts...)
	if err != nil {
		return Result{}, err
	}

	res := Result{Mask: raster.MaskFor(img), Detections: len(dets)}
	gray := img.Gray()
	sat := img.Saturation()
	for _, d := range dets {
		if !Plausible(d.Text, lang) && d.Confidence < s.cfg.MinConfidence {
			s.log.Debug("detection dropped",
				observability.String("text", d.Text),
				observability.Float("confidence", d.Confidence))
			continue
		}
		if err := s.paint(res.Mask, d, gray, sat); err != nil {
			return Result{}, err
		}
		res.Kept++
	}

	if s.cfg.DilateKernel > 0 && s.cfg.DilateIterations > 0 {
		res.Mask = morph.Dilate(res.Mask, morph.Ellipse(s.cfg.DilateKernel), s.cfg.DilateIterations)
	}
	if s.cfg.MedianSize > 1 {
		res.Mask = morph.Median(res.Mask, s.cfg.MedianSize)
	}
	report(100)

	s.log.Info("text mask synthesized",
		observability.String("detector", s.detector.Name()),
		observability.String("lang", lang),
		observability.Int(observability.MetricDetections, res.Detections),
		observability.Int("kept", res.Kept),
		observability.Int(observability.MetricMaskPixels, res.Mask.Count()),
		observability.Duration(observability.MetricScanTime, time.Since(start)))
	return res, nil
}

// paint adds the glyph pixels of one detection to out.
func (s *Synthesizer) paint(out *raster.Mask, d ocr.Detection, gray, sat []uint8) error {
	bounds := d.Bounds().Intersect(out.Bounds())
	if bounds.Empty() {
		return nil
	}
	poly, err := fillPolygon(d.Polygon, bounds)
	if err != nil {
		return err
	}
	local := raster.NewMask(bounds.Dx(), bounds.Dy())
	for y := 0; y < local.Height; y++ {
		gy := bounds.Min.Y + y
		for x := 0; x < local.Width; x++ {
			if poly.At(x, y) == 0 {
				continue
			}
			i := gy*out.Width + bounds.Min.X + x
			if gray[i] <= s.cfg.InkThreshold || sat[i] > s.cfg.GlowThreshold {
				local.Set(x, y, 255)
			}
		}
	}
	kept := morph.FillHoles(morph.KeepLarger(local, s.cfg.MinComponentArea))
	for y := 0; y < kept.Height; y++ {
		dst := out.Row(bounds.Min.Y + y)[bounds.Min.X:bounds.Max.X]
		for x, v := range kept.Row(y) {
			if v != 0 {
				dst[x] = 255
			}
		}
	}
	return nil
}

// fillPolygon rasterizes poly into a mask covering bounds. Vertices are pixel
// coordinates and pixels on the outline count as inside.
func fillPolygon(poly []image.Point, bounds image.Rectangle) (*raster.Mask, error) {
	w, h := bounds.Dx(), bounds.Dy()
	m := raster.NewMask(w, h)
	if len(poly) < 3 {
		for _, p := range poly {
			m.Set(p.X-bounds.Min.X, p.Y-bounds.Min.Y, 255)
		}
		return m, nil
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.SetRGB(1, 1, 1)
	dc.SetFillRule(gg.FillRuleNonZero)
	dc.SetLineWidth(1)
	for i, p := range poly {
		x := float64(p.X-bounds.Min.X) + 0.5
		y := float64(p.Y-bounds.Min.Y) + 0.5
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
	if err := dc.FillPreserve(); err != nil {
		return nil, err
	}
	if err := dc.Stroke(); err != nil {
		return nil, err
	}

	return raster.MaskFromAlpha(dc.Image(), 127), nil
}
