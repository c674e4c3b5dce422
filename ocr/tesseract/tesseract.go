package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/wudi/inkclean/ocr"
)

func init() {
	ocr.SetDefaultDetector(NewDetector())
}

// languageCodes maps the short language codes used by the mask pipeline to
// Tesseract traineddata names.
var languageCodes = map[string]string{
	"en": "eng",
	"ko": "kor",
	"ja": "jpn",
	"zh": "chi_sim",
	"ar": "ara",
}

// Detector implements ocr.Detector and ocr.BatchDetector using the gosseract
// client. Text lines are reported as axis-aligned quadrilaterals.
type Detector struct {
	clientFactory func() *gosseract.Client
	level         gosseract.PageIteratorLevel
}

// NewDetector constructs a Tesseract-backed detector reporting text lines.
func NewDetector() *Detector {
	return &Detector{clientFactory: gosseract.NewClient, level: gosseract.RIL_TEXTLINE}
}

// WithWordLevel switches the detector to word granularity.
func (d *Detector) WithWordLevel() *Detector {
	d.level = gosseract.RIL_WORD
	return d
}

func (d *Detector) Name() string { return "tesseract" }

// Detect runs Tesseract on a single input.
func (d *Detector) Detect(ctx context.Context, in ocr.Input) ([]ocr.Detection, error) {
	c := d.clientFactory()
	defer c.Close()
	return d.detectWithClient(ctx, c, in)
}

// DetectBatch processes multiple inputs sequentially, one client per input.
func (d *Detector) DetectBatch(ctx context.Context, inputs []ocr.Input) ([][]ocr.Detection, error) {
	results := make([][]ocr.Detection, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c := d.clientFactory()
		res, err := d.detectWithClient(ctx, c, in)
		c.Close()
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Detector) detectWithClient(ctx context.Context, c *gosseract.Client, in ocr.Input) ([]ocr.Detection, error) {
	if in.Image == nil || in.Image.Empty() {
		return nil, nil
	}
	imgData, offset, err := encodeRegion(in.Image.ToStdImage(), in.Region)
	if err != nil {
		return nil, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if langs := TesseractLanguages(in.Languages); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if _, err := c.Text(); err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(d.level)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	return toDetections(boxes, offset), nil
}

// TesseractLanguages converts short language codes to traineddata names,
// passing unknown codes through unchanged.
func TesseractLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if code, ok := languageCodes[l]; ok {
			l = code
		}
		out = append(out, l)
	}
	return out
}

func toDetections(boxes []gosseract.BoundingBox, offset image.Point) []ocr.Detection {
	out := make([]ocr.Detection, 0, len(boxes))
	for _, b := range boxes {
		r := b.Box.Add(offset)
		if r.Empty() {
			continue
		}
		out = append(out, ocr.Detection{
			Polygon: []image.Point{
				r.Min,
				{X: r.Max.X, Y: r.Min.Y},
				r.Max,
				{X: r.Min.X, Y: r.Max.Y},
			},
			Text:       strings.TrimSpace(b.Word),
			Confidence: math.Max(0, math.Min(1, b.Confidence/100.0)),
		})
	}
	return out
}

func encodeRegion(img image.Image, region *ocr.Region) ([]byte, image.Point, error) {
	var offset image.Point
	if region != nil && !region.IsEmpty() {
		rect := region.Rect().Intersect(img.Bounds())
		if rect.Empty() {
			return nil, offset, fmt.Errorf("region outside image bounds")
		}
		subImg, ok := img.(interface {
			SubImage(r image.Rectangle) image.Image
		})
		if !ok {
			return nil, offset, fmt.Errorf("image does not support sub-image")
		}
		img = subImg.SubImage(rect)
		offset = rect.Min
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, offset, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), offset, nil
}
