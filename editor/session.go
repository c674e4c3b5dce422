// Package editor is the interactive side of the pipeline. A Session owns the
// current image, its mask and the undo history; long operations run as jobs
// on cloned inputs and their results are applied back by the owner.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gg"

	"github.com/wudi/inkclean/history"
	"github.com/wudi/inkclean/inpaint"
	"github.com/wudi/inkclean/jobs"
	"github.com/wudi/inkclean/observability"
	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/recovery"
	"github.com/wudi/inkclean/textmask"
	"github.com/wudi/inkclean/tiling"
)

var (
	ErrNoImage   = errors.New("editor: no image loaded")
	ErrEmptyMask = errors.New("editor: mask is empty")
	// ErrStaleResult is returned by Apply when the image was replaced or
	// edited after the job was submitted.
	ErrStaleResult = errors.New("editor: result belongs to a previous image")
)

// Tool is the active mask brush.
type Tool int

const (
	ToolNone Tool = iota
	ToolPaint
	ToolErase
)

func (t Tool) String() string {
	switch t {
	case ToolPaint:
		return "paint"
	case ToolErase:
		return "erase"
	default:
		return "none"
	}
}

// MaskResult is the payload of a successful mask synthesis job.
type MaskResult struct {
	Mask       *raster.Mask
	Detections int
	Kept       int
	generation uint64
}

// InpaintResult is the payload of a successful inpainting job.
type InpaintResult struct {
	inpaint.Result
	generation uint64
	revision   uint64
}

type Session struct {
	svc   *Services
	log   observability.Logger
	jobs  *jobs.Coordinator
	synth *textmask.Synthesizer
	comp  *inpaint.Compositor

	mu         sync.Mutex
	image      *raster.Image
	mask       *raster.Mask
	history    *history.Manager
	tool       Tool
	generation uint64
	// revision counts pixel edits (applied inpaints and undos) to the
	// current image.
	revision uint64
}

func NewSession(svc *Services) *Session {
	log := observability.OrNop(svc.Logger)
	tmCfg := svc.Config.TextMask()
	tmCfg.Logger = log
	// Config.Validate has already checked the name.
	tmCfg.Recovery, _ = recovery.ForName(svc.Config.Detect.OnError, log)
	return &Session{
		svc:     svc,
		log:     log,
		jobs:    jobs.NewCoordinator(log),
		synth:   textmask.New(svc.Detector, tmCfg),
		comp:    inpaint.New(svc.Model, inpaint.Config{Logger: log, Tracer: svc.Tracer}),
		history: history.New(svc.Config.History.Depth),
	}
}

// Load replaces the current image and clears the mask and the history.
func (s *Session) Load(img *raster.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.mask = nil
	if img != nil {
		s.mask = raster.MaskFor(img)
	}
	s.history.Reset()
	s.generation++
}

func (s *Session) Image() *raster.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

func (s *Session) Mask() *raster.Mask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// SetMask replaces the mask, for example with one loaded from disk.
func (s *Session) SetMask(m *raster.Mask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}
	if err := raster.CheckSize(s.image, m); err != nil {
		return err
	}
	s.mask = m
	return nil
}

func (s *Session) ClearMask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image != nil {
		s.mask = raster.MaskFor(s.image)
	}
}

func (s *Session) SetTool(t Tool) {
	s.mu.Lock()
	s.tool = t
	s.mu.Unlock()
}

func (s *Session) Tool() Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// Busy reports whether a job is running.
func (s *Session) Busy() bool { return s.jobs.Busy() }

// HistoryLen returns the number of undoable edits.
func (s *Session) HistoryLen() int { return s.history.Len() }

// Stroke paints or erases a round-capped line of width brushSize into the
// mask, depending on the active tool. It does nothing for ToolNone.
func (s *Session) Stroke(from, to image.Point, brushSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return ErrNoImage
	}
	if s.tool == ToolNone || brushSize <= 0 {
		return nil
	}
	r := (brushSize + 1) / 2
	area := image.Rectangle{Min: from, Max: from}.Union(image.Rectangle{Min: to, Max: to})
	area = image.Rect(area.Min.X-r, area.Min.Y-r, area.Max.X+r+1, area.Max.Y+r+1).Intersect(s.mask.Bounds())
	if area.Empty() {
		return nil
	}

	dc := gg.NewContext(area.Dx(), area.Dy())
	defer dc.Close()
	dc.SetRGB(1, 1, 1)
	fx, fy := float64(from.X-area.Min.X)+0.5, float64(from.Y-area.Min.Y)+0.5
	if from == to {
		dc.DrawCircle(fx, fy, float64(brushSize)/2)
		if err := dc.Fill(); err != nil {
			return err
		}
	} else {
		dc.SetLineWidth(float64(brushSize))
		dc.SetLineCap(gg.LineCapRound)
		dc.MoveTo(fx, fy)
		dc.LineTo(float64(to.X-area.Min.X)+0.5, float64(to.Y-area.Min.Y)+0.5)
		if err := dc.Stroke(); err != nil {
			return err
		}
	}

	var value uint8
	if s.tool == ToolPaint {
		value = 255
	}
	brush := raster.MaskFromAlpha(dc.Image(), 127)
	for y := 0; y < brush.Height; y++ {
		dst := s.mask.Row(area.Min.Y + y)[area.Min.X:area.Max.X]
		for x, v := range brush.Row(y) {
			if v != 0 {
				dst[x] = value
			}
		}
	}
	return nil
}

// SynthesizeMask starts a mask synthesis job on a copy of the current image.
func (s *Session) SynthesizeMask(ctx context.Context, lang string) (*jobs.Job, error) {
	s.mu.Lock()
	if s.image == nil {
		s.mu.Unlock()
		return nil, ErrNoImage
	}
	img := s.image.Clone()
	gen := s.generation
	s.mu.Unlock()

	return s.jobs.Submit(ctx, jobs.KindMaskSynthesis, func(ctx context.Context, report jobs.Progress) (any, error) {
		res, err := s.synth.Synthesize(ctx, img, lang, report)
		if err != nil {
			return nil, err
		}
		return &MaskResult{Mask: res.Mask, Detections: res.Detections, Kept: res.Kept, generation: gen}, nil
	}, jobs.WithFingerprint(img.Pix, []byte(lang)))
}

// Inpaint starts an inpainting job over copies of the current image and
// mask. bands overrides the configured band count when positive. Input
// problems are reported here, before any job starts.
func (s *Session) Inpaint(ctx context.Context, bands int) (*jobs.Job, error) {
	opts := s.svc.Config.Inpaint(bands)
	s.mu.Lock()
	if s.image == nil {
		s.mu.Unlock()
		return nil, ErrNoImage
	}
	if err := raster.CheckSize(s.image, s.mask); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.mask.Binarize(opts.MaskThreshold).Any() {
		s.mu.Unlock()
		return nil, ErrEmptyMask
	}
	img, mask := s.image.Clone(), s.mask.Clone()
	gen, rev := s.generation, s.revision
	s.mu.Unlock()

	return s.jobs.Submit(ctx, jobs.KindInpainting, func(ctx context.Context, report jobs.Progress) (any, error) {
		res, err := s.comp.Run(ctx, img, mask, opts, report)
		if err != nil {
			return nil, err
		}
		return &InpaintResult{Result: res, generation: gen, revision: rev}, nil
	}, jobs.WithFingerprint(img.Pix, mask.Pix))
}

// Apply installs a job result. For inpainting the current rows of every
// touched range are saved to the history before the new image is swapped
// in; for mask synthesis the mask is replaced, or merged when configured.
func (s *Session) Apply(result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := result.(type) {
	case *InpaintResult:
		// The result image is a copy of the pixels at submission; any edit
		// since then would be overwritten outside the history's reach.
		if r.generation != s.generation || r.revision != s.revision || s.image == nil {
			return ErrStaleResult
		}
		entry := s.history.Begin()
		for _, rg := range r.Touched {
			if err := s.history.Capture(entry, s.image, rg.Start, rg.End); err != nil {
				return err
			}
		}
		s.image = r.Image
		s.revision++
		s.history.Commit(entry)
		s.log.Info("inpaint applied",
			observability.Int("ranges", len(r.Touched)),
			observability.Int(observability.MetricHistoryBytes, s.history.Bytes()))
		return nil
	case *MaskResult:
		if r.generation != s.generation || s.image == nil {
			return ErrStaleResult
		}
		if s.svc.Config.Mask.Merge && s.mask != nil {
			merged := s.mask.Clone()
			if err := merged.Union(r.Mask); err != nil {
				return err
			}
			s.mask = merged
			return nil
		}
		s.mask = r.Mask
		return nil
	default:
		return fmt.Errorf("editor: unexpected result %T", result)
	}
}

// Undo restores the rows saved by the last applied inpainting. It returns
// the restored ranges, or nil when there is nothing to undo.
func (s *Session) Undo() ([]tiling.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return nil, nil
	}
	// Images handed out by Image stay immutable; patches go into a copy.
	img := s.image.Clone()
	ranges, ok, err := s.history.Undo(img)
	if err != nil || !ok {
		return nil, err
	}
	s.image = img
	s.revision++
	return ranges, nil
}
