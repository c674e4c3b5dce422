package main

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"

	"github.com/wudi/inkclean/config"
	"github.com/wudi/inkclean/editor"
	"github.com/wudi/inkclean/inpaint"
	"github.com/wudi/inkclean/inpaint/diffuse"
	"github.com/wudi/inkclean/inpaint/lama"
	"github.com/wudi/inkclean/jobs"
	"github.com/wudi/inkclean/observability"
	"github.com/wudi/inkclean/ocr"
	"github.com/wudi/inkclean/ocr/tesseract"
)

func newServices(cfg config.Config, logger pslog.Logger) (*editor.Services, error) {
	var det ocr.Detector
	switch cfg.Detect.Engine {
	case config.EngineTesseract:
		d := tesseract.NewDetector()
		if cfg.Detect.WordLevel {
			d = d.WithWordLevel()
		}
		det = d
	default:
		det = ocr.NopDetector()
	}

	var model inpaint.Model
	switch cfg.Model.Backend {
	case config.BackendLaMa:
		c, err := lama.New(lama.Config{
			URL:            cfg.Model.URL,
			ReleasePath:    cfg.Model.ReleasePath,
			AuthToken:      cfg.Model.AuthToken,
			RequestTimeout: cfg.Model.Timeout(),
			MaxConns:       cfg.Model.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		model = c
	default:
		model = diffuse.New(diffuse.Config{Iterations: cfg.Model.Iterations})
	}

	return &editor.Services{
		Detector: det,
		Model:    model,
		Config:   cfg,
		Logger:   observability.PSLog(logger),
	}, nil
}

// await drains the job's events, logging progress, and applies the result
// to the session.
func await(ctx context.Context, s *editor.Session, job *jobs.Job) error {
	logger := pslog.Ctx(ctx).With("job", job.ID(), "kind", string(job.Kind()))
	for ev := range job.Events() {
		switch ev.Type {
		case jobs.EventProgress:
			logger.Debug("job progress", "percent", ev.Progress)
		case jobs.EventFailed:
			return fmt.Errorf("%s failed: %w", job.Kind(), ev.Err)
		case jobs.EventDone:
			return s.Apply(ev.Result)
		}
	}
	return errors.New("job ended without a result")
}
