package editor

import (
	"errors"
	"io"

	"github.com/wudi/inkclean/config"
	"github.com/wudi/inkclean/inpaint"
	"github.com/wudi/inkclean/observability"
	"github.com/wudi/inkclean/ocr"
)

// Services are the long-lived collaborators shared by sessions. They are
// built once at startup.
type Services struct {
	Detector ocr.Detector
	Model    inpaint.Model
	Config   config.Config
	Logger   observability.Logger
	Tracer   observability.Tracer
}

// Close releases the model and detector when they hold resources.
func (s *Services) Close() error {
	var errs []error
	if c, ok := s.Model.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.Detector.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
