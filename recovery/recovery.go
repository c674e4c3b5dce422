// Package recovery decides whether a failure in one step of a multi-step scan
// aborts the whole scan or is skipped.
package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/inkclean/observability"
)

type Strategy interface {
	OnError(ctx context.Context, err error, loc Location) Action
}

// Location identifies the failed step.
type Location struct {
	Component string
	RowStart  int
	RowEnd    int
}

func (l Location) String() string {
	return fmt.Sprintf("%s rows %d-%d", l.Component, l.RowStart, l.RowEnd)
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
)

const (
	Strict  = "strict"
	Lenient = "lenient"
)

// ForName returns the strategy registered under name. An empty name selects
// the strict strategy.
func ForName(name string, log observability.Logger) (Strategy, error) {
	switch name {
	case "", Strict:
		return NewStrictStrategy(), nil
	case Lenient:
		return NewLenientStrategy(log), nil
	default:
		return nil, fmt.Errorf("unknown recovery strategy %q", name)
	}
}

// StrictStrategy fails on the first error.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, loc Location) Action {
	return ActionFail
}

// LenientStrategy skips failed steps, logging and recording each error.
type LenientStrategy struct {
	log observability.Logger

	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy(log observability.Logger) *LenientStrategy {
	return &LenientStrategy{log: observability.OrNop(log)}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, loc Location) Action {
	if ctx.Err() != nil {
		return ActionFail
	}
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s]: %w", loc, err))
	s.mu.Unlock()
	s.log.Warn("step skipped",
		observability.String("component", loc.Component),
		observability.Int("row_start", loc.RowStart),
		observability.Int("row_end", loc.RowEnd),
		observability.Error("err", err))
	return ActionSkip
}

// Errors returns the errors skipped so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
