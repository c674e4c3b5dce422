// Package jobs runs long edit operations on a background goroutine, one at a
// time, and reports their progress and outcome as a stream of events.
package jobs

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/inkclean/observability"
)

// ErrBusy is returned by Submit while another job is running.
var ErrBusy = errors.New("jobs: another job is running")

// Kind names the operation a job performs.
type Kind string

const (
	KindMaskSynthesis Kind = "mask-synthesis"
	KindInpainting    Kind = "inpainting"
)

// State models the lifecycle of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventFailed   EventType = "failed"
)

// Event is delivered on Job.Events. Result is set for EventDone and Err for
// EventFailed.
type Event struct {
	Type     EventType
	Progress int
	Result   any
	Err      error
}

// Status is a snapshot of a job.
type Status struct {
	State    State
	Progress int
	Message  string
}

// Progress reports completion as a percentage. Values are clamped to
// [0,100]; values not above the last reported one are dropped.
type Progress func(percent int)

// Func is the work of a job.
type Func func(ctx context.Context, report Progress) (any, error)

// eventCapacity covers 101 distinct progress values plus the terminal event.
const eventCapacity = 102

// Job is a submitted unit of work.
type Job struct {
	id     string
	kind   Kind
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	status Status
	result any
	err    error
	last   int
	closed bool
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() Kind { return j.kind }

// Events returns the job's event stream. It yields non-decreasing progress
// events, then exactly one EventDone or EventFailed, and is then closed.
func (j *Job) Events() <-chan Event { return j.events }

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) report(percent int) {
	percent = min(max(percent, 0), 100)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || percent <= j.last {
		return
	}
	j.last = percent
	j.status.Progress = percent
	j.events <- Event{Type: EventProgress, Progress: percent}
}

func (j *Job) finish(result any, err error) Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	j.result, j.err = result, err
	if err != nil {
		j.status.State = StateFailed
		j.status.Message = err.Error()
		return Event{Type: EventFailed, Progress: j.status.Progress, Err: err}
	}
	j.status.State = StateSucceeded
	j.status.Progress = 100
	return Event{Type: EventDone, Progress: 100, Result: result}
}

// Coordinator admits at most one running job.
type Coordinator struct {
	log observability.Logger

	mu      sync.Mutex
	current *Job
	seq     uint64
}

func NewCoordinator(log observability.Logger) *Coordinator {
	return &Coordinator{log: observability.OrNop(log)}
}

// Busy reports whether a job is running.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Current returns the running job, if any.
func (c *Coordinator) Current() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

type submitOptions struct {
	fingerprint [][]byte
}

type SubmitOption func(*submitOptions)

// WithFingerprint mixes the given input snapshot into the job ID.
func WithFingerprint(data ...[]byte) SubmitOption {
	return func(o *submitOptions) { o.fingerprint = append(o.fingerprint, data...) }
}

// Submit starts fn on a new goroutine. It fails with ErrBusy without
// queueing when a job is already running. ctx is handed to fn.
func (c *Coordinator) Submit(ctx context.Context, kind Kind, fn Func, opts ...SubmitOption) (*Job, error) {
	if fn == nil {
		return nil, errors.New("jobs: nil func")
	}
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	c.mu.Lock()
	if c.current != nil {
		running := c.current
		c.mu.Unlock()
		c.log.Warn("job rejected",
			observability.String("kind", string(kind)),
			observability.String("running", running.id),
			observability.Int(observability.MetricJobsRejected, 1))
		return nil, fmt.Errorf("%w: %s %s", ErrBusy, running.kind, running.id)
	}
	c.seq++
	job := &Job{
		id:     jobID(kind, c.seq, so.fingerprint),
		kind:   kind,
		events: make(chan Event, eventCapacity),
		done:   make(chan struct{}),
		status: Status{State: StatePending},
		last:   -1,
	}
	c.current = job
	c.mu.Unlock()

	go c.run(ctx, job, fn)
	return job, nil
}

func (c *Coordinator) run(ctx context.Context, job *Job, fn Func) {
	log := c.log.With(observability.String("job", job.id), observability.String("kind", string(job.kind)))
	start := time.Now()
	job.mu.Lock()
	job.status.State = StateRunning
	job.mu.Unlock()
	log.Debug("job started")

	result, err := call(ctx, fn, job.report)
	terminal := job.finish(result, err)

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if err != nil {
		log.Warn("job failed", observability.Error("err", err), observability.Duration(observability.MetricJobTime, time.Since(start)))
	} else {
		log.Info("job finished", observability.Duration(observability.MetricJobTime, time.Since(start)))
	}
	job.events <- terminal
	close(job.events)
	close(job.done)
}

func call(ctx context.Context, fn Func, report Progress) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("jobs: panic: %v", r)
		}
	}()
	return fn(ctx, report)
}

func jobID(kind Kind, seq uint64, fingerprint [][]byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(kind))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], seq)
	h.Write(n[:])
	for _, b := range fingerprint {
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)[:6])
}
