package duck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/observe"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// Fade step constraints: discrete steps bound the IPC overhead of driving a
// platform mixer while staying perceptually smooth.
const (
	minFadeSteps    = 10
	minStepDuration = 50 * time.Millisecond
)

// errFadeInterrupted reports a ramp aborted by an emergency override.
var errFadeInterrupted = errors.New("duck: fade interrupted")

// errFaderClosed reports a ramp requested after coordinator shutdown.
var errFaderClosed = errors.New("duck: fader closed")

type fadeJob struct {
	ctx      context.Context
	gen      int64
	target   float64
	duration time.Duration
	done     chan error
}

// fader serializes volume ramps against one output bus. Jobs run strictly
// one at a time in submission order; a ramp submitted while another is in
// flight waits its turn rather than interleaving.
type fader struct {
	bus     audio.OutputBus
	jobs    chan fadeJob
	metrics *observe.Metrics
	log     *slog.Logger

	// quit stops the worker. jobs is never closed: a speech flow still in
	// flight at shutdown gets errFaderClosed from Ramp instead of a send
	// on a closed channel.
	quit      chan struct{}
	closeOnce sync.Once

	// gen invalidates ramps: a job aborts when the generation advances
	// after its token was issued (emergency override).
	gen atomic.Int64
}

func newFader(bus audio.OutputBus, metrics *observe.Metrics, log *slog.Logger) *fader {
	f := &fader{
		bus:     bus,
		jobs:    make(chan fadeJob, 8),
		metrics: metrics,
		log:     log,
		quit:    make(chan struct{}),
	}
	go f.worker()
	return f
}

// generation returns the interruption token for a ramp issued now. Capture
// it before publishing state that an Interrupt caller may react to, so an
// interrupt landing between publication and the ramp still aborts the ramp.
func (f *fader) generation() int64 {
	return f.gen.Load()
}

// Ramp fades the bus linearly to target over duration and blocks until the
// ramp (and every ramp queued ahead of it) completes. A non-positive
// duration sets the target in a single step.
func (f *fader) Ramp(ctx context.Context, target float64, duration time.Duration) error {
	return f.ramp(ctx, f.gen.Load(), target, duration)
}

// ramp is Ramp with an explicit interruption token.
func (f *fader) ramp(ctx context.Context, gen int64, target float64, duration time.Duration) error {
	job := fadeJob{ctx: ctx, gen: gen, target: target, duration: duration, done: make(chan error, 1)}
	select {
	case f.jobs <- job:
	case <-f.quit:
		return errFaderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.done:
		return err
	case <-f.quit:
		return errFaderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt aborts the in-flight ramp, if any, and invalidates every ramp
// token issued so far. The caller is expected to set the bus level itself
// immediately afterwards.
func (f *fader) Interrupt() {
	f.gen.Add(1)
}

// Close stops the worker. Safe to call more than once.
func (f *fader) Close() {
	f.closeOnce.Do(func() { close(f.quit) })
}

func (f *fader) worker() {
	for {
		select {
		case job := <-f.jobs:
			job.done <- f.run(job)
		case <-f.quit:
			return
		}
	}
}

func (f *fader) run(job fadeJob) error {
	start := time.Now()

	current, err := f.bus.Volume(job.ctx)
	if err != nil {
		return fmt.Errorf("duck: read bus volume: %w", err)
	}

	steps, stepDur := fadeSchedule(job.duration)
	var lastErr error
	for i := 1; i <= steps; i++ {
		if f.gen.Load() != job.gen {
			return errFadeInterrupted
		}
		level := current + (job.target-current)*float64(i)/float64(steps)
		if err := f.bus.SetVolume(job.ctx, level); err != nil {
			lastErr = err
			f.log.Warn("volume step failed", "level", level, "err", err)
		}
		if i < steps && stepDur > 0 {
			select {
			case <-job.ctx.Done():
				return job.ctx.Err()
			case <-time.After(stepDur):
			}
		}
	}
	if lastErr != nil {
		// Steps failed mid-ramp; make one direct attempt at the target so
		// the bus does not end up stranded at an intermediate level.
		if err := f.bus.SetVolume(job.ctx, job.target); err != nil {
			return fmt.Errorf("duck: set bus volume to %.2f: %w", job.target, err)
		}
	}
	if f.metrics != nil {
		f.metrics.FadeDuration.Record(job.ctx, time.Since(start).Seconds())
	}
	return nil
}

// fadeSchedule converts a fade duration into a step count and interval
// honouring the minimum-step constraints. A non-positive duration produces
// a single immediate step.
func fadeSchedule(d time.Duration) (steps int, stepDur time.Duration) {
	if d <= 0 {
		return 1, 0
	}
	steps = int(d / minStepDuration)
	if steps < minFadeSteps {
		steps = minFadeSteps
	}
	stepDur = d / time.Duration(steps)
	if stepDur < minStepDuration {
		stepDur = minStepDuration
	}
	return steps, stepDur
}
