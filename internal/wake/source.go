package wake

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
)

// Event source identifiers.
const (
	SourceEngine    = "engine"
	SourceSimulated = "simulated"
	SourceManual    = "manual"
)

// Event is a candidate wake detection raised by a trigger source. Read-only
// once emitted.
type Event struct {
	// Confidence is the detection confidence in [0.0, 1.0].
	Confidence float64

	// Source identifies how the event was raised: "engine", "simulated"
	// or "manual".
	Source string

	// Transcript is the decoded candidate utterance, when available.
	Transcript string

	// Timestamp is when the candidate was raised.
	Timestamp time.Time
}

// TriggerSource produces candidate wake detections. Two implementations
// exist: engine-driven frame scoring and timer-driven simulation. The
// monitor depends only on this interface and applies the confidence
// threshold and cooldown itself.
type TriggerSource interface {
	// Run blocks, invoking emit for each candidate, until ctx is
	// cancelled. emit is called from Run's goroutine; it must not block
	// for long.
	Run(ctx context.Context, emit func(Event)) error

	// Name identifies the source for logs and the status snapshot.
	Name() string
}

// engineSource scores incoming audio frames with a wake detector.
type engineSource struct {
	detector wakeengine.Detector
	frames   <-chan audio.Frame
	log      *slog.Logger
}

func (s *engineSource) Name() string { return SourceEngine }

func (s *engineSource) Run(ctx context.Context, emit func(Event)) error {
	defer s.detector.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-s.frames:
			if !ok {
				return nil
			}
			score, err := s.detector.ProcessFrame(frame)
			if err != nil {
				// A malformed frame must not kill the monitor loop;
				// drop accumulated state and keep listening.
				s.log.Warn("frame scoring failed", "err", err)
				s.detector.Reset()
				continue
			}
			if score.Confidence == 0 {
				continue
			}
			emit(Event{
				Confidence: score.Confidence,
				Source:     SourceEngine,
				Transcript: score.Transcript,
				Timestamp:  time.Now(),
			})
		}
	}
}

// timerSource emits simulated detections on a jittered interval. It stands
// in for the engine when no real detector can be initialized, keeping the
// rest of the pipeline exercisable.
type timerSource struct {
	min, max time.Duration
}

func (s *timerSource) Name() string { return SourceSimulated }

func (s *timerSource) Run(ctx context.Context, emit func(Event)) error {
	for {
		interval := s.min
		if s.max > s.min {
			interval += rand.N(s.max - s.min)
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			emit(Event{
				Confidence: 0.85 + rand.Float64()*0.15,
				Source:     SourceSimulated,
				Timestamp:  time.Now(),
			})
		}
	}
}
