// Package mock provides test doubles for the wakeengine package interfaces.
//
// Use Engine to verify detector construction and to script a creation
// failure (the monitor's simulated-fallback path). Use Detector to feed
// scripted scores to the monitor loop.
package mock

import (
	"context"
	"sync"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
)

// NewDetectorCall records a single Engine.NewDetector invocation.
type NewDetectorCall struct {
	// Cfg is the Config passed to NewDetector.
	Cfg wakeengine.Config
}

// Engine is a mock implementation of wakeengine.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, a fresh default
	// Detector is returned.
	Detector wakeengine.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records every call to NewDetector in order.
	NewDetectorCalls []NewDetectorCall
}

// Compile-time interface assertion.
var _ wakeengine.Engine = (*Engine)(nil)

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(_ context.Context, cfg wakeengine.Config) (wakeengine.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, NewDetectorCall{Cfg: cfg})
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// Detector is a mock implementation of wakeengine.Detector that returns
// scripted scores in order, then zeroes.
type Detector struct {
	mu sync.Mutex

	// Scores are returned by successive ProcessFrame calls. Once exhausted,
	// ProcessFrame returns zero scores.
	Scores []wakeengine.Score

	// ProcessErr, if non-nil, is returned by every ProcessFrame call.
	ProcessErr error

	// Frames records every frame submitted for processing.
	Frames []audio.Frame

	// ResetCalls counts Reset invocations.
	ResetCalls int

	closed bool
}

// Compile-time interface assertion.
var _ wakeengine.Detector = (*Detector)(nil)

// ProcessFrame records the frame and pops the next scripted score.
func (d *Detector) ProcessFrame(frame audio.Frame) (wakeengine.Score, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, frame)
	if d.ProcessErr != nil {
		return wakeengine.Score{}, d.ProcessErr
	}
	if len(d.Scores) == 0 {
		return wakeengine.Score{}, nil
	}
	s := d.Scores[0]
	d.Scores = d.Scores[1:]
	return s, nil
}

// PushScore appends a score for a future ProcessFrame call. Thread-safe.
func (d *Detector) PushScore(s wakeengine.Score) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Scores = append(d.Scores, s)
}

// Reset increments ResetCalls.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
}

// Close marks the detector closed.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
