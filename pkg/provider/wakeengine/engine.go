// Package wakeengine defines the Engine interface for wake-word detection
// backends.
//
// A wake engine wraps a frame-level trigger-phrase detector and surfaces it
// as a stateful, per-stream detector. Each detector maintains its own
// internal state (accumulation buffers, smoothing history) so that multiple
// concurrent audio streams could be scored independently.
//
// Detection is synchronous by design: ProcessFrame returns immediately with
// a score, making it suitable for the low-latency monitor loop that gates
// the rest of the voice pipeline.
//
// Implementations must be safe for concurrent use across different
// detectors. A single Detector should not be shared across goroutines unless
// the implementation explicitly documents thread safety.
package wakeengine

import (
	"context"
	"errors"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// ErrModelIntegrity is returned (possibly wrapped) by NewDetector when the
// model asset fails its checksum validation. Callers must not retry with
// the same asset.
var ErrModelIntegrity = errors.New("wakeengine: model asset failed integrity check")

// Config holds the parameters for a wake detector.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. Typical: 16000.
	SampleRate int

	// Phrase is the trigger phrase the detector listens for.
	Phrase string

	// ModelPath is the path to the detector's model asset. Interpretation
	// is engine-specific. Empty selects the engine's built-in default.
	ModelPath string

	// ModelSHA256 is the expected hex checksum of the model asset. When
	// non-empty, engines must validate the asset at load time and refuse to
	// create a detector on mismatch.
	ModelSHA256 string
}

// Score is the result of scoring one audio frame.
type Score struct {
	// Confidence is the trigger-phrase probability in [0.0, 1.0]. Most
	// frames score near zero; a completed utterance that matches the phrase
	// produces a single high-confidence score.
	Confidence float64

	// Transcript is the decoded text of the candidate utterance, when the
	// engine produces one. Empty for engines that score acoustically.
	Transcript string
}

// Detector scores successive audio frames for the trigger phrase. It is an
// interface so that test code can supply mock implementations without a
// live engine.
type Detector interface {
	// ProcessFrame analyses a single audio frame and returns its score. The
	// frame must be raw little-endian PCM at the configured SampleRate.
	// Returns an error if the frame is malformed or the engine encounters
	// an internal failure.
	//
	// This method is called synchronously in the monitor loop; it must not
	// block.
	ProcessFrame(frame audio.Frame) (Score, error)

	// Reset clears all accumulated state without closing the detector. Use
	// this when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources. After Close, ProcessFrame must return
	// an error. Calling Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for wake detectors. It is the top-level interface
// implemented by each backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewDetector creates a detector with the given configuration. The
	// detector is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid, the model asset is
	// missing or fails its integrity check, or resources cannot be
	// allocated. Callers treat any error here as grounds for falling back
	// to simulated triggering.
	NewDetector(ctx context.Context, cfg Config) (Detector, error)
}
