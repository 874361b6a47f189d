// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, or a
// local Piper instance) and presents a uniform single-shot interface: text
// plus rendering parameters in, a PCM payload out. Streaming is deliberately
// not part of the contract — assistant utterances in the car are short, and
// the ducking coordinator needs the full payload up front to schedule volume
// restoration.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., phrase pre-generation at startup).
type Provider interface {
	// Synthesize renders text with the given parameters and returns the
	// complete audio payload. Implementations must respect ctx cancellation
	// and deadlines: the caller bounds every remote attempt with a fallback
	// timeout and abandons calls that overrun it.
	//
	// Returns an error if the backend is unreachable, rejects the request,
	// or produces no audio. Errors never carry partial payloads.
	Synthesize(ctx context.Context, text string, params Params) (Audio, error)

	// Name returns a short identifier for this backend ("elevenlabs",
	// "piper"), used in logs and metric attributes.
	Name() string
}

// Params holds the provider-independent rendering parameters derived from a
// voice profile. Each backend maps them onto its own controls.
type Params struct {
	// VoiceID is the provider-specific voice identifier. An empty value
	// selects the backend's default voice.
	VoiceID string

	// Rate adjusts speaking rate (0.5–2.0, 1.0 = default).
	Rate float64

	// Pitch adjusts pitch (-10 to +10, 0 = default).
	Pitch float64

	// VolumeTrim adjusts output gain in [0.0, 1.0] relative to the bus
	// level (1.0 = no trim).
	VolumeTrim float64
}

// Audio is a complete synthesized payload.
type Audio struct {
	// PCM holds raw little-endian 16-bit samples.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 for all current backends).
	Channels int
}
