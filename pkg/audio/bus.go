// Package audio defines the interfaces and types for audio output connectivity
// within carbot.
//
// The two primary abstractions are:
//
//   - [OutputBus] — the shared volume-controlled output path that assistant
//     speech and competing media share. The ducking coordinator ramps its
//     volume and submits synthesized payloads for playback.
//   - [DeviceEnumerator] — lists the output devices currently available so
//     the coordinator can pick the best one per speech transaction.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages (e.g., audio/alsa for Linux head units). The interfaces
// are intentionally narrow to keep the coordinator decoupled from platform
// details.
//
// This package lives under pkg/ because external code (third-party platform
// adapters) is expected to implement [OutputBus].
package audio

import "context"

// OutputBus is the abstraction over a platform audio output path with a
// single shared volume control.
//
// Implementations must be safe for concurrent use, but callers are expected
// to serialise volume ramps externally — two interleaved fades against the
// same bus produce audible artifacts regardless of locking.
type OutputBus interface {
	// Volume returns the current bus volume in [0.0, 1.0].
	Volume(ctx context.Context) (float64, error)

	// SetVolume sets the bus volume. level is clamped by implementations to
	// [0.0, 1.0]. Returns an error if the underlying device rejected the
	// change (e.g., the device disappeared).
	SetVolume(ctx context.Context, level float64) error

	// Play submits a PCM payload for rendering on the given device. Play
	// returns once the payload has been accepted by the platform, not when
	// it has finished rendering; see [CompletionSignaler] for buses that can
	// report true completion.
	Play(ctx context.Context, deviceID string, frame Frame) error
}

// CompletionSignaler is optionally implemented by an [OutputBus] whose
// platform delivers a reliable end-of-playback signal. The returned channel
// receives one value per completed [OutputBus.Play] submission.
//
// Buses without a trustworthy signal simply do not implement this interface;
// callers then fall back to estimating playback duration from the payload.
type CompletionSignaler interface {
	// PlaybackDone returns the completion channel. The channel is owned by
	// the bus and closed when the bus shuts down.
	PlaybackDone() <-chan struct{}
}

// DeviceEnumerator lists the audio output devices currently visible to the
// platform. Availability changes at runtime (a Bluetooth speaker pairs, the
// car amp powers down), so results must not be cached across speech
// transactions.
//
// Implementations must be safe for concurrent use.
type DeviceEnumerator interface {
	// Devices returns a snapshot of the currently known output devices.
	// An empty slice (with nil error) means only the platform default is
	// available.
	Devices(ctx context.Context) ([]DeviceInfo, error)
}

// MediaUpdate is a media-session activity signal delivered by the car
// platform: which competing source changed state and its new level.
type MediaUpdate struct {
	// Source identifies the competing audio source: "music", "navigation"
	// or "phone".
	Source string

	// Active reports whether the source is currently producing audio.
	Active bool

	// Volume is the source's own volume in [0.0, 1.0]. Only meaningful for
	// sources that expose one (music); zero otherwise.
	Volume float64
}

// MediaObserver delivers media-session activity signals from the car
// platform. The production implementation bridges the vehicle bus; test
// harnesses use a fake that pushes scripted updates.
type MediaObserver interface {
	// Observe returns a channel of media-session updates. The channel is
	// closed when ctx is cancelled or the underlying source shuts down.
	Observe(ctx context.Context) (<-chan MediaUpdate, error)
}
