package audio

import "time"

// Frame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the platform
// microphone, scored by the wake-word monitor, and played through output buses.
type Frame struct {
	// Data holds raw little-endian PCM samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for wake-word scoring, 22050 for TTS output).
	SampleRate int

	// Channels: 1 for mono (capture/wake input), 2 for stereo playback.
	Channels int

	// Timestamp marks when this frame was captured or synthesized.
	Timestamp time.Time
}

// Duration returns the playback duration of the frame, derived from the
// sample count. Returns zero for frames with an unset sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels // 16-bit PCM
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// DeviceClass categorises an output device for selection purposes. Lower
// values are preferred by the ducking coordinator's device picker.
type DeviceClass int

const (
	// DeviceCarSpeaker is the dedicated in-dash speaker output.
	DeviceCarSpeaker DeviceClass = iota

	// DeviceBluetooth is a paired wireless output (e.g., an aftermarket head unit).
	DeviceBluetooth

	// DeviceOther is any other active output device.
	DeviceOther

	// DeviceDefault is the platform default sink, always assumed present.
	DeviceDefault
)

// String returns the human-readable name of the device class.
func (c DeviceClass) String() string {
	switch c {
	case DeviceCarSpeaker:
		return "car-speaker"
	case DeviceBluetooth:
		return "bluetooth"
	case DeviceOther:
		return "other"
	case DeviceDefault:
		return "default"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a single audio output device as reported by the
// platform at enumeration time. Device availability changes while the
// process runs; callers should re-enumerate rather than cache.
type DeviceInfo struct {
	// ID is the platform-specific device identifier.
	ID string

	// Name is the human-readable device name.
	Name string

	// Class categorises the device for selection priority.
	Class DeviceClass

	// Active reports whether the device is currently usable.
	Active bool
}
