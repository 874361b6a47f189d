// Package mock provides test doubles for the audio package interfaces.
//
// Use Bus to record volume ramps and played frames, and to script volume or
// playback failures. Use Enumerator to control which devices a test sees.
//
// Example:
//
//	bus := mock.NewBus(0.8)
//	coord.BeginSpeech(ctx, duck.ContextConversation)
//	levels := bus.VolumeHistory() // inspect the fade curve
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// VolumeChange records a single SetVolume invocation.
type VolumeChange struct {
	// Level is the volume that was requested.
	Level float64

	// At is when the call was made.
	At time.Time
}

// PlayCall records a single Play invocation.
type PlayCall struct {
	// DeviceID is the device the frame was played on.
	DeviceID string

	// Frame is the submitted payload.
	Frame audio.Frame
}

// Bus is a mock implementation of audio.OutputBus that records all calls.
type Bus struct {
	mu sync.Mutex

	level   float64
	changes []VolumeChange
	plays   []PlayCall

	// SetVolumeErr, if non-nil, is returned by every SetVolume call.
	SetVolumeErr error

	// SetVolumeErrOnce, if non-nil, is returned by the next SetVolume call
	// only, then cleared. Used to simulate a device disappearing mid-fade.
	SetVolumeErrOnce error

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// done, when non-nil, is exposed through PlaybackDone.
	done chan struct{}
}

// Compile-time interface assertion.
var _ audio.OutputBus = (*Bus)(nil)

// NewBus creates a Bus with the given initial volume.
func NewBus(level float64) *Bus {
	return &Bus{level: level}
}

// NewBusWithCompletion creates a Bus that also implements
// [audio.CompletionSignaler]. Call SignalComplete to emit a completion.
func NewBusWithCompletion(level float64) *Bus {
	return &Bus{level: level, done: make(chan struct{}, 8)}
}

// Volume returns the last level set (or the initial level).
func (b *Bus) Volume(_ context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level, nil
}

// SetVolume records the change and updates the stored level.
func (b *Bus) SetVolume(_ context.Context, level float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SetVolumeErrOnce != nil {
		err := b.SetVolumeErrOnce
		b.SetVolumeErrOnce = nil
		return err
	}
	if b.SetVolumeErr != nil {
		return b.SetVolumeErr
	}
	b.level = level
	b.changes = append(b.changes, VolumeChange{Level: level, At: time.Now()})
	return nil
}

// Play records the call.
func (b *Bus) Play(_ context.Context, deviceID string, frame audio.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PlayErr != nil {
		return b.PlayErr
	}
	b.plays = append(b.plays, PlayCall{DeviceID: deviceID, Frame: frame})
	return nil
}

// PlaybackDone exposes the completion channel when the bus was created with
// NewBusWithCompletion; otherwise it returns nil (caller should type-assert
// on audio.CompletionSignaler before use, as production code does).
func (b *Bus) PlaybackDone() <-chan struct{} {
	return b.done
}

// SignalComplete emits one playback-completion event. Panics if the bus was
// not created with NewBusWithCompletion.
func (b *Bus) SignalComplete() {
	b.done <- struct{}{}
}

// VolumeHistory returns a copy of all recorded volume changes in order.
func (b *Bus) VolumeHistory() []VolumeChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]VolumeChange, len(b.changes))
	copy(out, b.changes)
	return out
}

// Plays returns a copy of all recorded Play calls in order.
func (b *Bus) Plays() []PlayCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PlayCall, len(b.plays))
	copy(out, b.plays)
	return out
}

// Enumerator is a mock implementation of audio.DeviceEnumerator returning a
// fixed device list.
type Enumerator struct {
	mu sync.Mutex

	// DeviceList is returned by Devices.
	DeviceList []audio.DeviceInfo

	// Err, if non-nil, is returned by Devices.
	Err error
}

// Compile-time interface assertion.
var _ audio.DeviceEnumerator = (*Enumerator)(nil)

// Devices returns DeviceList, Err.
func (e *Enumerator) Devices(_ context.Context) ([]audio.DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]audio.DeviceInfo, len(e.DeviceList))
	copy(out, e.DeviceList)
	return out, nil
}

// SetDevices replaces the device list, simulating availability changes.
func (e *Enumerator) SetDevices(devices []audio.DeviceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeviceList = devices
}

// Observer is a mock implementation of audio.MediaObserver driven by a
// test-owned channel.
type Observer struct {
	ch chan audio.MediaUpdate
}

// Compile-time interface assertion.
var _ audio.MediaObserver = (*Observer)(nil)

// NewObserver creates an Observer with a buffered update channel.
func NewObserver() *Observer {
	return &Observer{ch: make(chan audio.MediaUpdate, 16)}
}

// Observe returns the update channel.
func (o *Observer) Observe(_ context.Context) (<-chan audio.MediaUpdate, error) {
	return o.ch, nil
}

// Push delivers a scripted media-session update to the observer's channel.
func (o *Observer) Push(u audio.MediaUpdate) {
	o.ch <- u
}

// Close closes the update channel.
func (o *Observer) Close() {
	close(o.ch)
}
