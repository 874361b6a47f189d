// Package alsa provides an ALSA-backed [audio.OutputBus] and
// [audio.DeviceEnumerator] for Linux head units. Volume control shells out
// to amixer and playback to aplay, which keeps the adapter free of cgo and
// works on any automotive Linux image that ships alsa-utils.
package alsa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

const (
	defaultMixerControl = "Master"
	defaultCard         = "default"
)

// volumeRe extracts the percentage from amixer "get" output, e.g. "[82%]".
var volumeRe = regexp.MustCompile(`\[(\d{1,3})%\]`)

// Compile-time interface assertions.
var (
	_ audio.OutputBus        = (*Bus)(nil)
	_ audio.DeviceEnumerator = (*Bus)(nil)
)

// Option is a functional option for configuring the Bus.
type Option func(*Bus)

// WithMixerControl overrides the amixer simple control name (default "Master").
func WithMixerControl(name string) Option {
	return func(b *Bus) {
		b.control = name
	}
}

// WithCard overrides the ALSA card/PCM used for playback (default "default").
func WithCard(card string) Option {
	return func(b *Bus) {
		b.card = card
	}
}

// Bus implements [audio.OutputBus] and [audio.DeviceEnumerator] on top of
// the alsa-utils command line tools.
type Bus struct {
	control string
	card    string

	// mu serialises subprocess invocations; amixer is not safe to run
	// concurrently against the same control on some drivers.
	mu sync.Mutex
}

// New creates a Bus. No probing is performed; the first Volume or Play call
// surfaces a missing ALSA stack as an error.
func New(opts ...Option) *Bus {
	b := &Bus{
		control: defaultMixerControl,
		card:    defaultCard,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Volume reads the current mixer level via "amixer get" and returns it in
// [0.0, 1.0].
func (b *Bus) Volume(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out, err := exec.CommandContext(ctx, "amixer", "get", b.control).Output()
	if err != nil {
		return 0, fmt.Errorf("alsa: amixer get %q: %w", b.control, err)
	}
	m := volumeRe.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("alsa: no volume in amixer output for %q", b.control)
	}
	pct, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("alsa: parse volume: %w", err)
	}
	return float64(pct) / 100, nil
}

// SetVolume sets the mixer level via "amixer set". level is clamped to
// [0.0, 1.0] before conversion to a percentage.
func (b *Bus) SetVolume(ctx context.Context, level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pct := strconv.Itoa(int(level*100 + 0.5))
	if err := exec.CommandContext(ctx, "amixer", "set", b.control, pct+"%").Run(); err != nil {
		return fmt.Errorf("alsa: amixer set %q %s%%: %w", b.control, pct, err)
	}
	return nil
}

// Play streams the frame's PCM to aplay on the selected device. deviceID is
// an ALSA PCM name as returned by [Bus.Devices]; an empty ID plays on the
// bus default card.
func (b *Bus) Play(ctx context.Context, deviceID string, frame audio.Frame) error {
	if len(frame.Data) == 0 {
		return errors.New("alsa: empty frame")
	}
	dev := deviceID
	if dev == "" {
		dev = b.card
	}
	args := []string{
		"-D", dev,
		"-f", "S16_LE",
		"-r", strconv.Itoa(frame.SampleRate),
		"-c", strconv.Itoa(frame.Channels),
		"-q", "-t", "raw", "-",
	}
	cmd := exec.CommandContext(ctx, "aplay", args...)
	cmd.Stdin = bytes.NewReader(frame.Data)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("alsa: aplay on %q: %w", dev, err)
	}
	return nil
}

// Devices enumerates ALSA PCMs via "aplay -L" and classifies them by name.
// Car-speaker outputs are recognised by common automotive PCM labels;
// Bluetooth sinks by the bluez PCM prefix.
func (b *Bus) Devices(ctx context.Context) ([]audio.DeviceInfo, error) {
	out, err := exec.CommandContext(ctx, "aplay", "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("alsa: aplay -L: %w", err)
	}
	return parseDeviceList(string(out)), nil
}

// parseDeviceList extracts device entries from aplay -L output. Lines that
// start without indentation are PCM names; the following indented line is
// the description.
func parseDeviceList(out string) []audio.DeviceInfo {
	var devices []audio.DeviceInfo
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		name := strings.TrimSpace(line)
		desc := name
		if i+1 < len(lines) && (strings.HasPrefix(lines[i+1], " ") || strings.HasPrefix(lines[i+1], "\t")) {
			desc = strings.TrimSpace(lines[i+1])
		}
		devices = append(devices, audio.DeviceInfo{
			ID:     name,
			Name:   desc,
			Class:  classify(name, desc),
			Active: true,
		})
	}
	return devices
}

// classify maps an ALSA PCM name/description to a device class.
func classify(name, desc string) audio.DeviceClass {
	l := strings.ToLower(name + " " + desc)
	switch {
	case strings.Contains(l, "car") || strings.Contains(l, "dash") || strings.Contains(l, "amp"):
		return audio.DeviceCarSpeaker
	case strings.HasPrefix(name, "bluealsa") || strings.Contains(l, "bluetooth"):
		return audio.DeviceBluetooth
	case name == "default" || strings.HasPrefix(name, "sysdefault"):
		return audio.DeviceDefault
	default:
		return audio.DeviceOther
	}
}
