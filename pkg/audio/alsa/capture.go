package alsa

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// captureFrameMs is the duration of each emitted capture frame. 20 ms
// matches what the keyword spotter's silence accounting assumes.
const captureFrameMs = 20

// Capture streams microphone PCM from arecord as mono 16-bit frames.
type Capture struct {
	device     string
	sampleRate int
}

// NewCapture creates a capture source on the given ALSA PCM. An empty
// device records from the default card.
func NewCapture(device string, sampleRate int) *Capture {
	if device == "" {
		device = defaultCard
	}
	return &Capture{device: device, sampleRate: sampleRate}
}

// Start launches arecord and returns a channel of fixed-size frames. The
// channel is closed when ctx is cancelled or the recorder exits.
func (c *Capture) Start(ctx context.Context) (<-chan audio.Frame, error) {
	args := []string{
		"-D", c.device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(c.sampleRate),
		"-c", "1",
		"-q", "-t", "raw",
	}
	cmd := exec.CommandContext(ctx, "arecord", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("alsa: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("alsa: start arecord on %q: %w", c.device, err)
	}

	frameBytes := c.sampleRate * 2 * captureFrameMs / 1000
	frames := make(chan audio.Frame)
	go func() {
		defer close(frames)
		defer cmd.Wait()
		for {
			buf := make([]byte, frameBytes)
			if _, err := io.ReadFull(stdout, buf); err != nil {
				return
			}
			frame := audio.Frame{
				Data:       buf,
				SampleRate: c.sampleRate,
				Channels:   1,
				Timestamp:  time.Now(),
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, nil
}
