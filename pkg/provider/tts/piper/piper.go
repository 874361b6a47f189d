// Package piper implements the tts.Provider interface using a local Piper
// process. Piper is a fast neural text-to-speech system that runs fully
// offline, which makes it the always-available fallback tier: lower fidelity
// than the remote provider, but immune to connectivity loss in the car.
//
// The provider invokes the piper binary per request with
// --output-raw, writing text on stdin and reading 16-bit mono PCM from
// stdout.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

const (
	defaultBinary     = "piper"
	defaultSampleRate = 22050
)

// Option is a functional option for configuring the Piper Provider.
type Option func(*Provider)

// WithBinary overrides the piper executable path.
func WithBinary(path string) Option {
	return func(p *Provider) {
		p.binary = path
	}
}

// WithSampleRate declares the sample rate of the configured voice model.
// Piper's output rate is a property of the model file, not a flag.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements tts.Provider by shelling out to a local piper binary.
type Provider struct {
	binary     string
	modelPath  string
	sampleRate int

	// mu serialises invocations. Piper loads its model per process; running
	// several at once on a head unit exhausts memory faster than queueing
	// costs latency.
	mu sync.Mutex
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a Piper Provider for the given voice model file. The model
// file is not validated here; a missing model surfaces on first Synthesize.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("piper: modelPath must not be empty")
	}
	p := &Provider{
		binary:     defaultBinary,
		modelPath:  modelPath,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns "piper".
func (p *Provider) Name() string { return "piper" }

// Synthesize runs piper with the configured model and returns the raw PCM
// it produces. Rate is mapped to piper's --length_scale (inverse of speed);
// pitch and volume trim have no piper equivalent and are ignored.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("piper: empty text")
	}

	args := []string{
		"--model", p.modelPath,
		"--output-raw",
	}
	if params.Rate > 0 && params.Rate != 1.0 {
		// length_scale stretches phoneme duration, so speed is its inverse.
		args = append(args, "--length_scale", strconv.FormatFloat(1/params.Rate, 'f', 2, 64))
	}
	if params.VoiceID != "" {
		// Multi-speaker models select a speaker by numeric ID.
		args = append(args, "--speaker", params.VoiceID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return tts.Audio{}, fmt.Errorf("piper: %w", ctx.Err())
		}
		return tts.Audio{}, fmt.Errorf("piper: run: %w (stderr: %s)", err, firstLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return tts.Audio{}, errors.New("piper: produced no audio")
	}

	return tts.Audio{
		PCM:        stdout.Bytes(),
		SampleRate: p.sampleRate,
		Channels:   1,
	}, nil
}

// firstLine trims stderr noise down to its first line for error messages.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
