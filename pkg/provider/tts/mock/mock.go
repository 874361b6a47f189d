// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to script synthesis results, inject errors or latency, and
// inspect the requests that were submitted.
//
// Example:
//
//	p := &mock.Provider{ProviderName: "primary", Result: tts.Audio{PCM: []byte{1}}}
//	svc := synth.New(cfg.Synth, p, local, nil, slog.Default())
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// SynthesizeCall records a single Provider.Synthesize invocation.
type SynthesizeCall struct {
	// Text is the sanitized text submitted for synthesis.
	Text string

	// Params are the rendering parameters.
	Params tts.Params
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Result is returned by Synthesize when Err is nil. When Result.PCM is
	// nil, a payload derived from the text is returned instead so distinct
	// texts yield distinct audio.
	Result tts.Audio

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Latency, when positive, delays each Synthesize call. The delay
	// respects ctx cancellation, so timeout behaviour can be exercised.
	Latency time.Duration

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Synthesize records the call, waits out Latency, and returns Result, Err.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Audio, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Params: params})
	latency := p.Latency
	result := p.Result
	err := p.Err
	p.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return tts.Audio{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Audio{}, err
	}
	if result.PCM == nil {
		result = tts.Audio{PCM: []byte(p.Name() + ":" + text), SampleRate: 22050, Channels: 1}
	}
	return result, nil
}

// CallCount returns the number of recorded Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call, or a zero value if none were made.
func (p *Provider) LastCall() SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return SynthesizeCall{}
	}
	return p.Calls[len(p.Calls)-1]
}

// SetErr replaces the scripted error. Thread-safe, so tests can flip a
// provider between healthy and failing mid-scenario.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}
