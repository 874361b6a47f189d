// Package synth implements the tiered speech-synthesis service.
//
// A request resolves through an ordered chain of tiers — pre-generated
// phrase table, payload cache, remote primary provider, local offline
// provider — where each tier is attempted only if the prior one is
// unavailable or fails. Urgent requests and an open primary circuit breaker
// route directly to the local tier. Only exhaustion of every tier surfaces
// an error to the caller.
package synth

import (
	"errors"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// ErrExhausted is returned when every synthesis tier failed or was
// unavailable. Callers substitute a hard-coded apology utterance.
var ErrExhausted = errors.New("synth: all synthesis tiers exhausted")

// ErrEmptyText is returned when a request's text sanitizes to nothing.
var ErrEmptyText = errors.New("synth: empty text after sanitization")

// Tier identifies which stage of the fallback chain served a request.
type Tier string

const (
	// TierPregenerated is the startup-synthesized common-phrase table.
	TierPregenerated Tier = "pregenerated"

	// TierCached is the hash-keyed payload cache.
	TierCached Tier = "cached"

	// TierPrimary is the remote high-fidelity provider.
	TierPrimary Tier = "primary"

	// TierFallback is the local offline provider.
	TierFallback Tier = "fallback"
)

// Priority orders synthesis requests. Urgent requests skip the remote tiers
// entirely so that safety-critical speech is never delayed by network
// latency.
type Priority int

const (
	// PriorityNormal walks the full tier chain.
	PriorityNormal Priority = iota

	// PriorityUrgent routes directly to the local provider.
	PriorityUrgent
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	if p == PriorityUrgent {
		return "urgent"
	}
	return "normal"
}

// Request describes one synthesis job. Immutable once submitted.
type Request struct {
	// Text is the utterance to render. It is sanitized before synthesis.
	Text string

	// Profile names the voice profile to render with. Empty selects
	// "default".
	Profile string

	// Priority selects normal or urgent handling.
	Priority Priority

	// OutputPath, when non-empty, additionally writes the payload to this
	// file as WAV.
	OutputPath string
}

// Result is a completed synthesis.
type Result struct {
	// Audio is the rendered payload.
	Audio tts.Audio

	// Tier identifies which stage served the request.
	Tier Tier

	// Latency is the wall-clock resolution time.
	Latency time.Duration
}

// TierStats is a point-in-time snapshot of one tier's counters.
type TierStats struct {
	// Requests is the number of resolutions served by this tier.
	Requests int64 `json:"requests"`

	// Errors is the number of failed attempts at this tier.
	Errors int64 `json:"errors"`

	// CumulativeLatency is the summed resolution time of all requests
	// served by this tier.
	CumulativeLatency time.Duration `json:"cumulative_latency"`
}

// MeanLatency returns the average latency of served requests, or zero when
// none were served.
func (s TierStats) MeanLatency() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.CumulativeLatency / time.Duration(s.Requests)
}

// Stats is a snapshot of the service's accumulated per-tier metrics.
type Stats struct {
	// Tiers maps tier name to its counters.
	Tiers map[Tier]TierStats `json:"tiers"`

	// CacheEntries is the current cache population.
	CacheEntries int `json:"cache_entries"`

	// PregeneratedEntries is the current pre-generated table population.
	PregeneratedEntries int `json:"pregenerated_entries"`
}
