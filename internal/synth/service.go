package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/observe"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/resilience"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// errTierUnavailable marks a tier that was skipped rather than attempted
// (no provider configured, breaker open). Distinguished from real failures
// in logs only.
var errTierUnavailable = errors.New("synth: tier unavailable")

// pregenConcurrency bounds parallel provider calls during startup
// pre-generation.
const pregenConcurrency = 4

// adaptiveMinSamples is how many resolutions each remote/local tier needs
// before adaptive preference may reorder them.
const adaptiveMinSamples = 10

// Service resolves synthesis requests through the tier chain. All exported
// methods are safe for concurrent use; per-session serialization of
// requests is the orchestrator's responsibility.
type Service struct {
	primary  tts.Provider // may be nil
	local    tts.Provider // may be nil
	profiles *ProfileRegistry
	cache    *payloadCache
	pregen   *payloadCache
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	log      *slog.Logger

	timeout  time.Duration
	adaptive bool

	statsMu sync.Mutex
	stats   map[Tier]*TierStats
}

// New creates a Service. Either provider may be nil; the corresponding tier
// is then skipped. metrics may be nil to disable instrument recording
// (tests).
func New(cfg config.SynthConfig, primary, local tts.Provider, metrics *observe.Metrics, log *slog.Logger) *Service {
	s := &Service{
		primary:  primary,
		local:    local,
		profiles: NewProfileRegistry(),
		cache:    newPayloadCache(cfg.CacheSize, cfg.CacheTTL),
		pregen:   newPayloadCache(maxPregenEntries, cfg.CacheTTL),
		breaker: resilience.New(resilience.Config{
			Name:        "synth-primary",
			MaxFailures: 3,
		}),
		metrics:  metrics,
		log:      log.With(slog.String("component", "synth")),
		timeout:  cfg.PrimaryTimeout,
		adaptive: cfg.AdaptiveTiering,
		stats: map[Tier]*TierStats{
			TierPregenerated: {},
			TierCached:       {},
			TierPrimary:      {},
			TierFallback:     {},
		},
	}
	if metrics != nil {
		s.cache.onChange = func(delta int) {
			metrics.CacheEntries.Add(context.Background(), int64(delta))
		}
	}
	return s
}

// maxPregenEntries bounds the pre-generated table. The phrase list is
// configuration, so this is a safety net, not a tuning knob.
const maxPregenEntries = 64

// Profiles exposes the voice-profile registry.
func (s *Service) Profiles() *ProfileRegistry {
	return s.profiles
}

// Synthesize resolves req through the tier chain and returns the first
// successful result. It never hangs: every remote attempt is bounded by the
// configured fallback timeout, and the local provider is the final bounded
// step. Only exhaustion of all tiers returns an error (wrapped
// [ErrExhausted]).
func (s *Service) Synthesize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	text := Sanitize(req.Text, TierPrimary)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	profile := s.profiles.Lookup(req.Profile)
	key := cacheKey(text, profile.Name)

	// Urgent requests skip the lookup and remote tiers entirely.
	if req.Priority == PriorityUrgent {
		audio, err := s.tryLocal(ctx, req.Text, profile)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrExhausted, err)
		}
		return s.finish(ctx, req, audio, TierFallback, start)
	}

	if audio, ok := s.pregen.get(key); ok {
		return s.finish(ctx, req, audio, TierPregenerated, start)
	}
	if audio, ok := s.cache.get(key); ok {
		return s.finish(ctx, req, audio, TierCached, start)
	}

	var tierErrs []error
	for _, tier := range s.providerOrder() {
		var (
			audio tts.Audio
			err   error
		)
		switch tier {
		case TierPrimary:
			audio, err = s.tryPrimary(ctx, text, profile)
			if err == nil {
				// Cache writes happen only for primary renders; the local
				// tier is cheap enough to re-run and its fidelity should
				// not shadow a future primary render.
				s.cache.put(key, audio)
			}
		case TierFallback:
			audio, err = s.tryLocal(ctx, req.Text, profile)
		}
		if err == nil {
			return s.finish(ctx, req, audio, tier, start)
		}
		s.recordError(ctx, tier)
		if !errors.Is(err, errTierUnavailable) {
			s.log.Warn("synthesis tier failed, trying next",
				"tier", tier, "err", err)
		}
		tierErrs = append(tierErrs, fmt.Errorf("%s: %w", tier, err))
	}

	return Result{}, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(tierErrs...))
}

// SynthesizeUrgent renders text with the emergency profile at urgent
// priority.
func (s *Service) SynthesizeUrgent(ctx context.Context, text string) (Result, error) {
	return s.Synthesize(ctx, Request{Text: text, Profile: "emergency", Priority: PriorityUrgent})
}

// SynthesizeNavigation renders text with the navigation profile.
func (s *Service) SynthesizeNavigation(ctx context.Context, text string) (Result, error) {
	return s.Synthesize(ctx, Request{Text: text, Profile: "navigation"})
}

// SynthesizeCasual renders text with the casual profile.
func (s *Service) SynthesizeCasual(ctx context.Context, text string) (Result, error) {
	return s.Synthesize(ctx, Request{Text: text, Profile: "casual"})
}

// SynthesizeFast renders text with the fast profile.
func (s *Service) SynthesizeFast(ctx context.Context, text string) (Result, error) {
	return s.Synthesize(ctx, Request{Text: text, Profile: "fast"})
}

// Pregenerate synthesizes the given phrases with the profile and stores
// them in the pre-generated table. Failures are logged and skipped — a
// phrase that cannot be pre-rendered simply resolves through the normal
// chain later. Runs with bounded concurrency; the cache handles concurrent
// reads during and after.
func (s *Service) Pregenerate(ctx context.Context, phrases []string, profileName string) {
	if len(phrases) == 0 {
		return
	}
	profile := s.profiles.Lookup(profileName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pregenConcurrency)
	for _, phrase := range phrases {
		g.Go(func() error {
			text := Sanitize(phrase, TierPrimary)
			if text == "" {
				return nil
			}
			audio, err := s.tryPrimary(gctx, text, profile)
			if err != nil {
				audio, err = s.tryLocal(gctx, phrase, profile)
			}
			if err != nil {
				s.log.Warn("pre-generation failed for phrase", "phrase", text, "err", err)
				return nil
			}
			s.pregen.put(cacheKey(text, profile.Name), audio)
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("pre-generation complete",
		"requested", len(phrases), "stored", s.pregen.len())
}

// Stats returns a snapshot of the accumulated per-tier counters.
func (s *Service) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := Stats{
		Tiers:               make(map[Tier]TierStats, len(s.stats)),
		CacheEntries:        s.cache.len(),
		PregeneratedEntries: s.pregen.len(),
	}
	for tier, st := range s.stats {
		out.Tiers[tier] = *st
	}
	return out
}

// PrimaryAvailable reports whether the primary tier would currently be
// attempted (provider configured and breaker not open).
func (s *Service) PrimaryAvailable() bool {
	return s.primary != nil && s.breaker.Available()
}

// providerOrder returns the remote/local attempt order. With adaptive
// tiering enabled, the local tier is promoted once it has proven
// consistently faster than the primary over enough samples.
func (s *Service) providerOrder() []Tier {
	if s.adaptive {
		s.statsMu.Lock()
		primary, local := *s.stats[TierPrimary], *s.stats[TierFallback]
		s.statsMu.Unlock()
		if primary.Requests >= adaptiveMinSamples && local.Requests >= adaptiveMinSamples &&
			local.MeanLatency() < primary.MeanLatency() {
			return []Tier{TierFallback, TierPrimary}
		}
	}
	return []Tier{TierPrimary, TierFallback}
}

// tryPrimary attempts the remote provider under the circuit breaker,
// bounded by the fallback timeout. On timeout the in-flight call is
// abandoned: its context is cancelled and its eventual result discarded.
func (s *Service) tryPrimary(ctx context.Context, text string, profile VoiceProfile) (tts.Audio, error) {
	if s.primary == nil {
		return tts.Audio{}, errTierUnavailable
	}
	var audio tts.Audio
	err := s.breaker.Execute(func() error {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		type outcome struct {
			audio tts.Audio
			err   error
		}
		ch := make(chan outcome, 1)
		go func() {
			a, err := s.primary.Synthesize(tctx, text, profile.params())
			ch <- outcome{a, err}
		}()

		select {
		case out := <-ch:
			if out.err != nil {
				return fmt.Errorf("synth: primary provider: %w", out.err)
			}
			audio = out.audio
			return nil
		case <-tctx.Done():
			return fmt.Errorf("synth: primary timeout after %v: %w", s.timeout, tctx.Err())
		}
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return tts.Audio{}, errTierUnavailable
		}
		return tts.Audio{}, err
	}
	return audio, nil
}

// tryLocal attempts the offline provider with the tighter local length cap.
func (s *Service) tryLocal(ctx context.Context, rawText string, profile VoiceProfile) (tts.Audio, error) {
	if s.local == nil {
		return tts.Audio{}, errTierUnavailable
	}
	text := Sanitize(rawText, TierFallback)
	if text == "" {
		return tts.Audio{}, ErrEmptyText
	}
	audio, err := s.local.Synthesize(ctx, text, profile.params())
	if err != nil {
		return tts.Audio{}, fmt.Errorf("synth: local provider: %w", err)
	}
	return audio, nil
}

// finish assembles the result, records stats and metrics, and honors the
// optional file sink.
func (s *Service) finish(ctx context.Context, req Request, audio tts.Audio, tier Tier, start time.Time) (Result, error) {
	latency := time.Since(start)
	s.recordServed(ctx, tier, latency)

	if req.OutputPath != "" {
		if err := writeWAV(req.OutputPath, audio); err != nil {
			// The in-memory payload is still good; the sink is best-effort.
			s.log.Warn("failed to write output sink", "path", req.OutputPath, "err", err)
		}
	}
	return Result{Audio: audio, Tier: tier, Latency: latency}, nil
}

// recordServed accumulates a served-request stat and metric datapoint.
func (s *Service) recordServed(ctx context.Context, tier Tier, latency time.Duration) {
	s.statsMu.Lock()
	st := s.stats[tier]
	st.Requests++
	st.CumulativeLatency += latency
	s.statsMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSynthesis(ctx, string(tier), latency.Seconds(), nil)
	}
}

// recordError accumulates a tier failure.
func (s *Service) recordError(ctx context.Context, tier Tier) {
	s.statsMu.Lock()
	s.stats[tier].Errors++
	s.statsMu.Unlock()

	if s.metrics != nil {
		s.metrics.SynthesisErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("tier", string(tier))))
	}
}
