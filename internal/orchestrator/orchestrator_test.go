package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/duck"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/synth"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/wake"
	audiomock "github.com/bluehawana/carbot-js-ai-sub001/pkg/audio/mock"
	ttsmock "github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts/mock"
)

type scriptedResponder struct {
	reply Reply
	err   error
	delay time.Duration
}

func (r *scriptedResponder) Respond(ctx context.Context, _ string) (Reply, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		}
	}
	return r.reply, r.err
}

type fixture struct {
	orch    *Orchestrator
	bus     *audiomock.Bus
	primary *ttsmock.Provider
	local   *ttsmock.Provider
	monitor *wake.Monitor
}

func newFixture(t *testing.T, responder Responder, opts ...Option) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	bus := audiomock.NewBusWithCompletion(0.8)
	primary := &ttsmock.Provider{ProviderName: "primary"}
	local := &ttsmock.Provider{ProviderName: "local"}

	synthSvc := synth.New(config.SynthConfig{
		PrimaryTimeout: 3 * time.Second,
		CacheSize:      16,
		CacheTTL:       time.Hour,
	}, primary, local, nil, log)

	coordinator := duck.NewCoordinator(config.DuckingConfig{MusicLoudThreshold: 0.5},
		bus, nil, nil, nil, nil, log)
	t.Cleanup(coordinator.Close)

	monitor := wake.NewMonitor(config.WakeConfig{
		Mode:                 config.TriggerSimulated,
		Phrase:               "hey carbot",
		Threshold:            0.7,
		Cooldown:             200 * time.Millisecond,
		SimulatedIntervalMin: time.Hour,
		SimulatedIntervalMax: time.Hour,
	}, nil, nil, nil, nil, log)

	orch := New(monitor, synthSvc, coordinator, responder, nil, log, opts...)
	return &fixture{orch: orch, bus: bus, primary: primary, local: local, monitor: monitor}
}

// waitForPlays polls until the bus has at least n recorded plays.
func (f *fixture) waitForPlays(t *testing.T, n int) []audiomock.PlayCall {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if plays := f.bus.Plays(); len(plays) >= n {
			return plays
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d plays", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// waitForVolume polls until the bus volume reaches level within epsilon.
func (f *fixture) waitForVolume(t *testing.T, level float64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if v, _ := f.bus.Volume(context.Background()); math.Abs(v-level) <= 0.01 {
			return
		}
		select {
		case <-deadline:
			v, _ := f.bus.Volume(context.Background())
			t.Fatalf("volume stuck at %v, want %v", v, level)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWakeEventSpeaksGreeting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if err := f.orch.TriggerManual(); err != nil {
		t.Fatalf("TriggerManual: %v", err)
	}

	plays := f.waitForPlays(t, 1)
	if !strings.Contains(string(plays[0].Frame.Data), greetingText) {
		t.Fatalf("played payload does not carry the greeting: %q", plays[0].Frame.Data)
	}

	f.bus.SignalComplete()
	f.waitForVolume(t, 0.8)
}

func TestHandleUtteranceSpeaksReply(t *testing.T) {
	responder := &scriptedResponder{reply: Reply{Text: "Turning on the radio."}}
	f := newFixture(t, responder)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.orch.HandleUtterance(ctx, "turn on the radio") }()

	plays := f.waitForPlays(t, 1)
	if !strings.Contains(string(plays[0].Frame.Data), "Turning on the radio.") {
		t.Fatalf("played payload = %q", plays[0].Frame.Data)
	}
	if plays[0].Frame.Timestamp.IsZero() || time.Since(plays[0].Frame.Timestamp) > time.Minute {
		t.Errorf("frame timestamp = %v, want a recent capture time", plays[0].Frame.Timestamp)
	}
	f.bus.SignalComplete()
	if err := <-done; err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	f.waitForVolume(t, 0.8)
}

func TestResponderFailureSpeaksApology(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("model offline")}
	f := newFixture(t, responder)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.orch.HandleUtterance(ctx, "anything") }()

	plays := f.waitForPlays(t, 1)
	if !strings.Contains(string(plays[0].Frame.Data), "Sorry") {
		t.Fatalf("expected apology, played %q", plays[0].Frame.Data)
	}
	// The apology runs at urgent priority: local tier only.
	if f.primary.CallCount() != 0 {
		t.Fatal("apology must not touch the remote provider")
	}
	f.bus.SignalComplete()
	if err := <-done; err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
}

func TestResponderTimeoutSpeaksApology(t *testing.T) {
	responder := &scriptedResponder{
		reply: Reply{Text: "too late"},
		delay: time.Second,
	}
	f := newFixture(t, responder, WithResponderTimeout(50*time.Millisecond))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.orch.HandleUtterance(ctx, "anything") }()

	plays := f.waitForPlays(t, 1)
	if !strings.Contains(string(plays[0].Frame.Data), "Sorry") {
		t.Fatalf("expected apology after timeout, played %q", plays[0].Frame.Data)
	}
	f.bus.SignalComplete()
	if err := <-done; err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
}

func TestUrgentReplySkipsRemoteTier(t *testing.T) {
	responder := &scriptedResponder{reply: Reply{Text: "Low tire pressure detected.", Urgent: true}}
	f := newFixture(t, responder)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.orch.HandleUtterance(ctx, "status") }()

	f.waitForPlays(t, 1)
	if f.primary.CallCount() != 0 {
		t.Fatal("urgent reply must not touch the remote provider")
	}
	if f.local.CallCount() != 1 {
		t.Fatalf("local calls = %d, want 1", f.local.CallCount())
	}
	f.bus.SignalComplete()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestAnnounceUsesEmergencyOverride(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.orch.Announce(ctx, "Pull over now") }()

	f.waitForPlays(t, 1)
	if v, _ := f.bus.Volume(ctx); v != 0.05 {
		t.Fatalf("bus level during announcement = %v, want 0.05", v)
	}
	f.bus.SignalComplete()
	if err := <-done; err != nil {
		t.Fatalf("Announce: %v", err)
	}
	f.waitForVolume(t, 0.8)
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer f.orch.Stop()

	snap := f.orch.StatusSnapshot()
	if snap.Wake.State != "armed" {
		t.Fatalf("wake state = %q, want armed", snap.Wake.State)
	}
	if snap.Ducking.Active {
		t.Fatal("no ducking transaction should be active")
	}
}
