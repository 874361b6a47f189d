// Package wake implements the wake-word monitoring state machine.
//
// The monitor consumes candidate detections from a pluggable trigger
// source, applies the confidence threshold, and enforces the cooldown that
// prevents re-triggering. When the real detection engine cannot be
// initialized the monitor falls back to simulated triggering rather than
// terminating, so the rest of the voice pipeline stays exercisable.
//
// State machine: Idle → Armed → Triggered → Cooldown → Armed (loop);
// Disarm from any state returns to Idle.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/observe"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
)

// State is the monitor's lifecycle state.
type State int

const (
	// StateIdle means the monitor is not consuming input.
	StateIdle State = iota

	// StateArmed means the monitor is consuming input and may trigger.
	StateArmed

	// StateTriggered is the transient state while an event is dispatched.
	StateTriggered

	// StateCooldown means a recent trigger is suppressing new events.
	StateCooldown
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	case StateCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// ErrNotArmed is returned by InjectManual when the monitor is disarmed.
var ErrNotArmed = errors.New("wake: monitor is not armed")

// ErrCooldown is returned by InjectManual during the cooldown window.
var ErrCooldown = errors.New("wake: trigger suppressed by cooldown")

// Monitor owns the wake state machine. Exactly one Monitor runs per
// instance. Safe for concurrent use.
type Monitor struct {
	cfg     config.WakeConfig
	engine  wakeengine.Engine // may be nil (forces simulated mode)
	frames  <-chan audio.Frame
	bus     *bus.Client
	metrics *observe.Metrics
	log     *slog.Logger

	mu            sync.Mutex
	state         State
	source        TriggerSource
	lastEvent     time.Time
	cooldownTimer *time.Timer
	cancel        context.CancelFunc
	callbacks     []func(Event)

	fallbackOnce sync.Once

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMonitor creates a disarmed monitor. engine may be nil to force
// simulated triggering; frames is the platform capture stream consumed in
// engine mode. busClient and metrics may be nil.
func NewMonitor(cfg config.WakeConfig, engine wakeengine.Engine, frames <-chan audio.Frame, busClient *bus.Client, metrics *observe.Metrics, log *slog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		engine:  engine,
		frames:  frames,
		bus:     busClient,
		metrics: metrics,
		log:     log.With(slog.String("component", "wake")),
		now:     time.Now,
	}
}

// OnDetection registers a handler invoked with every emitted wake event.
// Handlers run on the trigger source's goroutine. Register before Arm.
func (m *Monitor) OnDetection(cb func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Arm transitions Idle → Armed and begins consuming the trigger source.
// Arming an already-armed monitor is a no-op. In engine mode a model
// integrity failure refuses to arm; in auto mode any engine initialization
// failure falls back to simulated triggering, reported once.
func (m *Monitor) Arm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return nil
	}

	source, err := m.buildSource(ctx)
	if err != nil {
		return err
	}
	m.source = source

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = StateArmed
	m.log.Info("monitor armed",
		slog.String("mode", source.Name()),
		slog.String("phrase", m.cfg.Phrase))

	go func() {
		if err := source.Run(runCtx, m.handleCandidate); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("trigger source stopped", "source", source.Name(), "err", err)
		}
	}()
	return nil
}

// Disarm stops consumption and returns to Idle. Safe to call from any
// state, including Idle.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
	m.state = StateIdle
	m.source = nil
}

// InjectManual fires a wake event as if the phrase had been detected, for
// test harnesses and explicit user-initiated activation.
//
// Allowed from the Armed state only. Rejection while disarmed
// (ErrNotArmed) is deliberately stricter than rejecting only during
// cooldown: arming is the orchestrator's lifecycle decision, and an
// injection that implicitly armed the monitor would bypass it. Injection
// during cooldown returns ErrCooldown and counts as suppressed.
func (m *Monitor) InjectManual(confidence float64) error {
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}
	m.mu.Lock()
	switch m.state {
	case StateIdle:
		m.mu.Unlock()
		return ErrNotArmed
	case StateTriggered, StateCooldown:
		m.suppressLocked(SourceManual)
		m.mu.Unlock()
		return ErrCooldown
	}
	m.emitLocked(Event{
		Confidence: confidence,
		Source:     SourceManual,
		Timestamp:  m.now(),
	})
	m.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot is the monitor's contribution to the status endpoint.
type Snapshot struct {
	State             string    `json:"state"`
	Mode              string    `json:"mode,omitempty"`
	LastEvent         time.Time `json:"last_event,omitzero"`
	CooldownRemaining string    `json:"cooldown_remaining,omitempty"`
}

// StatusSnapshot returns a point-in-time view of the monitor.
func (m *Monitor) StatusSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{State: m.state.String(), LastEvent: m.lastEvent}
	if m.source != nil {
		snap.Mode = m.source.Name()
	}
	if m.state == StateCooldown {
		if rem := m.cfg.Cooldown - m.now().Sub(m.lastEvent); rem > 0 {
			snap.CooldownRemaining = rem.String()
		}
	}
	return snap
}

// buildSource selects the trigger source per the configured mode. Must be
// called with m.mu held.
func (m *Monitor) buildSource(ctx context.Context) (TriggerSource, error) {
	mode := m.cfg.Mode
	if mode == config.TriggerSimulated || (m.engine == nil && mode == config.TriggerAuto) {
		return m.timerSource(), nil
	}
	if m.engine == nil {
		return nil, fmt.Errorf("wake: mode %q requires a detection engine", mode)
	}

	detector, err := m.engine.NewDetector(ctx, wakeengine.Config{
		SampleRate:  m.cfg.SampleRate,
		Phrase:      m.cfg.Phrase,
		ModelPath:   m.cfg.ModelPath,
		ModelSHA256: m.cfg.ModelSHA256,
	})
	if err != nil {
		if mode == config.TriggerEngine {
			// Engine mode has no fallback: an integrity failure or any
			// other initialization error refuses to arm.
			return nil, fmt.Errorf("wake: initialize detection engine: %w", err)
		}
		m.fallbackOnce.Do(func() {
			if errors.Is(err, wakeengine.ErrModelIntegrity) {
				m.log.Error("wake model failed integrity check, falling back to simulated triggering", "err", err)
			} else {
				m.log.Warn("detection engine unavailable, falling back to simulated triggering", "err", err)
			}
		})
		return m.timerSource(), nil
	}
	return &engineSource{detector: detector, frames: m.frames, log: m.log}, nil
}

func (m *Monitor) timerSource() TriggerSource {
	return &timerSource{min: m.cfg.SimulatedIntervalMin, max: m.cfg.SimulatedIntervalMax}
}

// handleCandidate applies the threshold and state machine to one candidate
// detection.
func (m *Monitor) handleCandidate(ev Event) {
	m.mu.Lock()
	switch m.state {
	case StateIdle:
		m.mu.Unlock()
		return
	case StateTriggered, StateCooldown:
		m.suppressLocked(ev.Source)
		m.mu.Unlock()
		return
	}
	if ev.Confidence < m.cfg.Threshold {
		m.mu.Unlock()
		return
	}
	m.emitLocked(ev)
	m.mu.Unlock()
}

// emitLocked dispatches ev: Armed → Triggered → Cooldown, bus notice,
// metrics. Must be called with m.mu held. Callbacks run on their own
// goroutine so a handler can call back into the monitor without
// deadlocking.
func (m *Monitor) emitLocked(ev Event) {
	m.state = StateTriggered
	m.lastEvent = m.now()
	cbs := make([]func(Event), len(m.callbacks))
	copy(cbs, m.callbacks)

	m.state = StateCooldown
	m.cooldownTimer = time.AfterFunc(m.cfg.Cooldown, m.endCooldown)

	m.log.Info("wake event",
		slog.String("source", ev.Source),
		slog.Float64("confidence", ev.Confidence))
	if m.metrics != nil {
		m.metrics.RecordWakeEvent(context.Background(), ev.Source)
	}
	m.bus.PublishJSON(protocol.SubjectWakeEvent, protocol.WakeNotice{
		Confidence: ev.Confidence,
		Source:     ev.Source,
		Timestamp:  ev.Timestamp,
	})

	go func() {
		for _, cb := range cbs {
			cb(ev)
		}
	}()
}

// suppressLocked records a discarded in-cooldown detection. Must be called
// with m.mu held.
func (m *Monitor) suppressLocked(source string) {
	m.log.Debug("detection suppressed by cooldown", slog.String("source", source))
	if m.metrics != nil {
		m.metrics.WakeSuppressed.Add(context.Background(), 1)
	}
}

// endCooldown returns the monitor to Armed once the cooldown elapses.
func (m *Monitor) endCooldown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCooldown {
		m.state = StateArmed
	}
}
