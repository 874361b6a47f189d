// Package orchestrator is the thin composition layer of the voice pipeline:
// wake events trigger a greeting, recognized utterances are forwarded to
// the external conversation collaborator, and every spoken reply is wrapped
// in a ducking transaction around synthesis and playback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/duck"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/synth"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/wake"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// Fixed utterances. The greeting is pre-generated at startup; the apology
// is the last resort when every synthesis tier is exhausted, rendered at
// urgent priority so it only needs the local tier.
const (
	greetingText = "Hello! How can I help you?"
	apologyText  = "Sorry, I could not process that. Please try again."
)

// defaultResponderTimeout bounds how long a conversation reply may take
// before the apology is spoken instead.
const defaultResponderTimeout = 10 * time.Second

// Reply is the conversation collaborator's answer to an utterance.
type Reply struct {
	// Text is the assistant reply to speak.
	Text string

	// Urgent marks safety-relevant replies; they are synthesized at urgent
	// priority, skipping the remote tiers.
	Urgent bool
}

// Responder is the external conversation/AI collaborator. It receives the
// recognized utterance and produces the reply text.
type Responder interface {
	Respond(ctx context.Context, utterance string) (Reply, error)
}

// Orchestrator owns the single VoiceSession: it serializes wake handling
// and reply speaking so no two speech flows run concurrently.
type Orchestrator struct {
	monitor   *wake.Monitor
	synth     *synth.Service
	duck      *duck.Coordinator
	responder Responder // may be nil
	busClient *bus.Client
	log       *slog.Logger

	responderTimeout time.Duration

	// session serializes all speech flows against the one VoiceSession.
	session sync.Mutex

	// idMu guards activeRequestID so the status endpoint can read it
	// without blocking on an in-flight speech flow.
	idMu            sync.Mutex
	activeRequestID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResponderTimeout overrides how long the conversation collaborator may
// take before the apology is spoken.
func WithResponderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.responderTimeout = d }
}

// New creates an orchestrator. responder and busClient may be nil; without
// a responder, utterances are answered with the apology.
func New(monitor *wake.Monitor, synthSvc *synth.Service, coordinator *duck.Coordinator, responder Responder, busClient *bus.Client, log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		monitor:          monitor,
		synth:            synthSvc,
		duck:             coordinator,
		responder:        responder,
		busClient:        busClient,
		log:              log.With(slog.String("component", "orchestrator")),
		responderTimeout: defaultResponderTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start wires the wake monitor, media feeds, and the manual-trigger and
// utterance subjects, then arms the monitor.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.duck.Start(ctx); err != nil {
		return err
	}
	o.monitor.OnDetection(func(ev wake.Event) {
		o.handleWake(ctx, ev)
	})
	if _, err := bus.SubscribeJSON(o.busClient, protocol.SubjectManualTrigger, func(struct{}) {
		if err := o.TriggerManual(); err != nil {
			o.log.Debug("manual trigger rejected", "err", err)
		}
	}); err != nil {
		return err
	}
	if _, err := bus.SubscribeJSON(o.busClient, protocol.SubjectUtterance, func(u protocol.Utterance) {
		if u.Text == "" {
			return
		}
		go func() {
			if err := o.HandleUtterance(ctx, u.Text); err != nil {
				o.log.Error("utterance handling failed", "err", err)
			}
		}()
	}); err != nil {
		return err
	}
	return o.monitor.Arm(ctx)
}

// Stop disarms the monitor.
func (o *Orchestrator) Stop() {
	o.monitor.Disarm()
}

// TriggerManual fires a wake event as if the phrase had been spoken.
func (o *Orchestrator) TriggerManual() error {
	return o.monitor.InjectManual(1.0)
}

// handleWake speaks the greeting in a ducking transaction. Runs on the
// monitor's dispatch goroutine; the session lock keeps flows serialized.
func (o *Orchestrator) handleWake(ctx context.Context, ev wake.Event) {
	o.session.Lock()
	defer o.session.Unlock()

	id := o.setActiveRequest()
	defer o.clearActiveRequest()
	o.log.Info("handling wake event",
		slog.String("request_id", id),
		slog.String("source", ev.Source),
		slog.Float64("confidence", ev.Confidence))

	if err := o.speakLocked(ctx, greetingText, "greeting", synth.PriorityNormal); err != nil {
		o.log.Error("greeting failed", "request_id", id, "err", err)
	}
}

// HandleUtterance forwards recognized text to the conversation collaborator
// and speaks its reply. A collaborator timeout or error is replaced by the
// apology so the session always ends in a user-audible state.
func (o *Orchestrator) HandleUtterance(ctx context.Context, utterance string) error {
	o.session.Lock()
	defer o.session.Unlock()

	id := o.setActiveRequest()
	defer o.clearActiveRequest()

	reply, err := o.respond(ctx, utterance)
	if err != nil {
		o.log.Warn("conversation collaborator failed, speaking apology",
			slog.String("request_id", id), "err", err)
		return o.speakLocked(ctx, apologyText, "default", synth.PriorityUrgent)
	}

	priority := synth.PriorityNormal
	if reply.Urgent {
		priority = synth.PriorityUrgent
	}
	return o.speakLocked(ctx, reply.Text, "default", priority)
}

// Announce speaks text through the emergency override path: media is
// paused, the bus drops to the emergency level with no fade, and synthesis
// runs at urgent priority.
func (o *Orchestrator) Announce(ctx context.Context, text string) error {
	o.session.Lock()
	defer o.session.Unlock()

	txn, err := o.duck.EmergencyOverride(ctx)
	if err != nil {
		return err
	}
	res, err := o.synth.SynthesizeUrgent(ctx, text)
	if err != nil {
		_ = o.duck.EndSpeech(ctx, txn)
		return fmt.Errorf("orchestrator: emergency synthesis: %w", err)
	}
	if err := o.duck.Play(ctx, txn, toFrame(res.Audio)); err != nil {
		_ = o.duck.EndSpeech(ctx, txn)
		return err
	}
	return o.duck.RestoreAfterPlayback(ctx, txn, text)
}

// Snapshot is the combined status view exposed on the diagnostics server.
type Snapshot struct {
	Wake      wake.Snapshot `json:"wake"`
	Ducking   duck.Snapshot `json:"ducking"`
	Synthesis synth.Stats   `json:"synthesis"`
	ActiveID  string        `json:"active_request_id,omitempty"`
}

// StatusSnapshot returns a point-in-time view of the whole pipeline.
func (o *Orchestrator) StatusSnapshot() Snapshot {
	o.idMu.Lock()
	id := o.activeRequestID
	o.idMu.Unlock()
	return Snapshot{
		Wake:      o.monitor.StatusSnapshot(),
		Ducking:   o.duck.StatusSnapshot(),
		Synthesis: o.synth.Stats(),
		ActiveID:  id,
	}
}

func (o *Orchestrator) setActiveRequest() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	o.activeRequestID = uuid.NewString()
	return o.activeRequestID
}

func (o *Orchestrator) clearActiveRequest() {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	o.activeRequestID = ""
}

// respond queries the collaborator under the responder timeout.
func (o *Orchestrator) respond(ctx context.Context, utterance string) (Reply, error) {
	if o.responder == nil {
		return Reply{}, errors.New("orchestrator: no conversation collaborator configured")
	}
	rctx, cancel := context.WithTimeout(ctx, o.responderTimeout)
	defer cancel()
	reply, err := o.responder.Respond(rctx, utterance)
	if err != nil {
		return Reply{}, err
	}
	if reply.Text == "" {
		return Reply{}, errors.New("orchestrator: collaborator returned empty reply")
	}
	return reply, nil
}

// speakLocked runs one complete speech flow: duck, synthesize, play,
// restore. Synthesis exhaustion degrades to the apology; if even that
// fails, the transaction is ended and the reason logged — the user gets
// silence with a recorded cause, never a hang.
func (o *Orchestrator) speakLocked(ctx context.Context, text, profile string, priority synth.Priority) error {
	sc := duck.ContextConversation
	if profile == "navigation" {
		sc = duck.ContextNavigation
	}
	txn, err := o.duck.BeginSpeech(ctx, sc)
	if err != nil {
		return fmt.Errorf("orchestrator: begin ducking: %w", err)
	}

	res, err := o.synth.Synthesize(ctx, synth.Request{Text: text, Profile: profile, Priority: priority})
	if err != nil && errors.Is(err, synth.ErrExhausted) && text != apologyText {
		o.log.Warn("synthesis exhausted, substituting apology", "err", err)
		res, err = o.synth.SynthesizeUrgent(ctx, apologyText)
		text = apologyText
	}
	if err != nil {
		_ = o.duck.EndSpeech(ctx, txn)
		return fmt.Errorf("orchestrator: synthesize: %w", err)
	}

	if err := o.duck.Play(ctx, txn, toFrame(res.Audio)); err != nil {
		_ = o.duck.EndSpeech(ctx, txn)
		return err
	}
	o.log.Info("spoke utterance",
		slog.String("tier", string(res.Tier)),
		slog.Duration("latency", res.Latency))
	return o.duck.RestoreAfterPlayback(ctx, txn, text)
}

// toFrame converts a synthesis payload to a playable frame.
func toFrame(a tts.Audio) audio.Frame {
	return audio.Frame{
		Data:       a.PCM,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		Timestamp:  time.Now(),
	}
}
