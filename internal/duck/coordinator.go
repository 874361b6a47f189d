// Package duck implements the audio-ducking coordinator: it tracks which
// competing audio sources are active, picks an attenuation profile, fades
// the shared output bus down before assistant speech and back up after, and
// provides the emergency override path that bypasses normal negotiation.
package duck

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/observe"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// SpeechContext hints what kind of utterance a transaction carries. It only
// influences selection when the media state alone is inconclusive, except
// for ContextEmergency which always wins.
type SpeechContext string

const (
	// ContextConversation is ordinary assistant speech.
	ContextConversation SpeechContext = "conversation"

	// ContextNavigation is a navigation prompt.
	ContextNavigation SpeechContext = "navigation"

	// ContextEmergency forces the emergency profile regardless of media
	// state.
	ContextEmergency SpeechContext = "emergency"
)

// restoreEpsilon is the tolerated difference between the restored bus
// volume and the transaction's recorded original (1%).
const restoreEpsilon = 0.01

// Speech-duration heuristic used when the bus cannot signal true playback
// completion: nominal speaking rate, clamped to a sane range.
const (
	wordsPerMinute = 180
	minRestoreWait = 2 * time.Second
	maxRestoreWait = 8 * time.Second
)

// Transaction is one active ducking episode. It always ends by restoring
// the recorded original volume unless superseded by an emergency override.
type Transaction struct {
	// ID correlates the started/ended bus notices.
	ID string

	// Profile is the context key that was applied.
	Profile string

	// OriginalVolume is the bus level recorded before the fade down.
	OriginalVolume float64

	// Level is the attenuated bus level while speech plays.
	Level float64

	// DeviceID is the output device selected for this transaction. Empty
	// means the platform default.
	DeviceID string

	emergency  bool
	superseded bool
}

// Coordinator arbitrates the shared output bus across assistant speech and
// competing media. Safe for concurrent use; transactions against the same
// bus are serialized, never interleaved.
type Coordinator struct {
	cfg       config.DuckingConfig
	bus       audio.OutputBus
	devices   audio.DeviceEnumerator // may be nil
	observer  audio.MediaObserver    // may be nil
	busClient *bus.Client
	metrics   *observe.Metrics
	log       *slog.Logger

	profiles map[string]Profile
	media    *mediaTracker
	fader    *fader

	// gate admits one transaction at a time; a second BeginSpeech waits
	// until the active transaction restores.
	gate chan struct{}

	mu     sync.Mutex
	active *Transaction
}

// NewCoordinator creates a coordinator for one output bus. devices,
// observer, busClient and metrics may each be nil.
func NewCoordinator(cfg config.DuckingConfig, outputBus audio.OutputBus, devices audio.DeviceEnumerator, observer audio.MediaObserver, busClient *bus.Client, metrics *observe.Metrics, log *slog.Logger) *Coordinator {
	log = log.With(slog.String("component", "duck"))
	return &Coordinator{
		cfg:       cfg,
		bus:       outputBus,
		devices:   devices,
		observer:  observer,
		busClient: busClient,
		metrics:   metrics,
		log:       log,
		profiles:  buildProfiles(cfg),
		media:     &mediaTracker{},
		fader:     newFader(outputBus, metrics, log),
		gate:      make(chan struct{}, 1),
	}
}

// Start begins consuming media-session activity signals from the platform
// observer and the vehicle bus. Returns once the feeds are wired; delivery
// continues until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.observer != nil {
		ch, err := c.observer.Observe(ctx)
		if err != nil {
			return fmt.Errorf("duck: start media observer: %w", err)
		}
		go func() {
			for u := range ch {
				c.media.Apply(u)
			}
		}()
	}
	_, err := bus.SubscribeJSON(c.busClient, protocol.SubjectMediaState, func(ms protocol.MediaState) {
		c.media.Apply(audio.MediaUpdate{Source: ms.Source, Active: ms.Active, Volume: ms.Volume})
	})
	return err
}

// Close stops the fade worker.
func (c *Coordinator) Close() {
	c.fader.Close()
}

// Media returns the current competing-audio snapshot.
func (c *Coordinator) Media() MediaSnapshot {
	return c.media.Snapshot()
}

// BeginSpeech selects a profile and output device, records the current bus
// volume, fades down, and returns the transaction handle. If another
// transaction is active the call waits until it completes — ramps against
// one bus never interleave.
func (c *Coordinator) BeginSpeech(ctx context.Context, sc SpeechContext) (*Transaction, error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	txn, err := c.begin(ctx, sc)
	if err != nil {
		<-c.gate
		return nil, err
	}
	return txn, nil
}

func (c *Coordinator) begin(ctx context.Context, sc SpeechContext) (*Transaction, error) {
	profile := c.profiles[c.selectProfileKey(sc)]
	original, err := c.bus.Volume(ctx)
	if err != nil {
		return nil, fmt.Errorf("duck: read bus volume: %w", err)
	}

	txn := &Transaction{
		ID:             uuid.NewString(),
		Profile:        profile.Key,
		OriginalVolume: original,
		Level:          profile.Attenuation,
		DeviceID:       c.selectDevice(ctx),
		emergency:      sc == ContextEmergency,
	}

	// Register before fading so an emergency override arriving mid-ramp
	// supersedes this transaction instead of queueing behind it. The token
	// is captured first: an interrupt landing between registration and the
	// ramp still aborts it.
	gen := c.fader.generation()
	c.mu.Lock()
	c.active = txn
	c.mu.Unlock()

	if err := c.fader.ramp(ctx, gen, profile.Attenuation, profile.FadeIn); err != nil {
		c.mu.Lock()
		superseded := txn.superseded
		if !superseded && c.active == txn {
			c.active = nil
		}
		c.mu.Unlock()
		if !superseded {
			return nil, err
		}
		// An emergency override preempted the fade and owns the bus level
		// now; the transaction stands so its EndSpeech is a clean no-op.
	}

	c.log.Info("ducking started",
		slog.String("profile", profile.Key),
		slog.Float64("level", profile.Attenuation),
		slog.String("device", txn.DeviceID))
	if c.metrics != nil {
		c.metrics.ActiveTransactions.Add(ctx, 1)
	}
	c.publishNotice(true, txn)
	return txn, nil
}

// EndSpeech fades back to the transaction's recorded original volume and
// releases the bus for the next transaction. Ending a superseded or already
// ended transaction is a no-op.
func (c *Coordinator) EndSpeech(ctx context.Context, txn *Transaction) error {
	c.mu.Lock()
	if txn == nil || c.active != txn || txn.superseded {
		c.mu.Unlock()
		return nil
	}
	c.active = nil
	c.mu.Unlock()

	defer func() { <-c.gate }()

	profile := c.profiles[txn.Profile]
	err := c.fader.Ramp(ctx, txn.OriginalVolume, profile.FadeOut)
	if err != nil {
		c.log.Warn("restore ramp failed", "err", err)
	}

	// The transaction contract is restoration to originalVolume within
	// epsilon; correct any drift with a direct set.
	if v, verr := c.bus.Volume(ctx); verr == nil && math.Abs(v-txn.OriginalVolume) > restoreEpsilon {
		if serr := c.bus.SetVolume(ctx, txn.OriginalVolume); serr != nil && err == nil {
			err = fmt.Errorf("duck: restore volume: %w", serr)
		}
	}

	c.log.Info("ducking ended",
		slog.String("profile", txn.Profile),
		slog.Float64("restored", txn.OriginalVolume))
	if c.metrics != nil {
		c.metrics.ActiveTransactions.Add(ctx, -1)
		c.metrics.RecordDucking(ctx, txn.Profile, "completed")
	}
	c.publishNotice(false, txn)
	return err
}

// EmergencyOverride bypasses normal negotiation: it supersedes any active
// transaction, drops the bus to the emergency level with no fade, and asks
// the platform to pause pausable media. The caller synthesizes and plays
// the announcement at urgent priority, then ends the returned transaction
// normally.
func (c *Coordinator) EmergencyOverride(ctx context.Context) (*Transaction, error) {
	profile := c.profiles[ProfileEmergency]

	c.mu.Lock()
	prev := c.active
	if prev != nil {
		prev.superseded = true
	}
	c.mu.Unlock()

	original, err := c.bus.Volume(ctx)
	if err != nil {
		return nil, fmt.Errorf("duck: read bus volume: %w", err)
	}
	if prev != nil {
		// The superseded transaction holds the gate; this transaction
		// inherits its slot. Restore to the volume recorded before any
		// ducking, not the attenuated level we just read.
		original = prev.OriginalVolume
		c.fader.Interrupt()
		if c.metrics != nil {
			c.metrics.RecordDucking(ctx, prev.Profile, "superseded")
		}
	} else {
		select {
		case c.gate <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	txn := &Transaction{
		ID:             uuid.NewString(),
		Profile:        ProfileEmergency,
		OriginalVolume: original,
		Level:          profile.Attenuation,
		DeviceID:       c.selectDevice(ctx),
		emergency:      true,
	}
	// Single-step ramp: no fade, but serialized behind the interrupted
	// ramp's abort so a stale fade step cannot land after the emergency
	// level is set.
	if err := c.fader.Ramp(ctx, profile.Attenuation, 0); err != nil {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		<-c.gate
		return nil, fmt.Errorf("duck: emergency attenuation: %w", err)
	}

	c.mu.Lock()
	c.active = txn
	c.mu.Unlock()

	c.busClient.PublishJSON(protocol.SubjectMediaCommand, protocol.MediaCommand{Action: "pause", Source: sourceMusic})
	c.log.Warn("emergency override engaged", slog.Float64("level", profile.Attenuation))
	if c.metrics != nil {
		if prev == nil {
			c.metrics.ActiveTransactions.Add(ctx, 1)
		}
	}
	c.publishNotice(true, txn)
	return txn, nil
}

// Play renders a synthesized payload on the transaction's selected device.
// If that device disappeared, playback falls back to the platform default
// and the transaction continues there.
func (c *Coordinator) Play(ctx context.Context, txn *Transaction, frame audio.Frame) error {
	err := c.bus.Play(ctx, txn.DeviceID, frame)
	if err != nil && txn.DeviceID != "" {
		c.log.Warn("output device unavailable, falling back to default",
			slog.String("device", txn.DeviceID), "err", err)
		txn.DeviceID = ""
		err = c.bus.Play(ctx, "", frame)
	}
	if err != nil {
		return fmt.Errorf("duck: play on device %q: %w", txn.DeviceID, err)
	}
	return nil
}

// RestoreAfterPlayback ends the transaction once playback finishes: a true
// completion signal from the bus when available, otherwise the
// speech-duration heuristic for text. Blocks until restoration completes.
func (c *Coordinator) RestoreAfterPlayback(ctx context.Context, txn *Transaction, text string) error {
	estimate := EstimateSpeechDuration(text)
	if cs, ok := c.bus.(audio.CompletionSignaler); ok {
		// The estimate (plus slack) doubles as a watchdog in case the
		// signal never arrives.
		select {
		case <-cs.PlaybackDone():
		case <-time.After(estimate + 2*time.Second):
			c.log.Warn("playback completion signal missed, restoring on estimate")
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case <-time.After(estimate):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.EndSpeech(ctx, txn)
}

// EstimateSpeechDuration estimates how long text takes to speak at a
// nominal rate, clamped to a sane range. A heuristic, not a guarantee:
// prefer a completion signal where the bus provides one.
func EstimateSpeechDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
	if d < minRestoreWait {
		return minRestoreWait
	}
	if d > maxRestoreWait {
		return maxRestoreWait
	}
	return d
}

// Snapshot is the coordinator's contribution to the status endpoint.
type Snapshot struct {
	Active  bool          `json:"active"`
	Profile string        `json:"profile,omitempty"`
	Level   float64       `json:"level,omitempty"`
	Media   MediaSnapshot `json:"media"`
}

// StatusSnapshot returns a point-in-time view of the coordinator.
func (c *Coordinator) StatusSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{Media: c.media.Snapshot()}
	if c.active != nil {
		snap.Active = true
		snap.Profile = c.active.Profile
		snap.Level = c.active.Level
	}
	return snap
}

// selectProfileKey applies the priority order: emergency, phone call,
// navigation, music (loud or soft by volume threshold), then the speech
// context's own default.
func (c *Coordinator) selectProfileKey(sc SpeechContext) string {
	if sc == ContextEmergency {
		return ProfileEmergency
	}
	m := c.media.Snapshot()
	switch {
	case m.PhoneActive:
		return ProfilePhoneCall
	case m.NavigationActive:
		return ProfileNavigation
	case m.MusicActive:
		if m.MusicVolume > c.cfg.MusicLoudThreshold {
			return ProfileMusicLoud
		}
		return ProfileMusicSoft
	case sc == ContextNavigation:
		return ProfileNavigation
	default:
		return ProfileConversation
	}
}

// selectDevice picks the best currently-active output device: dedicated car
// speaker, then paired wireless, then any other active device, then the
// platform default. Re-evaluated per transaction since availability changes
// at runtime.
func (c *Coordinator) selectDevice(ctx context.Context) string {
	if c.devices == nil {
		return ""
	}
	list, err := c.devices.Devices(ctx)
	if err != nil {
		c.log.Warn("device enumeration failed, using platform default", "err", err)
		return ""
	}
	bestRank := 0
	bestID := ""
	for _, d := range list {
		if !d.Active {
			continue
		}
		if r := deviceRank(d.Class); r > bestRank {
			bestRank = r
			bestID = d.ID
		}
	}
	return bestID
}

func deviceRank(class audio.DeviceClass) int {
	switch class {
	case audio.DeviceCarSpeaker:
		return 3
	case audio.DeviceBluetooth:
		return 2
	case audio.DeviceOther:
		return 1
	default:
		return 0
	}
}

func (c *Coordinator) publishNotice(started bool, txn *Transaction) {
	level := txn.Level
	if !started {
		level = txn.OriginalVolume
	}
	c.busClient.PublishJSON(protocol.SubjectDuckingEvent, protocol.DuckingNotice{
		Started:       started,
		Profile:       txn.Profile,
		Level:         level,
		TransactionID: txn.ID,
		Timestamp:     time.Now(),
	})
}
