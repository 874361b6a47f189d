// Package spotter implements a lightweight keyword-spotting wake engine.
//
// The spotter gates incoming PCM on signal energy, accumulates candidate
// utterances bounded by silence, and scores completed utterances against the
// trigger phrase. When a transcriber is available the decoded text is
// fuzzy-matched phonetically against the phrase variants from the model
// asset; without one, a purely acoustic score based on utterance shape is
// produced, which is enough to exercise the pipeline but not robust for
// production use.
//
// The "model asset" is a small JSON file declaring phrase variants and
// energy thresholds; its integrity is verified by SHA-256 before use.
package spotter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
)

// ErrModelIntegrity aliases the engine-level sentinel so existing callers
// can match it through either package.
var ErrModelIntegrity = wakeengine.ErrModelIntegrity

// Transcriber decodes a candidate utterance to text. It is satisfied by the
// external speech-to-text collaborator; tests use a scripted implementation.
type Transcriber interface {
	// Transcribe converts mono 16-bit PCM at the given rate to text.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// model is the on-disk model asset schema.
type model struct {
	// Variants are accepted renderings of the trigger phrase, including
	// common recognizer mistakes ("hey car bot", "hey carbot", "a car bot").
	Variants []string `json:"variants"`

	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64 `json:"energy_threshold"`

	// MinUtteranceMs and MaxUtteranceMs bound candidate utterance length.
	MinUtteranceMs int `json:"min_utterance_ms"`
	MaxUtteranceMs int `json:"max_utterance_ms"`
}

// defaultModel is used when no model path is configured.
var defaultModel = model{
	Variants:        []string{"hey carbot", "hey car bot", "a carbot", "hey karbot"},
	EnergyThreshold: 0.02,
	MinUtteranceMs:  300,
	MaxUtteranceMs:  2000,
}

// Engine implements wakeengine.Engine.
type Engine struct {
	transcriber Transcriber
}

// Compile-time interface assertion.
var _ wakeengine.Engine = (*Engine)(nil)

// New creates a spotter Engine. transcriber may be nil, in which case
// detectors fall back to acoustic-only scoring.
func New(transcriber Transcriber) *Engine {
	return &Engine{transcriber: transcriber}
}

// NewDetector loads and validates the model asset, then returns a detector
// ready to score frames.
func (e *Engine) NewDetector(_ context.Context, cfg wakeengine.Config) (wakeengine.Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("spotter: invalid sample rate %d", cfg.SampleRate)
	}

	m := defaultModel
	if cfg.ModelPath != "" {
		loaded, err := loadModel(cfg.ModelPath, cfg.ModelSHA256)
		if err != nil {
			return nil, err
		}
		m = *loaded
	}
	if cfg.Phrase != "" {
		// The configured phrase is always an accepted variant.
		m.Variants = append([]string{cfg.Phrase}, m.Variants...)
	}
	if len(m.Variants) == 0 {
		return nil, errors.New("spotter: model declares no phrase variants")
	}

	return &detector{
		engine:     e,
		model:      m,
		sampleRate: cfg.SampleRate,
		minSamples: cfg.SampleRate * m.MinUtteranceMs / 1000,
		maxSamples: cfg.SampleRate * m.MaxUtteranceMs / 1000,
	}, nil
}

// loadModel reads the model asset and verifies its checksum when one is
// configured.
func loadModel(path, wantSHA256 string) (*model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spotter: read model %q: %w", path, err)
	}
	if wantSHA256 != "" {
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), wantSHA256) {
			return nil, fmt.Errorf("%w: %q", ErrModelIntegrity, path)
		}
	}
	m := &model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("spotter: decode model %q: %w", path, err)
	}
	if m.EnergyThreshold <= 0 {
		m.EnergyThreshold = defaultModel.EnergyThreshold
	}
	if m.MinUtteranceMs <= 0 {
		m.MinUtteranceMs = defaultModel.MinUtteranceMs
	}
	if m.MaxUtteranceMs <= m.MinUtteranceMs {
		m.MaxUtteranceMs = defaultModel.MaxUtteranceMs
	}
	return m, nil
}

// silenceFramesMax ends a candidate utterance after roughly 300 ms of
// silence at typical 20 ms frames.
const silenceFramesMax = 15

// detector accumulates speech bounded by silence and scores completed
// utterances. Not safe for concurrent use; the monitor owns it exclusively.
type detector struct {
	engine     *Engine
	model      model
	sampleRate int
	minSamples int
	maxSamples int

	buf           []byte
	inSpeech      bool
	silenceFrames int
	closed        bool
}

// ProcessFrame implements wakeengine.Detector.
func (d *detector) ProcessFrame(frame audio.Frame) (wakeengine.Score, error) {
	if d.closed {
		return wakeengine.Score{}, errors.New("spotter: detector is closed")
	}
	if len(frame.Data)%2 != 0 {
		return wakeengine.Score{}, fmt.Errorf("spotter: odd PCM length %d", len(frame.Data))
	}

	energy := rms(frame.Data)
	speaking := energy >= d.model.EnergyThreshold

	switch {
	case speaking && !d.inSpeech:
		d.inSpeech = true
		d.buf = d.buf[:0]
		d.silenceFrames = 0
		d.buf = append(d.buf, frame.Data...)

	case speaking:
		d.buf = append(d.buf, frame.Data...)
		d.silenceFrames = 0
		// Too long for a trigger phrase: discard mid-utterance.
		if len(d.buf)/2 > d.maxSamples {
			d.resetUtterance()
		}

	case d.inSpeech:
		d.buf = append(d.buf, frame.Data...)
		d.silenceFrames++
		if d.silenceFrames >= silenceFramesMax {
			score := d.scoreUtterance()
			d.resetUtterance()
			return score, nil
		}
	}
	return wakeengine.Score{}, nil
}

// scoreUtterance evaluates the accumulated buffer as a trigger-phrase
// candidate.
func (d *detector) scoreUtterance() wakeengine.Score {
	samples := len(d.buf) / 2
	if samples < d.minSamples {
		return wakeengine.Score{}
	}

	if d.engine.transcriber != nil {
		text, err := d.engine.transcriber.Transcribe(context.Background(), d.buf, d.sampleRate)
		if err != nil || text == "" {
			return wakeengine.Score{}
		}
		return wakeengine.Score{
			Confidence: matchPhrase(text, d.model.Variants),
			Transcript: text,
		}
	}

	// Acoustic-only scoring: how well the utterance duration fits the
	// expected trigger-phrase window. A mid-window utterance scores ~0.6,
	// which sits below the usual 0.7 threshold — without a transcriber the
	// engine cannot produce a confident detection on its own.
	mid := float64(d.minSamples+d.maxSamples) / 2
	span := float64(d.maxSamples-d.minSamples) / 2
	dist := float64(samples) - mid
	if dist < 0 {
		dist = -dist
	}
	return wakeengine.Score{Confidence: 0.6 * (1 - dist/span)}
}

// matchPhrase returns the best phonetic similarity between text and the
// accepted variants. Jaro-Winkler on the full strings is combined with a
// Double Metaphone equality bonus so that spelled-out mishearings still
// match.
func matchPhrase(text string, variants []string) float64 {
	norm := normalize(text)
	best := 0.0
	for _, v := range variants {
		vn := normalize(v)
		score := matchr.JaroWinkler(norm, vn, false)
		if metaphoneEqual(norm, vn) && score < 0.95 {
			score += 0.05
		}
		if score > best {
			best = score
		}
	}
	if best > 1 {
		best = 1
	}
	return best
}

// metaphoneEqual reports whether two strings share a Double Metaphone code.
func metaphoneEqual(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(strings.ReplaceAll(a, " ", ""))
	bp, bs := matchr.DoubleMetaphone(strings.ReplaceAll(b, " ", ""))
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || (bs != "" && x == bs) {
			return true
		}
	}
	return false
}

// normalize lowercases and collapses whitespace/punctuation for matching.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Reset implements wakeengine.Detector.
func (d *detector) Reset() {
	d.resetUtterance()
}

// Close implements wakeengine.Detector.
func (d *detector) Close() error {
	d.closed = true
	d.buf = nil
	return nil
}

func (d *detector) resetUtterance() {
	d.inSpeech = false
	d.silenceFrames = 0
	d.buf = d.buf[:0]
}

// rms computes the root-mean-square level of 16-bit PCM, normalized to
// [0.0, 1.0].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
