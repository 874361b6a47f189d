package spotter

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
)

const testSampleRate = 16000

// frameSamples is one 20 ms frame at the test rate.
const frameSamples = testSampleRate * 20 / 1000

// scriptedTranscriber returns a fixed transcript for every utterance.
type scriptedTranscriber struct {
	text string
	err  error

	calls int
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, _ []byte, _ int) (string, error) {
	s.calls++
	return s.text, s.err
}

// pcmFrame builds a mono 16-bit frame with constant amplitude.
func pcmFrame(amplitude int16) audio.Frame {
	data := make([]byte, frameSamples*2)
	for i := 0; i < frameSamples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return audio.Frame{Data: data, SampleRate: testSampleRate, Channels: 1}
}

// feedUtterance pushes enough loud frames to form a valid utterance and
// then silence until the detector scores it. Returns the score from the
// frame that completed the utterance.
func feedUtterance(t *testing.T, d wakeengine.Detector) wakeengine.Score {
	t.Helper()
	loud := pcmFrame(8000) // rms ≈ 0.24, well above the 0.02 threshold
	quiet := pcmFrame(0)

	// 16 loud frames ≈ 320 ms, inside the 300–2000 ms utterance window.
	for i := 0; i < 16; i++ {
		if _, err := d.ProcessFrame(loud); err != nil {
			t.Fatalf("loud frame %d: %v", i, err)
		}
	}
	for i := 0; i < 30; i++ {
		score, err := d.ProcessFrame(quiet)
		if err != nil {
			t.Fatalf("quiet frame %d: %v", i, err)
		}
		if score.Confidence > 0 || score.Transcript != "" {
			return score
		}
	}
	t.Fatal("utterance never scored")
	return wakeengine.Score{}
}

func newDetector(t *testing.T, tr Transcriber, cfg wakeengine.Config) wakeengine.Detector {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = testSampleRate
	}
	d, err := New(tr).NewDetector(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestDetector_MatchingTranscriptScoresHigh(t *testing.T) {
	tr := &scriptedTranscriber{text: "hey carbot"}
	d := newDetector(t, tr, wakeengine.Config{Phrase: "hey carbot"})

	score := feedUtterance(t, d)
	if score.Confidence < 0.9 {
		t.Errorf("exact transcript confidence = %.2f, want >= 0.9", score.Confidence)
	}
	if score.Transcript != "hey carbot" {
		t.Errorf("transcript = %q", score.Transcript)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.calls)
	}
}

func TestDetector_MisheardVariantStillMatches(t *testing.T) {
	// "hey car bot" is a declared variant of the default model.
	tr := &scriptedTranscriber{text: "hey car bot"}
	d := newDetector(t, tr, wakeengine.Config{Phrase: "hey carbot"})

	score := feedUtterance(t, d)
	if score.Confidence < 0.9 {
		t.Errorf("variant confidence = %.2f, want >= 0.9", score.Confidence)
	}
}

func TestDetector_UnrelatedTranscriptScoresLow(t *testing.T) {
	tr := &scriptedTranscriber{text: "turn up the radio volume"}
	d := newDetector(t, tr, wakeengine.Config{Phrase: "hey carbot"})

	score := feedUtterance(t, d)
	if score.Confidence >= 0.7 {
		t.Errorf("unrelated transcript confidence = %.2f, want < 0.7", score.Confidence)
	}
}

func TestDetector_AcousticOnlyStaysBelowThreshold(t *testing.T) {
	d := newDetector(t, nil, wakeengine.Config{Phrase: "hey carbot"})

	score := feedUtterance(t, d)
	if score.Confidence > 0.6 {
		t.Errorf("acoustic-only confidence = %.2f, want <= 0.6", score.Confidence)
	}
}

func TestDetector_ShortUtteranceIgnored(t *testing.T) {
	tr := &scriptedTranscriber{text: "hey carbot"}
	d := newDetector(t, tr, wakeengine.Config{Phrase: "hey carbot"})

	loud := pcmFrame(8000)
	quiet := pcmFrame(0)
	// 5 loud frames ≈ 100 ms, under the 300 ms minimum.
	for i := 0; i < 5; i++ {
		if _, err := d.ProcessFrame(loud); err != nil {
			t.Fatalf("loud frame: %v", err)
		}
	}
	for i := 0; i < 30; i++ {
		score, err := d.ProcessFrame(quiet)
		if err != nil {
			t.Fatalf("quiet frame: %v", err)
		}
		if score.Confidence > 0 {
			t.Fatalf("short utterance scored %.2f", score.Confidence)
		}
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times for a too-short utterance", tr.calls)
	}
}

func TestDetector_TranscriberFailureScoresZero(t *testing.T) {
	tr := &scriptedTranscriber{err: errors.New("decoder offline")}
	d := newDetector(t, tr, wakeengine.Config{Phrase: "hey carbot"})

	loud := pcmFrame(8000)
	quiet := pcmFrame(0)
	for i := 0; i < 16; i++ {
		if _, err := d.ProcessFrame(loud); err != nil {
			t.Fatalf("loud frame: %v", err)
		}
	}
	for i := 0; i < 30; i++ {
		score, err := d.ProcessFrame(quiet)
		if err != nil {
			t.Fatalf("quiet frame: %v", err)
		}
		if score.Confidence > 0 {
			t.Fatalf("failed transcription scored %.2f", score.Confidence)
		}
	}
}

func TestDetector_OddFrameLengthRejected(t *testing.T) {
	d := newDetector(t, nil, wakeengine.Config{Phrase: "hey carbot"})
	_, err := d.ProcessFrame(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: testSampleRate})
	if err == nil {
		t.Fatal("expected error for odd-length PCM")
	}
}

func TestDetector_ClosedRejectsFrames(t *testing.T) {
	d := newDetector(t, nil, wakeengine.Config{Phrase: "hey carbot"})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.ProcessFrame(pcmFrame(0)); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestNewDetector_InvalidSampleRate(t *testing.T) {
	if _, err := New(nil).NewDetector(context.Background(), wakeengine.Config{}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

// ---- Model asset loading ----

func writeModel(t *testing.T) (path, sha string) {
	t.Helper()
	body := []byte(`{"variants":["hey carbot"],"energy_threshold":0.03,"min_utterance_ms":300,"max_utterance_ms":1500}`)
	path = filepath.Join(t.TempDir(), "wake-model.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	sum := sha256.Sum256(body)
	return path, hex.EncodeToString(sum[:])
}

func TestNewDetector_ModelChecksumVerified(t *testing.T) {
	path, sha := writeModel(t)
	d, err := New(nil).NewDetector(context.Background(), wakeengine.Config{
		SampleRate:  testSampleRate,
		ModelPath:   path,
		ModelSHA256: sha,
	})
	if err != nil {
		t.Fatalf("NewDetector with valid checksum: %v", err)
	}
	d.Close()
}

func TestNewDetector_ModelChecksumMismatch(t *testing.T) {
	path, _ := writeModel(t)
	_, err := New(nil).NewDetector(context.Background(), wakeengine.Config{
		SampleRate:  testSampleRate,
		ModelPath:   path,
		ModelSHA256: "deadbeef",
	})
	if !errors.Is(err, ErrModelIntegrity) {
		t.Fatalf("err = %v, want ErrModelIntegrity", err)
	}
	if !errors.Is(err, wakeengine.ErrModelIntegrity) {
		t.Fatal("error should match the engine-level sentinel too")
	}
}

func TestNewDetector_ModelMissing(t *testing.T) {
	_, err := New(nil).NewDetector(context.Background(), wakeengine.Config{
		SampleRate: testSampleRate,
		ModelPath:  filepath.Join(t.TempDir(), "absent.json"),
	})
	if err == nil {
		t.Fatal("expected error for missing model asset")
	}
}

// ---- Phrase matching ----

func TestMatchPhrase(t *testing.T) {
	variants := []string{"hey carbot", "hey car bot"}
	tests := []struct {
		text string
		min  float64
		max  float64
	}{
		{"hey carbot", 0.99, 1.0},
		{"Hey, Carbot!", 0.99, 1.0},
		{"hey karbot", 0.9, 1.0},
		{"what is the weather today", 0.0, 0.7},
	}
	for _, tc := range tests {
		got := matchPhrase(tc.text, variants)
		if got < tc.min || got > tc.max {
			t.Errorf("matchPhrase(%q) = %.3f, want in [%.2f, %.2f]", tc.text, got, tc.min, tc.max)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Hey,   CAR-bot! "); got != "hey car bot" {
		t.Errorf("normalize = %q", got)
	}
}
