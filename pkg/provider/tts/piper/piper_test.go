package piper

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

func TestNew_RequiresModelPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("/voices/en.onnx")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.binary != defaultBinary {
		t.Errorf("binary = %q, want %q", p.binary, defaultBinary)
	}
	if p.sampleRate != defaultSampleRate {
		t.Errorf("sample rate = %d, want %d", p.sampleRate, defaultSampleRate)
	}
	if p.Name() != "piper" {
		t.Errorf("Name = %q", p.Name())
	}
}

// fakeBinary writes a shell script standing in for the piper executable.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o700); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestSynthesize_ReturnsStdoutPCM(t *testing.T) {
	bin := fakeBinary(t, `cat >/dev/null; printf 'PCMDATA'`)
	p, err := New("/voices/en.onnx", WithBinary(bin), WithSampleRate(16000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "turn left ahead", tts.Params{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.PCM) != "PCMDATA" {
		t.Errorf("PCM = %q", audio.PCM)
	}
	if audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d", audio.SampleRate)
	}
	if audio.Channels != 1 {
		t.Errorf("channels = %d", audio.Channels)
	}
}

func TestSynthesize_EmptyTextRejected(t *testing.T) {
	p, err := New("/voices/en.onnx")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "   ", tts.Params{}); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestSynthesize_BinaryFailureSurfacesStderr(t *testing.T) {
	bin := fakeBinary(t, `echo "model load failed" >&2; exit 1`)
	p, err := New("/voices/en.onnx", WithBinary(bin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Synthesize(context.Background(), "hello", tts.Params{})
	if err == nil {
		t.Fatal("expected error from failing binary")
	}
	if !strings.Contains(err.Error(), "model load failed") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestSynthesize_EmptyOutputRejected(t *testing.T) {
	bin := fakeBinary(t, `cat >/dev/null`)
	p, err := New("/voices/en.onnx", WithBinary(bin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hello", tts.Params{}); err == nil {
		t.Fatal("expected error for empty audio output")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("first\nsecond\nthird"); got != "first" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("  only  "); got != "only" {
		t.Errorf("firstLine = %q", got)
	}
}
