package synth

import (
	"strings"
	"testing"
)

func TestSanitizeStripsMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Turn left in 200 meters.", "Turn left in 200 meters."},
		{"bold", "Turn **left** now", "Turn left now"},
		{"inline code", "Run `go build` first", "Run first"},
		{"code block", "Here:\n```\nfmt.Println()\n```\ndone", "Here: done"},
		{"markdown link", "See [the manual](https://example.com/doc) for details",
			"See the manual for details"},
		{"bare url", "Visit https://example.com/page now", "Visit a web link now"},
		{"whitespace", "too   many\n\nspaces", "too many spaces"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in, TierPrimary); got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeEmptyAfterStripping(t *testing.T) {
	if got := Sanitize("``` ```", TierPrimary); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestSanitizeLengthCaps(t *testing.T) {
	long := strings.Repeat("wordy ", 200) // ~1200 bytes

	primary := Sanitize(long, TierPrimary)
	if len(primary) > maxTextPrimary {
		t.Fatalf("primary cap exceeded: %d > %d", len(primary), maxTextPrimary)
	}
	local := Sanitize(long, TierFallback)
	if len(local) > maxTextLocal {
		t.Fatalf("local cap exceeded: %d > %d", len(local), maxTextLocal)
	}
	if strings.HasSuffix(local, "wor") {
		t.Fatal("truncation should not end mid-word")
	}
}
