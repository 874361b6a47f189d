package synth

import (
	"regexp"
	"strings"
)

// Length caps per serving tier. Remote synthesis tolerates longer inputs;
// the local model's latency grows steeply with length, so it gets a tighter
// cap.
const (
	maxTextPrimary = 500
	maxTextLocal   = 300
)

// urlToken replaces URLs in spoken text — reading a URL aloud is useless in
// a car.
const urlToken = "a web link"

var (
	urlRe        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	markupRe     = regexp.MustCompile(`[*_~#>]+`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Sanitize normalizes assistant text for synthesis: markdown and code
// markup are stripped, URLs replaced with a generic token, whitespace
// collapsed, and length capped for the given tier.
func Sanitize(text string, tier Tier) string {
	s := codeBlockRe.ReplaceAllString(text, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	s = linkRe.ReplaceAllString(s, "$1")
	s = urlRe.ReplaceAllString(s, urlToken)
	s = markupRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	limit := maxTextPrimary
	if tier == TierFallback {
		limit = maxTextLocal
	}
	if len(s) > limit {
		s = truncateAtWord(s, limit)
	}
	return s
}

// truncateAtWord cuts s to at most limit bytes, preferring the last word
// boundary so the utterance does not end mid-word.
func truncateAtWord(s string, limit int) string {
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
