package duck

import (
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
)

// Profile context keys.
const (
	ProfileMusicSoft    = "music_soft"
	ProfileMusicLoud    = "music_loud"
	ProfileNavigation   = "navigation"
	ProfilePhoneCall    = "phone_call"
	ProfileEmergency    = "emergency"
	ProfileConversation = "conversation"
)

// Profile is a fixed attenuation recipe keyed by context.
type Profile struct {
	// Key is the context name.
	Key string

	// Attenuation is the bus level while assistant speech plays, in
	// [0.0, 1.0].
	Attenuation float64

	// FadeIn is the ramp-down duration before speech.
	FadeIn time.Duration

	// FadeOut is the ramp-up duration after speech.
	FadeOut time.Duration
}

// defaultProfiles is the built-in attenuation table. Attenuation levels can
// be overridden per key from configuration; fade timings are fixed.
var defaultProfiles = map[string]Profile{
	ProfileMusicSoft:    {Key: ProfileMusicSoft, Attenuation: 0.4, FadeIn: 600 * time.Millisecond, FadeOut: 1000 * time.Millisecond},
	ProfileMusicLoud:    {Key: ProfileMusicLoud, Attenuation: 0.2, FadeIn: 500 * time.Millisecond, FadeOut: 1000 * time.Millisecond},
	ProfileNavigation:   {Key: ProfileNavigation, Attenuation: 0.3, FadeIn: 500 * time.Millisecond, FadeOut: 800 * time.Millisecond},
	ProfilePhoneCall:    {Key: ProfilePhoneCall, Attenuation: 0.5, FadeIn: 500 * time.Millisecond, FadeOut: 800 * time.Millisecond},
	ProfileEmergency:    {Key: ProfileEmergency, Attenuation: 0.05, FadeIn: 0, FadeOut: 500 * time.Millisecond},
	ProfileConversation: {Key: ProfileConversation, Attenuation: 0.35, FadeIn: 500 * time.Millisecond, FadeOut: 900 * time.Millisecond},
}

// buildProfiles returns the attenuation table with configuration overrides
// applied. Unknown override keys are rejected earlier by config validation.
func buildProfiles(cfg config.DuckingConfig) map[string]Profile {
	profiles := make(map[string]Profile, len(defaultProfiles))
	for key, p := range defaultProfiles {
		if level, ok := cfg.Profiles[key]; ok {
			p.Attenuation = level
		}
		profiles[key] = p
	}
	return profiles
}
