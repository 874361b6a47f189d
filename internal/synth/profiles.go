package synth

import (
	"fmt"
	"sync"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// VoiceProfile is a named bundle of rendering parameters. Profiles are
// platform-independent: "emergency" always means a strong, unhurried, loud
// rendering regardless of which provider tier serves the request.
type VoiceProfile struct {
	// Name is the registry key.
	Name string

	// VoiceID is the provider voice identifier. Empty selects the
	// provider's default voice.
	VoiceID string

	// Rate adjusts speaking rate (0.5–2.0, 1.0 = default).
	Rate float64

	// Pitch adjusts pitch (-10 to +10, 0 = default).
	Pitch float64

	// VolumeTrim adjusts output gain in [0.0, 1.0] (1.0 = no trim).
	VolumeTrim float64
}

// params converts the profile to provider rendering parameters.
func (p VoiceProfile) params() tts.Params {
	return tts.Params{
		VoiceID:    p.VoiceID,
		Rate:       p.Rate,
		Pitch:      p.Pitch,
		VolumeTrim: p.VolumeTrim,
	}
}

// defaultProfiles is the fixed registry seeded at construction.
var defaultProfiles = []VoiceProfile{
	{Name: "default", Rate: 1.0, Pitch: 0, VolumeTrim: 1.0},
	{Name: "navigation", Rate: 1.05, Pitch: 0, VolumeTrim: 1.0},
	{Name: "emergency", Rate: 0.9, Pitch: -1, VolumeTrim: 1.0},
	{Name: "casual", Rate: 1.0, Pitch: 1, VolumeTrim: 0.9},
	{Name: "fast", Rate: 1.3, Pitch: 0, VolumeTrim: 1.0},
	{Name: "greeting", Rate: 1.0, Pitch: 1, VolumeTrim: 1.0},
}

// ProfileRegistry holds the voice profiles keyed by name. Profiles are
// read-only configuration, replaceable only via [ProfileRegistry.Register].
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]VoiceProfile
}

// NewProfileRegistry creates a registry seeded with the fixed default
// profiles.
func NewProfileRegistry() *ProfileRegistry {
	r := &ProfileRegistry{profiles: make(map[string]VoiceProfile, len(defaultProfiles))}
	for _, p := range defaultProfiles {
		r.profiles[p.Name] = p
	}
	return r
}

// Register adds or replaces a profile. Returns an error for unnamed or
// out-of-range profiles.
func (r *ProfileRegistry) Register(p VoiceProfile) error {
	if p.Name == "" {
		return fmt.Errorf("synth: profile name must not be empty")
	}
	if p.Rate != 0 && (p.Rate < 0.5 || p.Rate > 2.0) {
		return fmt.Errorf("synth: profile %q rate %v out of range [0.5, 2.0]", p.Name, p.Rate)
	}
	if p.VolumeTrim < 0 || p.VolumeTrim > 1 {
		return fmt.Errorf("synth: profile %q volume trim %v out of range [0, 1]", p.Name, p.VolumeTrim)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// Lookup returns the profile for name, falling back to "default" for
// unknown names so a bad profile reference degrades rather than fails.
func (r *ProfileRegistry) Lookup(name string) VoiceProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[name]; ok {
		return p
	}
	return r.profiles["default"]
}

// Names returns all registered profile names.
func (r *ProfileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
