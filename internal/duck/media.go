package duck

import (
	"sync"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
)

// Competing audio source names as delivered by the car platform.
const (
	sourceMusic      = "music"
	sourceNavigation = "navigation"
	sourcePhone      = "phone"
)

// MediaSnapshot is a point-in-time view of competing audio activity.
type MediaSnapshot struct {
	MusicActive      bool    `json:"music_active"`
	MusicVolume      float64 `json:"music_volume"`
	NavigationActive bool    `json:"navigation_active"`
	PhoneActive      bool    `json:"phone_active"`
}

// mediaTracker accumulates media-session activity signals. Signals arrive
// from the platform observer and the vehicle bus; reads come from profile
// selection on every speech transaction.
type mediaTracker struct {
	mu   sync.RWMutex
	snap MediaSnapshot
}

// Apply folds one activity signal into the tracked state. Unknown sources
// are ignored.
func (t *mediaTracker) Apply(u audio.MediaUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch u.Source {
	case sourceMusic:
		t.snap.MusicActive = u.Active
		if u.Active {
			t.snap.MusicVolume = u.Volume
		} else {
			t.snap.MusicVolume = 0
		}
	case sourceNavigation:
		t.snap.NavigationActive = u.Active
	case sourcePhone:
		t.snap.PhoneActive = u.Active
	}
}

// Snapshot returns a copy of the current state.
func (t *mediaTracker) Snapshot() MediaSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
