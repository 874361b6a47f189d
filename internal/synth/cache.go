package synth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

// cacheKey derives the cache key from the sanitized text and profile name.
func cacheKey(text, profile string) string {
	sum := sha256.Sum256([]byte(profile + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// cacheEntry is one stored payload.
type cacheEntry struct {
	key       string
	audio     tts.Audio
	createdAt time.Time
}

// valid reports whether the entry decodes to a playable payload. Entries
// that fail this check are treated as corrupt: evicted and reported as a
// miss, never surfaced to the caller.
func (e *cacheEntry) valid() bool {
	return len(e.audio.PCM) > 0 && e.audio.SampleRate > 0 && e.audio.Channels > 0
}

// payloadCache is a bounded audio cache with two eviction rules: once the
// configured maximum is exceeded, exactly one least-recently-inserted entry
// is evicted per insertion; and entries older than the TTL are dropped on
// lookup.
//
// Writes are single-writer by mutex, with eviction performed atomically
// relative to the insertion. Safe for concurrent use.
type payloadCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*cacheEntry
	order   []string // insertion order, oldest first

	// now is the clock, replaceable in tests.
	now func() time.Time

	// onChange, when non-nil, is invoked with the population delta after
	// every mutation (metrics gauge hook).
	onChange func(delta int)
}

// newPayloadCache creates a cache with the given bounds. maxSize must be at
// least 1; ttl of zero disables age eviction.
func newPayloadCache(maxSize int, ttl time.Duration) *payloadCache {
	return &payloadCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry, maxSize),
		now:     time.Now,
	}
}

// get returns the payload for key when present, unexpired, and valid.
func (c *payloadCache) get(key string) (tts.Audio, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return tts.Audio{}, false
	}
	if c.expired(e) || !e.valid() {
		c.remove(key)
		return tts.Audio{}, false
	}
	return e.audio, true
}

// put inserts a payload. If the key already exists its entry is replaced
// and re-dated. When the insertion pushes the population past maxSize,
// exactly one least-recently-inserted entry is evicted in the same critical
// section.
func (c *payloadCache) put(key string, audio tts.Audio) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	c.entries[key] = &cacheEntry{key: key, audio: audio, createdAt: c.now()}
	c.order = append(c.order, key)
	if c.onChange != nil {
		c.onChange(1)
	}

	if len(c.entries) > c.maxSize {
		c.remove(c.order[0])
	}
}

// len returns the current population.
func (c *payloadCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// purgeExpired drops every entry older than the TTL and returns how many
// were removed.
func (c *payloadCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []string
	for key, e := range c.entries {
		if c.expired(e) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		c.remove(key)
	}
	return len(victims)
}

// expired reports whether e is older than the TTL. Must be called with
// c.mu held.
func (c *payloadCache) expired(e *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl
}

// remove deletes key from the map and the insertion-order list. Must be
// called with c.mu held.
func (c *payloadCache) remove(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.onChange != nil {
		c.onChange(-1)
	}
}
