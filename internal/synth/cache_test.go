package synth

import (
	"testing"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

func testAudio(marker byte) tts.Audio {
	return tts.Audio{PCM: []byte{marker, marker}, SampleRate: 22050, Channels: 1}
}

func TestCachePutGet(t *testing.T) {
	c := newPayloadCache(4, time.Hour)
	key := cacheKey("hello world", "default")

	if _, ok := c.get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.put(key, testAudio(1))
	got, ok := c.get(key)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got.PCM[0] != 1 {
		t.Fatalf("wrong payload returned: %v", got.PCM)
	}
}

func TestCacheKeyDistinguishesProfiles(t *testing.T) {
	if cacheKey("hello", "default") == cacheKey("hello", "navigation") {
		t.Fatal("same text under different profiles must not collide")
	}
	if cacheKey("hello", "default") != cacheKey("hello", "default") {
		t.Fatal("key derivation must be deterministic")
	}
}

func TestCacheEvictsOldestInsertion(t *testing.T) {
	c := newPayloadCache(2, time.Hour)

	k1 := cacheKey("first", "default")
	k2 := cacheKey("second", "default")
	k3 := cacheKey("third", "default")

	c.put(k1, testAudio(1))
	c.put(k2, testAudio(2))
	c.put(k3, testAudio(3))

	if got := c.len(); got != 2 {
		t.Fatalf("population = %d, want 2", got)
	}
	if _, ok := c.get(k1); ok {
		t.Fatal("first-inserted entry should have been evicted")
	}
	if _, ok := c.get(k2); !ok {
		t.Fatal("second entry should survive")
	}
	if _, ok := c.get(k3); !ok {
		t.Fatal("third entry should survive")
	}
}

func TestCacheReplaceReDates(t *testing.T) {
	c := newPayloadCache(2, time.Hour)

	k1 := cacheKey("first", "default")
	k2 := cacheKey("second", "default")

	c.put(k1, testAudio(1))
	c.put(k2, testAudio(2))

	// Re-inserting k1 makes it the newest; the next eviction must take k2.
	c.put(k1, testAudio(3))
	c.put(cacheKey("third", "default"), testAudio(4))

	if _, ok := c.get(k1); !ok {
		t.Fatal("re-inserted entry should survive eviction")
	}
	if _, ok := c.get(k2); ok {
		t.Fatal("oldest entry should have been evicted after re-insertion")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newPayloadCache(4, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	key := cacheKey("stale", "default")
	c.put(key, testAudio(1))

	now = now.Add(30 * time.Minute)
	if _, ok := c.get(key); !ok {
		t.Fatal("entry inside TTL should hit")
	}

	now = now.Add(31 * time.Minute)
	if _, ok := c.get(key); ok {
		t.Fatal("entry past TTL should miss")
	}
	if got := c.len(); got != 0 {
		t.Fatalf("expired entry should be removed on lookup, population = %d", got)
	}
}

func TestCacheCorruptEntryEvicted(t *testing.T) {
	c := newPayloadCache(4, time.Hour)
	key := cacheKey("bad", "default")

	c.put(key, tts.Audio{PCM: []byte{1}, SampleRate: 0, Channels: 1})

	if _, ok := c.get(key); ok {
		t.Fatal("unplayable entry must be reported as a miss")
	}
	if got := c.len(); got != 0 {
		t.Fatalf("corrupt entry should be evicted, population = %d", got)
	}
}

func TestCachePurgeExpired(t *testing.T) {
	c := newPayloadCache(8, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put(cacheKey("old", "default"), testAudio(1))
	now = now.Add(2 * time.Hour)
	c.put(cacheKey("new", "default"), testAudio(2))

	if purged := c.purgeExpired(); purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if got := c.len(); got != 1 {
		t.Fatalf("population = %d, want 1", got)
	}
}

func TestCacheOnChangeDeltas(t *testing.T) {
	c := newPayloadCache(2, time.Hour)
	var population int
	c.onChange = func(delta int) { population += delta }

	c.put(cacheKey("a", "default"), testAudio(1))
	c.put(cacheKey("b", "default"), testAudio(2))
	c.put(cacheKey("c", "default"), testAudio(3)) // evicts one

	if population != c.len() {
		t.Fatalf("gauge deltas drifted: gauge = %d, population = %d", population, c.len())
	}
}
