package bridge

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultMaxOpen bounds the open-file table when the config does not.
const DefaultMaxOpen = 256

// Files is the open-file table: path to latest text. When full, the least
// recently touched file is evicted; files untouched for the idle TTL expire.
type Files struct {
	cache *ttlcache.Cache[string, string]
}

// NewFiles creates a Files table. A zero ttl disables idle expiry.
func NewFiles(maxOpen int, ttl time.Duration) *Files {
	if maxOpen < 1 {
		maxOpen = DefaultMaxOpen
	}
	c := ttlcache.New[string, string](
		ttlcache.WithCapacity[string, string](uint64(maxOpen)),
		ttlcache.WithTTL[string, string](ttl),
	)
	go c.Start()
	return &Files{cache: c}
}

// Close stops the expiration loop. It must be called exactly once.
func (f *Files) Close() {
	f.cache.Stop()
}

// Set stores text for file, replacing any previous text.
func (f *Files) Set(file, text string) {
	f.cache.Set(file, text, ttlcache.DefaultTTL)
}

// Get returns the latest text for file.
func (f *Files) Get(file string) (string, bool) {
	item := f.cache.Get(file)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Delete removes file.
func (f *Files) Delete(file string) {
	f.cache.Delete(file)
}

// Len returns the number of stored files.
func (f *Files) Len() int {
	return f.cache.Len()
}
