package builder

import (
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// TimingCache remembers the kernel tactic selected for each gemm shape so
// later ranks (and later builds) skip the profiling step. Tactic timing
// itself happens in the runtime toolchain; the cache is the carried state.
type TimingCache struct {
	mu      sync.Mutex
	tactics map[string]uint64
	next    uint64
}

// NewTimingCache returns an empty cache.
func NewTimingCache() *TimingCache {
	return &TimingCache{tactics: make(map[string]uint64)}
}

// LoadTimingCache reads a cache file written by a previous build. A missing
// file yields an empty cache rather than an error.
func LoadTimingCache(path string) (*TimingCache, error) {
	c := NewTimingCache()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &c.tactics); err != nil {
		return nil, err
	}
	for _, t := range c.tactics {
		if t >= c.next {
			c.next = t + 1
		}
	}
	return c, nil
}

// Lookup returns the tactic for a shape key, recording a new one on the
// first miss. The second result reports whether the key was already cached.
func (c *TimingCache) Lookup(key string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tactics[key]; ok {
		return t, true
	}
	t := c.next
	c.next++
	c.tactics[key] = t
	return t, false
}

// Len returns the number of cached shape keys.
func (c *TimingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tactics)
}

// Serialize renders the cache for embedding in an engine or saving to disk.
func (c *TimingCache) Serialize() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.tactics)
}

// Save writes the cache to path.
func (c *TimingCache) Save(path string) error {
	data, err := c.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
