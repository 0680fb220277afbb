package artifact

import (
	"os"
	"sync"
	"time"
)

// DirCache memoizes directory listings so that one polling pass lists each
// distinct directory at most once. With zero TTL, entries live until
// Invalidate (the probe invalidates between passes); a positive TTL expires
// entries for callers that hold one cache across passes.
type DirCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]dirEntry
}

type dirEntry struct {
	names  []string
	listed time.Time
}

// NewDirCache creates a cache whose entries live until Invalidate.
func NewDirCache() *DirCache {
	return &DirCache{entries: make(map[string]dirEntry)}
}

// NewDirCacheTTL creates a cache whose entries expire after ttl.
func NewDirCacheTTL(ttl time.Duration) *DirCache {
	return &DirCache{ttl: ttl, entries: make(map[string]dirEntry)}
}

// ContainsMatchingFile reports whether any entry name in dir satisfies pred.
// Missing or unreadable directories yield false, never an error.
func (c *DirCache) ContainsMatchingFile(dir string, pred func(name string) bool) bool {
	for _, name := range c.List(dir) {
		if pred(name) {
			return true
		}
	}
	return false
}

// List returns the entry names of dir, from cache when fresh.
func (c *DirCache) List(dir string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[dir]; ok {
		if c.ttl <= 0 || time.Since(e.listed) < c.ttl {
			return e.names
		}
	}
	names := readDirNames(dir)
	c.entries[dir] = dirEntry{names: names, listed: time.Now()}
	return names
}

// Invalidate drops all cached listings.
func (c *DirCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]dirEntry)
	c.mu.Unlock()
}

func readDirNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
