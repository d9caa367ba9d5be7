package transfer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Cache is the content-addressed FileCache spec.md §3/§4.5.3
// describes: a persisted digest→path map, reloaded at startup, with
// stale entries (path no longer on disk) pruned on lookup. Persistence
// as a flat JSON dump in the temp directory follows the teacher's own
// peers_autosave.go convention (a small state file next to the
// binary's working data, tolerantly reloaded).
type Cache struct {
	mu   sync.Mutex
	path string
	byDigest map[string]string
}

// OpenCache loads path if present, discarding it silently if corrupt
// (spec.md §4.5.3: "corrupt files are discarded and the cache starts
// empty").
func OpenCache(path string) *Cache {
	c := &Cache{path: path, byDigest: make(map[string]string)}
	b, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var loaded map[string]string
	if err := json.Unmarshal(b, &loaded); err != nil {
		return c
	}
	c.byDigest = loaded
	return c
}

// Lookup returns the cached path for digest, pruning the entry first
// if the file it names no longer exists.
func (c *Cache) Lookup(digest string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byDigest[digest]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		delete(c.byDigest, digest)
		c.persistLocked()
		return "", false
	}
	return p, true
}

// Insert records digest -> path and persists the cache.
func (c *Cache) Insert(digest, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDigest[digest] = path
	c.persistLocked()
}

func (c *Cache) persistLocked() {
	b, err := json.Marshal(c.byDigest)
	if err != nil {
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, c.path)
}

// DefaultCachePath returns the cache file's conventional location
// inside the OS temp directory.
func DefaultCachePath() string {
	return filepath.Join(os.TempDir(), "clipshare-file-cache.json")
}
