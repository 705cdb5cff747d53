package ragcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache is the content-hash keyed memo deciding which functions need
// re-embedding. It maps function id -> the file content hash that was
// current when the function was last embedded.
type Cache struct {
	path string

	mu      sync.RWMutex
	entries map[string]string
}

// fileFormat is the on-disk JSON shape of the cache
type fileFormat struct {
	Entries map[string]string `json:"entries"`
}

// Load reads the cache from path. A missing or malformed file is treated
// as an empty cache, never a fatal error: the worst outcome is redundant
// re-embedding on the next pass.
func Load(path string) *Cache {
	c := &Cache{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil || ff.Entries == nil {
		return c
	}
	c.entries = ff.Entries
	return c
}

// NeedsReindex reports whether the function must be re-embedded: true iff
// the id is absent or its stored hash differs from the current file hash.
func (c *Cache) NeedsReindex(id, currentFileHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[id]
	return !ok || h != currentFileHash
}

// Hash returns the stored hash for an id
func (c *Cache) Hash(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[id]
	return h, ok
}

// Set records the file content hash a function was embedded against
func (c *Cache) Set(id, fileHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = fileHash
}

// Delete removes a single entry
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Reset drops all entries, used when the vector store is rebuilt
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}

// Len returns the number of entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save persists the cache atomically: write to a temp file in the same
// directory, then rename over the target. A crash mid-write leaves the
// previous cache intact rather than a truncated file.
func (c *Cache) Save() error {
	c.mu.RLock()
	ff := fileFormat{Entries: make(map[string]string, len(c.entries))}
	for k, v := range c.entries {
		ff.Entries[k] = v
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ragcache-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// Path returns the cache file location
func (c *Cache) Path() string {
	return c.path
}
