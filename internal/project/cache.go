package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// CacheEntry holds cached metadata for a single file.
type CacheEntry struct {
	Hash    string `json:"hash"`
	ModTime int64  `json:"mod_time"`
	Size    int64  `json:"size"`
}

// FileCache avoids re-hashing unchanged files between runs.
// It never affects analysis results, only hashing work.
type FileCache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]CacheEntry
	dirty   bool
}

// NewFileCache creates or loads the manifest for a project root.
func NewFileCache(root string) *FileCache {
	cache := &FileCache{
		path:    filepath.Join(root, ".cachescope", "cache", "manifest.json"),
		entries: make(map[string]CacheEntry),
	}
	cache.load()
	return cache
}

func (c *FileCache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		// Missing or unreadable, start fresh
		return
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// Corrupt manifest, start fresh
		c.entries = make(map[string]CacheEntry)
	}
}

// Save writes the manifest to disk if dirty.
func (c *FileCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return err
	}

	c.dirty = false
	return nil
}

// Get returns the cached hash if the file hasn't changed.
func (c *FileCache) Get(path string, info os.FileInfo) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	if !ok {
		return "", false
	}
	if entry.ModTime == info.ModTime().Unix() && entry.Size == info.Size() {
		return entry.Hash, true
	}
	return "", false
}

// Update records a freshly computed hash.
func (c *FileCache) Update(path string, info os.FileInfo, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = CacheEntry{
		Hash:    hash,
		ModTime: info.ModTime().Unix(),
		Size:    info.Size(),
	}
	c.dirty = true
}
