package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// cacheMetadata is the sidecar written alongside every cache entry's
// files, following this module's on-disk cache layout.
type cacheMetadata struct {
	Source       string    `json:"source"`
	Filename     string    `json:"filename"`
	SizeBytes    int64     `json:"size_bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
	LastAccess   time.Time `json:"last_access"`
}

// Cache is the content-addressed, size-bounded on-disk model cache.
// Concurrent loads of the same cache key are deduplicated in-process;
// see downloadGroup in download.go.
type Cache struct {
	root       string
	maxSizeGB  float64
	mu         sync.Mutex
}

// NewCache constructs a Cache rooted at dir, creating it if necessary.
func NewCache(dir string, maxSizeGB float64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(ErrIO, "create cache directory", "check filesystem permissions", err)
	}
	return &Cache{root: dir, maxSizeGB: maxSizeGB}, nil
}

// Key hashes (source, filename, size, mtime) into a stable cache key.
// mtime is formatted to second precision to stay stable across
// re-listings of the same remote file.
func Key(source, filename string, sizeBytes int64, mtime time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", source, filename, sizeBytes, mtime.Unix())
	return hex.EncodeToString(h.Sum(nil))
}

// EntryDir returns the directory holding one cache key's files.
func (c *Cache) EntryDir(key string) string {
	return filepath.Join(c.root, key)
}

// Lookup returns the on-disk path to entryFile within key's directory if
// it and its metadata sidecar both exist, bumping LastAccess. The second
// return value is false on a cache miss.
func (c *Cache) Lookup(key, entryFile string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.EntryDir(key)
	meta, err := readMetadata(dir)
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, entryFile)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	meta.LastAccess = time.Now()
	_ = writeMetadata(dir, meta)
	return path, true
}

// Commit finalizes a download: partials (already written to
// "<file>.partial" by the caller) are atomically renamed into place, the
// metadata sidecar is written, and LRU eviction runs if the cache now
// exceeds its size ceiling.
func (c *Cache) Commit(key string, source string, files []string, totalSize int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.EntryDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError(ErrIO, "create cache entry directory", "", err)
	}
	for _, f := range files {
		partial := filepath.Join(dir, f+".partial")
		final := filepath.Join(dir, f)
		if _, err := os.Stat(final); err == nil {
			continue // already committed (e.g. sibling part from a prior call)
		}
		if err := os.Rename(partial, final); err != nil {
			return newError(ErrIO, "commit downloaded file", "", err)
		}
	}

	now := time.Now()
	meta := cacheMetadata{
		Source:       source,
		Filename:     files[0],
		SizeBytes:    totalSize,
		DownloadedAt: now,
		LastAccess:   now,
	}
	if err := writeMetadata(dir, meta); err != nil {
		return err
	}

	c.evictLocked()
	return nil
}

// CacheStats summarizes the on-disk cache for health reporting.
type CacheStats struct {
	Entries   int     `json:"entries"`
	TotalSize int64   `json:"total_size_bytes"`
	MaxSizeGB float64 `json:"max_size_gb"`
}

// Stats scans the cache root and reports entry count and total size.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, total := c.scanLocked()
	return CacheStats{Entries: len(entries), TotalSize: total, MaxSizeGB: c.maxSizeGB}
}

type scoredEntry struct {
	dir        string
	lastAccess time.Time
	size       int64
}

// scanLocked reads every committed cache entry's metadata sidecar.
// Caller must hold mu.
func (c *Cache) scanLocked() ([]scoredEntry, int64) {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, 0
	}

	var scoredEntries []scoredEntry
	var total int64
	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, e.Name())
		meta, err := readMetadata(dir)
		if err != nil {
			continue
		}
		scoredEntries = append(scoredEntries, scoredEntry{dir: dir, lastAccess: meta.LastAccess, size: meta.SizeBytes})
		total += meta.SizeBytes
	}
	return scoredEntries, total
}

// evictLocked removes least-recently-accessed entries until the cache's
// total size is at or below the configured ceiling. Caller must hold mu.
func (c *Cache) evictLocked() {
	scoredEntries, total := c.scanLocked()

	ceiling := int64(c.maxSizeGB * 1024 * 1024 * 1024)
	if total <= ceiling {
		return
	}

	sort.Slice(scoredEntries, func(i, j int) bool {
		return scoredEntries[i].lastAccess.Before(scoredEntries[j].lastAccess)
	})

	for _, e := range scoredEntries {
		if total <= ceiling {
			break
		}
		if err := os.RemoveAll(e.dir); err != nil {
			continue
		}
		total -= e.size
	}
}

func readMetadata(dir string) (cacheMetadata, error) {
	var meta cacheMetadata
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func writeMetadata(dir string, meta cacheMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return newError(ErrIO, "marshal cache metadata", "", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return newError(ErrIO, "write cache metadata", "", err)
	}
	return nil
}
