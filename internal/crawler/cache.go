package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CacheFileName derives the page cache file name from the archive base URL,
// e.g. https://lore.kernel.org/netdev/ becomes lore.kernel.org_netdev_cache.json.
func CacheFileName(baseURL string) string {
	s := strings.TrimPrefix(baseURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.Trim(strings.ReplaceAll(s, "/", "_"), "_")
	return s + "_cache.json"
}

// FileCache stores page cache entries as one JSON document, rewritten whole
// on every save.
type FileCache struct {
	path string
}

// NewFileCache returns a cache backed by path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Path returns the backing file path.
func (c *FileCache) Path() string {
	return c.path
}

// Load reads all entries. A missing file yields no entries.
func (c *FileCache) Load() ([]PageCacheEntry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read page cache: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var entries []PageCacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode page cache %s: %w", c.path, err)
	}
	return entries, nil
}

// Save replaces the cache contents with entries.
func (c *FileCache) Save(entries []PageCacheEntry) error {
	if entries == nil {
		entries = []PageCacheEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode page cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write page cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close page cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace page cache: %w", err)
	}
	return nil
}
