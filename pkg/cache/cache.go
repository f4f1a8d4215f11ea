package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/kerbaras/comicdl/pkg/utils"
)

const (
	rawDir     = "html"
	listingDir = "json"
)

// PageCache stores raw source pages and resolved listings on disk.
// Raw pages are write-once; listings are rewritten as resolution advances.
type PageCache struct {
	root string
	mem  *bigcache.BigCache // nil when the memory tier is disabled
}

// New opens a cache rooted at dir. memoryMB bounds the in-memory tier in
// front of the raw pages; zero disables it.
func New(dir string, memoryMB int) (*PageCache, error) {
	for _, sub := range []string{rawDir, listingDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	c := &PageCache{root: dir}
	if memoryMB > 0 {
		cfg := bigcache.DefaultConfig(30 * time.Minute)
		cfg.Shards = 64
		cfg.MaxEntriesInWindow = 4096
		cfg.MaxEntrySize = 256 * 1024
		cfg.HardMaxCacheSize = memoryMB
		cfg.Verbose = false
		mem, err := bigcache.New(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		c.mem = mem
	}
	return c, nil
}

// Key builds the cache key of a page, e.g. "antbyw_comic_169197".
func Key(source, scope, pageID string) string {
	return source + "_" + scope + "_" + pageID
}

// PageID extracts the id carried by a query parameter of rawURL.
func PageID(rawURL, param string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	id := u.Query().Get(param)
	if id == "" {
		return "", fmt.Errorf("%s: missing %q parameter", rawURL, param)
	}
	return id, nil
}

func (c *PageCache) rawPath(key string) string {
	return filepath.Join(c.root, rawDir, key+".html")
}

func (c *PageCache) listingPath(key string) string {
	return filepath.Join(c.root, listingDir, key+".json")
}

// Raw returns the cached page for key, if any.
func (c *PageCache) Raw(key string) ([]byte, bool, error) {
	if c.mem != nil {
		if b, err := c.mem.Get(key); err == nil {
			return b, true, nil
		}
	}
	b, err := os.ReadFile(c.rawPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached page %s: %w", key, err)
	}
	c.remember(key, b)
	return b, true, nil
}

// PutRaw stores a fetched page. An existing entry is left untouched.
// The page is written to a temp file and linked into place, so a crash
// never leaves a partial page under the final name.
func (c *PageCache) PutRaw(key string, b []byte) error {
	path := c.rawPath(key)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache page %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("cache page %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache page %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache page %s: %w", key, err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("cache page %s: %w", key, err)
	}
	c.remember(key, b)
	return nil
}

// EvictRaw drops a raw page so the next resolution fetches it again.
func (c *PageCache) EvictRaw(key string) error {
	if c.mem != nil {
		_ = c.mem.Delete(key)
	}
	if err := os.Remove(c.rawPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("evict page %s: %w", key, err)
	}
	return nil
}

// LoadListing decodes the stored listing for key into v.
func (c *PageCache) LoadListing(key string, v any) (bool, error) {
	b, err := os.ReadFile(c.listingPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read listing %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode listing %s: %w", key, err)
	}
	return true, nil
}

// SaveListing replaces the stored listing for key atomically.
func (c *PageCache) SaveListing(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", key, err)
	}
	return utils.WriteFileAtomic(c.listingPath(key), b)
}

func (c *PageCache) Close() error {
	if c.mem != nil {
		return c.mem.Close()
	}
	return nil
}

func (c *PageCache) remember(key string, b []byte) {
	if c.mem != nil {
		_ = c.mem.Set(key, b)
	}
}
