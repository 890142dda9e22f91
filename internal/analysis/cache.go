package analysis

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// DefaultCacheExpiry is how long cached AI responses stay valid.
const DefaultCacheExpiry = 30 * 24 * time.Hour

// Cache is an advisory on-disk cache for AI responses, keyed by
// (operation, canonicalized input). A miss, an expired entry or any I/O
// error just means the caller recomputes; concurrent writers to the same
// key race with last-write-wins semantics, which is harmless here.
type Cache struct {
	dir    string
	expiry time.Duration
}

type cacheEntry struct {
	Operation string          `json:"operation"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result"`
}

// NewCache creates a cache rooted at dir with the given expiry
// (DefaultCacheExpiry when zero).
func NewCache(dir string, expiry time.Duration) (*Cache, error) {
	if expiry <= 0 {
		expiry = DefaultCacheExpiry
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, expiry: expiry}, nil
}

func (c *Cache) path(op, input string) string {
	sum := md5.Sum([]byte(op + "\x00" + strings.TrimSpace(input)))
	return filepath.Join(c.dir, fmt.Sprintf("%s_%x.json", op, sum))
}

// Get loads a cached result into out. Returns false on miss or expiry.
func (c *Cache) Get(op, input string, out any) bool {
	data, err := os.ReadFile(c.path(op, input))
	if err != nil {
		return false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false
	}
	if time.Since(entry.CreatedAt) > c.expiry {
		os.Remove(c.path(op, input))
		return false
	}
	return json.Unmarshal(entry.Result, out) == nil
}

// Put stores a result. Failures are silently ignored: the cache is advisory.
func (c *Cache) Put(op, input string, v any) {
	result, err := json.Marshal(v)
	if err != nil {
		return
	}
	entry := cacheEntry{Operation: op, CreatedAt: time.Now(), Result: result}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	os.WriteFile(c.path(op, input), data, 0o644)
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				return fmt.Errorf("remove cache entry: %w", err)
			}
		}
	}
	return nil
}

// Ensure cachedProvider implements Provider at compile time
var _ Provider = (*cachedProvider)(nil)

type cachedProvider struct {
	inner   Provider
	cache   *Cache
	enabled atomic.Bool
}

// WithCache wraps a Provider so that each call is transparently cached.
// A cache hit and a live call are indistinguishable to callers.
func WithCache(p Provider, cache *Cache) *CachedProvider {
	cp := &cachedProvider{inner: p, cache: cache}
	cp.enabled.Store(true)
	return &CachedProvider{cp}
}

// CachedProvider is a Provider with cache controls.
type CachedProvider struct {
	*cachedProvider
}

// EnableCache toggles caching on or off at runtime.
func (c *CachedProvider) EnableCache(enabled bool) {
	c.enabled.Store(enabled)
}

// ClearCache removes all cached responses.
func (c *CachedProvider) ClearCache() error {
	return c.cache.Clear()
}

func (c *cachedProvider) AnalyzeImage(ctx context.Context, path string) (string, error) {
	var cached string
	if c.enabled.Load() && c.cache.Get("analyze_image", path, &cached) {
		return cached, nil
	}
	result, err := c.inner.AnalyzeImage(ctx, path)
	if err != nil {
		return "", err
	}
	if c.enabled.Load() {
		c.cache.Put("analyze_image", path, result)
	}
	return result, nil
}

func (c *cachedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var cached []float32
	if c.enabled.Load() && c.cache.Get("embedding", text, &cached) {
		return cached, nil
	}
	vec, err := c.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if c.enabled.Load() {
		c.cache.Put("embedding", text, vec)
	}
	return vec, nil
}

func (c *cachedProvider) GenerateCaption(ctx context.Context, rec *photo.Record) (string, error) {
	key := rec.Path + "\x00" + rec.CombinedText()
	var cached string
	if c.enabled.Load() && c.cache.Get("caption", key, &cached) {
		return cached, nil
	}
	caption, err := c.inner.GenerateCaption(ctx, rec)
	if err != nil {
		return "", err
	}
	if c.enabled.Load() {
		c.cache.Put("caption", key, caption)
	}
	return caption, nil
}

func (c *cachedProvider) GenerateHashtags(ctx context.Context, rec *photo.Record) ([]string, error) {
	key := rec.Path + "\x00" + rec.CombinedText()
	var cached []string
	if c.enabled.Load() && c.cache.Get("hashtags", key, &cached) {
		return cached, nil
	}
	tags, err := c.inner.GenerateHashtags(ctx, rec)
	if err != nil {
		return nil, err
	}
	if c.enabled.Load() {
		c.cache.Put("hashtags", key, tags)
	}
	return tags, nil
}

func (c *cachedProvider) Name() photo.ModelInfo {
	return c.inner.Name()
}

func (c *cachedProvider) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}
