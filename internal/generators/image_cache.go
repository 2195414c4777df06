package generators

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"questweaver/server/internal/interfaces"
)

// ImageCache is an on-disk cache of generated illustrations keyed by prompt
// hash, so a replayed chapter reuses its illustration instead of rendering a
// different one.
type ImageCache struct {
	dir        string
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewImageCache(dir string, maxEntries int, ttl time.Duration) *ImageCache {
	return &ImageCache{
		dir:        dir,
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]time.Time),
	}
}

// Initialize creates the cache directory and indexes existing entries.
func (c *ImageCache) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create image cache dir: %w", err)
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read image cache dir: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		c.entries[f.Name()] = info.ModTime()
	}
	return nil
}

// Get returns the cached image for a prompt, if present and fresh.
func (c *ImageCache) Get(prompt string) ([]byte, bool) {
	name := cacheKey(prompt)
	c.mu.Lock()
	written, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(written) > c.ttl {
		c.evict(name)
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		c.evict(name)
		return nil, false
	}
	return data, true
}

// Put stores an image under its prompt hash, evicting the oldest entry when
// the cache is full.
func (c *ImageCache) Put(prompt string, data []byte) error {
	name := cacheKey(prompt)
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write cached image: %w", err)
	}

	c.mu.Lock()
	c.entries[name] = time.Now()
	var oldestName string
	var oldestTime time.Time
	for len(c.entries) > c.maxEntries {
		oldestName, oldestTime = "", time.Time{}
		for n, t := range c.entries {
			if oldestName == "" || t.Before(oldestTime) {
				oldestName, oldestTime = n, t
			}
		}
		delete(c.entries, oldestName)
		_ = os.Remove(filepath.Join(c.dir, oldestName))
	}
	c.mu.Unlock()
	return nil
}

func (c *ImageCache) evict(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
	_ = os.Remove(filepath.Join(c.dir, name))
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:]) + ".png"
}

// CachingImageGenerator wraps an ImageGenerator with the cache.
type CachingImageGenerator struct {
	inner interfaces.ImageGenerator
	cache *ImageCache
}

func NewCachingImageGenerator(inner interfaces.ImageGenerator, cache *ImageCache) *CachingImageGenerator {
	return &CachingImageGenerator{inner: inner, cache: cache}
}

// GenerateImage serves from cache when possible, rendering and caching
// otherwise.
func (g *CachingImageGenerator) GenerateImage(ctx context.Context, description string) ([]byte, error) {
	if data, ok := g.cache.Get(description); ok {
		return data, nil
	}
	data, err := g.inner.GenerateImage(ctx, description)
	if err != nil {
		return nil, err
	}
	if err := g.cache.Put(description, data); err != nil {
		log.Printf("[ImageCache] Failed to cache image: %v", err)
	}
	return data, nil
}
