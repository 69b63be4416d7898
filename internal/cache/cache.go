package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dataSuffix = ".data"
	metaSuffix = ".meta"
)

// ErrMiss is returned by Get when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache defines the interface for local file caching operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Cleanup(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*Stats, error)
}

// Entry is the metadata written next to every cached payload
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

// Stats represents cache statistics
type Stats struct {
	TotalEntries int64   `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
	HitRate      float64 `json:"hit_rate"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
}

// FileCache stores each entry as a payload file plus a JSON metadata file.
// It survives process restarts, which is what short-lived CLI invocations need.
type FileCache struct {
	directory   string
	maxBytes    int64
	defaultTTL  time.Duration
	mu          sync.RWMutex
	hits        atomic.Int64
	misses      atomic.Int64
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewFileCache creates a file cache rooted at directory. A cleanupFreq of zero
// disables the background sweeper; expired entries are still dropped on read.
func NewFileCache(
	directory string,
	maxSizeMB int,
	defaultTTL, cleanupFreq time.Duration,
) (*FileCache, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}

		directory = filepath.Join(home, directory[2:])
	}

	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileCache{
		directory:   directory,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
		defaultTTL:  defaultTTL,
		stopCleanup: make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go c.backgroundCleanup(cleanupFreq)
	}

	return c, nil
}

// Get retrieves data from cache, returning ErrMiss when absent or expired
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	entry, err := c.readMeta(c.metaPath(key))
	if err != nil {
		c.mu.RUnlock()
		c.misses.Add(1)

		return nil, ErrMiss
	}

	if time.Now().After(entry.ExpiresAt) {
		c.mu.RUnlock()
		c.misses.Add(1)
		c.remove(key)

		return nil, ErrMiss
	}

	data, err := os.ReadFile(c.dataPath(key))
	c.mu.RUnlock()

	if err != nil {
		c.misses.Add(1)
		return nil, ErrMiss
	}

	c.hits.Add(1)

	return data, nil
}

// Set stores data in cache with TTL; a zero ttl uses the cache default
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	entry := Entry{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Size:      int64(len(data)),
	}

	metaData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enforceSize(entry.Size); err != nil {
		return fmt.Errorf("failed to enforce cache size: %w", err)
	}

	if err := os.WriteFile(c.dataPath(key), data, 0600); err != nil {
		return fmt.Errorf("failed to write cache data: %w", err)
	}

	if err := os.WriteFile(c.metaPath(key), metaData, 0600); err != nil {
		_ = os.Remove(c.dataPath(key))
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	return nil
}

// GetJSON decodes a cached JSON payload into out
func (c *FileCache) GetJSON(ctx context.Context, key string, out interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.remove(key)
		return ErrMiss
	}

	return nil
}

// SetJSON encodes value as JSON and stores it
func (c *FileCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.Set(ctx, key, data, ttl)
}

// Delete removes an entry from cache
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.remove(key)

	return nil
}

// Clear removes all entries from cache and resets statistics
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (strings.HasSuffix(name, dataSuffix) || strings.HasSuffix(name, metaSuffix)) {
			_ = os.Remove(filepath.Join(c.directory, name))
		}
	}

	c.hits.Store(0)
	c.misses.Store(0)

	return nil
}

// Cleanup removes expired entries and reports how many were dropped
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		metaPath := filepath.Join(c.directory, entry.Name())

		meta, err := c.readMeta(metaPath)
		if err != nil {
			continue
		}

		if now.After(meta.ExpiresAt) {
			base := strings.TrimSuffix(entry.Name(), metaSuffix)
			_ = os.Remove(filepath.Join(c.directory, base+dataSuffix))
			_ = os.Remove(metaPath)
			removed++
		}
	}

	return removed, nil
}

// GetStats returns cache statistics
func (c *FileCache) GetStats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	totalSize, count, err := c.usage()
	c.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalEntries: count,
		TotalSize:    totalSize,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return stats, nil
}

// Close stops the background cleanup goroutine
func (c *FileCache) Close() error {
	c.cleanupOnce.Do(func() {
		close(c.stopCleanup)
	})

	return nil
}

func (c *FileCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = os.Remove(c.dataPath(key))
	_ = os.Remove(c.metaPath(key))
}

func (c *FileCache) readMeta(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (c *FileCache) dataPath(key string) string {
	return filepath.Join(c.directory, hashKey(key)+dataSuffix)
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.directory, hashKey(key)+metaSuffix)
}

// hashKey creates a safe filename from a cache key
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// enforceSize evicts oldest entries until newEntrySize fits. Caller holds mu.
func (c *FileCache) enforceSize(newEntrySize int64) error {
	if c.maxBytes <= 0 {
		return nil
	}

	currentSize, _, err := c.usage()
	if err != nil {
		return err
	}

	if currentSize+newEntrySize <= c.maxBytes {
		return nil
	}

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	type entryInfo struct {
		base    string
		modTime time.Time
		size    int64
	}

	var infos []entryInfo

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), metaSuffix)
		if dataInfo, err := os.Stat(filepath.Join(c.directory, base+dataSuffix)); err == nil {
			infos = append(infos, entryInfo{base: base, modTime: info.ModTime(), size: dataInfo.Size()})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.Before(infos[j].modTime) })

	needed := currentSize + newEntrySize - c.maxBytes

	var freed int64

	for _, info := range infos {
		if freed >= needed {
			break
		}

		_ = os.Remove(filepath.Join(c.directory, info.base+dataSuffix))
		_ = os.Remove(filepath.Join(c.directory, info.base+metaSuffix))
		freed += info.size
	}

	return nil
}

// usage sums payload sizes and counts entries. Caller holds mu.
func (c *FileCache) usage() (int64, int64, error) {
	var (
		totalSize int64
		count     int64
	)

	err := filepath.WalkDir(c.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, dataSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		totalSize += info.Size()
		count++

		return nil
	})

	return totalSize, count, err
}

func (c *FileCache) backgroundCleanup(freq time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = c.Cleanup(context.Background())
		case <-c.stopCleanup:
			return
		}
	}
}
