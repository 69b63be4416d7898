package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxSizeMB int) *FileCache {
	t.Helper()

	c, err := NewFileCache(t.TempDir(), maxSizeMB, time.Hour, 0)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestFileCache_BasicOperations(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	if err := c.Set(ctx, "pg:abc", []byte("orders,users"), time.Hour); err != nil {
		t.Fatalf("Failed to set cache entry: %v", err)
	}

	got, err := c.Get(ctx, "pg:abc")
	if err != nil {
		t.Fatalf("Failed to get cache entry: %v", err)
	}

	if string(got) != "orders,users" {
		t.Errorf("Retrieved data doesn't match. Expected: orders,users, Got: %s", got)
	}

	if err := c.Delete(ctx, "pg:abc"); err != nil {
		t.Fatalf("Failed to delete cache entry: %v", err)
	}

	if _, err := c.Get(ctx, "pg:abc"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for deleted key, got %v", err)
	}
}

func TestFileCache_TTL(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("Failed to set cache entry: %v", err)
	}

	if _, err := c.Get(ctx, "short"); err != nil {
		t.Fatalf("Failed to get cache entry before expiration: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after expiration, got %v", err)
	}
}

func TestFileCache_JSON(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	want := []string{"orders", "users"}
	if err := c.SetJSON(ctx, "tables", want, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got []string
	if err := c.GetJSON(ctx, "tables", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if err := c.Set(ctx, "broken", []byte("{not json"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.GetJSON(ctx, "broken", &got); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for undecodable entry, got %v", err)
	}
}

func TestFileCache_Cleanup(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	_ = c.Set(ctx, "expired", []byte("a"), time.Millisecond)
	_ = c.Set(ctx, "live", []byte("b"), time.Hour)

	time.Sleep(10 * time.Millisecond)

	removed, err := c.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if removed != 1 {
		t.Errorf("Expected 1 removed entry, got %d", removed)
	}

	if _, err := c.Get(ctx, "live"); err != nil {
		t.Errorf("Live entry should survive cleanup: %v", err)
	}
}

func TestFileCache_StatsAndClear(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("value"), 0)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if stats.TotalEntries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ = c.GetStats(ctx)
	if stats.TotalEntries != 0 || stats.Hits != 0 {
		t.Errorf("Expected empty stats after clear, got %+v", stats)
	}
}

func TestFileCache_SizeEviction(t *testing.T) {
	c := newTestCache(t, 1)
	ctx := context.Background()

	big := make([]byte, 700*1024)

	_ = c.Set(ctx, "first", big, 0)
	time.Sleep(10 * time.Millisecond)
	_ = c.Set(ctx, "second", big, 0)

	if _, err := c.Get(ctx, "first"); !errors.Is(err, ErrMiss) {
		t.Errorf("Oldest entry should have been evicted, got %v", err)
	}

	if _, err := c.Get(ctx, "second"); err != nil {
		t.Errorf("Newest entry should be present: %v", err)
	}
}

func TestFileCache_CancelledContext(t *testing.T) {
	c := newTestCache(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFileCache_Concurrent(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			key := fmt.Sprintf("key-%d", n)
			_ = c.Set(ctx, key, []byte(key), 0)
			_, _ = c.Get(ctx, key)
		}(i)
	}

	wg.Wait()

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if stats.TotalEntries != 10 {
		t.Errorf("Expected 10 entries, got %d", stats.TotalEntries)
	}
}
