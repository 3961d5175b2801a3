package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	config := &CacheConfig{
		Addr:         mr.Addr(),
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	cache := NewRedisCache(config)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}

	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}

	if config.DialTimeout != 5*time.Second {
		t.Errorf("Expected DialTimeout to be 5s, got %v", config.DialTimeout)
	}
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	cache := NewRedisCache(nil)

	if cache == nil {
		t.Fatal("Expected cache to be created with default config")
	}

	if cache.Client() == nil {
		t.Error("Expected Redis client to be initialized")
	}
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := cache.Set(ctx, "key1", payload{Name: "tasks", Count: 3}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if err := cache.Get(ctx, "key1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Name != "tasks" || got.Count != 3 {
		t.Errorf("Unexpected cached value: %+v", got)
	}
}

func TestGet_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	var dest string
	err := cache.Get(context.Background(), "missing", &dest)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "key1", "value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Set(ctx, "key2", "value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := cache.Delete(ctx, "key1", "key2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var dest string
	if err := cache.Get(ctx, "key1", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
	if err := cache.Get(ctx, "key2", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestDelete_NoKeysIsNoop(t *testing.T) {
	cache, _ := setupTestRedis(t)

	if err := cache.Delete(context.Background()); err != nil {
		t.Errorf("Expected empty delete to succeed, got %v", err)
	}
}

func TestDeletePattern(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	cache.Set(ctx, "user_tasks:abc", "one", time.Minute)
	cache.Set(ctx, "user_tasks:def", "two", time.Minute)
	cache.Set(ctx, "task:xyz", "three", time.Minute)

	if err := cache.DeletePattern(ctx, "user_tasks:*"); err != nil {
		t.Fatalf("DeletePattern failed: %v", err)
	}

	var dest string
	if err := cache.Get(ctx, "user_tasks:abc", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected user_tasks:abc to be deleted, got %v", err)
	}
	if err := cache.Get(ctx, "task:xyz", &dest); err != nil {
		t.Errorf("Expected task:xyz to survive, got %v", err)
	}
}

func TestExists(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	exists, err := cache.Exists(ctx, "key1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Expected key1 to not exist")
	}

	cache.Set(ctx, "key1", "value", time.Minute)

	exists, err = cache.Exists(ctx, "key1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Expected key1 to exist")
	}
}

func TestExpiration(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cache.Set(ctx, "key1", "value", 10*time.Second)

	mr.FastForward(11 * time.Second)

	var dest string
	if err := cache.Get(ctx, "key1", &dest); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected expired key to miss, got %v", err)
	}
}

func TestGet_DownServerReportsCacheDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	var dest string
	err := cache.Get(context.Background(), "key1", &dest)
	if !errors.Is(err, ErrCacheDown) {
		t.Errorf("Expected ErrCacheDown, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.Health(ctx); err != nil {
		t.Errorf("Expected healthy cache, got %v", err)
	}

	mr.Close()

	if err := cache.Health(ctx); err == nil {
		t.Error("Expected health check to fail after server shutdown")
	}
}
