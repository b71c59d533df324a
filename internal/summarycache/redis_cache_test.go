package summarycache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"concierge/api/internal/store"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache, s
}

func TestPutAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	summaries := []store.HotelSummary{
		{ID: "hotel-1", Name: "Meridian"},
		{ID: "hotel-2", Name: "Seaside"},
	}
	if err := cache.Put(ctx, summaries); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := cache.Get(ctx)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].ID != "hotel-1" || got[1].Name != "Seaside" {
		t.Errorf("got %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	cache, _ := setupTestCache(t)
	if _, ok := cache.Get(context.Background()); ok {
		t.Error("expected miss on empty cache")
	}
}

func TestExpiry(t *testing.T) {
	cache, s := setupTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, []store.HotelSummary{{ID: "hotel-1", Name: "Meridian"}}); err != nil {
		t.Fatal(err)
	}
	s.FastForward(defaultTTL + time.Second)
	if _, ok := cache.Get(ctx); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestInvalidate(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, []store.HotelSummary{{ID: "hotel-1", Name: "Meridian"}}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := cache.Get(ctx); ok {
		t.Error("expected miss after invalidation")
	}
	// Invalidating an empty cache is fine.
	if err := cache.Invalidate(ctx); err != nil {
		t.Errorf("Invalidate on empty cache: %v", err)
	}
}
