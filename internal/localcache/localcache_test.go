package localcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestTreeRoundTrip(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	body := []byte(`{"id":"root","kind":"root","name":"Hotel"}`)
	if err := cache.PutTree(ctx, "hotel-1", body); err != nil {
		t.Fatalf("PutTree: %v", err)
	}
	got, err := cache.GetTree(ctx, "hotel-1")
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("got %s", got)
	}
}

func TestTreeOverwrite(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	if err := cache.PutTree(ctx, "hotel-1", []byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := cache.PutTree(ctx, "hotel-1", []byte(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	got, err := cache.GetTree(ctx, "hotel-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("got %s, want the later write", got)
	}
}

func TestGetTreeMiss(t *testing.T) {
	cache := openTestCache(t)
	if _, err := cache.GetTree(context.Background(), "nope"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}

func TestDeleteTree(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	if err := cache.PutTree(ctx, "hotel-1", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := cache.DeleteTree(ctx, "hotel-1"); err != nil {
		t.Fatalf("DeleteTree: %v", err)
	}
	if _, err := cache.GetTree(ctx, "hotel-1"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after delete", err)
	}
	if err := cache.DeleteTree(ctx, "hotel-1"); err != nil {
		t.Errorf("deleting an absent record should not fail: %v", err)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()

	if _, err := cache.GetIndex(ctx); !errors.Is(err, ErrMiss) {
		t.Errorf("empty cache index err = %v, want ErrMiss", err)
	}
	body := []byte(`[{"id":"hotel-1","name":"Meridian"}]`)
	if err := cache.PutIndex(ctx, body); err != nil {
		t.Fatalf("PutIndex: %v", err)
	}
	got, err := cache.GetIndex(ctx)
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("got %s", got)
	}
}
