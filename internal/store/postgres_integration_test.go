package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"concierge/api/internal/util"
)

// These tests need a real database; they skip unless DATABASE_URL is set.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestSaveTreeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	hotelID := util.NewID("hotel")

	root := RootDocument{
		ID:         hotelID,
		Name:       "Integration Test Hotel",
		Scalars:    json.RawMessage(`{"id":"` + hotelID + `","kind":"root","name":"Integration Test Hotel"}`),
		ChildOrder: []string{"c2", "c1"},
	}
	shards := []ShardDocument{
		{HotelID: hotelID, ID: "c1", Body: json.RawMessage(`{"id":"c1","kind":"category","name":"Amenities"}`)},
		{HotelID: hotelID, ID: "c2", Body: json.RawMessage(`{"id":"c2","kind":"category","name":"Dining"}`)},
	}
	if err := s.SaveTree(ctx, root, shards); err != nil {
		t.Fatalf("SaveTree: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteTree(ctx, hotelID) })

	got, err := s.GetRoot(ctx, hotelID)
	if err != nil {
		t.Fatalf("GetRoot: %v", err)
	}
	if got.Name != root.Name {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.ChildOrder) != 2 || got.ChildOrder[0] != "c2" || got.ChildOrder[1] != "c1" {
		t.Errorf("childOrder = %v", got.ChildOrder)
	}

	fetched, err := s.ListShards(ctx, hotelID)
	if err != nil {
		t.Fatalf("ListShards: %v", err)
	}
	if len(fetched) != 2 {
		t.Fatalf("shard count = %d, want 2", len(fetched))
	}
}

func TestSaveTreeOrphanCleanup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	hotelID := util.NewID("hotel")
	t.Cleanup(func() { _ = s.DeleteTree(ctx, hotelID) })

	root := RootDocument{
		ID:         hotelID,
		Name:       "Orphan Test",
		Scalars:    json.RawMessage(`{}`),
		ChildOrder: []string{"c1", "c2"},
	}
	shards := []ShardDocument{
		{HotelID: hotelID, ID: "c1", Body: json.RawMessage(`{"id":"c1"}`)},
		{HotelID: hotelID, ID: "c2", Body: json.RawMessage(`{"id":"c2"}`)},
	}
	if err := s.SaveTree(ctx, root, shards); err != nil {
		t.Fatalf("first SaveTree: %v", err)
	}

	root.ChildOrder = []string{"c2"}
	if err := s.SaveTree(ctx, root, shards[1:]); err != nil {
		t.Fatalf("second SaveTree: %v", err)
	}

	fetched, err := s.ListShards(ctx, hotelID)
	if err != nil {
		t.Fatalf("ListShards: %v", err)
	}
	if len(fetched) != 1 || fetched[0].ID != "c2" {
		t.Errorf("expected only c2 to survive, got %d shards", len(fetched))
	}
}

func TestGetRootNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRoot(context.Background(), "missing-hotel"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
