package shardsync

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"concierge/api/internal/localcache"
	"concierge/api/internal/store"
	"concierge/api/internal/tree"
)

// fakeRemote mimics the remote store's batch semantics in memory, including
// orphan deletion, with a switch to simulate an unreachable backend.
type fakeRemote struct {
	roots  map[string]store.RootDocument
	shards map[string]map[string]store.ShardDocument
	down   bool
	saves  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		roots:  map[string]store.RootDocument{},
		shards: map[string]map[string]store.ShardDocument{},
	}
}

var errUnreachable = errors.New("remote unreachable")

func (f *fakeRemote) SaveTree(_ context.Context, root store.RootDocument, shards []store.ShardDocument) error {
	if f.down {
		return errUnreachable
	}
	f.saves++
	f.roots[root.ID] = root
	existing := f.shards[root.ID]
	if existing == nil {
		existing = map[string]store.ShardDocument{}
		f.shards[root.ID] = existing
	}
	for _, shard := range shards {
		existing[shard.ID] = shard
	}
	keep := map[string]bool{}
	for _, id := range root.ChildOrder {
		keep[id] = true
	}
	for id := range existing {
		if !keep[id] {
			delete(existing, id)
		}
	}
	return nil
}

func (f *fakeRemote) GetRoot(_ context.Context, hotelID string) (store.RootDocument, error) {
	if f.down {
		return store.RootDocument{}, errUnreachable
	}
	root, ok := f.roots[hotelID]
	if !ok {
		return store.RootDocument{}, store.ErrNotFound
	}
	return root, nil
}

func (f *fakeRemote) ListShards(_ context.Context, hotelID string) ([]store.ShardDocument, error) {
	if f.down {
		return nil, errUnreachable
	}
	var out []store.ShardDocument
	for _, shard := range f.shards[hotelID] {
		out = append(out, shard)
	}
	return out, nil
}

func (f *fakeRemote) ListHotels(_ context.Context) ([]store.HotelSummary, error) {
	if f.down {
		return nil, errUnreachable
	}
	var out []store.HotelSummary
	for _, root := range f.roots {
		out = append(out, store.HotelSummary{ID: root.ID, Name: root.Name})
	}
	return out, nil
}

func (f *fakeRemote) DeleteTree(_ context.Context, hotelID string) error {
	if f.down {
		return errUnreachable
	}
	delete(f.roots, hotelID)
	delete(f.shards, hotelID)
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *fakeRemote) {
	t.Helper()
	cache, err := localcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	remote := newFakeRemote()
	return New(remote, cache), remote
}

func sampleTree() *tree.Node {
	return &tree.Node{
		ID:   "root",
		Kind: "root",
		Name: "Hotel Meridian",
		Children: []*tree.Node{
			{ID: "c1", Kind: "category", Name: "Amenities", Children: []*tree.Node{
				{ID: "pool", Kind: "field", Name: "Pool", Value: "Open 7-22"},
			}},
			{ID: "c2", Kind: "category", Name: "Dining"},
			{ID: "c3", Kind: "category", Name: "Rooms"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	gw, remote := newTestGateway(t)
	ctx := context.Background()
	root := sampleTree()

	if err := gw.Save(ctx, "hotel-1", root); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := remote.roots["hotel-1"].ChildOrder; len(got) != 3 || got[0] != "c1" || got[2] != "c3" {
		t.Errorf("childOrder = %v", got)
	}

	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for a saved hotel")
	}
	if len(loaded.Children) != 3 {
		t.Fatalf("loaded %d children, want 3", len(loaded.Children))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if loaded.Children[i].ID != want {
			t.Errorf("children[%d] = %s, want %s", i, loaded.Children[i].ID, want)
		}
	}
	if tree.Find(loaded, "pool").Value != "Open 7-22" {
		t.Error("embedded subtree content lost in round trip")
	}
	if loaded.Name != "Hotel Meridian" {
		t.Errorf("root name = %q", loaded.Name)
	}
}

func TestSaveReordersByChildOrder(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	root := sampleTree()
	if err := gw.Save(ctx, "hotel-1", root); err != nil {
		t.Fatal(err)
	}
	// Move c3 to the front and save again; load must honour the new manifest.
	moved, changed := tree.MoveNode(root, "c3", "c1", tree.Before)
	if !changed {
		t.Fatal("move failed")
	}
	if err := gw.Save(ctx, "hotel-1", moved); err != nil {
		t.Fatal(err)
	}
	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Children[0].ID != "c3" {
		t.Errorf("children[0] = %s, want c3", loaded.Children[0].ID)
	}
}

func TestOrphanCleanup(t *testing.T) {
	gw, remote := newTestGateway(t)
	ctx := context.Background()

	root := sampleTree()
	if err := gw.Save(ctx, "hotel-1", root); err != nil {
		t.Fatal(err)
	}
	pruned, changed := tree.DeleteNode(root, "c2")
	if !changed {
		t.Fatal("delete failed")
	}
	if err := gw.Save(ctx, "hotel-1", pruned); err != nil {
		t.Fatal(err)
	}

	if _, ok := remote.shards["hotel-1"]["c2"]; ok {
		t.Error("orphan shard c2 survived the save")
	}
	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatal(err)
	}
	if tree.Find(loaded, "c2") != nil {
		t.Error("load returned a deleted top-level child")
	}
}

func TestLoadAppendsStragglerShard(t *testing.T) {
	gw, remote := newTestGateway(t)
	ctx := context.Background()

	if err := gw.Save(ctx, "hotel-1", sampleTree()); err != nil {
		t.Fatal(err)
	}
	// Simulate a crashed save: a shard landed but the manifest never did.
	remote.shards["hotel-1"]["c9"] = store.ShardDocument{
		HotelID: "hotel-1",
		ID:      "c9",
		Body:    json.RawMessage(`{"id":"c9","kind":"category","name":"Straggler"}`),
	}

	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Children) != 4 {
		t.Fatalf("loaded %d children, want 4 (straggler appended)", len(loaded.Children))
	}
	if loaded.Children[3].ID != "c9" {
		t.Errorf("straggler must come after the ordered set, got %s last", loaded.Children[3].ID)
	}
}

func TestSaveDegradesToLocalCache(t *testing.T) {
	gw, remote := newTestGateway(t)
	ctx := context.Background()
	remote.down = true

	err := gw.Save(ctx, "hotel-1", sampleTree())
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("err = %v, want ErrDegraded", err)
	}

	// Still down: load must come back from the cache.
	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil || tree.Find(loaded, "pool") == nil {
		t.Fatal("offline load lost the tree")
	}

	// The cached index follows the degraded save.
	summaries, err := gw.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "Hotel Meridian" {
		t.Errorf("degraded List = %+v", summaries)
	}
}

func TestLoadMissingEverywhere(t *testing.T) {
	gw, _ := newTestGateway(t)
	loaded, err := gw.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Error("expected nil tree for an unknown hotel")
	}
}

func TestSanitizeDropsAbsentFields(t *testing.T) {
	gw, remote := newTestGateway(t)
	ctx := context.Background()

	root := &tree.Node{
		ID:   "root",
		Kind: "root",
		Name: "Hotel",
		Children: []*tree.Node{
			{ID: "c1", Kind: "category", Attributes: []tree.Attribute{}, Children: []*tree.Node{
				{ID: "f1", Kind: "field", Name: "Empty", Extra: json.RawMessage{}},
			}},
		},
	}
	if err := gw.Save(ctx, "hotel-1", root); err != nil {
		t.Fatal(err)
	}
	body := string(remote.shards["hotel-1"]["c1"].Body)
	for _, marker := range []string{`"attributes"`, `"extra"`, `"value"`, `"description"`} {
		if strings.Contains(body, marker) {
			t.Errorf("sanitized shard still carries %s: %s", marker, body)
		}
	}
	// Sanitization must reach below the top level.
	if strings.Contains(body, `"extra":`) {
		t.Errorf("nested empty payload survived: %s", body)
	}
}

func TestDeleteClearsLocalRecord(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	if err := gw.Save(ctx, "hotel-1", sampleTree()); err != nil {
		t.Fatal(err)
	}
	if err := gw.Delete(ctx, "hotel-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err := gw.Load(ctx, "hotel-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Error("deleted hotel came back from the cache")
	}
}
