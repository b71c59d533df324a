// Package shardsync maps one knowledge-base tree onto the remote document
// store using a root-plus-flat-children sharding scheme, and reconciles it
// back into a tree on load. Remote failures never escape this boundary: the
// gateway degrades to the local cache and lets the caller keep editing.
package shardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"concierge/api/internal/localcache"
	"concierge/api/internal/store"
	"concierge/api/internal/tree"
)

// ErrDegraded signals that the remote store was unreachable and the operation
// was served by the local cache instead. It is a status, not a transport
// error: edits are safe locally, only their remote durability is delayed.
var ErrDegraded = errors.New("shardsync: degraded to local cache")

// RemoteStore is the remote document store surface the gateway needs.
type RemoteStore interface {
	SaveTree(ctx context.Context, root store.RootDocument, shards []store.ShardDocument) error
	GetRoot(ctx context.Context, hotelID string) (store.RootDocument, error)
	ListShards(ctx context.Context, hotelID string) ([]store.ShardDocument, error)
	ListHotels(ctx context.Context) ([]store.HotelSummary, error)
	DeleteTree(ctx context.Context, hotelID string) error
}

// LocalCache is the offline fallback surface the gateway needs.
type LocalCache interface {
	PutTree(ctx context.Context, hotelID string, body []byte) error
	GetTree(ctx context.Context, hotelID string) ([]byte, error)
	DeleteTree(ctx context.Context, hotelID string) error
	PutIndex(ctx context.Context, body []byte) error
	GetIndex(ctx context.Context) ([]byte, error)
}

type Gateway struct {
	remote RemoteStore
	cache  LocalCache
}

func New(remote RemoteStore, cache LocalCache) *Gateway {
	return &Gateway{remote: remote, cache: cache}
}

// Save persists the tree: root manifest plus one shard per top-level child,
// orphan shards deleted, everything in one remote batch. Every payload is
// sanitized depth-first before the write. On remote failure the whole tree is
// written to the local cache as one monolithic record and Save returns
// ErrDegraded.
//
// A successful remote save also refreshes the local record, so the offline
// fallback is always warm.
func (g *Gateway) Save(ctx context.Context, hotelID string, root *tree.Node) error {
	if root == nil {
		return fmt.Errorf("save %s: nil tree", hotelID)
	}
	clean := sanitize(root)

	rootDoc, shards, err := split(hotelID, clean)
	if err != nil {
		return err
	}

	monolithic, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal tree %s: %w", hotelID, err)
	}

	if err := g.remote.SaveTree(ctx, rootDoc, shards); err != nil {
		log.Printf("shardsync: remote save %s failed, writing local cache: %v", hotelID, err)
		if cacheErr := g.cache.PutTree(ctx, hotelID, monolithic); cacheErr != nil {
			return fmt.Errorf("save %s: remote failed and local cache failed: %w", hotelID, cacheErr)
		}
		g.refreshCachedIndexEntry(ctx, hotelID, clean.Name)
		return ErrDegraded
	}

	if err := g.cache.PutTree(ctx, hotelID, monolithic); err != nil {
		log.Printf("shardsync: warm local cache for %s: %v", hotelID, err)
	}
	return nil
}

// Load reconstructs a tree from the remote store, falling back to the local
// cache when the manifest is unreachable or absent. A nil tree with a nil
// error means the hotel exists nowhere.
func (g *Gateway) Load(ctx context.Context, hotelID string) (*tree.Node, error) {
	rootDoc, err := g.remote.GetRoot(ctx, hotelID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("shardsync: remote load %s failed, trying local cache: %v", hotelID, err)
		}
		return g.loadCached(ctx, hotelID)
	}

	shards, err := g.remote.ListShards(ctx, hotelID)
	if err != nil {
		log.Printf("shardsync: list shards %s failed, trying local cache: %v", hotelID, err)
		return g.loadCached(ctx, hotelID)
	}

	root, err := assemble(rootDoc, shards)
	if err != nil {
		return nil, err
	}
	return root, nil
}

// List enumerates hotel summaries; on remote failure the cached index record
// is served instead.
func (g *Gateway) List(ctx context.Context) ([]store.HotelSummary, error) {
	summaries, err := g.remote.ListHotels(ctx)
	if err != nil {
		log.Printf("shardsync: remote list failed, trying local cache: %v", err)
		return g.listCached(ctx)
	}
	if body, err := json.Marshal(summaries); err == nil {
		if cacheErr := g.cache.PutIndex(ctx, body); cacheErr != nil {
			log.Printf("shardsync: warm cached index: %v", cacheErr)
		}
	}
	return summaries, nil
}

// Delete removes the hotel remotely and locally.
func (g *Gateway) Delete(ctx context.Context, hotelID string) error {
	var degraded bool
	if err := g.remote.DeleteTree(ctx, hotelID); err != nil {
		log.Printf("shardsync: remote delete %s failed: %v", hotelID, err)
		degraded = true
	}
	if err := g.cache.DeleteTree(ctx, hotelID); err != nil {
		return fmt.Errorf("delete cached tree %s: %w", hotelID, err)
	}
	if degraded {
		return ErrDegraded
	}
	return nil
}

func (g *Gateway) loadCached(ctx context.Context, hotelID string) (*tree.Node, error) {
	body, err := g.cache.GetTree(ctx, hotelID)
	if errors.Is(err, localcache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached tree %s: %w", hotelID, err)
	}
	var root tree.Node
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode cached tree %s: %w", hotelID, err)
	}
	return &root, nil
}

func (g *Gateway) listCached(ctx context.Context) ([]store.HotelSummary, error) {
	body, err := g.cache.GetIndex(ctx)
	if err != nil {
		return []store.HotelSummary{}, nil
	}
	var summaries []store.HotelSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("decode cached index: %w", err)
	}
	return summaries, nil
}

// refreshCachedIndexEntry keeps the offline summary list in step with a
// locally cached save, so List degrades consistently with Load.
func (g *Gateway) refreshCachedIndexEntry(ctx context.Context, hotelID, name string) {
	summaries, err := g.listCached(ctx)
	if err != nil {
		return
	}
	found := false
	for i := range summaries {
		if summaries[i].ID == hotelID {
			summaries[i].Name = name
			found = true
			break
		}
	}
	if !found {
		summaries = append(summaries, store.HotelSummary{ID: hotelID, Name: name})
	}
	if body, err := json.Marshal(summaries); err == nil {
		if cacheErr := g.cache.PutIndex(ctx, body); cacheErr != nil {
			log.Printf("shardsync: refresh cached index: %v", cacheErr)
		}
	}
}

// split projects a sanitized tree into the remote schema: the root's scalar
// fields plus childOrder, and one shard per direct child holding its full
// embedded subtree.
func split(hotelID string, root *tree.Node) (store.RootDocument, []store.ShardDocument, error) {
	scalarsOnly := *root
	scalarsOnly.Children = nil
	scalars, err := json.Marshal(&scalarsOnly)
	if err != nil {
		return store.RootDocument{}, nil, fmt.Errorf("marshal root scalars: %w", err)
	}

	childOrder := make([]string, 0, len(root.Children))
	shards := make([]store.ShardDocument, 0, len(root.Children))
	for _, child := range root.Children {
		body, err := json.Marshal(child)
		if err != nil {
			return store.RootDocument{}, nil, fmt.Errorf("marshal shard %s: %w", child.ID, err)
		}
		childOrder = append(childOrder, child.ID)
		shards = append(shards, store.ShardDocument{HotelID: hotelID, ID: child.ID, Body: body})
	}

	return store.RootDocument{
		ID:         hotelID,
		Name:       root.Name,
		Scalars:    scalars,
		ChildOrder: childOrder,
	}, shards, nil
}

// assemble recomposes a tree from the manifest and the fetched shards.
// Children come back in childOrder order; a shard whose id the manifest does
// not know (written by a save that crashed before its manifest landed) is
// appended after the ordered set rather than silently dropped.
func assemble(rootDoc store.RootDocument, shards []store.ShardDocument) (*tree.Node, error) {
	var root tree.Node
	if len(rootDoc.Scalars) > 0 {
		if err := json.Unmarshal(rootDoc.Scalars, &root); err != nil {
			return nil, fmt.Errorf("decode root scalars %s: %w", rootDoc.ID, err)
		}
	}
	if root.ID == "" {
		root.ID = rootDoc.ID
	}
	if root.Name == "" {
		root.Name = rootDoc.Name
	}

	byID := make(map[string]*tree.Node, len(shards))
	for _, shard := range shards {
		var child tree.Node
		if err := json.Unmarshal(shard.Body, &child); err != nil {
			return nil, fmt.Errorf("decode shard %s: %w", shard.ID, err)
		}
		byID[shard.ID] = &child
	}

	children := make([]*tree.Node, 0, len(byID))
	for _, id := range rootDoc.ChildOrder {
		if child, ok := byID[id]; ok {
			children = append(children, child)
			delete(byID, id)
		}
	}
	// Stragglers, in the stable id order the store returned them.
	for _, shard := range shards {
		if child, ok := byID[shard.ID]; ok {
			children = append(children, child)
			delete(byID, shard.ID)
		}
	}
	if len(children) > 0 {
		root.Children = children
	}
	return &root, nil
}

// sanitize returns a copy with every absent field normalised away, depth
// first over the entire subtree: empty attribute lists, empty children and
// empty extension payloads become nil so no empty markers reach the store.
func sanitize(n *tree.Node) *tree.Node {
	out := n.Clone()
	tree.Walk(out, func(node *tree.Node, _ int) bool {
		if len(node.Attributes) == 0 {
			node.Attributes = nil
		}
		if len(node.Children) == 0 {
			node.Children = nil
		}
		if len(node.Extra) == 0 {
			node.Extra = nil
		}
		return true
	})
	return out
}
