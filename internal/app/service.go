// Package app ties the tree model, persistence gateway and autosave scheduler
// together into the service the HTTP layer talks to. The service owns the
// live tree of every open hotel; all mutations flow through it so the
// scheduler sees every edit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"concierge/api/internal/assistant"
	"concierge/api/internal/autosave"
	"concierge/api/internal/config"
	"concierge/api/internal/export"
	"concierge/api/internal/revision"
	"concierge/api/internal/search"
	"concierge/api/internal/shardsync"
	"concierge/api/internal/snapshot"
	"concierge/api/internal/store"
	"concierge/api/internal/tree"
	"concierge/api/internal/util"
)

// TreeGateway persists and retrieves whole trees. Implemented by
// shardsync.Gateway; tests substitute fakes.
type TreeGateway interface {
	Save(ctx context.Context, hotelID string, root *tree.Node) error
	Load(ctx context.Context, hotelID string) (*tree.Node, error)
	List(ctx context.Context) ([]store.HotelSummary, error)
	Delete(ctx context.Context, hotelID string) error
}

// SummaryCache caches the hotel listing. Implemented by
// summarycache.RedisCache; nil disables caching.
type SummaryCache interface {
	Get(ctx context.Context) ([]store.HotelSummary, bool)
	Put(ctx context.Context, summaries []store.HotelSummary) error
	Invalidate(ctx context.Context) error
}

// Pinger reports backend connectivity for the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Event notifies subscribers of changes to an open hotel.
type Event struct {
	HotelID   string         `json:"hotelId"`
	Kind      string         `json:"kind"` // "tree" or "saveState"
	SaveState autosave.State `json:"saveState,omitempty"`
	Stats     tree.Stats     `json:"stats,omitempty"`
}

// Deps bundles the service's collaborators. Gateway and Exports are required;
// everything else degrades to disabled when nil.
type Deps struct {
	Gateway   TreeGateway
	Summaries SummaryCache
	Search    *search.Service
	Revisions *revision.Service
	Exports   *export.Service
	Snapshots *snapshot.Service
	Assistant assistant.Architect
	Pinger    Pinger
	Clock     autosave.Clock
}

type openHotel struct {
	id        string
	mu        sync.Mutex
	root      *tree.Node
	scheduler *autosave.Scheduler
	// record IDs last pushed to the search index, for stale-entry deletion
	indexedIDs map[string]bool
}

type Service struct {
	cfg  config.Config
	deps Deps

	mu     sync.Mutex
	hotels map[string]*openHotel

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = autosave.SystemClock()
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		hotels: make(map[string]*openHotel),
		subs:   make(map[int]chan Event),
	}
}

// Ping reports whether the remote store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.deps.Pinger == nil {
		return nil
	}
	return s.deps.Pinger.Ping(ctx)
}

// Subscribe registers for change events across all open hotels. The returned
// cancel func must be called to release the channel. Slow subscribers drop
// events rather than block mutations.
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
}

func (s *Service) notify(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// ListHotels returns the summary list, served from the cache when warm.
func (s *Service) ListHotels(ctx context.Context) ([]store.HotelSummary, error) {
	if s.deps.Summaries != nil {
		if cached, ok := s.deps.Summaries.Get(ctx); ok {
			return cached, nil
		}
	}
	summaries, err := s.deps.Gateway.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hotels: %w", err)
	}
	if summaries == nil {
		summaries = []store.HotelSummary{}
	}
	if s.deps.Summaries != nil {
		if err := s.deps.Summaries.Put(ctx, summaries); err != nil {
			log.Printf("app: cache hotel summaries: %v", err)
		}
	}
	return summaries, nil
}

// CreateHotel builds a new tree, optionally from a stored template, and
// persists it immediately.
func (s *Service) CreateHotel(ctx context.Context, name, templateKey string) (*tree.Node, error) {
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	var root *tree.Node
	if templateKey != "" {
		if s.deps.Snapshots == nil {
			return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Template storage not configured", nil)
		}
		fetched, err := s.deps.Snapshots.Fetch(ctx, templateKey)
		if err != nil {
			return nil, fmt.Errorf("fetch template: %w", err)
		}
		root = tree.RegenerateIDs(fetched)
		root.Name = name
	} else {
		root = &tree.Node{Kind: "root", Name: name}
	}
	root.ID = util.NewID("hotel")

	h := s.open(root.ID, root)
	if err := h.scheduler.SaveNow(ctx); err != nil && !errors.Is(err, shardsync.ErrDegraded) {
		return nil, fmt.Errorf("initial save: %w", err)
	}
	return s.snapshotRoot(h), nil
}

// LoadTree returns the current tree for a hotel, opening it on first access.
func (s *Service) LoadTree(ctx context.Context, hotelID string) (*tree.Node, error) {
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	return s.snapshotRoot(h), nil
}

// FilterTree returns the pruned tree matching a query, or nil when nothing
// matches.
func (s *Service) FilterTree(ctx context.Context, hotelID, query string) (*tree.Node, error) {
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return tree.Filter(h.root, query), nil
}

// TreeStats summarises the current tree.
func (s *Service) TreeStats(ctx context.Context, hotelID string) (tree.Stats, error) {
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return tree.Stats{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return tree.ComputeStats(h.root), nil
}

// InsertNode appends a node under parentID. The node gets fresh server-side
// identifiers.
func (s *Service) InsertNode(ctx context.Context, hotelID, parentID string, node *tree.Node) (*tree.Node, error) {
	if node == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "node is required", nil)
	}
	fresh := tree.RegenerateIDs(node)
	return s.mutate(ctx, hotelID, func(root *tree.Node) (*tree.Node, bool) {
		return tree.InsertChild(root, parentID, fresh)
	})
}

// UpdateNode merges a patch into the node with the given id.
func (s *Service) UpdateNode(ctx context.Context, hotelID, nodeID string, patch tree.Patch) (*tree.Node, error) {
	return s.mutate(ctx, hotelID, func(root *tree.Node) (*tree.Node, bool) {
		return tree.UpdateNode(root, nodeID, patch)
	})
}

// DeleteNode removes a node and its subtree.
func (s *Service) DeleteNode(ctx context.Context, hotelID, nodeID string) (*tree.Node, error) {
	return s.mutate(ctx, hotelID, func(root *tree.Node) (*tree.Node, bool) {
		return tree.DeleteNode(root, nodeID)
	})
}

// MoveNode repositions a subtree relative to a target node.
func (s *Service) MoveNode(ctx context.Context, hotelID, sourceID, targetID string, pos tree.Position) (*tree.Node, error) {
	return s.mutate(ctx, hotelID, func(root *tree.Node) (*tree.Node, bool) {
		return tree.MoveNode(root, sourceID, targetID, pos)
	})
}

// SaveNow flushes pending changes immediately, bypassing the debounce window.
func (s *Service) SaveNow(ctx context.Context, hotelID string) error {
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return err
	}
	return h.scheduler.SaveNow(ctx)
}

// SaveState reports the autosave state for an open hotel; idle when the hotel
// is not open.
func (s *Service) SaveState(hotelID string) autosave.State {
	s.mu.Lock()
	h, ok := s.hotels[hotelID]
	s.mu.Unlock()
	if !ok {
		return autosave.StateIdle
	}
	return h.scheduler.State()
}

// DeleteHotel removes the hotel everywhere: remote store, local cache, search
// index, revision history and the summary cache.
func (s *Service) DeleteHotel(ctx context.Context, hotelID string) error {
	var recordIDs []string
	s.mu.Lock()
	if h, ok := s.hotels[hotelID]; ok {
		h.mu.Lock()
		for id := range h.indexedIDs {
			recordIDs = append(recordIDs, id)
		}
		h.mu.Unlock()
		delete(s.hotels, hotelID)
	}
	s.mu.Unlock()

	if err := s.deps.Gateway.Delete(ctx, hotelID); err != nil && !errors.Is(err, shardsync.ErrDegraded) {
		return fmt.Errorf("delete hotel: %w", err)
	}
	if s.deps.Search != nil {
		s.deps.Search.RemoveHotel(ctx, hotelID, recordIDs)
	}
	if s.deps.Revisions != nil {
		if err := s.deps.Revisions.Remove(hotelID); err != nil {
			log.Printf("app: remove revision history for %s: %v", hotelID, err)
		}
	}
	if s.deps.Summaries != nil {
		if err := s.deps.Summaries.Invalidate(ctx); err != nil {
			log.Printf("app: invalidate summary cache: %v", err)
		}
	}
	return nil
}

// Search runs a full-text query across indexed nodes.
func (s *Service) Search(q search.Query) search.Response {
	if s.deps.Search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.deps.Search.Search(q)
}

// Export renders the tree in the requested format. version is "latest" or a
// revision hash.
func (s *Service) Export(ctx context.Context, hotelID, version string, format export.Format) (*export.Result, error) {
	root, err := s.treeAtVersion(ctx, hotelID, version)
	if err != nil {
		return nil, err
	}
	return s.deps.Exports.Export(root, format)
}

// History lists revision commits, newest first.
func (s *Service) History(ctx context.Context, hotelID string, limit int) ([]revision.CommitInfo, error) {
	if s.deps.Revisions == nil {
		return []revision.CommitInfo{}, nil
	}
	if _, err := s.hotel(ctx, hotelID); err != nil {
		return nil, err
	}
	return s.deps.Revisions.History(hotelID, limit)
}

// RestoreRevision replaces the live tree with a historical one and marks it
// dirty so the restore persists like any other edit.
func (s *Service) RestoreRevision(ctx context.Context, hotelID, hash string) (*tree.Node, error) {
	if s.deps.Revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history not configured", nil)
	}
	old, err := s.deps.Revisions.TreeAt(hotelID, hash)
	if err != nil {
		return nil, fmt.Errorf("load revision %s: %w", hash, err)
	}
	return s.mutate(ctx, hotelID, func(*tree.Node) (*tree.Node, bool) {
		return old, true
	})
}

// AssistantApply sends an instruction to the assistant and applies the
// returned actions to the tree.
func (s *Service) AssistantApply(ctx context.Context, hotelID, instruction string) (string, []assistant.ActionResult, error) {
	if s.deps.Assistant == nil {
		return "", nil, domainError(http.StatusServiceUnavailable, "ASSISTANT_UNAVAILABLE", "Assistant not configured", nil)
	}
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return "", nil, err
	}

	reply, err := s.deps.Assistant.Propose(ctx, s.snapshotRoot(h), instruction)
	if err != nil {
		return "", nil, fmt.Errorf("assistant propose: %w", err)
	}
	if len(reply.Actions) == 0 {
		return reply.Message, []assistant.ActionResult{}, nil
	}

	var results []assistant.ActionResult
	if _, err := s.mutate(ctx, hotelID, func(root *tree.Node) (*tree.Node, bool) {
		next, res, applied := assistant.Apply(root, reply.Actions)
		results = res
		return next, applied > 0
	}); err != nil {
		return "", nil, err
	}
	return reply.Message, results, nil
}

// TakeSnapshot archives the current tree to object storage.
func (s *Service) TakeSnapshot(ctx context.Context, hotelID, label string) (snapshot.Info, error) {
	if s.deps.Snapshots == nil {
		return snapshot.Info{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot storage not configured", nil)
	}
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return snapshot.Info{}, err
	}
	return s.deps.Snapshots.Store(ctx, hotelID, label, s.snapshotRoot(h))
}

// ListSnapshots lists a hotel's archived snapshots.
func (s *Service) ListSnapshots(ctx context.Context, hotelID string) ([]snapshot.Info, error) {
	if s.deps.Snapshots == nil {
		return []snapshot.Info{}, nil
	}
	return s.deps.Snapshots.List(ctx, hotelID)
}

// RestoreSnapshot replaces the live tree with an archived one.
func (s *Service) RestoreSnapshot(ctx context.Context, hotelID, key string) (*tree.Node, error) {
	if s.deps.Snapshots == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot storage not configured", nil)
	}
	restored, err := s.deps.Snapshots.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return s.mutate(ctx, hotelID, func(*tree.Node) (*tree.Node, bool) {
		return restored, true
	})
}

// SaveTemplate strips values from the hotel's tree and stores it as a
// reusable structure.
func (s *Service) SaveTemplate(ctx context.Context, hotelID, label string) (snapshot.Info, error) {
	if s.deps.Snapshots == nil {
		return snapshot.Info{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshot storage not configured", nil)
	}
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return snapshot.Info{}, err
	}
	return s.deps.Snapshots.StoreTemplate(ctx, label, s.snapshotRoot(h))
}

// ListTemplates lists stored structure templates.
func (s *Service) ListTemplates(ctx context.Context) ([]snapshot.Info, error) {
	if s.deps.Snapshots == nil {
		return []snapshot.Info{}, nil
	}
	return s.deps.Snapshots.List(ctx, "")
}

// Bootstrap warms the search index from Postgres. Safe to call on every
// start.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.deps.Search != nil {
		s.deps.Search.ReindexAllFromPG(ctx)
	}
	return nil
}

// Close flushes every open hotel's pending changes.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	open := make([]*openHotel, 0, len(s.hotels))
	for _, h := range s.hotels {
		open = append(open, h)
	}
	s.mu.Unlock()

	for _, h := range open {
		if err := h.scheduler.SaveNow(ctx); err != nil {
			log.Printf("app: final save for %s: %v", h.id, err)
		}
	}
}

// hotel returns the open handle, loading the tree on first access.
func (s *Service) hotel(ctx context.Context, hotelID string) (*openHotel, error) {
	s.mu.Lock()
	if h, ok := s.hotels[hotelID]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	// Load outside the map lock; a concurrent open of the same hotel wins on
	// insert below.
	root, err := s.deps.Gateway.Load(ctx, hotelID)
	if err != nil {
		return nil, fmt.Errorf("load hotel %s: %w", hotelID, err)
	}
	if root == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Hotel not found", nil)
	}
	return s.open(hotelID, root), nil
}

func (s *Service) open(hotelID string, root *tree.Node) *openHotel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.hotels[hotelID]; ok {
		return existing
	}

	h := &openHotel{
		id:         hotelID,
		root:       root,
		indexedIDs: make(map[string]bool),
	}
	h.scheduler = autosave.New(s.cfg.AutosaveInterval, s.deps.Clock, func(ctx context.Context) error {
		return s.persist(ctx, h)
	}, func(state autosave.State) {
		s.notify(Event{HotelID: hotelID, Kind: "saveState", SaveState: state})
	})
	s.hotels[hotelID] = h
	return h
}

// mutate applies a pure tree operation under the hotel's lock. A no-op result
// leaves the tree and the scheduler untouched.
func (s *Service) mutate(ctx context.Context, hotelID string, op func(*tree.Node) (*tree.Node, bool)) (*tree.Node, error) {
	h, err := s.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	next, changed := op(h.root)
	var stats tree.Stats
	if changed {
		h.root = next
		stats = tree.ComputeStats(next)
	}
	result := h.root.Clone()
	h.mu.Unlock()

	if changed {
		h.scheduler.MarkDirty()
		s.notify(Event{HotelID: hotelID, Kind: "tree", Stats: stats})
	}
	return result, nil
}

// persist is the scheduler's save func: push the tree through the gateway,
// then fan out to revision history, search and the summary cache. A degraded
// save (local cache only) is surfaced as an error so the status shows it.
func (s *Service) persist(ctx context.Context, h *openHotel) error {
	h.mu.Lock()
	root := h.root.Clone()
	h.mu.Unlock()

	if err := s.deps.Gateway.Save(ctx, h.id, root); err != nil {
		return err
	}

	if s.deps.Revisions != nil {
		if _, err := s.deps.Revisions.Commit(h.id, root, "Concierge", "Autosave"); err != nil {
			log.Printf("app: revision commit for %s: %v", h.id, err)
		}
	}
	if s.deps.Search != nil {
		records := search.FlattenTree(h.id, root)
		current := make(map[string]bool, len(records))
		for _, rec := range records {
			current[rec.ID] = true
		}
		h.mu.Lock()
		var removed []string
		for id := range h.indexedIDs {
			if !current[id] {
				removed = append(removed, id)
			}
		}
		h.indexedIDs = current
		h.mu.Unlock()
		s.deps.Search.SyncHotel(ctx, h.id, records, removed)
	}
	if s.deps.Summaries != nil {
		if err := s.deps.Summaries.Invalidate(ctx); err != nil {
			log.Printf("app: invalidate summary cache: %v", err)
		}
	}
	return nil
}

func (s *Service) snapshotRoot(h *openHotel) *tree.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root.Clone()
}

func (s *Service) treeAtVersion(ctx context.Context, hotelID, version string) (*tree.Node, error) {
	if version == "" || version == "latest" {
		h, err := s.hotel(ctx, hotelID)
		if err != nil {
			return nil, err
		}
		return s.snapshotRoot(h), nil
	}
	if s.deps.Revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history not configured", nil)
	}
	return s.deps.Revisions.TreeAt(hotelID, version)
}
