package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// SyncHotel replaces the hotel's Postgres rows synchronously and pushes the
// same records to Meilisearch fire-and-forget. removedIDs are record IDs
// (hotelID-nodeID) that existed in the previous revision but not this one.
func (s *Service) SyncHotel(ctx context.Context, hotelID string, records []NodeRecord, removedIDs []string) {
	if s.pgfts != nil {
		if err := s.pgfts.ReplaceHotelNodes(ctx, hotelID, records); err != nil {
			log.Printf("search: replace nodes for %s: %v", hotelID, err)
		}
	}

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if len(removedIDs) > 0 {
			if err := s.meili.DeleteNodes(removedIDs); err != nil {
				log.Printf("search: delete stale nodes for %s: %v", hotelID, err)
			}
		}
		if err := s.meili.IndexNodes(records); err != nil {
			log.Printf("search: index hotel %s: %v", hotelID, err)
		}
	}()
}

// RemoveHotel drops the hotel from both indexes. recordIDs are the last known
// record IDs for the hotel, needed because Meilisearch deletes by document ID.
func (s *Service) RemoveHotel(ctx context.Context, hotelID string, recordIDs []string) {
	if s.pgfts != nil {
		if err := s.pgfts.DeleteHotelNodes(ctx, hotelID); err != nil {
			log.Printf("search: delete hotel %s from pgfts: %v", hotelID, err)
		}
	}

	if s.meili == nil || !s.meili.Healthy() || len(recordIDs) == 0 {
		return
	}
	go func() {
		if err := s.meili.DeleteNodes(recordIDs); err != nil {
			log.Printf("search: delete hotel %s from meilisearch: %v", hotelID, err)
		}
	}()
}

// ReindexAllFromPG pushes every Postgres-indexed node into Meilisearch.
// Called at startup so an empty or recovered Meilisearch catches up.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexNodes(records); err != nil {
		log.Printf("search: reindex: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
