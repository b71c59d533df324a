package store

import (
	"encoding/json"
	"time"
)

// HotelSummary is the minimal index entry for listing available knowledge
// bases without loading their bodies.
type HotelSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RootDocument is the persistence-side projection of a tree's root: the root's
// own scalar fields (children stripped) plus the explicit child order. Once
// persisted, ChildOrder is the ordering source of truth, not any embedded
// children array.
type RootDocument struct {
	ID         string
	Name       string
	Scalars    json.RawMessage
	ChildOrder []string
	UpdatedAt  time.Time
}

// ShardDocument holds one top-level child's full embedded subtree JSON, keyed
// by that child's own id. Splitting at the top level bounds any one document
// to roughly one category's worth of content.
type ShardDocument struct {
	HotelID string
	ID      string
	Body    json.RawMessage
}
