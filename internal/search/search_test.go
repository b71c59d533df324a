package search

import (
	"strings"
	"testing"

	"concierge/api/internal/tree"
)

func TestFlattenTreeBuildsPaths(t *testing.T) {
	root := &tree.Node{
		ID:   "root",
		Kind: "root",
		Name: "Hotel Meridian",
		Children: []*tree.Node{
			{ID: "c1", Kind: "category", Name: "Dining", Children: []*tree.Node{
				{ID: "f1", Kind: "field", Name: "Breakfast", Value: "7-10", Description: "Buffet"},
			}},
		},
	}

	records := FlattenTree("hotel-1", root)
	if len(records) != 3 {
		t.Fatalf("flattened %d records, want 3", len(records))
	}

	byNode := map[string]NodeRecord{}
	for _, r := range records {
		byNode[r.NodeID] = r
	}

	leaf := byNode["f1"]
	if leaf.Path != "Hotel Meridian > Dining > Breakfast" {
		t.Errorf("path = %q", leaf.Path)
	}
	if leaf.ID != "hotel-1-f1" || leaf.HotelID != "hotel-1" {
		t.Errorf("record identity = %+v", leaf)
	}
	if leaf.Value != "7-10" || leaf.Description != "Buffet" {
		t.Errorf("record content = %+v", leaf)
	}
	if byNode["root"].Path != "Hotel Meridian" {
		t.Errorf("root path = %q", byNode["root"].Path)
	}
}

func TestFlattenTreeFoldsAttributes(t *testing.T) {
	root := &tree.Node{
		ID:   "root",
		Kind: "root",
		Name: "Hotel",
		Children: []*tree.Node{
			{ID: "f1", Kind: "field", Name: "Breakfast", Attributes: []tree.Attribute{
				{ID: "a1", Key: "location", Value: "Lobby restaurant"},
			}},
		},
	}

	records := FlattenTree("hotel-1", root)
	var leaf NodeRecord
	for _, r := range records {
		if r.NodeID == "f1" {
			leaf = r
		}
	}
	if !strings.Contains(leaf.Value, "Lobby restaurant") {
		t.Errorf("attribute value not searchable: %+v", leaf)
	}
}

func TestFlattenTreeNilRoot(t *testing.T) {
	if records := FlattenTree("hotel-1", nil); records != nil {
		t.Errorf("got %v for nil root", records)
	}
}
