package search

import (
	"strings"

	"concierge/api/internal/tree"
)

// NodeRecord is the flattened form of a tree node we index. Path is the
// human-readable ancestry ("Hotel Meridian > Dining > Breakfast") so hits can
// be located without loading the tree.
type NodeRecord struct {
	ID          string `json:"id"`
	NodeID      string `json:"nodeId"`
	HotelID     string `json:"hotelId"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	NodeID  string `json:"nodeId"`
	HotelID string `json:"hotelId"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	Path    string `json:"path"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterHotelID string // empty = all hotels
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over indexed nodes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push node records into a search index.
type Indexer interface {
	IndexNodes(records []NodeRecord) error
	DeleteNodes(ids []string) error
}

// FlattenTree turns a hotel tree into the records we index. Attribute values
// are folded into the owning node's Value so "Lobby restaurant" is findable
// without a separate attribute index.
func FlattenTree(hotelID string, root *tree.Node) []NodeRecord {
	if root == nil {
		return nil
	}
	var records []NodeRecord
	var walk func(n *tree.Node, path []string)
	walk = func(n *tree.Node, path []string) {
		value := n.Value
		for _, attr := range n.Attributes {
			value = strings.TrimSpace(value + " " + attr.Key + " " + attr.Value)
		}
		records = append(records, NodeRecord{
			ID:          hotelID + "-" + n.ID,
			NodeID:      n.ID,
			HotelID:     hotelID,
			Name:        n.Name,
			Value:       value,
			Description: n.Description,
			Path:        strings.Join(append(path, n.Name), " > "),
		})
		for _, child := range n.Children {
			walk(child, append(path, n.Name))
		}
	}
	walk(root, nil)
	return records
}
