// Package tree holds the hotel knowledge-base document model and the pure
// operations over it. Every operation takes the current root and returns a new
// root; the input is never mutated, so callers can keep old snapshots for
// change detection or undo without defensive copying.
package tree

import "encoding/json"

// SchemaType discriminates the extension payload attached to a node.
type SchemaType string

const (
	SchemaGeneric        SchemaType = "generic"
	SchemaScheduledEvent SchemaType = "scheduled-event"
	SchemaDining         SchemaType = "dining"
	SchemaRoom           SchemaType = "room"
)

// Attribute is an ad-hoc structured fact attached to a node.
type Attribute struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Kind  string `json:"kind,omitempty"`
}

// Node is one element of the hierarchical document. Kind is an open tag
// (category, field, list, note, ...); nothing at this layer enforces a closed
// set. Children order is significant and is the only ordering signal.
//
// Extra carries feature-specific payload keyed by SchemaType. The tree
// operations never interpret it; they preserve it byte for byte.
type Node struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Name        string          `json:"name,omitempty"`
	Value       string          `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
	Attributes  []Attribute     `json:"attributes,omitempty"`
	Children    []*Node         `json:"children,omitempty"`
	SchemaType  SchemaType      `json:"schemaType,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// ScheduledEventPayload is the Extra payload for schemaType "scheduled-event".
type ScheduledEventPayload struct {
	Weekdays  []string `json:"weekdays,omitempty"`
	StartTime string   `json:"startTime,omitempty"`
	EndTime   string   `json:"endTime,omitempty"`
	Location  string   `json:"location,omitempty"`
}

// DiningPayload is the Extra payload for schemaType "dining".
type DiningPayload struct {
	Cuisine      string `json:"cuisine,omitempty"`
	OpenHours    string `json:"openHours,omitempty"`
	Reservations bool   `json:"reservations,omitempty"`
}

// RoomPayload is the Extra payload for schemaType "room".
type RoomPayload struct {
	Category  string `json:"category,omitempty"`
	Occupancy int    `json:"occupancy,omitempty"`
	BedSetup  string `json:"bedSetup,omitempty"`
}

// DecodeExtra unmarshals the extension payload into the shape named by
// SchemaType. It returns nil for generic or absent payloads.
func (n *Node) DecodeExtra() (any, error) {
	if len(n.Extra) == 0 {
		return nil, nil
	}
	switch n.SchemaType {
	case SchemaScheduledEvent:
		var p ScheduledEventPayload
		if err := json.Unmarshal(n.Extra, &p); err != nil {
			return nil, err
		}
		return p, nil
	case SchemaDining:
		var p DiningPayload
		if err := json.Unmarshal(n.Extra, &p); err != nil {
			return nil, err
		}
		return p, nil
	case SchemaRoom:
		var p RoomPayload
		if err := json.Unmarshal(n.Extra, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}

// Clone returns a deep copy sharing no mutable state with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Attributes != nil {
		out.Attributes = make([]Attribute, len(n.Attributes))
		copy(out.Attributes, n.Attributes)
	}
	if n.Extra != nil {
		out.Extra = make(json.RawMessage, len(n.Extra))
		copy(out.Extra, n.Extra)
	}
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			out.Children[i] = child.Clone()
		}
	}
	return &out
}

// Find returns the node with the given id, or nil.
func Find(root *Node, id string) *Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := Find(child, id); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits root and every descendant in depth-first order. The visit
// function receives the node and its depth (root is depth 0). Returning false
// stops the walk.
func Walk(root *Node, visit func(n *Node, depth int) bool) {
	walk(root, 0, visit)
}

func walk(n *Node, depth int, visit func(*Node, int) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n, depth) {
		return false
	}
	for _, child := range n.Children {
		if !walk(child, depth+1, visit) {
			return false
		}
	}
	return true
}

// findParent returns the parent of the node with the given id and the child's
// index in the parent's children, or (nil, -1).
func findParent(root *Node, id string) (*Node, int) {
	if root == nil {
		return nil, -1
	}
	for i, child := range root.Children {
		if child.ID == id {
			return root, i
		}
		if parent, idx := findParent(child, id); parent != nil {
			return parent, idx
		}
	}
	return nil, -1
}
