package tree

import (
	"encoding/json"
	"strings"

	"concierge/api/internal/util"
)

// Position says where MoveNode reinserts the detached subtree relative to the
// target node.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
	Inside Position = "inside"
)

// Patch carries the fields UpdateNode merges into a node. Nil pointers leave
// the field untouched. There is deliberately no ID field: node ids are
// immutable once assigned.
type Patch struct {
	Kind        *string
	Name        *string
	Value       *string
	Description *string
	Attributes  *[]Attribute
	SchemaType  *SchemaType
	Extra       *[]byte
}

// InsertChild appends node as the last child of parentID and returns the new
// root. Unknown parent ids are absorbed as a no-op: the input root comes back
// unchanged and changed is false. Id freshness is the caller's problem.
func InsertChild(root *Node, parentID string, node *Node) (*Node, bool) {
	if root == nil || node == nil || Find(root, parentID) == nil {
		return root, false
	}
	next := root.Clone()
	parent := Find(next, parentID)
	parent.Children = append(parent.Children, node.Clone())
	return next, true
}

// UpdateNode shallow-merges patch into the node with the given id. Children
// are never touched. Unknown ids are a no-op.
func UpdateNode(root *Node, id string, patch Patch) (*Node, bool) {
	if root == nil || Find(root, id) == nil {
		return root, false
	}
	next := root.Clone()
	target := Find(next, id)
	if patch.Kind != nil {
		target.Kind = *patch.Kind
	}
	if patch.Name != nil {
		target.Name = *patch.Name
	}
	if patch.Value != nil {
		target.Value = *patch.Value
	}
	if patch.Description != nil {
		target.Description = *patch.Description
	}
	if patch.Attributes != nil {
		target.Attributes = make([]Attribute, len(*patch.Attributes))
		copy(target.Attributes, *patch.Attributes)
	}
	if patch.SchemaType != nil {
		target.SchemaType = *patch.SchemaType
	}
	if patch.Extra != nil {
		target.Extra = append([]byte(nil), *patch.Extra...)
	}
	return next, true
}

// DeleteNode removes the node and its entire subtree. Deleting the root or an
// unknown id is a no-op.
func DeleteNode(root *Node, id string) (*Node, bool) {
	if root == nil || root.ID == id {
		return root, false
	}
	if _, idx := findParent(root, id); idx < 0 {
		return root, false
	}
	next := root.Clone()
	parent, idx := findParent(next, id)
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	return next, true
}

// MoveNode detaches the subtree rooted at sourceID and reinserts it relative
// to targetID: before/after place it as a sibling of the target, inside
// appends it as the target's last child.
//
// A move that would make a node its own ancestor (source is an ancestor of
// target, or source == target) is refused; a naive detach-and-reattach would
// otherwise orphan the branch. Moving the root, or targeting the root with
// before/after, is likewise refused.
func MoveNode(root *Node, sourceID, targetID string, pos Position) (*Node, bool) {
	if root == nil || sourceID == targetID || root.ID == sourceID {
		return root, false
	}
	source := Find(root, sourceID)
	if source == nil || Find(root, targetID) == nil {
		return root, false
	}
	if Find(source, targetID) != nil {
		// Target lives inside the source subtree.
		return root, false
	}
	if targetID == root.ID && pos != Inside {
		return root, false
	}

	next := root.Clone()
	srcParent, srcIdx := findParent(next, sourceID)
	moved := srcParent.Children[srcIdx]
	srcParent.Children = append(srcParent.Children[:srcIdx], srcParent.Children[srcIdx+1:]...)

	switch pos {
	case Inside:
		target := Find(next, targetID)
		target.Children = append(target.Children, moved)
	case Before, After:
		tgtParent, tgtIdx := findParent(next, targetID)
		if pos == After {
			tgtIdx++
		}
		children := tgtParent.Children
		children = append(children, nil)
		copy(children[tgtIdx+1:], children[tgtIdx:])
		children[tgtIdx] = moved
		tgtParent.Children = children
	default:
		return root, false
	}
	return next, true
}

// RegenerateIDs returns a copy of subtree in which every node and attribute
// carries a freshly generated id. Used before merging a template or cloned
// branch into another tree, so global id uniqueness survives the import.
func RegenerateIDs(subtree *Node) *Node {
	if subtree == nil {
		return nil
	}
	next := subtree.Clone()
	Walk(next, func(n *Node, _ int) bool {
		n.ID = util.NewID("node")
		for i := range n.Attributes {
			n.Attributes[i].ID = util.NewID("attr")
		}
		return true
	})
	return next
}

// StripValues returns a copy of subtree with every value, description and
// attribute value cleared, keeping kind, name and structure. This is the
// structure-only template export.
func StripValues(subtree *Node) *Node {
	if subtree == nil {
		return nil
	}
	next := subtree.Clone()
	Walk(next, func(n *Node, _ int) bool {
		n.Value = ""
		n.Description = ""
		for i := range n.Attributes {
			n.Attributes[i].Value = ""
		}
		return true
	})
	return next
}

// Filter returns a pruned copy containing the nodes matching query plus their
// ancestors (kept for navigational context), or nil when nothing matches. The
// match is a case-insensitive substring test over name, value, description and
// attribute keys/values.
func Filter(root *Node, query string) *Node {
	query = strings.ToLower(strings.TrimSpace(query))
	if root == nil || query == "" {
		return root.Clone()
	}
	return filter(root, query)
}

func filter(n *Node, query string) *Node {
	var kept []*Node
	for _, child := range n.Children {
		if pruned := filter(child, query); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	if len(kept) == 0 && !matches(n, query) {
		return nil
	}
	out := *n
	out.Attributes = append([]Attribute(nil), n.Attributes...)
	out.Extra = append(json.RawMessage(nil), n.Extra...)
	out.Children = kept
	return &out
}

func matches(n *Node, query string) bool {
	for _, field := range []string{n.Name, n.Value, n.Description} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	for _, attr := range n.Attributes {
		if strings.Contains(strings.ToLower(attr.Key), query) ||
			strings.Contains(strings.ToLower(attr.Value), query) {
			return true
		}
	}
	return false
}

// Stats summarises a tree in a single traversal.
type Stats struct {
	TotalNodes      int `json:"totalNodes"`
	Depth           int `json:"depth"`
	EmptyFieldCount int `json:"emptyFieldCount"`
}

// ComputeStats counts nodes, the maximum depth and the number of leaf nodes
// whose primary content field is still blank. The empty count is a cheap
// health signal independent of any assistant service.
func ComputeStats(root *Node) Stats {
	var stats Stats
	Walk(root, func(n *Node, depth int) bool {
		stats.TotalNodes++
		if depth+1 > stats.Depth {
			stats.Depth = depth + 1
		}
		if len(n.Children) == 0 && strings.TrimSpace(n.Value) == "" {
			stats.EmptyFieldCount++
		}
		return true
	})
	return stats
}
