// Package assistant is the boundary to an external AI content service. The
// assistant proposes structured tree actions; applying them goes through the
// same pure tree operations as manual edits, one action at a time, so a bad
// suggestion can never corrupt the tree.
package assistant

import (
	"context"
	"fmt"

	"concierge/api/internal/tree"
)

// Op is the kind of change an action requests.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Action is one proposed tree change. TargetID is the parent for add, the
// node itself for update and delete.
type Action struct {
	Op       Op          `json:"op"`
	TargetID string      `json:"targetId"`
	Node     *tree.Node  `json:"node,omitempty"`
	Patch    *tree.Patch `json:"patch,omitempty"`
}

// ActionResult records how one action fared.
type ActionResult struct {
	Action  Action `json:"action"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// Reply is what the assistant returns for one instruction: either structured
// actions, a plain-text answer, or both.
type Reply struct {
	Actions []Action `json:"actions"`
	Message string   `json:"message"`
}

// Architect turns a tree snapshot plus a natural-language instruction into a
// reply. Implementations live behind the network.
type Architect interface {
	Propose(ctx context.Context, root *tree.Node, instruction string) (Reply, error)
}

// Apply runs actions in order against the tree. Individual failures are
// recorded and skipped; later actions still run against the tree as mutated
// so far. Returns the final root, per-action results, and how many applied.
func Apply(root *tree.Node, actions []Action) (*tree.Node, []ActionResult, int) {
	current := root
	results := make([]ActionResult, 0, len(actions))
	applied := 0

	for _, action := range actions {
		next, ok, reason := applyOne(current, action)
		if ok {
			current = next
			applied++
		}
		results = append(results, ActionResult{Action: action, Applied: ok, Reason: reason})
	}
	return current, results, applied
}

func applyOne(root *tree.Node, action Action) (*tree.Node, bool, string) {
	switch action.Op {
	case OpAdd:
		if action.Node == nil {
			return root, false, "add action carries no node"
		}
		// Assistant-authored nodes get fresh server-side identifiers.
		child := tree.RegenerateIDs(action.Node)
		next, changed := tree.InsertChild(root, action.TargetID, child)
		if !changed {
			return root, false, fmt.Sprintf("parent %s not found", action.TargetID)
		}
		return next, true, ""
	case OpUpdate:
		if action.Patch == nil {
			return root, false, "update action carries no patch"
		}
		next, changed := tree.UpdateNode(root, action.TargetID, *action.Patch)
		if !changed {
			return root, false, fmt.Sprintf("node %s not found", action.TargetID)
		}
		return next, true, ""
	case OpDelete:
		next, changed := tree.DeleteNode(root, action.TargetID)
		if !changed {
			return root, false, fmt.Sprintf("node %s not found or is the root", action.TargetID)
		}
		return next, true, ""
	default:
		return root, false, fmt.Sprintf("unknown op %q", action.Op)
	}
}
