package lowering

import (
	"fmt"

	"github.com/roach88/alloclower/internal/ir"
)

// BailReason explains why a handler declined to lower a node.
type BailReason string

const (
	BailUnsupported         BailReason = "unsupported"
	BailTargetNotConstant   BailReason = "target_not_constant"
	BailNotInlineable       BailReason = "not_inlineable"
	BailSlackTracking       BailReason = "slack_tracking"
	BailTooLarge            BailReason = "too_large"
	BailDuplicateParameters BailReason = "duplicate_parameters"
	BailDeadFrameState      BailReason = "dead_frame_state"
	BailOverLimit           BailReason = "over_limit"
	BailAmbiguousKind       BailReason = "ambiguous_elements_kind"
	BailDataMissing         BailReason = "data_missing"
	BailNoFeedback          BailReason = "no_feedback"
	BailSubclassing         BailReason = "subclassing"
)

// AllBailReasons lists every bail code in declaration order.
func AllBailReasons() []BailReason {
	return []BailReason{
		BailUnsupported, BailTargetNotConstant, BailNotInlineable,
		BailSlackTracking, BailTooLarge, BailDuplicateParameters,
		BailDeadFrameState, BailOverLimit, BailAmbiguousKind,
		BailDataMissing, BailNoFeedback, BailSubclassing,
	}
}

// Reduction is the outcome of reducing one node.
//
//   - NoChange: the graph is untouched and Reason says why.
//   - Changed: the node was rewritten in place.
//   - Replace: every use of the node was moved to the replacement; the
//     node itself is left without uses for the driver to kill.
type Reduction struct {
	replacement ir.NodeID
	Reason      BailReason
}

// NoChange declines with reason.
func NoChange(reason BailReason) Reduction {
	return Reduction{replacement: ir.NoNode, Reason: reason}
}

// Changed reports an in-place rewrite of node.
func Changed(node ir.NodeID) Reduction { return Reduction{replacement: node} }

// Replace reports that value replaces the reduced node.
func Replace(value ir.NodeID) Reduction { return Reduction{replacement: value} }

// IsChanged reports whether the graph was modified.
func (r Reduction) IsChanged() bool { return r.replacement != ir.NoNode }

// Replacement is the node that now stands for the reduced node, or
// ir.NoNode.
func (r Reduction) Replacement() ir.NodeID { return r.replacement }

func (r Reduction) String() string {
	if !r.IsChanged() {
		return "NoChange(" + string(r.Reason) + ")"
	}
	return fmt.Sprintf("Changed(#%d)", r.replacement)
}

// InvariantError reports a broken precondition: an impossible input shape or
// a heap snapshot that contradicts itself. It is raised with panic and aborts
// the compilation.
type InvariantError struct {
	Node    ir.NodeID
	Message string
}

func (e *InvariantError) Error() string {
	if e.Node == ir.NoNode {
		return "lowering: " + e.Message
	}
	return fmt.Sprintf("lowering: #%d: %s", e.Node, e.Message)
}

func (e *InvariantError) InvariantViolation() {}

func invariant(node ir.NodeID, format string, args ...any) {
	panic(&InvariantError{Node: node, Message: fmt.Sprintf(format, args...)})
}

func check(cond bool, node ir.NodeID, format string, args ...any) {
	if !cond {
		invariant(node, format, args...)
	}
}
