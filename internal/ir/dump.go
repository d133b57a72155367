package ir

import (
	"fmt"
	"strings"
)

// Dump renders the live nodes of g, one per line, in creation order:
//
//	#id Op[params](#in, ...)
//
// The format is stable and used for golden files.
func Dump(g *Graph) string {
	var b strings.Builder
	for _, id := range g.LiveNodes() {
		n := g.Node(id)
		fmt.Fprintf(&b, "#%d %s(", id, n.op)
		for i, in := range n.inputs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "#%d", in)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// Reachable returns the ids of live nodes reachable from root through
// inputs, in ascending order.
func Reachable(g *Graph, root NodeID) []NodeID {
	seen := map[NodeID]bool{root: true}
	stack := []NodeID{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, in := range g.Node(top).inputs {
			if !seen[in] {
				seen[in] = true
				stack = append(stack, in)
			}
		}
	}
	out := make([]NodeID, 0, len(seen))
	for _, id := range g.LiveNodes() {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// EffectChain walks effect inputs backwards from id and returns the chain
// in execution order, ending with id. The walk stops at a node without
// exactly one effect input.
func EffectChain(g *Graph, id NodeID) []NodeID {
	var rev []NodeID
	for {
		rev = append(rev, id)
		n := g.Node(id)
		if n.op.EffectInputCount() != 1 {
			break
		}
		id = n.inputs[n.op.effectIndex()]
	}
	out := make([]NodeID, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}
