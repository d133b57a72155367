package ir

import (
	"fmt"
	"math"

	"github.com/roach88/alloclower/internal/heap"
)

// NodeID addresses a node within its Graph.
type NodeID int

// NoNode is the absent node. ReplaceWithValue treats it as "keep the
// node's own input".
const NoNode NodeID = -1

// GraphError reports a malformed graph or an illegal mutation. It is raised
// with panic.
type GraphError struct {
	Node    NodeID
	Message string
}

func (e *GraphError) Error() string {
	if e.Node == NoNode {
		return "graph: " + e.Message
	}
	return fmt.Sprintf("graph: #%d: %s", e.Node, e.Message)
}

// InvariantViolation marks the error as a programmer error that aborts the
// compilation.
func (e *GraphError) InvariantViolation() {}

func graphPanic(id NodeID, format string, args ...any) {
	panic(&GraphError{Node: id, Message: fmt.Sprintf(format, args...)})
}

// Node is a vertex of the graph. Nodes are only mutated through their Graph
// so that use lists stay consistent.
type Node struct {
	id     NodeID
	op     Operator
	inputs []NodeID
	uses   []NodeID
	typ    Type
	dead   bool
}

func (n *Node) ID() NodeID { return n.id }
func (n *Node) Op() Operator { return n.op }
func (n *Node) Opcode() Opcode { return n.op.Opcode }
func (n *Node) Params() Params { return n.op.Params }
func (n *Node) Type() Type { return n.typ }
func (n *Node) IsDead() bool { return n.dead }
func (n *Node) InputCount() int { return len(n.inputs) }
func (n *Node) Input(i int) NodeID { return n.inputs[i] }

// Inputs returns a copy of the input list.
func (n *Node) Inputs() []NodeID {
	out := make([]NodeID, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Uses returns the distinct users of n in first-use order.
func (n *Node) Uses() []NodeID {
	seen := make(map[NodeID]bool, len(n.uses))
	var out []NodeID
	for _, u := range n.uses {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// UseCount is the number of input slots that reference n.
func (n *Node) UseCount() int { return len(n.uses) }

// ValueInput returns value input i.
func (n *Node) ValueInput(i int) NodeID {
	if i < 0 || i >= n.op.ValueIn {
		graphPanic(n.id, "%s has no value input %d", n.op.Opcode, i)
	}
	return n.inputs[i]
}

// ValueInputs returns the value inputs.
func (n *Node) ValueInputs() []NodeID {
	out := make([]NodeID, n.op.ValueIn)
	copy(out, n.inputs[:n.op.ValueIn])
	return out
}

func (n *Node) ContextInput() NodeID {
	if !n.op.HasContext() {
		graphPanic(n.id, "%s has no context input", n.op.Opcode)
	}
	return n.inputs[n.op.contextIndex()]
}

func (n *Node) FrameStateInput() NodeID {
	if !n.op.HasFrameState() {
		graphPanic(n.id, "%s has no frame state input", n.op.Opcode)
	}
	return n.inputs[n.op.frameStateIndex()]
}

// EffectInput returns the single effect input. Handlers rely on every
// construction node having exactly one.
func (n *Node) EffectInput() NodeID {
	if n.op.EffectInputCount() != 1 {
		graphPanic(n.id, "%s has %d effect inputs, want 1", n.op.Opcode, n.op.EffectInputCount())
	}
	return n.inputs[n.op.effectIndex()]
}

// ControlInput returns the single control input.
func (n *Node) ControlInput() NodeID {
	if n.op.ControlInputCount() != 1 {
		graphPanic(n.id, "%s has %d control inputs, want 1", n.op.Opcode, n.op.ControlInputCount())
	}
	return n.inputs[n.op.controlIndex()]
}

func (n *Node) String() string { return fmt.Sprintf("#%d:%s", n.id, n.op) }

// Graph is an arena of nodes for one compilation.
type Graph struct {
	nodes      []*Node
	start      NodeID
	numbers    map[uint64]NodeID
	heapConsts map[heap.HeapObject]NodeID
}

// NewGraph returns a graph containing only its Start node.
func NewGraph() *Graph {
	g := &Graph{
		numbers:    make(map[uint64]NodeID),
		heapConsts: make(map[heap.HeapObject]NodeID),
	}
	g.start = g.NewNode(Op(OpStart, nil))
	return g
}

// Start is the graph's start node, the root of control and effect.
func (g *Graph) Start() NodeID { return g.start }

// NodeCount is the number of nodes ever created, live or dead.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		graphPanic(id, "no such node")
	}
	return g.nodes[id]
}

// LiveNodes returns the ids of all live nodes in creation order.
func (g *Graph) LiveNodes() []NodeID {
	out := make([]NodeID, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.dead {
			out = append(out, n.id)
		}
	}
	return out
}

// NewNode creates a node. The number of inputs must match the operator.
func (g *Graph) NewNode(op Operator, inputs ...NodeID) NodeID {
	id := NodeID(len(g.nodes))
	if want := op.InputCount(); len(inputs) != want {
		graphPanic(id, "%s wants %d inputs, got %d", op, want, len(inputs))
	}
	n := &Node{id: id, op: op, inputs: append([]NodeID(nil), inputs...)}
	g.nodes = append(g.nodes, n)
	for _, in := range inputs {
		g.addUse(in, id)
	}
	return id
}

// NewTypedNode creates a node and sets its type.
func (g *Graph) NewTypedNode(op Operator, typ Type, inputs ...NodeID) NodeID {
	id := g.NewNode(op, inputs...)
	g.nodes[id].typ = typ
	return id
}

// NumberConstant returns the canonical constant node for v.
func (g *Graph) NumberConstant(v float64) NodeID {
	key := math.Float64bits(v)
	if id, ok := g.numbers[key]; ok && !g.nodes[id].dead {
		return id
	}
	id := g.NewTypedNode(Op(OpNumberConstant, NumberParams{Value: v}), NumberConstantType(v))
	g.numbers[key] = id
	return id
}

// HeapConstant returns the canonical constant node for o.
func (g *Graph) HeapConstant(o heap.HeapObject) NodeID {
	if o == nil {
		graphPanic(NoNode, "heap constant of nil object")
	}
	if id, ok := g.heapConsts[o]; ok && !g.nodes[id].dead {
		return id
	}
	id := g.NewTypedNode(Op(OpHeapConstant, HeapConstantParams{Object: o}), HeapConstantType(o))
	g.heapConsts[o] = id
	return id
}

// SetType sets the static type of a node.
func (g *Graph) SetType(id NodeID, t Type) { g.Node(id).typ = t }

func (g *Graph) addUse(of, user NodeID) {
	g.Node(of).uses = append(g.Node(of).uses, user)
}

func (g *Graph) removeUse(of, user NodeID) {
	n := g.Node(of)
	for i, u := range n.uses {
		if u == user {
			n.uses = append(n.uses[:i], n.uses[i+1:]...)
			return
		}
	}
}

// ReplaceInput sets input i of node id to with.
func (g *Graph) ReplaceInput(id NodeID, i int, with NodeID) {
	n := g.Node(id)
	if i < 0 || i >= len(n.inputs) {
		graphPanic(id, "input %d out of range", i)
	}
	old := n.inputs[i]
	if old == with {
		return
	}
	g.removeUse(old, id)
	n.inputs[i] = with
	g.addUse(with, id)
}

// InsertInput inserts with at position i, shifting later inputs up. The
// caller is responsible for changing the operator to match.
func (g *Graph) InsertInput(id NodeID, i int, with NodeID) {
	n := g.Node(id)
	if i < 0 || i > len(n.inputs) {
		graphPanic(id, "insert position %d out of range", i)
	}
	n.inputs = append(n.inputs, NoNode)
	copy(n.inputs[i+1:], n.inputs[i:])
	n.inputs[i] = with
	g.addUse(with, id)
}

// TrimInputCount drops inputs from position count on.
func (g *Graph) TrimInputCount(id NodeID, count int) {
	n := g.Node(id)
	if count < 0 || count > len(n.inputs) {
		graphPanic(id, "cannot trim to %d inputs", count)
	}
	for _, in := range n.inputs[count:] {
		g.removeUse(in, id)
	}
	n.inputs = n.inputs[:count]
}

// ChangeOp replaces the operator of a node in place. The input list must
// already have the shape op requires.
func (g *Graph) ChangeOp(id NodeID, op Operator) {
	n := g.Node(id)
	if want := op.InputCount(); len(n.inputs) != want {
		graphPanic(id, "cannot change to %s: wants %d inputs, node has %d", op, want, len(n.inputs))
	}
	n.op = op
}

// ReplaceUses redirects every use of id to with.
func (g *Graph) ReplaceUses(id, with NodeID) {
	if id == with {
		return
	}
	n := g.Node(id)
	for _, user := range n.Uses() {
		u := g.nodes[user]
		for i, in := range u.inputs {
			if in == id {
				u.inputs[i] = with
				g.addUse(with, user)
			}
		}
	}
	n.uses = nil
}

// ReplaceWithValue redirects the uses of id by edge kind: value uses go to
// value, effect uses to effect and control uses to control. NoNode for
// effect or control means the node's own effect or control input.
func (g *Graph) ReplaceWithValue(id, value, effect, control NodeID) {
	n := g.Node(id)
	if effect == NoNode && n.op.EffectInputCount() > 0 {
		effect = n.EffectInput()
	}
	if control == NoNode && n.op.ControlInputCount() > 0 {
		control = n.ControlInput()
	}

	var keep []NodeID
	for _, user := range n.Uses() {
		u := g.nodes[user]
		for i, in := range u.inputs {
			if in != id {
				continue
			}
			var to NodeID
			switch {
			case u.op.isControlEdge(i):
				to = control
			case u.op.isEffectEdge(i):
				to = effect
			default:
				to = value
			}
			if to == NoNode {
				graphPanic(id, "use by #%d at input %d has no replacement", user, i)
			}
			u.inputs[i] = to
			if to == id {
				keep = append(keep, user)
			} else {
				g.addUse(to, user)
			}
		}
	}
	n.uses = keep
}

// RelaxControls moves the control uses of id onto its control input,
// leaving value and effect uses in place.
func (g *Graph) RelaxControls(id NodeID) {
	g.ReplaceWithValue(id, id, id, NoNode)
}

// Kill disconnects a node from its inputs and marks it dead. The node must
// have no remaining uses.
func (g *Graph) Kill(id NodeID) {
	n := g.Node(id)
	if len(n.uses) > 0 {
		graphPanic(id, "cannot kill %s: still used by %v", n.op.Opcode, n.Uses())
	}
	for _, in := range n.inputs {
		g.removeUse(in, id)
	}
	n.inputs = nil
	n.dead = true
}
