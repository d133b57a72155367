package lowering

import "github.com/roach88/alloclower/internal/ir"

// FrameState value inputs.
const (
	frameStateParametersInput = 0
	frameStateOuterStateInput = 5
)

func frameStateInfo(g *ir.Graph, id ir.NodeID) ir.FrameStateInfo {
	n := g.Node(id)
	check(n.Opcode() == ir.OpFrameState, id, "expected FrameState, found %s", n.Opcode())
	return n.Params().(ir.FrameStateInfo)
}

// outerFrameState returns the caller's frame state and whether one exists.
// A construction in the outermost function has a non-FrameState outer input.
func outerFrameState(g *ir.Graph, frameState ir.NodeID) (ir.NodeID, bool) {
	outer := g.Node(frameState).Input(frameStateOuterStateInput)
	return outer, g.Node(outer).Opcode() == ir.OpFrameState
}

// argumentsFrameState returns the frame state that holds the actual
// arguments of an inlined call: the adaptor frame when one was inserted
// because the argument count mismatched, otherwise frameState itself.
func argumentsFrameState(g *ir.Graph, frameState ir.NodeID) ir.NodeID {
	if outer, ok := outerFrameState(g, frameState); ok {
		if frameStateInfo(g, outer).Type == ir.FrameArgumentsAdaptor {
			return outer
		}
	}
	return frameState
}

func isDeadParameters(g *ir.Graph, frameState ir.NodeID) bool {
	params := g.Node(frameState).Input(frameStateParametersInput)
	return g.Node(params).Opcode() == ir.OpDeadValue
}

// parameterValues flattens the StateValues tree of frameState's parameters
// in order. The first entry is the receiver.
func parameterValues(g *ir.Graph, frameState ir.NodeID) []ir.NodeID {
	root := g.Node(frameState).Input(frameStateParametersInput)
	var out []ir.NodeID
	stack := []ir.NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := g.Node(id)
		if n.Opcode() != ir.OpStateValues {
			out = append(out, id)
			continue
		}
		in := n.ValueInputs()
		for i := len(in) - 1; i >= 0; i-- {
			stack = append(stack, in[i])
		}
	}
	return out
}

// argumentValues returns count actual arguments of argsState starting at
// argument index start, skipping the receiver.
func argumentValues(g *ir.Graph, argsState ir.NodeID, start, count int) []ir.NodeID {
	values := parameterValues(g, argsState)
	check(1+start+count <= len(values), argsState,
		"frame state holds %d parameters, need %d", len(values), 1+start+count)
	return values[1+start : 1+start+count]
}
