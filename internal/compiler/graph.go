package compiler

import (
	"fmt"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// graphBuilder adds the unit's nodes to a fresh graph in declaration
// order. Node ids are resolved against nodes already built.
type graphBuilder struct {
	*heapBuilder
	graph  *ir.Graph
	ids    map[string]ir.NodeID
	params int
}

func buildGraph(hb *heapBuilder) (*ir.Graph, map[string]ir.NodeID, error) {
	g := ir.NewGraph()
	gb := &graphBuilder{
		heapBuilder: hb,
		graph:       g,
		ids:         map[string]ir.NodeID{StartNode: g.Start()},
	}
	for i, n := range hb.unit.Nodes {
		id := gb.node(fmt.Sprintf("nodes.%s", n.ID), n)
		if hb.err != nil {
			return nil, nil, ValidationErrors{*hb.err}
		}
		if id == ir.NoNode {
			return nil, nil, fmt.Errorf("nodes[%d]: node was not built", i)
		}
		gb.ids[n.ID] = id
	}
	return g, gb.ids, nil
}

// input resolves a node reference, falling back to def when id is empty.
func (gb *graphBuilder) input(id string, def ir.NodeID) ir.NodeID {
	if id == "" {
		return def
	}
	return gb.ids[id]
}

func (gb *graphBuilder) node(field string, n *NodeSpec) ir.NodeID {
	g := gb.graph
	op, _ := ir.ParseOpcode(n.Op)
	typ := ir.Any
	if n.Type != "" {
		typ, _ = ir.ParseType(n.Type)
	}

	switch op {
	case ir.OpParameter:
		index, ok := n.Params.Int("index")
		if !ok {
			index = gb.params
		}
		gb.params++
		name, _ := n.Params.Str("name")
		return g.NewTypedNode(ir.Op(ir.OpParameter, ir.ParameterParams{Index: index, Name: name}), typ, g.Start())
	case ir.OpNumberConstant:
		v, _ := n.Params.Number("number")
		return g.NumberConstant(v)
	case ir.OpHeapConstant:
		label, _ := n.Params.Str("object")
		o := resolve[heap.HeapObject](gb.heapBuilder, n.Line, field+".params.object", label, "a heap object")
		if o == nil {
			return ir.NoNode
		}
		return g.HeapConstant(o)
	case ir.OpDeadValue:
		return g.NewTypedNode(ir.Op(ir.OpDeadValue, nil), typ)
	case ir.OpFrameState:
		return gb.frameState(field, n)
	case ir.OpReturn:
		value := gb.ids[n.Value[0]]
		return g.NewNode(ir.Op(ir.OpReturn, nil), value, gb.input(n.Effect, value), gb.input(n.Control, value))
	}

	params := gb.operatorParams(field, n, op)
	if gb.err != nil {
		return ir.NoNode
	}
	operator := ir.NewOperator(op, params, len(n.Value))
	inputs := make([]ir.NodeID, 0, operator.InputCount())
	for _, v := range n.Value {
		inputs = append(inputs, gb.ids[v])
	}
	if operator.HasContext() {
		inputs = append(inputs, gb.ids[n.Context])
	}
	if operator.HasFrameState() {
		inputs = append(inputs, gb.ids[n.FrameState])
	}
	inputs = append(inputs, gb.input(n.Effect, g.Start()), gb.input(n.Control, g.Start()))
	return g.NewTypedNode(operator, typ, inputs...)
}

// frameState builds a FrameState whose parameters are the node's value
// inputs, receiver first. A dead frame state carries DeadValue in place of
// its parameters.
func (gb *graphBuilder) frameState(field string, n *NodeSpec) ir.NodeID {
	g := gb.graph
	info := ir.FrameStateInfo{ParameterCount: len(n.Value)}
	if frame, _ := n.Params.Str("frame"); frame == "adaptor" {
		info.Type = ir.FrameArgumentsAdaptor
	}
	if label, ok := n.Params.Str("shared"); ok {
		info.Shared = resolve[*heap.SharedInfo](gb.heapBuilder, n.Line, field+".params.shared", label, "shared info")
	}

	var params ir.NodeID
	if n.Params.Bool("dead") {
		params = g.NewNode(ir.Op(ir.OpDeadValue, nil))
	} else {
		values := make([]ir.NodeID, len(n.Value))
		for i, v := range n.Value {
			values[i] = gb.ids[v]
		}
		params = g.NewNode(ir.NewOperator(ir.OpStateValues, nil, len(values)), values...)
	}
	empty := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 0))

	closure := g.HeapConstant(gb.native.Undefined)
	if id, ok := n.Params.Str("closure"); ok {
		closure = gb.ids[id]
	}
	outer := g.Start()
	if id, ok := n.Params.Str("outer"); ok {
		outer = gb.ids[id]
	}
	return g.NewNode(ir.Op(ir.OpFrameState, info), params, empty, empty, gb.ids[n.Context], closure, outer)
}

func (gb *graphBuilder) operatorParams(field string, n *NodeSpec, op ir.Opcode) ir.Params {
	hb := gb.heapBuilder
	p := n.Params
	label := func(key string) string {
		s, _ := p.Str(key)
		return s
	}
	intParam := func(key string) int {
		i, _ := p.Int(key)
		return i
	}
	pf := field + ".params."

	switch op {
	case ir.OpJSCreateArguments:
		t, _ := ir.ParseCreateArgumentsType(label("type"))
		return ir.CreateArgumentsParams{Type: t}
	case ir.OpJSCreateArray:
		return ir.CreateArrayParams{
			Arity: len(n.Value) - 2,
			Site:  resolve[*heap.AllocationSite](hb, n.Line, pf+"site", label("site"), "an allocation site"),
		}
	case ir.OpJSCreateArrayIterator:
		kind, _ := heap.ParseIterationKind(label("kind"))
		return ir.CreateArrayIteratorParams{Kind: kind}
	case ir.OpJSCreateCollectionIterator:
		kind, _ := heap.ParseIterationKind(label("kind"))
		collection := heap.TypeJSSet
		if label("collection") == "map" {
			collection = heap.TypeJSMap
		}
		return ir.CreateCollectionIteratorParams{Collection: collection, Kind: kind}
	case ir.OpJSCreateBoundFunction:
		return ir.CreateBoundFunctionParams{
			Arity: len(n.Value) - 2,
			Map:   resolve[*heap.Map](hb, n.Line, pf+"map", label("map"), "a map"),
		}
	case ir.OpJSCreateClosure:
		code := hb.lazy()
		if label("code") != "" {
			code = resolve[*heap.Code](hb, n.Line, pf+"code", label("code"), "code")
		}
		return ir.CreateClosureParams{
			Shared: resolve[*heap.SharedInfo](hb, n.Line, pf+"shared", label("shared"), "shared info"),
			Cell:   resolve[*heap.FeedbackCell](hb, n.Line, pf+"cell", label("cell"), "a feedback cell"),
			Code:   code,
		}
	case ir.OpJSCreateLiteralArray, ir.OpJSCreateLiteralObject, ir.OpJSCreateLiteralRegExp:
		return ir.CreateLiteralParams{
			Feedback: gb.feedback(pf, n),
			Length:   intParam("length"),
			Flags:    intParam("flags"),
		}
	case ir.OpJSCreateEmptyLiteralArray:
		return gb.feedback(pf, n)
	case ir.OpJSCreateFunctionContext:
		scopeType := heap.ScopeFunction
		if label("scope_type") == "eval" {
			scopeType = heap.ScopeEval
		}
		return ir.CreateFunctionContextParams{
			ScopeInfo: resolve[*heap.ScopeInfo](hb, n.Line, pf+"scope", label("scope"), "scope info"),
			SlotCount: intParam("slots"),
			ScopeType: scopeType,
		}
	case ir.OpJSCreateWithContext, ir.OpJSCreateCatchContext, ir.OpJSCreateBlockContext:
		return ir.ScopeInfoParams{
			ScopeInfo: resolve[*heap.ScopeInfo](hb, n.Line, pf+"scope", label("scope"), "scope info"),
		}
	}
	return nil
}

func (gb *graphBuilder) feedback(pf string, n *NodeSpec) ir.FeedbackParams {
	vector, _ := n.Params.Str("vector")
	slot, _ := n.Params.Int("slot")
	v := resolve[*heap.FeedbackVector](gb.heapBuilder, n.Line, pf+"vector", vector, "a feedback vector")
	if v != nil && (slot < 0 || slot >= len(v.Slots)) && gb.err == nil {
		gb.err = &ValidationError{
			Field:   pf + "slot",
			Message: fmt.Sprintf("slot %d is outside vector %q of length %d", slot, vector, len(v.Slots)),
			Code:    ErrLayout,
			Line:    n.Line,
		}
	}
	return ir.FeedbackParams{Vector: v, Slot: slot}
}
