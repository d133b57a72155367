package lowering

import (
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (l *Lowering) reduceJSCreateArguments(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	p := n.Params().(ir.CreateArgumentsParams)
	frameState := n.FrameStateInput()
	shared := frameStateInfo(g, frameState).Shared
	check(shared != nil, node, "arguments frame state has no function")

	if _, inlined := outerFrameState(g, frameState); inlined {
		return l.reduceInlinedArguments(node, p.Type, frameState, shared)
	}
	return l.reduceOutermostArguments(node, p.Type, shared)
}

// reduceOutermostArguments materializes the arguments object of the
// function being compiled. The actual argument count is only known at run
// time, so the backing store is built by NewArgumentsElements.
func (l *Lowering) reduceOutermostArguments(node ir.NodeID, typ ir.CreateArgumentsType, shared *heap.SharedInfo) Reduction {
	g := l.graph
	n := g.Node(node)
	callee := n.ValueInput(0)
	context := n.ContextInput()
	effect := n.EffectInput()
	control := g.Start()
	formal := shared.FormalParameterCount

	switch typ {
	case ir.MappedArguments:
		if shared.DuplicateParameters {
			return NoChange(BailDuplicateParameters)
		}
		if !l.limits.fits(heap.FixedArraySize(formal+2)) || !l.limits.fits(heap.JSSloppyArgumentsObjectSize) {
			return NoChange(BailTooLarge)
		}
		frame := g.NewTypedNode(ir.Op(ir.OpArgumentsFrame, nil), ir.OtherInternal)
		length := g.NewTypedNode(ir.Op(ir.OpArgumentsLength, ir.ArgumentsLengthParams{FormalParameterCount: formal}),
			ir.UnsignedSmall, frame)
		elements, effect, aliased := l.allocateAliasedArgumentsDynamic(node, effect, control, context, frame, length, shared)
		m := l.native.SloppyArgumentsMap
		if aliased {
			m = l.native.FastAliasedArgumentsMap
		}

		a := l.newBuilder(effect, control)
		if err := a.Allocate(heap.JSSloppyArgumentsObjectSize, heap.Young, ir.OtherObject); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(m))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForArgumentsLength(), length)
		a.Store(ir.ForArgumentsCallee(), callee)
		return l.finishAndChange(node, a)

	case ir.UnmappedArguments:
		if !l.limits.fits(heap.JSStrictArgumentsObjectSize) {
			return NoChange(BailTooLarge)
		}
		frame := g.NewTypedNode(ir.Op(ir.OpArgumentsFrame, nil), ir.OtherInternal)
		length := g.NewTypedNode(ir.Op(ir.OpArgumentsLength, ir.ArgumentsLengthParams{FormalParameterCount: formal}),
			ir.UnsignedSmall, frame)
		elements := g.NewTypedNode(ir.Op(ir.OpNewArgumentsElements, ir.NewArgumentsElementsParams{}), ir.OtherInternal,
			frame, length, effect)

		a := l.newBuilder(elements, control)
		if err := a.Allocate(heap.JSStrictArgumentsObjectSize, heap.Young, ir.OtherObject); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(l.native.StrictArgumentsMap))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForArgumentsLength(), length)
		return l.finishAndChange(node, a)

	case ir.RestParameter:
		m, ok := l.native.InitialJSArrayMap(heap.PackedElements)
		if !ok {
			return NoChange(BailDataMissing)
		}
		if !l.limits.fits(heap.JSArraySize) {
			return NoChange(BailTooLarge)
		}
		frame := g.NewTypedNode(ir.Op(ir.OpArgumentsFrame, nil), ir.OtherInternal)
		restLength := g.NewTypedNode(ir.Op(ir.OpArgumentsLength,
			ir.ArgumentsLengthParams{FormalParameterCount: formal, IsRest: true}), ir.UnsignedSmall, frame)
		elements := g.NewTypedNode(ir.Op(ir.OpNewArgumentsElements, ir.NewArgumentsElementsParams{}), ir.OtherInternal,
			frame, restLength, effect)

		a := l.newBuilder(elements, control)
		if err := a.Allocate(heap.JSArraySize, heap.Young, ir.Array); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(m))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForJSArrayLength(heap.PackedElements), restLength)
		return l.finishAndChange(node, a)
	}
	invariant(node, "unknown arguments type %d", int(typ))
	return NoChange(BailUnsupported)
}

// reduceInlinedArguments materializes the arguments object of an inlined
// function from the actual argument values recorded in the frame state.
func (l *Lowering) reduceInlinedArguments(node ir.NodeID, typ ir.CreateArgumentsType, frameState ir.NodeID, shared *heap.SharedInfo) Reduction {
	g := l.graph
	n := g.Node(node)
	callee := n.ValueInput(0)
	context := n.ContextInput()
	effect := n.EffectInput()
	control := g.Start()
	formal := shared.FormalParameterCount

	if typ == ir.MappedArguments && shared.DuplicateParameters {
		return NoChange(BailDuplicateParameters)
	}
	argsState := argumentsFrameState(g, frameState)
	if isDeadParameters(g, argsState) {
		return NoChange(BailDeadFrameState)
	}
	argc := frameStateInfo(g, argsState).ParameterCount - 1
	check(argc >= 0, node, "frame state without receiver")

	switch typ {
	case ir.MappedArguments:
		mapped := min(argc, formal)
		if !l.limits.fits(heap.FixedArraySize(argc)) || !l.limits.fits(heap.FixedArraySize(mapped+2)) ||
			!l.limits.fits(heap.JSSloppyArgumentsObjectSize) {
			return NoChange(BailTooLarge)
		}
		elements, effect, aliased := l.allocateAliasedArgumentsStatic(node, effect, control, argsState, context, shared)
		m := l.native.SloppyArgumentsMap
		if aliased {
			m = l.native.FastAliasedArgumentsMap
		}

		a := l.newBuilder(effect, control)
		if err := a.Allocate(heap.JSSloppyArgumentsObjectSize, heap.Young, ir.OtherObject); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(m))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForArgumentsLength(), l.number(float64(argc)))
		a.Store(ir.ForArgumentsCallee(), callee)
		return l.finishAndChange(node, a)

	case ir.UnmappedArguments:
		if !l.limits.fits(heap.FixedArraySize(argc)) || !l.limits.fits(heap.JSStrictArgumentsObjectSize) {
			return NoChange(BailTooLarge)
		}
		elements, effect := l.allocateArguments(node, effect, control, argsState, 0, argc)

		a := l.newBuilder(effect, control)
		if err := a.Allocate(heap.JSStrictArgumentsObjectSize, heap.Young, ir.OtherObject); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(l.native.StrictArgumentsMap))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForArgumentsLength(), l.number(float64(argc)))
		return l.finishAndChange(node, a)

	case ir.RestParameter:
		m, ok := l.native.InitialJSArrayMap(heap.PackedElements)
		if !ok {
			return NoChange(BailDataMissing)
		}
		restLength := max(0, argc-formal)
		if !l.limits.fits(heap.FixedArraySize(restLength)) || !l.limits.fits(heap.JSArraySize) {
			return NoChange(BailTooLarge)
		}
		elements, effect := l.allocateArguments(node, effect, control, argsState, formal, restLength)

		a := l.newBuilder(effect, control)
		if err := a.Allocate(heap.JSArraySize, heap.Young, ir.Array); err != nil {
			return NoChange(BailTooLarge)
		}
		a.Store(ir.ForMap(), l.constant(m))
		a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
		a.Store(ir.ForJSObjectElements(), elements)
		a.Store(ir.ForJSArrayLength(heap.PackedElements), l.number(float64(restLength)))
		return l.finishAndChange(node, a)
	}
	invariant(node, "unknown arguments type %d", int(typ))
	return NoChange(BailUnsupported)
}

// allocateArguments builds an unaliased backing store holding count actual
// arguments of argsState starting at argument index start.
func (l *Lowering) allocateArguments(node, effect, control, argsState ir.NodeID, start, count int) (elements, newEffect ir.NodeID) {
	if count == 0 {
		return l.emptyFixedArray(), effect
	}
	values := argumentValues(l.graph, argsState, start, count)
	a := l.newBuilder(effect, control)
	check(a.AllocateArray(count, l.native.FixedArrayMap, heap.Young) == nil, node, "arguments store too large")
	for i, v := range values {
		a.Store(ir.ForFixedArraySlot(i, ir.FullWriteBarrier), v)
	}
	elements = a.Finish()
	return elements, elements
}

// allocateAliasedArgumentsStatic builds the backing store of a mapped
// arguments object with a statically known argument count. Mapped slots
// alias the function context; the rest live in a plain arguments store.
func (l *Lowering) allocateAliasedArgumentsStatic(node, effect, control, argsState, context ir.NodeID, shared *heap.SharedInfo) (elements, newEffect ir.NodeID, aliased bool) {
	argc := frameStateInfo(l.graph, argsState).ParameterCount - 1
	if argc == 0 {
		return l.emptyFixedArray(), effect, false
	}
	formal := shared.FormalParameterCount
	if formal == 0 {
		elements, effect = l.allocateArguments(node, effect, control, argsState, 0, argc)
		return elements, effect, false
	}

	mapped := min(argc, formal)
	values := argumentValues(l.graph, argsState, 0, argc)
	a := l.newBuilder(effect, control)
	check(a.AllocateArray(argc, l.native.FixedArrayMap, heap.Young) == nil, node, "arguments store too large")
	for i := 0; i < mapped; i++ {
		a.Store(ir.ForFixedArraySlot(i, ir.FullWriteBarrier), l.theHole())
	}
	for i := mapped; i < argc; i++ {
		a.Store(ir.ForFixedArraySlot(i, ir.FullWriteBarrier), values[i])
	}
	arguments := a.Finish()

	a = l.newBuilder(arguments, control)
	check(a.AllocateArray(mapped+2, l.native.SloppyArgumentsElementsMap, heap.Young) == nil, node,
		"parameter map too large")
	a.Store(ir.ForFixedArraySlot(0, ir.FullWriteBarrier), context)
	a.Store(ir.ForFixedArraySlot(1, ir.FullWriteBarrier), arguments)
	for i := 0; i < mapped; i++ {
		a.Store(ir.ForFixedArraySlot(i+2, ir.FullWriteBarrier), l.number(float64(heap.MinContextSlots+formal-1-i)))
	}
	elements = a.Finish()
	return elements, elements, true
}

// allocateAliasedArgumentsDynamic is allocateAliasedArgumentsStatic for an
// argument count known only at run time. Each parameter map entry selects
// between the context slot and the hole depending on whether the argument
// was actually passed.
func (l *Lowering) allocateAliasedArgumentsDynamic(node, effect, control, context, frame, length ir.NodeID, shared *heap.SharedInfo) (elements, newEffect ir.NodeID, aliased bool) {
	g := l.graph
	formal := shared.FormalParameterCount
	if formal == 0 {
		elements = g.NewTypedNode(ir.Op(ir.OpNewArgumentsElements, ir.NewArgumentsElementsParams{}), ir.OtherInternal,
			frame, length, effect)
		return elements, elements, false
	}

	arguments := g.NewTypedNode(ir.Op(ir.OpNewArgumentsElements, ir.NewArgumentsElementsParams{MappedCount: formal}),
		ir.OtherInternal, frame, length, effect)

	a := l.newBuilder(arguments, control)
	check(a.AllocateArray(formal+2, l.native.SloppyArgumentsElementsMap, heap.Young) == nil, node,
		"parameter map too large")
	a.Store(ir.ForFixedArraySlot(0, ir.FullWriteBarrier), context)
	a.Store(ir.ForFixedArraySlot(1, ir.FullWriteBarrier), arguments)
	for i := 0; i < formal; i++ {
		passed := g.NewTypedNode(ir.Op(ir.OpNumberLessThan, nil), ir.Boolean, l.number(float64(i)), length)
		entry := g.NewNode(ir.Op(ir.OpSelect, nil), passed,
			l.number(float64(heap.MinContextSlots+formal-1-i)), l.theHole())
		a.Store(ir.ForFixedArraySlot(i+2, ir.FullWriteBarrier), entry)
	}
	elements = a.Finish()
	return elements, elements, true
}
