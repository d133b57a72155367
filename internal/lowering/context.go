package lowering

import (
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (l *Lowering) reduceJSCreateFunctionContext(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.CreateFunctionContextParams)
	if p.SlotCount >= l.limits.FunctionContextSlotLimit {
		return NoChange(BailOverLimit)
	}
	var m *heap.Map
	switch p.ScopeType {
	case heap.ScopeEval:
		m = l.native.EvalContextMap
	case heap.ScopeFunction:
		m = l.native.FunctionContextMap
	default:
		invariant(node, "function context for %s scope", p.ScopeType)
	}

	length := p.SlotCount + heap.MinContextSlots
	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.AllocateContext(length, m); err != nil {
		return NoChange(BailTooLarge)
	}
	l.storeContextHeader(a, p.ScopeInfo, n.ContextInput(), l.theHole())
	for i := heap.MinContextSlots; i < length; i++ {
		a.Store(ir.ForContextSlot(i), l.undefined())
	}
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateWithContext(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.ScopeInfoParams)

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.AllocateContext(heap.MinContextSlots, l.native.WithContextMap); err != nil {
		return NoChange(BailTooLarge)
	}
	l.storeContextHeader(a, p.ScopeInfo, n.ContextInput(), n.ValueInput(0))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateCatchContext(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.ScopeInfoParams)

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.AllocateContext(heap.MinContextSlots+1, l.native.CatchContextMap); err != nil {
		return NoChange(BailTooLarge)
	}
	l.storeContextHeader(a, p.ScopeInfo, n.ContextInput(), l.theHole())
	a.Store(ir.ForContextSlot(heap.ContextThrownObjectIndex), n.ValueInput(0))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateBlockContext(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.ScopeInfoParams)
	check(p.ScopeInfo != nil, node, "block context without scope info")
	length := p.ScopeInfo.ContextLength
	if length >= l.limits.BlockContextSlotLimit {
		return NoChange(BailOverLimit)
	}

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.AllocateContext(length, l.native.BlockContextMap); err != nil {
		return NoChange(BailTooLarge)
	}
	l.storeContextHeader(a, p.ScopeInfo, n.ContextInput(), l.theHole())
	for i := heap.MinContextSlots; i < length; i++ {
		a.Store(ir.ForContextSlot(i), l.undefined())
	}
	return l.finishAndChange(node, a)
}

func (l *Lowering) storeContextHeader(a *AllocationBuilder, scope *heap.ScopeInfo, previous, extension ir.NodeID) {
	a.Store(ir.ForContextSlot(heap.ContextScopeInfoIndex), l.constant(scope))
	a.Store(ir.ForContextSlot(heap.ContextPreviousIndex), previous)
	a.Store(ir.ForContextSlot(heap.ContextExtensionIndex), extension)
	a.Store(ir.ForContextSlot(heap.ContextNativeContextIndex), l.constant(l.native))
}
