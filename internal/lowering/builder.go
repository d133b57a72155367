package lowering

import (
	"errors"
	"fmt"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// ErrTooLarge is returned by the Allocate family when the requested size
// exceeds the regular object size limit.
var ErrTooLarge = errors.New("allocation exceeds the regular object size limit")

type span struct{ start, end int }

// AllocationBuilder emits one atomic allocation region: a BeginRegion, the
// Allocate, the initializing stores and the closing FinishRegion. The effect
// chain is threaded through every node it creates.
//
// A builder holds exactly one allocation. Stores must stay within the
// allocated size and may not overlap.
type AllocationBuilder struct {
	graph   *ir.Graph
	limit   int
	effect  ir.NodeID
	control ir.NodeID

	allocation ir.NodeID
	region     heap.Region
	size       int
	written    []span
	finished   bool
}

func newAllocationBuilder(g *ir.Graph, limit int, effect, control ir.NodeID) *AllocationBuilder {
	return &AllocationBuilder{
		graph:      g,
		limit:      limit,
		effect:     effect,
		control:    control,
		allocation: ir.NoNode,
	}
}

// Effect is the current end of the builder's effect chain.
func (a *AllocationBuilder) Effect() ir.NodeID { return a.effect }

// Allocation is the Allocate node, or ir.NoNode before Allocate.
func (a *AllocationBuilder) Allocation() ir.NodeID { return a.allocation }

// Allocate opens the region and allocates size bytes of type typ.
func (a *AllocationBuilder) Allocate(size int, region heap.Region, typ ir.Type) error {
	check(a.allocation == ir.NoNode, ir.NoNode, "allocation builder used twice")
	check(size >= heap.PointerSize, ir.NoNode, "allocation of %d bytes", size)
	if size > a.limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, a.limit)
	}
	g := a.graph
	begin := g.NewNode(ir.Op(ir.OpBeginRegion, nil), a.effect)
	a.allocation = g.NewTypedNode(ir.Op(ir.OpAllocate, ir.AllocateParams{Type: typ, Region: region}), typ,
		g.NumberConstant(float64(size)), begin, a.control)
	a.effect = a.allocation
	a.region = region
	a.size = size
	return nil
}

// AllocateArray allocates a FixedArray or FixedDoubleArray of length
// elements with map m and stores its header.
func (a *AllocationBuilder) AllocateArray(length int, m *heap.Map, region heap.Region) error {
	check(m.Type == heap.TypeFixedArray || m.Type == heap.TypeFixedDoubleArray || m.Type == heap.TypeNameDictionary,
		ir.NoNode, "array allocation with %s map", m.Type)
	size := heap.FixedArraySize(length)
	if m.IsFixedDoubleArrayMap() {
		size = heap.FixedDoubleArraySize(length)
	}
	if err := a.Allocate(size, region, ir.OtherInternal); err != nil {
		return err
	}
	a.Store(ir.ForMap(), a.graph.HeapConstant(m))
	a.Store(ir.ForFixedArrayLength(), a.graph.NumberConstant(float64(length)))
	return nil
}

// AllocateContext allocates a context of length slots with map m.
func (a *AllocationBuilder) AllocateContext(length int, m *heap.Map) error {
	check(m.Type.IsContext(), ir.NoNode, "context allocation with %s map", m.Type)
	check(length >= heap.MinContextSlots, ir.NoNode, "context of %d slots", length)
	if err := a.Allocate(heap.FixedArraySize(length), heap.Young, ir.OtherInternal); err != nil {
		return err
	}
	a.Store(ir.ForMap(), a.graph.HeapConstant(m))
	a.Store(ir.ForFixedArrayLength(), a.graph.NumberConstant(float64(length)))
	return nil
}

// Store initializes a field of the allocation.
func (a *AllocationBuilder) Store(access ir.FieldAccess, value ir.NodeID) {
	a.claim(access.Offset, access.End(), access.Name)
	if access.WriteBarrier == ir.FullWriteBarrier && a.barrierFree(value) {
		access.WriteBarrier = ir.NoWriteBarrier
	}
	a.effect = a.graph.NewNode(ir.Op(ir.OpStoreField, access), a.allocation, value, a.effect, a.control)
}

// StoreElement initializes element index of an array allocation.
func (a *AllocationBuilder) StoreElement(access ir.ElementAccess, index int, value ir.NodeID) {
	start := access.HeaderSize + index*access.ElementSize()
	a.claim(start, start+access.ElementSize(), access.Name)
	if access.WriteBarrier == ir.FullWriteBarrier && a.barrierFree(value) {
		access.WriteBarrier = ir.NoWriteBarrier
	}
	a.effect = a.graph.NewNode(ir.Op(ir.OpStoreElement, access), a.allocation,
		a.graph.NumberConstant(float64(index)), value, a.effect, a.control)
}

// Finish closes the region and returns the FinishRegion node, which is both
// the allocated value and the new effect.
func (a *AllocationBuilder) Finish() ir.NodeID {
	a.open()
	g := a.graph
	finish := g.NewTypedNode(ir.Op(ir.OpFinishRegion, nil), g.Node(a.allocation).Type(), a.allocation, a.effect)
	a.effect = finish
	a.finished = true
	return finish
}

// FinishAndChange closes the region by turning node itself into the
// FinishRegion, so that node's existing value and effect uses observe the
// new allocation. Whichever of the two types is narrower ends up on both.
func (a *AllocationBuilder) FinishAndChange(node ir.NodeID) {
	a.open()
	g := a.graph
	nt, at := g.Node(node).Type(), g.Node(a.allocation).Type()
	switch {
	case nt.IsNone():
	case nt.Is(at):
		g.SetType(a.allocation, nt)
	case at.Is(nt):
		g.SetType(node, at)
	}
	g.ReplaceInput(node, 0, a.allocation)
	g.ReplaceInput(node, 1, a.effect)
	g.TrimInputCount(node, 2)
	g.ChangeOp(node, ir.Op(ir.OpFinishRegion, nil))
	a.effect = node
	a.finished = true
}

func (a *AllocationBuilder) open() {
	check(a.allocation != ir.NoNode, ir.NoNode, "store before allocate")
	check(!a.finished, a.allocation, "allocation region already finished")
}

func (a *AllocationBuilder) claim(start, end int, name string) {
	a.open()
	if start < 0 || end > a.size {
		invariant(a.allocation, "store %s at [%d, %d) outside %d-byte object", name, start, end, a.size)
	}
	for _, w := range a.written {
		if start < w.end && w.start < end {
			invariant(a.allocation, "store %s at [%d, %d) overlaps [%d, %d)", name, start, end, w.start, w.end)
		}
	}
	a.written = append(a.written, span{start, end})
}

// barrierFree reports whether storing value into the allocation can skip
// the write barrier: Smis, immortal roots, and young objects stored into a
// young object.
func (a *AllocationBuilder) barrierFree(value ir.NodeID) bool {
	n := a.graph.Node(value)
	switch n.Opcode() {
	case ir.OpNumberConstant:
		return heap.IsSmiValue(n.Params().(ir.NumberParams).Value)
	case ir.OpHeapConstant:
		return n.Params().(ir.HeapConstantParams).Object.Immortal()
	case ir.OpAllocate, ir.OpFinishRegion:
		r, ok := allocationRegion(a.graph, value)
		return ok && a.region == heap.Young && r == heap.Young
	}
	return false
}

// allocationRegion returns the region of an Allocate node or of the
// FinishRegion closing one.
func allocationRegion(g *ir.Graph, id ir.NodeID) (heap.Region, bool) {
	n := g.Node(id)
	if n.Opcode() == ir.OpFinishRegion {
		n = g.Node(n.Input(0))
	}
	if n.Opcode() != ir.OpAllocate {
		return 0, false
	}
	return n.Params().(ir.AllocateParams).Region, true
}
