package lowering

import (
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// reduceJSCreateObject lowers Object.create(proto) for a constant
// prototype. A null prototype yields a dictionary-mode object whose
// properties live in a fresh empty NameDictionary.
func (l *Lowering) reduceJSCreateObject(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	t := l.typeOf(n.ValueInput(0))
	if !t.IsHeapConstant() {
		return NoChange(BailTargetNotConstant)
	}
	m, ok := l.native.ObjectCreateMap(t.HeapConstant())
	if !ok {
		return NoChange(BailNotInlineable)
	}
	if m.SlackTracking {
		return NoChange(BailSlackTracking)
	}
	size := m.InstanceSize
	if !l.limits.fits(size) {
		return NoChange(BailTooLarge)
	}

	effect := n.EffectInput()
	control := n.ControlInput()
	properties := l.emptyFixedArray()
	if m.Dictionary {
		check(t.HeapConstant() == heap.HeapObject(l.native.Null), node, "dictionary map for a non-null prototype")
		properties = l.allocateEmptyNameDictionary(node, effect, control)
		effect = properties
	}

	a := l.newBuilder(effect, control)
	if err := a.Allocate(size, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), properties)
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	for offset := heap.JSObjectHeaderSize; offset < size; offset += heap.PointerSize {
		a.Store(ir.ForJSObjectOffset(offset, ir.NoWriteBarrier), l.undefined())
	}
	value := a.Finish()
	return l.replaceWithAllocation(node, value, control)
}

func (l *Lowering) allocateEmptyNameDictionary(node, effect, control ir.NodeID) ir.NodeID {
	capacity := heap.NameDictionaryCapacity(heap.NameDictionaryInitialCapacity)
	length := heap.NameDictionaryLength(capacity)
	size := heap.FixedArraySize(length)

	a := l.newBuilder(effect, control)
	check(a.Allocate(size, heap.Young, ir.Any) == nil, node, "name dictionary of %d bytes too large", size)
	a.Store(ir.ForMap(), l.constant(l.native.NameDictionaryMap))
	a.Store(ir.ForFixedArrayLength(), l.number(float64(length)))
	header := []int{
		heap.HashTableNumberOfElementsIndex: 0,
		heap.HashTableNumberOfDeletedIndex:  0,
		heap.HashTableCapacityIndex:         capacity,
		heap.DictionaryNextEnumerationIndex: heap.PropertyDetailsInitialIndex,
		heap.DictionaryObjectHashIndex:      heap.NoHashSentinel,
	}
	for i, v := range header {
		a.Store(ir.ForFixedArraySlot(i, ir.NoWriteBarrier), l.number(float64(v)))
	}
	for i := heap.NameDictionaryElementsStart; i < length; i++ {
		a.Store(ir.ForFixedArraySlot(i, ir.NoWriteBarrier), l.undefined())
	}
	return a.Finish()
}
