package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func TestReduceJSCreateObject_NullPrototype(t *testing.T) {
	f := newFixture(t)
	node, ret := f.create(ir.Op(ir.OpJSCreateObject, nil), ir.NoNode, f.constant(f.nc.Null))

	r := f.reduce(node)
	require.True(t, r.IsChanged())
	value := r.Replacement()
	assert.Equal(t, value, f.g.Node(ret).Input(0))
	assert.Zero(t, f.g.Node(node).UseCount())

	rs := regions(t, f.g, value)
	require.Len(t, rs, 2)
	dict, obj := rs[0], rs[1]

	capacity := heap.NameDictionaryCapacity(heap.NameDictionaryInitialCapacity)
	length := heap.NameDictionaryLength(capacity)
	assert.Equal(t, heap.FixedArraySize(length), dict.size)
	assert.Same(t, f.nc.NameDictionaryMap, heapConstantOf(t, f.g, dict.field(t, "map")))
	assert.Equal(t, float64(capacity), numberOf(t, f.g, dict.field(t, "slot2")))
	assert.Equal(t, float64(heap.PropertyDetailsInitialIndex), numberOf(t, f.g, dict.field(t, "slot3")))
	assert.Equal(t, f.constant(f.nc.Undefined), dict.field(t, "slot5"))

	assert.Same(t, f.nc.SlowObjectWithNullPrototypeMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	assert.Equal(t, dict.finish, obj.field(t, "properties"))
	for off := heap.JSObjectHeaderSize; off < obj.size; off += heap.PointerSize {
		assert.Equal(t, f.constant(f.nc.Undefined), obj.field(t, ir.ForJSObjectOffset(off, ir.NoWriteBarrier).Name))
	}
}

func TestReduceJSCreateObject_ObjectPrototype(t *testing.T) {
	f := newFixture(t)
	m := heap.Add(f.broker, "create_map", &heap.Map{
		Type: heap.TypeJSObject, InstanceSize: heap.JSObjectHeaderSize + 2*heap.PointerSize, InObjectProperties: 2,
	})
	proto := heap.Add(f.broker, "proto", &heap.JSObject{Map: f.nc.ObjectFunction.InitialMap, ObjectCreateMap: m})
	node, _ := f.create(ir.Op(ir.OpJSCreateObject, nil), ir.NoNode, f.constant(proto))

	r := f.reduce(node)
	require.True(t, r.IsChanged())

	rs := regions(t, f.g, r.Replacement())
	require.Len(t, rs, 1)
	assert.Same(t, m, heapConstantOf(t, f.g, rs[0].field(t, "map")))
	assert.Equal(t, f.constant(f.nc.EmptyFixedArray), rs[0].field(t, "properties"))
	assert.Len(t, rs[0].stores, 5)
}

func TestReduceJSCreateObject_Declines(t *testing.T) {
	t.Run("prototype not constant", func(t *testing.T) {
		f := newFixture(t)
		node, _ := f.create(ir.Op(ir.OpJSCreateObject, nil), ir.NoNode, f.param(ir.OtherObject))
		assert.Equal(t, NoChange(BailTargetNotConstant), f.reduce(node))
	})

	t.Run("no object create map", func(t *testing.T) {
		f := newFixture(t)
		proto := heap.Add(f.broker, "proto", &heap.JSObject{Map: f.nc.ObjectFunction.InitialMap})
		node, _ := f.create(ir.Op(ir.OpJSCreateObject, nil), ir.NoNode, f.constant(proto))
		assert.Equal(t, NoChange(BailNotInlineable), f.reduce(node))
	})

	t.Run("slack tracking", func(t *testing.T) {
		f := newFixture(t)
		m := heap.Add(f.broker, "create_map", &heap.Map{Type: heap.TypeJSObject, InstanceSize: 40, SlackTracking: true})
		proto := heap.Add(f.broker, "proto", &heap.JSObject{Map: f.nc.ObjectFunction.InitialMap, ObjectCreateMap: m})
		node, _ := f.create(ir.Op(ir.OpJSCreateObject, nil), ir.NoNode, f.constant(proto))
		assert.Equal(t, NoChange(BailSlackTracking), f.reduce(node))
	})
}
