package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func requireInvariant(t *testing.T, fn func()) *InvariantError {
	t.Helper()
	var got *InvariantError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected an invariant violation")
			e, ok := r.(*InvariantError)
			require.True(t, ok, "panic value %T is not *InvariantError: %v", r, r)
			got = e
		}()
		fn()
	}()
	return got
}

func TestReduce_NewArrayWithoutArguments(t *testing.T) {
	f := newFixture(t)
	array := f.constant(f.nc.ArrayFunction)
	node, ret := f.create(ir.NewOperator(ir.OpJSCreateArray, ir.CreateArrayParams{}, 2), ir.NoNode, array, array)

	r := f.reduce(node)
	require.True(t, r.IsChanged())
	assert.Equal(t, node, r.Replacement())
	assert.Equal(t, ir.OpFinishRegion, f.g.Node(node).Opcode())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	elements, arr := rs[0], rs[1]

	assert.Equal(t, heap.FixedArraySize(heap.PreallocatedArrayElements), elements.size)
	require.Len(t, elements.elements(), heap.PreallocatedArrayElements)
	for _, v := range elements.elements() {
		assert.Equal(t, f.constant(f.nc.TheHole), v)
	}

	packedSmi, _ := f.nc.InitialJSArrayMap(heap.PackedSmiElements)
	assert.Equal(t, heap.JSArraySize, arr.size)
	assert.Same(t, packedSmi, heapConstantOf(t, f.g, arr.field(t, "map")))
	assert.Equal(t, elements.finish, arr.field(t, "elements"))
	assert.Equal(t, 0.0, numberOf(t, f.g, arr.field(t, "length")))
	assert.Equal(t, ir.RepTaggedSigned, arr.access(t, "length").Rep)

	assert.Equal(t, f.g.Start(), f.g.Node(ret).Input(2), "control use relaxed")
	assert.Contains(t, f.ledger.Entries(), deps.Entry{
		Kind: deps.KindProtector, Object: "array_constructor_protector", Detail: "intact",
	})
}

func TestReduce_NewArrayWithConstantLength(t *testing.T) {
	f := newFixture(t)
	array := f.constant(f.nc.ArrayFunction)
	five := f.number(5)
	node, _ := f.create(ir.NewOperator(ir.OpJSCreateArray, ir.CreateArrayParams{Arity: 1}, 3), ir.NoNode, array, array, five)

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	elements, arr := rs[0], rs[1]
	assert.Len(t, elements.elements(), 5)

	holeySmi, _ := f.nc.InitialJSArrayMap(heap.HoleySmiElements)
	assert.Same(t, holeySmi, heapConstantOf(t, f.g, arr.field(t, "map")))
	assert.Equal(t, five, arr.field(t, "length"))
}

func TestReduce_InlinedMappedArguments(t *testing.T) {
	f := newFixture(t)
	inner := f.shared("inner", 2)
	outer := f.outermostFrameState(f.shared("outer", 0))
	receiver := f.param(ir.Any)
	a0, a1, a2 := f.param(ir.Any), f.param(ir.Any), f.param(ir.Any)
	fs := f.frameState(ir.FrameInterpreted, inner, outer, receiver, a0, a1, a2)
	callee := f.param(ir.Function)

	node, _ := f.create(ir.Op(ir.OpJSCreateArguments, ir.CreateArgumentsParams{Type: ir.MappedArguments}), fs, callee)
	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 3)
	args, paramMap, obj := rs[0], rs[1], rs[2]

	hole := f.constant(f.nc.TheHole)
	assert.Equal(t, hole, args.field(t, "slot0"))
	assert.Equal(t, hole, args.field(t, "slot1"))
	assert.Equal(t, a2, args.field(t, "slot2"), "unmapped argument is stored directly")

	assert.Same(t, f.nc.SloppyArgumentsElementsMap, heapConstantOf(t, f.g, paramMap.field(t, "map")))
	assert.Equal(t, f.ctx, paramMap.field(t, "slot0"))
	assert.Equal(t, args.finish, paramMap.field(t, "slot1"))
	assert.Equal(t, 5.0, numberOf(t, f.g, paramMap.field(t, "slot2")))
	assert.Equal(t, 4.0, numberOf(t, f.g, paramMap.field(t, "slot3")))

	assert.Same(t, f.nc.FastAliasedArgumentsMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	assert.Equal(t, paramMap.finish, obj.field(t, "elements"))
	assert.Equal(t, 3.0, numberOf(t, f.g, obj.field(t, "arguments_length")))
	assert.Equal(t, callee, obj.field(t, "callee"))
}

// literalObject builds {a: 1, b: {c: 2}} behind a feedback vector.
func literalObject(f *fixture) (*heap.FeedbackVector, *heap.AllocationSite) {
	innerMap := heap.Add(f.broker, "inner_map", &heap.Map{
		Type: heap.TypeJSObject, InstanceSize: 32, InObjectProperties: 1, Kind: heap.HoleyElements,
		Descriptors: []heap.Descriptor{{Name: "c", Representation: heap.RepresentationSmi, FieldIndex: 0}},
	})
	inner := heap.Add(f.broker, "inner", &heap.JSObject{
		Map: innerMap, Fields: []heap.Object{heap.Smi(2)}, Elements: f.nc.EmptyFixedArray,
	})
	outerMap := heap.Add(f.broker, "outer_map", &heap.Map{
		Type: heap.TypeJSObject, InstanceSize: 40, InObjectProperties: 2, Kind: heap.HoleyElements,
		Descriptors: []heap.Descriptor{
			{Name: "a", Representation: heap.RepresentationSmi, FieldIndex: 0},
			{Name: "b", Representation: heap.RepresentationHeapObject, FieldIndex: 1},
		},
	})
	outer := heap.Add(f.broker, "outer", &heap.JSObject{
		Map: outerMap, Fields: []heap.Object{heap.Smi(1), inner}, Elements: f.nc.EmptyFixedArray,
	})
	innerSite := heap.Add(f.broker, "inner_site", &heap.AllocationSite{Kind: heap.HoleyElements, Boilerplate: inner, FastLiteral: true})
	site := heap.Add(f.broker, "outer_site", &heap.AllocationSite{
		Kind: heap.HoleyElements, Boilerplate: outer, FastLiteral: true, Nested: []*heap.AllocationSite{innerSite},
	})
	vector := heap.Add(f.broker, "vector", &heap.FeedbackVector{Slots: []heap.Object{site}})
	return vector, site
}

func TestReduce_NestedObjectLiteral(t *testing.T) {
	f := newFixture(t)
	vector, _ := literalObject(f)
	node, ret := f.create(ir.Op(ir.OpJSCreateLiteralObject,
		ir.CreateLiteralParams{Feedback: ir.FeedbackParams{Vector: vector}}), ir.NoNode)

	r := f.reduce(node)
	require.True(t, r.IsChanged())
	value := r.Replacement()
	assert.NotEqual(t, node, value)
	assert.Zero(t, f.g.Node(node).UseCount())

	rv := f.g.Node(ret)
	assert.Equal(t, value, rv.Input(0))
	assert.Equal(t, value, rv.Input(1))
	assert.Equal(t, f.g.Start(), rv.Input(2))

	rs := regions(t, f.g, value)
	require.Len(t, rs, 2, "nested object is allocated first")
	inner, outer := rs[0], rs[1]
	assert.Equal(t, 2.0, numberOf(t, f.g, inner.field(t, "c")))
	assert.Equal(t, 1.0, numberOf(t, f.g, outer.field(t, "a")))
	assert.Equal(t, inner.finish, outer.field(t, "b"))
	assert.Equal(t, f.constant(f.nc.EmptyFixedArray), outer.field(t, "elements"))
	assert.Equal(t, heap.Young, outer.params.Region)
	assert.Equal(t, ir.NoWriteBarrier, outer.access(t, "b").WriteBarrier, "young into young")

	assert.Equal(t, []deps.Entry{{Kind: deps.KindPretenureMode, Object: "outer_site", Detail: "young"}}, f.ledger.Entries())
}

func TestReduce_BlockContextOverLimitLeavesGraphUntouched(t *testing.T) {
	f := newFixture(t)
	scope := heap.Add(f.broker, "block_scope", &heap.ScopeInfo{Scope: heap.ScopeBlock, ContextLength: 20})
	node, _ := f.create(ir.Op(ir.OpJSCreateBlockContext, ir.ScopeInfoParams{ScopeInfo: scope}), ir.NoNode)

	before := ir.Dump(f.g)
	fp := ir.MustFingerprint(f.g)

	r := f.reduce(node)
	assert.False(t, r.IsChanged())
	assert.Equal(t, BailOverLimit, r.Reason)
	assert.Equal(t, before, ir.Dump(f.g))
	assert.Equal(t, fp, ir.MustFingerprint(f.g))
	assert.Zero(t, f.ledger.Len())
}

func TestReduce_ArrayLiteralSharesCopyOnWriteElements(t *testing.T) {
	f := newFixture(t)
	packedSmi, _ := f.nc.InitialJSArrayMap(heap.PackedSmiElements)
	cow := heap.Add(f.broker, "cow_elements", &heap.FixedArray{
		Map: f.nc.FixedCOWArrayMap, Values: []heap.Object{heap.Smi(1), heap.Smi(2), heap.Smi(3)},
	})
	boilerplate := heap.Add(f.broker, "array_boilerplate", &heap.JSObject{Map: packedSmi, Elements: cow, Length: heap.Smi(3)})
	site := heap.Add(f.broker, "array_site", &heap.AllocationSite{Kind: heap.PackedSmiElements, Boilerplate: boilerplate, FastLiteral: true})
	vector := heap.Add(f.broker, "vector", &heap.FeedbackVector{Slots: []heap.Object{site}})

	node, _ := f.create(ir.Op(ir.OpJSCreateLiteralArray,
		ir.CreateLiteralParams{Feedback: ir.FeedbackParams{Vector: vector}, Length: 3}), ir.NoNode)
	r := f.reduce(node)
	require.True(t, r.IsChanged())

	rs := regions(t, f.g, r.Replacement())
	require.Len(t, rs, 1, "copy-on-write elements are not copied")
	arr := rs[0]
	assert.Equal(t, f.constant(cow), arr.field(t, "elements"))
	assert.Equal(t, 3.0, numberOf(t, f.g, arr.field(t, "length")))
	assert.Contains(t, f.ledger.Entries(), deps.Entry{
		Kind: deps.KindElementsKind, Object: "array_site", Detail: heap.PackedSmiElements.String(),
	})
}

func TestReduce_IgnoresOtherOperators(t *testing.T) {
	f := newFixture(t)
	n := f.number(3)
	r := f.reduce(n)
	assert.False(t, r.IsChanged())
	assert.Equal(t, BailUnsupported, r.Reason)
	assert.True(t, f.broker.HeapAccessAllowed())
}

func TestReduce_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	value, done := f.param(ir.Any), f.param(ir.Boolean)
	node, _ := f.create(ir.Op(ir.OpJSCreateIterResultObject, nil), ir.NoNode, value, done)

	require.True(t, f.reduce(node).IsChanged())
	dump := ir.Dump(f.g)
	r := f.reduce(node)
	assert.False(t, r.IsChanged())
	assert.Equal(t, dump, ir.Dump(f.g))
}

func TestReduce_ReleasesHeapGuardOnPanic(t *testing.T) {
	f := newFixture(t)
	p := ir.CreateCollectionIteratorParams{Collection: heap.TypeJSSet, Kind: heap.IterateKeys}
	node, _ := f.create(ir.Op(ir.OpJSCreateCollectionIterator, p), ir.NoNode, f.param(ir.OtherObject))

	requireInvariant(t, func() { f.reduce(node) })
	assert.True(t, f.broker.HeapAccessAllowed())
}

func TestReduction_String(t *testing.T) {
	assert.Equal(t, "NoChange(too_large)", NoChange(BailTooLarge).String())
	assert.Equal(t, "Changed(#4)", Changed(4).String())
	assert.Len(t, AllBailReasons(), 12)
}
