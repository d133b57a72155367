package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func TestReduceJSCreate_UsesSlackTrackingPrediction(t *testing.T) {
	f := newFixture(t)
	point := f.constructor("Point", 4, 3, true)
	target := f.constant(point)
	node, _ := f.create(ir.Op(ir.OpJSCreate, nil), ir.NoNode, target, target)

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 1)
	obj := rs[0]
	assert.Equal(t, 32, obj.size)
	assert.Same(t, point.InitialMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	assert.Equal(t, f.constant(f.nc.Undefined), obj.field(t, "inobject0"))
	assert.Len(t, obj.stores, 4)

	assert.Equal(t, []deps.Entry{
		{Kind: deps.KindInitialMap, Object: "Point", Detail: "Point_map"},
		{Kind: deps.KindSlackTracking, Object: "Point", Detail: "32"},
	}, f.ledger.Entries())
}

func TestReduceJSCreate_Declines(t *testing.T) {
	tests := []struct {
		name   string
		inputs func(f *fixture) (target, newTarget ir.NodeID)
		want   BailReason
	}{
		{
			name: "target not constant",
			inputs: func(f *fixture) (ir.NodeID, ir.NodeID) {
				fn := f.constant(f.constructor("A", 1, 0, false))
				return f.param(ir.Function), fn
			},
			want: BailTargetNotConstant,
		},
		{
			name: "new target not constant",
			inputs: func(f *fixture) (ir.NodeID, ir.NodeID) {
				fn := f.constant(f.constructor("A", 1, 0, false))
				return fn, f.param(ir.Function)
			},
			want: BailTargetNotConstant,
		},
		{
			name: "initial map of another constructor",
			inputs: func(f *fixture) (ir.NodeID, ir.NodeID) {
				return f.constant(f.constructor("A", 1, 0, false)), f.constant(f.constructor("B", 1, 0, false))
			},
			want: BailNotInlineable,
		},
		{
			name: "not a constructor",
			inputs: func(f *fixture) (ir.NodeID, ir.NodeID) {
				fn := f.constructor("A", 1, 0, false)
				fn.IsConstructor = false
				return f.constant(fn), f.constant(fn)
			},
			want: BailNotInlineable,
		},
		{
			name: "no initial map",
			inputs: func(f *fixture) (ir.NodeID, ir.NodeID) {
				fn := heap.Add(f.broker, "fresh", &heap.Function{Shared: f.shared("fresh", 0), IsConstructor: true})
				return f.constant(fn), f.constant(fn)
			},
			want: BailNotInlineable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			target, newTarget := tt.inputs(f)
			node, _ := f.create(ir.Op(ir.OpJSCreate, nil), ir.NoNode, target, newTarget)
			before := ir.Dump(f.g)

			r := f.reduce(node)
			assert.Equal(t, NoChange(tt.want), r)
			assert.Equal(t, before, ir.Dump(f.g))
			assert.Zero(t, f.ledger.Len())
		})
	}
}

func TestReduceJSCreate_DictionaryInitialMapIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	fn := f.constructor("Dict", 0, 0, false)
	fn.InitialMap.Dictionary = true
	target := f.constant(fn)
	node, _ := f.create(ir.Op(ir.OpJSCreate, nil), ir.NoNode, target, target)

	e := requireInvariant(t, func() { f.reduce(node) })
	assert.Equal(t, node, e.Node)
}

func generator(f *fixture, name string, async bool, formal, registers int) *heap.Function {
	typ, size, kind := heap.TypeJSGeneratorObject, heap.JSGeneratorObjectSize, heap.GeneratorFunction
	if async {
		typ, size, kind = heap.TypeJSAsyncGeneratorObject, heap.JSAsyncGeneratorObjectSize, heap.AsyncGeneratorFunction
	}
	m := heap.Add(f.broker, name+"_map", &heap.Map{Type: typ, InstanceSize: size, Kind: heap.HoleyElements})
	shared := heap.Add(f.broker, name+"_shared", &heap.SharedInfo{
		Name: name, FormalParameterCount: formal, RegisterCount: registers, Kind: kind,
	})
	fn := heap.Add(f.broker, name, &heap.Function{Shared: shared, InitialMap: m})
	m.Constructor = fn
	return fn
}

func TestReduceJSCreateGeneratorObject(t *testing.T) {
	for _, async := range []bool{false, true} {
		name := "sync"
		if async {
			name = "async"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			closure := f.constant(generator(f, "gen", async, 2, 3))
			receiver := f.param(ir.Any)
			node, _ := f.create(ir.Op(ir.OpJSCreateGeneratorObject, nil), ir.NoNode, closure, receiver)

			require.True(t, f.reduce(node).IsChanged())

			rs := regions(t, f.g, node)
			require.Len(t, rs, 2)
			file, obj := rs[0], rs[1]
			assert.Len(t, file.elements(), 5, "parameters and registers")
			for _, v := range file.elements() {
				assert.Equal(t, f.constant(f.nc.Undefined), v)
			}

			assert.Equal(t, closure, obj.field(t, "function"))
			assert.Equal(t, f.ctx, obj.field(t, "context"))
			assert.Equal(t, receiver, obj.field(t, "receiver"))
			assert.Equal(t, float64(heap.GeneratorContinuationExecuting), numberOf(t, f.g, obj.field(t, "continuation")))
			assert.Equal(t, file.finish, obj.field(t, "parameters_and_registers"))
			if async {
				assert.Equal(t, heap.JSAsyncGeneratorObjectSize, obj.size)
				assert.Equal(t, 0.0, numberOf(t, f.g, obj.field(t, "is_awaiting")))
			} else {
				assert.Equal(t, heap.JSGeneratorObjectSize, obj.size)
				for _, s := range obj.stores {
					assert.NotEqual(t, "queue", s.access.Name)
				}
			}
		})
	}
}

func TestReduceJSCreateGeneratorObject_NonConstantClosure(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(ir.Op(ir.OpJSCreateGeneratorObject, nil), ir.NoNode, f.param(ir.Function), f.param(ir.Any))
	assert.Equal(t, NoChange(BailTargetNotConstant), f.reduce(node))
}

func TestReduceJSCreateBoundFunction(t *testing.T) {
	f := newFixture(t)
	target, this := f.param(ir.Function), f.param(ir.Any)
	a0, a1 := f.param(ir.Any), f.number(7)
	p := ir.CreateBoundFunctionParams{Arity: 2, Map: f.nc.BoundFunctionWithConstructorMap}
	node, _ := f.create(ir.NewOperator(ir.OpJSCreateBoundFunction, p, 4), ir.NoNode, target, this, a0, a1)

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	args, fn := rs[0], rs[1]
	assert.Equal(t, a0, args.field(t, "slot0"))
	assert.Equal(t, ir.FullWriteBarrier, args.access(t, "slot0").WriteBarrier)
	assert.Equal(t, ir.NoWriteBarrier, args.access(t, "slot1").WriteBarrier, "smi needs no barrier")
	assert.Equal(t, target, fn.field(t, "bound_target"))
	assert.Equal(t, this, fn.field(t, "bound_this"))
	assert.Equal(t, args.finish, fn.field(t, "bound_arguments"))
	assert.True(t, f.g.Node(fn.alloc).Type().Is(ir.BoundFunction))
	assert.True(t, f.g.Node(node).Type().Is(ir.BoundFunction))
}

func TestReduceJSCreateBoundFunction_NoArgumentsUsesEmptyArray(t *testing.T) {
	f := newFixture(t)
	p := ir.CreateBoundFunctionParams{Map: f.nc.BoundFunctionWithoutConstructorMap}
	node, _ := f.create(ir.NewOperator(ir.OpJSCreateBoundFunction, p, 2), ir.NoNode, f.param(ir.Function), f.param(ir.Any))

	require.True(t, f.reduce(node).IsChanged())
	rs := regions(t, f.g, node)
	require.Len(t, rs, 1)
	assert.Equal(t, f.constant(f.nc.EmptyFixedArray), rs[0].field(t, "bound_arguments"))
}

func closureParams(f *fixture, mapIndex int, cellMap *heap.Map) ir.CreateClosureParams {
	code, _ := f.nc.Builtin(heap.CompileLazy)
	shared := heap.Add(f.broker, "closure_shared", &heap.SharedInfo{Name: "closure", FunctionMapIndex: mapIndex, Code: code})
	cell := heap.Add(f.broker, "closure_cell", &heap.FeedbackCell{Map: cellMap})
	return ir.CreateClosureParams{Shared: shared, Cell: cell, Code: code}
}

func TestReduceJSCreateClosure(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		size      int
		prototype bool
	}{
		{"sloppy", heap.SloppyFunctionMapIndex, heap.JSFunctionSizeWithPrototype, true},
		{"method", heap.MethodFunctionMapIndex, heap.JSFunctionSizeWithoutPrototype, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := closureParams(f, tt.index, f.nc.ManyClosuresCellMap)
			node, _ := f.create(ir.Op(ir.OpJSCreateClosure, p), ir.NoNode)

			require.True(t, f.reduce(node).IsChanged())

			rs := regions(t, f.g, node)
			require.Len(t, rs, 1)
			fn := rs[0]
			assert.Equal(t, tt.size, fn.size)
			assert.Equal(t, heap.Young, fn.params.Region)
			assert.Same(t, p.Shared, heapConstantOf(t, f.g, fn.field(t, "shared")))
			assert.Same(t, p.Cell, heapConstantOf(t, f.g, fn.field(t, "feedback_cell")))
			assert.Same(t, p.Code, heapConstantOf(t, f.g, fn.field(t, "code")))
			assert.Equal(t, f.ctx, fn.field(t, "context"))

			hasPrototype := false
			for _, s := range fn.stores {
				if s.access.Name == "prototype_or_initial_map" {
					hasPrototype = true
					assert.Equal(t, f.constant(f.nc.TheHole), s.value)
				}
			}
			assert.Equal(t, tt.prototype, hasPrototype)
		})
	}
}

func TestReduceJSCreateClosure_UnsharedCellDeclines(t *testing.T) {
	f := newFixture(t)
	p := closureParams(f, heap.SloppyFunctionMapIndex, f.nc.OneClosureCellMap)
	node, _ := f.create(ir.Op(ir.OpJSCreateClosure, p), ir.NoNode)
	assert.Equal(t, NoChange(BailNotInlineable), f.reduce(node))
}

func TestReduceJSCreateArrayIterator(t *testing.T) {
	f := newFixture(t)
	iterated := f.param(ir.Array)
	p := ir.CreateArrayIteratorParams{Kind: heap.IterateEntries}
	node, _ := f.create(ir.Op(ir.OpJSCreateArrayIterator, p), ir.NoNode, iterated)

	require.True(t, f.reduce(node).IsChanged())

	it := regions(t, f.g, node)[0]
	assert.Equal(t, iterated, it.field(t, "iterated_object"))
	assert.Equal(t, 0.0, numberOf(t, f.g, it.field(t, "next_index")))
	assert.Equal(t, float64(heap.IterateEntries), numberOf(t, f.g, it.field(t, "kind")))
}

func TestReduceJSCreateCollectionIterator(t *testing.T) {
	f := newFixture(t)
	m := f.param(ir.OtherObject)
	p := ir.CreateCollectionIteratorParams{Collection: heap.TypeJSMap, Kind: heap.IterateKeys}
	node, _ := f.create(ir.Op(ir.OpJSCreateCollectionIterator, p), ir.NoNode, m)

	require.True(t, f.reduce(node).IsChanged())

	it := regions(t, f.g, node)[0]
	assert.Same(t, f.nc.MapKeyIteratorMap, heapConstantOf(t, f.g, it.field(t, "map")))
	table := f.g.Node(it.field(t, "table"))
	assert.Equal(t, ir.OpLoadField, table.Opcode())
	assert.Equal(t, m, table.ValueInput(0))
	assert.Equal(t, 0.0, numberOf(t, f.g, it.field(t, "index")))
}

func TestReduceJSCreateIterResultObject(t *testing.T) {
	f := newFixture(t)
	value, done := f.param(ir.Any), f.constant(f.nc.True)
	node, _ := f.create(ir.Op(ir.OpJSCreateIterResultObject, nil), ir.NoNode, value, done)

	require.True(t, f.reduce(node).IsChanged())

	res := regions(t, f.g, node)[0]
	assert.Equal(t, heap.JSIteratorResultSize, res.size)
	assert.Equal(t, value, res.field(t, "value"))
	assert.Equal(t, done, res.field(t, "done"))
	assert.Equal(t, ir.NoWriteBarrier, res.access(t, "done").WriteBarrier, "true is immortal")
}

func TestReduceJSCreateStringIterator(t *testing.T) {
	f := newFixture(t)
	s := f.param(ir.StringType)
	node, _ := f.create(ir.Op(ir.OpJSCreateStringIterator, nil), ir.NoNode, s)

	require.True(t, f.reduce(node).IsChanged())
	it := regions(t, f.g, node)[0]
	assert.Same(t, f.nc.StringIteratorMap, heapConstantOf(t, f.g, it.field(t, "map")))
	assert.Equal(t, s, it.field(t, "string"))
	assert.Equal(t, 0.0, numberOf(t, f.g, it.field(t, "index")))
}

func TestReduceJSCreateKeyValueArray(t *testing.T) {
	f := newFixture(t)
	key, value := f.param(ir.Any), f.param(ir.Any)
	node, _ := f.create(ir.Op(ir.OpJSCreateKeyValueArray, nil), ir.NoNode, key, value)

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	assert.Equal(t, []ir.NodeID{key, value}, rs[0].elements())
	packed, _ := f.nc.InitialJSArrayMap(heap.PackedElements)
	assert.Same(t, packed, heapConstantOf(t, f.g, rs[1].field(t, "map")))
	assert.Equal(t, 2.0, numberOf(t, f.g, rs[1].field(t, "length")))
}

func TestReduceJSCreatePromise(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(ir.Op(ir.OpJSCreatePromise, nil), ir.NoNode)

	require.True(t, f.reduce(node).IsChanged())
	p := regions(t, f.g, node)[0]
	assert.Equal(t, heap.JSPromiseSize, p.size)
	assert.Same(t, f.nc.PromiseFunction.InitialMap, heapConstantOf(t, f.g, p.field(t, "map")))
	assert.Equal(t, 0.0, numberOf(t, f.g, p.field(t, "reactions_or_result")))
	assert.Equal(t, 0.0, numberOf(t, f.g, p.field(t, "flags")))
}

func TestReduce_SmallLimitDeclinesWithoutGarbage(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRegularObjectSize = 24
	f := newFixture(t, WithLimits(limits))
	node, _ := f.create(ir.Op(ir.OpJSCreateKeyValueArray, nil), ir.NoNode, f.param(ir.Any), f.param(ir.Any))
	count := f.g.NodeCount()

	assert.Equal(t, NoChange(BailTooLarge), f.reduce(node))
	assert.Equal(t, ir.OpJSCreateKeyValueArray, f.g.Node(node).Opcode())
	assert.Equal(t, count, f.g.NodeCount())
}
