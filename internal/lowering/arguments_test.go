package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func createArguments(typ ir.CreateArgumentsType) ir.Operator {
	return ir.Op(ir.OpJSCreateArguments, ir.CreateArgumentsParams{Type: typ})
}

// inlinedFrameState returns the frame state of a function with formal
// parameters inlined into an outermost caller and called with args.
func (f *fixture) inlinedFrameState(formal int, args ...ir.NodeID) ir.NodeID {
	outer := f.outermostFrameState(f.shared("caller", 0))
	return f.frameState(ir.FrameInterpreted, f.shared("callee", formal), outer, f.param(ir.Any), args...)
}

func TestReduceJSCreateArguments_OutermostMapped(t *testing.T) {
	f := newFixture(t)
	callee := f.param(ir.Function)
	node, _ := f.create(createArguments(ir.MappedArguments), f.outermostFrameState(f.shared("fn", 2)), callee)

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	paramMap, obj := rs[0], rs[1]

	arguments := f.g.Node(paramMap.field(t, "slot1"))
	require.Equal(t, ir.OpNewArgumentsElements, arguments.Opcode())
	assert.Equal(t, 2, arguments.Params().(ir.NewArgumentsElementsParams).MappedCount)
	length := obj.field(t, "arguments_length")
	assert.Equal(t, ir.OpArgumentsLength, f.g.Node(length).Opcode())
	assert.True(t, f.g.Node(length).Type().Is(ir.UnsignedSmall))

	for i, slot := range []string{"slot2", "slot3"} {
		sel := f.g.Node(paramMap.field(t, slot))
		require.Equal(t, ir.OpSelect, sel.Opcode())
		cond := f.g.Node(sel.ValueInput(0))
		assert.Equal(t, ir.OpNumberLessThan, cond.Opcode())
		assert.Equal(t, float64(i), numberOf(t, f.g, cond.ValueInput(0)))
		assert.Equal(t, length, cond.ValueInput(1))
		assert.Equal(t, float64(heap.MinContextSlots+1-i), numberOf(t, f.g, sel.ValueInput(1)))
		assert.Equal(t, f.constant(f.nc.TheHole), sel.ValueInput(2))
	}

	assert.Same(t, f.nc.FastAliasedArgumentsMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	assert.Equal(t, callee, obj.field(t, "callee"))
}

func TestReduceJSCreateArguments_OutermostMappedWithoutFormals(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(createArguments(ir.MappedArguments), f.outermostFrameState(f.shared("fn", 0)), f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 1)
	obj := rs[0]
	assert.Same(t, f.nc.SloppyArgumentsMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	assert.Equal(t, ir.OpNewArgumentsElements, f.g.Node(obj.field(t, "elements")).Opcode())
}

func TestReduceJSCreateArguments_OutermostUnmapped(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(createArguments(ir.UnmappedArguments), f.outermostFrameState(f.shared("fn", 1)), f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	obj := regions(t, f.g, node)[0]
	assert.Equal(t, heap.JSStrictArgumentsObjectSize, obj.size)
	assert.Same(t, f.nc.StrictArgumentsMap, heapConstantOf(t, f.g, obj.field(t, "map")))
	elements := f.g.Node(obj.field(t, "elements"))
	require.Equal(t, ir.OpNewArgumentsElements, elements.Opcode())
	assert.Equal(t, 0, elements.Params().(ir.NewArgumentsElementsParams).MappedCount)
	for _, s := range obj.stores {
		assert.NotEqual(t, "callee", s.access.Name)
	}
}

func TestReduceJSCreateArguments_OutermostRest(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(createArguments(ir.RestParameter), f.outermostFrameState(f.shared("fn", 2)), f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	arr := regions(t, f.g, node)[0]
	packed, _ := f.nc.InitialJSArrayMap(heap.PackedElements)
	assert.Same(t, packed, heapConstantOf(t, f.g, arr.field(t, "map")))
	length := f.g.Node(arr.field(t, "length"))
	require.Equal(t, ir.OpArgumentsLength, length.Opcode())
	assert.Equal(t, ir.ArgumentsLengthParams{FormalParameterCount: 2, IsRest: true}, length.Params())
}

func TestReduceJSCreateArguments_InlinedUnmapped(t *testing.T) {
	f := newFixture(t)
	a0, a1 := f.param(ir.Any), f.number(3)
	node, _ := f.create(createArguments(ir.UnmappedArguments), f.inlinedFrameState(1, a0, a1), f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	elements, obj := rs[0], rs[1]
	assert.Equal(t, a0, elements.field(t, "slot0"))
	assert.Equal(t, a1, elements.field(t, "slot1"))
	assert.Equal(t, elements.finish, obj.field(t, "elements"))
	assert.Equal(t, 2.0, numberOf(t, f.g, obj.field(t, "arguments_length")))
}

func TestReduceJSCreateArguments_InlinedRest(t *testing.T) {
	tests := []struct {
		name   string
		formal int
		argc   int
		want   int
	}{
		{"surplus arguments", 1, 3, 2},
		{"exact", 2, 2, 0},
		{"fewer than formals", 3, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			args := make([]ir.NodeID, tt.argc)
			for i := range args {
				args[i] = f.param(ir.Any)
			}
			node, _ := f.create(createArguments(ir.RestParameter), f.inlinedFrameState(tt.formal, args...), f.param(ir.Function))

			require.True(t, f.reduce(node).IsChanged())

			rs := regions(t, f.g, node)
			arr := rs[len(rs)-1]
			assert.Equal(t, float64(tt.want), numberOf(t, f.g, arr.field(t, "length")))
			if tt.want == 0 {
				require.Len(t, rs, 1)
				assert.Equal(t, f.constant(f.nc.EmptyFixedArray), arr.field(t, "elements"))
				return
			}
			require.Len(t, rs, 2)
			assert.Equal(t, args[tt.formal], rs[0].field(t, "slot0"))
		})
	}
}

func TestReduceJSCreateArguments_InlinedMappedWithoutArguments(t *testing.T) {
	f := newFixture(t)
	node, _ := f.create(createArguments(ir.MappedArguments), f.inlinedFrameState(2), f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 1)
	assert.Same(t, f.nc.SloppyArgumentsMap, heapConstantOf(t, f.g, rs[0].field(t, "map")))
	assert.Equal(t, f.constant(f.nc.EmptyFixedArray), rs[0].field(t, "elements"))
	assert.Equal(t, 0.0, numberOf(t, f.g, rs[0].field(t, "arguments_length")))
}

func TestReduceJSCreateArguments_ReadsAdaptorFrame(t *testing.T) {
	f := newFixture(t)
	caller := f.outermostFrameState(f.shared("caller", 0))
	a0, a1, a2 := f.param(ir.Any), f.param(ir.Any), f.param(ir.Any)
	adaptor := f.frameState(ir.FrameArgumentsAdaptor, f.shared("callee_adaptor", 1), caller, f.param(ir.Any), a0, a1, a2)
	inner := f.frameState(ir.FrameInterpreted, f.shared("callee", 1), adaptor, f.param(ir.Any), a0)
	node, _ := f.create(createArguments(ir.UnmappedArguments), inner, f.param(ir.Function))

	require.True(t, f.reduce(node).IsChanged())

	rs := regions(t, f.g, node)
	require.Len(t, rs, 2)
	assert.Equal(t, a2, rs[0].field(t, "slot2"))
	assert.Equal(t, 3.0, numberOf(t, f.g, rs[1].field(t, "arguments_length")))
}

func TestReduceJSCreateArguments_Declines(t *testing.T) {
	t.Run("duplicate parameters", func(t *testing.T) {
		f := newFixture(t)
		shared := f.shared("dup", 2)
		shared.DuplicateParameters = true
		node, _ := f.create(createArguments(ir.MappedArguments), f.outermostFrameState(shared), f.param(ir.Function))
		assert.Equal(t, NoChange(BailDuplicateParameters), f.reduce(node))
	})

	t.Run("duplicate parameters inlined", func(t *testing.T) {
		f := newFixture(t)
		outer := f.outermostFrameState(f.shared("caller", 0))
		shared := f.shared("dup", 2)
		shared.DuplicateParameters = true
		fs := f.frameState(ir.FrameInterpreted, shared, outer, f.param(ir.Any), f.param(ir.Any))
		node, _ := f.create(createArguments(ir.MappedArguments), fs, f.param(ir.Function))
		assert.Equal(t, NoChange(BailDuplicateParameters), f.reduce(node))
	})

	t.Run("dead parameters", func(t *testing.T) {
		f := newFixture(t)
		g := f.g
		outer := f.outermostFrameState(f.shared("caller", 0))
		dead := g.NewNode(ir.Op(ir.OpDeadValue, nil))
		empty := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 0))
		info := ir.FrameStateInfo{Type: ir.FrameInterpreted, ParameterCount: 1, Shared: f.shared("callee", 0)}
		fs := g.NewNode(ir.Op(ir.OpFrameState, info), dead, empty, empty, f.ctx, f.constant(f.nc.Undefined), outer)
		node, _ := f.create(createArguments(ir.UnmappedArguments), fs, f.param(ir.Function))
		assert.Equal(t, NoChange(BailDeadFrameState), f.reduce(node))
	})
}

func TestReduceJSCreateArguments_FrameStateWithoutFunction(t *testing.T) {
	f := newFixture(t)
	fs := f.frameState(ir.FrameInterpreted, nil, f.g.Start(), f.param(ir.Any))
	node, _ := f.create(createArguments(ir.UnmappedArguments), fs, f.param(ir.Function))
	requireInvariant(t, func() { f.reduce(node) })
}

func TestParameterValues_FlattensNestedStateValues(t *testing.T) {
	f := newFixture(t)
	g := f.g
	a, b, c := f.param(ir.Any), f.param(ir.Any), f.param(ir.Any)
	nested := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 2), b, c)
	params := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 2), a, nested)
	empty := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 0))
	fs := g.NewNode(ir.Op(ir.OpFrameState, ir.FrameStateInfo{ParameterCount: 3}), params, empty, empty, f.ctx,
		f.constant(f.nc.Undefined), g.Start())

	assert.Equal(t, []ir.NodeID{a, b, c}, parameterValues(g, fs))
	assert.Equal(t, []ir.NodeID{c}, argumentValues(g, fs, 1, 1))
	requireInvariant(t, func() { argumentValues(g, fs, 1, 2) })
}
