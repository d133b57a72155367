package lowering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (f *fixture) scope(scope heap.ScopeType, length int) *heap.ScopeInfo {
	return heap.Add(f.broker, scope.String()+"_scope", &heap.ScopeInfo{Scope: scope, ContextLength: length})
}

func assertContextHeader(t *testing.T, f *fixture, c region, scope *heap.ScopeInfo, extension ir.NodeID) {
	t.Helper()
	assert.Same(t, scope, heapConstantOf(t, f.g, c.field(t, "context0")))
	assert.Equal(t, f.ctx, c.field(t, "context1"), "previous")
	assert.Equal(t, extension, c.field(t, "context2"), "extension")
	assert.Same(t, f.nc, heapConstantOf(t, f.g, c.field(t, "context3")))
}

func TestReduceJSCreateFunctionContext(t *testing.T) {
	tests := []struct {
		scope heap.ScopeType
		want  func(nc *heap.NativeContext) *heap.Map
	}{
		{heap.ScopeFunction, func(nc *heap.NativeContext) *heap.Map { return nc.FunctionContextMap }},
		{heap.ScopeEval, func(nc *heap.NativeContext) *heap.Map { return nc.EvalContextMap }},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			f := newFixture(t)
			scope := f.scope(tt.scope, 0)
			p := ir.CreateFunctionContextParams{ScopeInfo: scope, SlotCount: 2, ScopeType: tt.scope}
			node, _ := f.create(ir.Op(ir.OpJSCreateFunctionContext, p), ir.NoNode)

			require.True(t, f.reduce(node).IsChanged())

			rs := regions(t, f.g, node)
			require.Len(t, rs, 1)
			c := rs[0]
			assert.Equal(t, heap.FixedArraySize(heap.MinContextSlots+2), c.size)
			assert.Same(t, tt.want(f.nc), heapConstantOf(t, f.g, c.field(t, "map")))
			assert.Equal(t, float64(heap.MinContextSlots+2), numberOf(t, f.g, c.field(t, "length")))
			assertContextHeader(t, f, c, scope, f.constant(f.nc.TheHole))
			assert.Equal(t, f.constant(f.nc.Undefined), c.field(t, "context4"))
			assert.Equal(t, f.constant(f.nc.Undefined), c.field(t, "context5"))
		})
	}
}

func TestReduceJSCreateFunctionContext_OverLimit(t *testing.T) {
	f := newFixture(t)
	p := ir.CreateFunctionContextParams{ScopeInfo: f.scope(heap.ScopeFunction, 0), SlotCount: 16, ScopeType: heap.ScopeFunction}
	node, _ := f.create(ir.Op(ir.OpJSCreateFunctionContext, p), ir.NoNode)
	assert.Equal(t, NoChange(BailOverLimit), f.reduce(node))
}

func TestReduceJSCreateFunctionContext_OtherScopeIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	p := ir.CreateFunctionContextParams{ScopeInfo: f.scope(heap.ScopeBlock, 0), SlotCount: 1, ScopeType: heap.ScopeBlock}
	node, _ := f.create(ir.Op(ir.OpJSCreateFunctionContext, p), ir.NoNode)
	e := requireInvariant(t, func() { f.reduce(node) })
	assert.Contains(t, e.Error(), "function context")
}

func TestReduceJSCreateWithContext(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(heap.ScopeWith, heap.MinContextSlots)
	object := f.param(ir.OtherObject)
	node, _ := f.create(ir.Op(ir.OpJSCreateWithContext, ir.ScopeInfoParams{ScopeInfo: scope}), ir.NoNode, object)

	require.True(t, f.reduce(node).IsChanged())

	c := regions(t, f.g, node)[0]
	assert.Same(t, f.nc.WithContextMap, heapConstantOf(t, f.g, c.field(t, "map")))
	assertContextHeader(t, f, c, scope, object)
	assert.Equal(t, heap.FixedArraySize(heap.MinContextSlots), c.size)
}

func TestReduceJSCreateCatchContext(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(heap.ScopeCatch, heap.MinContextSlots+1)
	exception := f.param(ir.Any)
	node, _ := f.create(ir.Op(ir.OpJSCreateCatchContext, ir.ScopeInfoParams{ScopeInfo: scope}), ir.NoNode, exception)

	require.True(t, f.reduce(node).IsChanged())

	c := regions(t, f.g, node)[0]
	assert.Same(t, f.nc.CatchContextMap, heapConstantOf(t, f.g, c.field(t, "map")))
	assertContextHeader(t, f, c, scope, f.constant(f.nc.TheHole))
	assert.Equal(t, exception, c.field(t, "context4"), "thrown object")
}

func TestReduceJSCreateBlockContext(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(heap.ScopeBlock, heap.MinContextSlots+3)
	node, _ := f.create(ir.Op(ir.OpJSCreateBlockContext, ir.ScopeInfoParams{ScopeInfo: scope}), ir.NoNode)

	require.True(t, f.reduce(node).IsChanged())

	c := regions(t, f.g, node)[0]
	assert.Same(t, f.nc.BlockContextMap, heapConstantOf(t, f.g, c.field(t, "map")))
	assertContextHeader(t, f, c, scope, f.constant(f.nc.TheHole))
	assert.Len(t, c.stores, 2+heap.MinContextSlots+3)
}

func TestReduceJSCreateBlockContext_LimitIsExclusive(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(heap.ScopeBlock, 16)
	node, _ := f.create(ir.Op(ir.OpJSCreateBlockContext, ir.ScopeInfoParams{ScopeInfo: scope}), ir.NoNode)
	assert.Equal(t, NoChange(BailOverLimit), f.reduce(node))
}
