package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/heap"
)

// newCreateGraph builds Start -> JSCreateIterResultObject -> Return with a
// second effect user, so that value, effect and control uses all exist.
func newCreateGraph(t *testing.T) (g *Graph, create, ret NodeID) {
	t.Helper()
	g = NewGraph()
	start := g.Start()
	value := g.NumberConstant(1)
	done := g.NumberConstant(0)
	ctx := g.NewNode(Op(OpParameter, ParameterParams{Index: 0, Name: "context"}), start)
	create = g.NewNode(Op(OpJSCreateIterResultObject, nil), value, done, ctx, start, start)
	ret = g.NewNode(Op(OpReturn, nil), create, create, create)
	return g, create, ret
}

func TestGraph_NewNodeChecksArity(t *testing.T) {
	g := NewGraph()
	assert.Panics(t, func() {
		g.NewNode(Op(OpReturn, nil), g.Start())
	})
}

func TestGraph_ConstantsAreCached(t *testing.T) {
	g := NewGraph()
	b := heap.NewBroker()
	nc := heap.Bootstrap(b)

	assert.Equal(t, g.NumberConstant(4), g.NumberConstant(4))
	assert.NotEqual(t, g.NumberConstant(0), g.NumberConstant(negZero()))
	assert.Equal(t, g.HeapConstant(nc.Undefined), g.HeapConstant(nc.Undefined))
	assert.True(t, g.Node(g.HeapConstant(nc.Undefined)).Type().Is(Undefined))
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestGraph_InputAccessors(t *testing.T) {
	g, create, _ := newCreateGraph(t)
	n := g.Node(create)

	assert.Equal(t, 2, n.Op().ValueInputCount())
	assert.Equal(t, 5, n.InputCount())
	assert.Equal(t, g.Start(), n.EffectInput())
	assert.Equal(t, g.Start(), n.ControlInput())
	assert.Equal(t, OpParameter, g.Node(n.ContextInput()).Opcode())
	assert.Panics(t, func() { n.FrameStateInput() })
	assert.Panics(t, func() { n.ValueInput(2) })
}

func TestGraph_ReplaceWithValueByEdgeKind(t *testing.T) {
	g, create, ret := newCreateGraph(t)
	value := g.NumberConstant(7)
	effect := g.NewNode(Op(OpBeginRegion, nil), g.Start())

	g.ReplaceWithValue(create, value, effect, NoNode)

	r := g.Node(ret)
	assert.Equal(t, value, r.Input(0), "value use")
	assert.Equal(t, effect, r.Input(1), "effect use")
	assert.Equal(t, g.Start(), r.Input(2), "control use goes to the node's control input")
	assert.Equal(t, 0, g.Node(create).UseCount())

	g.Kill(create)
	assert.True(t, g.Node(create).IsDead())
	assert.NotContains(t, g.LiveNodes(), create)
}

func TestGraph_RelaxControls(t *testing.T) {
	g, create, ret := newCreateGraph(t)

	g.RelaxControls(create)

	r := g.Node(ret)
	assert.Equal(t, create, r.Input(0))
	assert.Equal(t, create, r.Input(1))
	assert.Equal(t, g.Start(), r.Input(2))
	assert.Equal(t, 2, g.Node(create).UseCount())
}

func TestGraph_KillRequiresNoUses(t *testing.T) {
	g, create, _ := newCreateGraph(t)
	assert.Panics(t, func() { g.Kill(create) })
}

func TestGraph_InsertTrimChangeOp(t *testing.T) {
	g, create, _ := newCreateGraph(t)
	extra := g.NumberConstant(3)

	g.InsertInput(create, 1, extra)
	require.Equal(t, 6, g.Node(create).InputCount())
	assert.Equal(t, extra, g.Node(create).Input(1))
	assert.Contains(t, g.Node(extra).Uses(), create)

	g.TrimInputCount(create, 2)
	assert.Equal(t, 2, g.Node(create).InputCount())
	assert.NotContains(t, g.Node(g.Start()).Uses(), create)

	assert.Panics(t, func() { g.ChangeOp(create, Op(OpReturn, nil)) })
	g.ReplaceInput(create, 1, g.Start())
	g.ChangeOp(create, Op(OpFinishRegion, nil))
	assert.Equal(t, OpFinishRegion, g.Node(create).Opcode())
}

func TestGraph_ReplaceUses(t *testing.T) {
	g, create, ret := newCreateGraph(t)
	other := g.NumberConstant(9)

	g.ReplaceUses(create, other)

	r := g.Node(ret)
	assert.Equal(t, []NodeID{other, other, other}, r.Inputs())
	assert.Equal(t, 3, g.Node(other).UseCount())
}

func TestDump(t *testing.T) {
	g, _, _ := newCreateGraph(t)

	want := "#0 Start()\n" +
		"#1 NumberConstant[1]()\n" +
		"#2 NumberConstant[0]()\n" +
		"#3 Parameter[0:context](#0)\n" +
		"#4 JSCreateIterResultObject(#1, #2, #3, #0, #0)\n" +
		"#5 Return(#4, #4, #4)\n"
	assert.Equal(t, want, Dump(g))
}

func TestEffectChainAndReachable(t *testing.T) {
	g := NewGraph()
	begin := g.NewNode(Op(OpBeginRegion, nil), g.Start())
	size := g.NumberConstant(16)
	alloc := g.NewNode(Op(OpAllocate, AllocateParams{Type: OtherObject}), size, begin, g.Start())
	finish := g.NewNode(Op(OpFinishRegion, nil), alloc, alloc)

	assert.Equal(t, []NodeID{g.Start(), begin, alloc, finish}, EffectChain(g, finish))
	assert.Equal(t, []NodeID{g.Start(), begin, size, alloc, finish}, Reachable(g, finish))
}

func TestOpcode_ParseAndClassify(t *testing.T) {
	op, ok := ParseOpcode("JSCreateArray")
	require.True(t, ok)
	assert.Equal(t, OpJSCreateArray, op)
	assert.True(t, op.IsJSCreate())
	assert.True(t, op.IsVariadic())
	assert.False(t, OpAllocate.IsJSCreate())
	assert.Len(t, JSCreateOpcodes(), 22)

	_, ok = ParseOpcode("Bogus")
	assert.False(t, ok)
}

func TestOperator_Layout(t *testing.T) {
	op := NewOperator(OpJSCreateArray, CreateArrayParams{Arity: 3}, 5)
	assert.Equal(t, 9, op.InputCount())
	assert.True(t, op.isEffectEdge(7))
	assert.True(t, op.isControlEdge(8))
	assert.False(t, op.isEffectEdge(6))
	assert.Equal(t, "JSCreateArray[3]", op.String())

	assert.Panics(t, func() { Op(OpCall, nil) })
}
