package lowering

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// fixture is one compilation: a graph with a context parameter, a
// bootstrapped heap and an empty ledger.
type fixture struct {
	t      *testing.T
	g      *ir.Graph
	broker *heap.Broker
	nc     *heap.NativeContext
	ledger *deps.Ledger
	lw     *Lowering
	ctx    ir.NodeID
	params int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	g := ir.NewGraph()
	b := heap.NewBroker()
	nc := heap.Bootstrap(b)
	ledger := deps.NewLedger()
	f := &fixture{t: t, g: g, broker: b, nc: nc, ledger: ledger}
	f.ctx = f.param(ir.OtherInternal)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.lw = New(g, b, nc, ledger, append([]Option{WithLogger(logger)}, opts...)...)
	return f
}

func (f *fixture) param(typ ir.Type) ir.NodeID {
	id := f.g.NewTypedNode(ir.Op(ir.OpParameter, ir.ParameterParams{Index: f.params}), typ, f.g.Start())
	f.params++
	return id
}

func (f *fixture) constant(o heap.HeapObject) ir.NodeID { return f.g.HeapConstant(o) }
func (f *fixture) number(v float64) ir.NodeID { return f.g.NumberConstant(v) }

// frameState builds a frame state whose parameters are receiver followed by
// args.
func (f *fixture) frameState(typ ir.FrameStateType, shared *heap.SharedInfo, outer ir.NodeID, receiver ir.NodeID, args ...ir.NodeID) ir.NodeID {
	g := f.g
	values := append([]ir.NodeID{receiver}, args...)
	params := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, len(values)), values...)
	empty := g.NewNode(ir.NewOperator(ir.OpStateValues, nil, 0))
	info := ir.FrameStateInfo{Type: typ, ParameterCount: len(values), Shared: shared}
	return g.NewNode(ir.Op(ir.OpFrameState, info), params, empty, empty, f.ctx, f.constant(f.nc.Undefined), outer)
}

// outermostFrameState is a frame state of the function being compiled.
func (f *fixture) outermostFrameState(shared *heap.SharedInfo) ir.NodeID {
	return f.frameState(ir.FrameInterpreted, shared, f.g.Start(), f.constant(f.nc.Undefined))
}

// create adds a construction node fed by Start and a Return that uses it
// as value, effect and control.
func (f *fixture) create(op ir.Operator, frameState ir.NodeID, values ...ir.NodeID) (node, ret ir.NodeID) {
	f.t.Helper()
	g := f.g
	inputs := append([]ir.NodeID(nil), values...)
	if op.HasContext() {
		inputs = append(inputs, f.ctx)
	}
	if op.HasFrameState() {
		if frameState == ir.NoNode {
			frameState = f.outermostFrameState(f.shared(fmt.Sprintf("caller%d", g.NodeCount()), 0))
		}
		inputs = append(inputs, frameState)
	}
	inputs = append(inputs, g.Start(), g.Start())
	node = g.NewTypedNode(op, ir.Any, inputs...)
	ret = g.NewNode(ir.Op(ir.OpReturn, nil), node, node, node)
	return node, ret
}

func (f *fixture) shared(name string, formal int) *heap.SharedInfo {
	return heap.Add(f.broker, name+"_shared", &heap.SharedInfo{Name: name, FormalParameterCount: formal})
}

// constructor returns a constructor whose initial map has inObject
// in-object properties, unused of them not yet used.
func (f *fixture) constructor(name string, inObject, unused int, tracking bool) *heap.Function {
	m := heap.Add(f.broker, name+"_map", &heap.Map{
		Type:                 heap.TypeJSObject,
		InstanceSize:         heap.JSObjectHeaderSize + inObject*heap.PointerSize,
		InObjectProperties:   inObject,
		UnusedPropertyFields: unused,
		SlackTracking:        tracking,
		Kind:                 heap.HoleyElements,
	})
	fn := heap.Add(f.broker, name, &heap.Function{Shared: f.shared(name, 0), InitialMap: m, IsConstructor: true})
	m.Constructor = fn
	return fn
}

func (f *fixture) reduce(node ir.NodeID) Reduction {
	f.t.Helper()
	return f.lw.Reduce(node)
}

// region describes one allocation region found on an effect chain.
type region struct {
	finish ir.NodeID
	alloc  ir.NodeID
	size   int
	params ir.AllocateParams
	stores []store
}

type store struct {
	access  ir.FieldAccess
	element ir.ElementAccess
	index   int
	value   ir.NodeID
}

// field returns the value stored to the named field.
func (r region) field(t *testing.T, name string) ir.NodeID {
	t.Helper()
	for _, s := range r.stores {
		if s.access.Name == name {
			return s.value
		}
	}
	t.Fatalf("no store to %q in allocation #%d", name, r.alloc)
	return ir.NoNode
}

func (r region) access(t *testing.T, name string) ir.FieldAccess {
	t.Helper()
	for _, s := range r.stores {
		if s.access.Name == name {
			return s.access
		}
	}
	t.Fatalf("no store to %q in allocation #%d", name, r.alloc)
	return ir.FieldAccess{}
}

// elements returns the element stores in index order.
func (r region) elements() []ir.NodeID {
	var out []ir.NodeID
	for _, s := range r.stores {
		if s.access.Name == "" {
			out = append(out, s.value)
		}
	}
	return out
}

// regions splits the effect chain ending at end into allocation regions.
func regions(t *testing.T, g *ir.Graph, end ir.NodeID) []region {
	t.Helper()
	var out []region
	var cur *region
	for _, id := range ir.EffectChain(g, end) {
		n := g.Node(id)
		switch n.Opcode() {
		case ir.OpAllocate:
			require.Nil(t, cur, "nested allocation region at #%d", id)
			size := g.Node(n.ValueInput(0)).Params().(ir.NumberParams).Value
			cur = &region{alloc: id, size: int(size), params: n.Params().(ir.AllocateParams)}
		case ir.OpStoreField:
			require.NotNil(t, cur, "store outside region at #%d", id)
			require.Equal(t, cur.alloc, n.ValueInput(0))
			cur.stores = append(cur.stores, store{access: n.Params().(ir.FieldAccess), value: n.ValueInput(1)})
		case ir.OpStoreElement:
			require.NotNil(t, cur, "store outside region at #%d", id)
			index := g.Node(n.ValueInput(1)).Params().(ir.NumberParams).Value
			cur.stores = append(cur.stores, store{element: n.Params().(ir.ElementAccess), index: int(index), value: n.ValueInput(2)})
		case ir.OpFinishRegion:
			require.NotNil(t, cur, "unbalanced FinishRegion at #%d", id)
			require.Equal(t, cur.alloc, n.Input(0))
			cur.finish = id
			out = append(out, *cur)
			cur = nil
		}
	}
	require.Nil(t, cur, "unfinished allocation region")
	return out
}

func heapConstantOf(t *testing.T, g *ir.Graph, id ir.NodeID) heap.HeapObject {
	t.Helper()
	n := g.Node(id)
	require.Equal(t, ir.OpHeapConstant, n.Opcode(), "#%d is %s", id, n.Opcode())
	return n.Params().(ir.HeapConstantParams).Object
}

func numberOf(t *testing.T, g *ir.Graph, id ir.NodeID) float64 {
	t.Helper()
	n := g.Node(id)
	require.Equal(t, ir.OpNumberConstant, n.Opcode(), "#%d is %s", id, n.Opcode())
	return n.Params().(ir.NumberParams).Value
}
