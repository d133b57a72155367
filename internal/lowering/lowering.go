package lowering

import (
	"log/slog"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// Lowering rewrites object construction nodes of one graph.
type Lowering struct {
	graph  *ir.Graph
	broker *heap.Broker
	native *heap.NativeContext
	ledger *deps.Ledger
	limits Limits
	logger *slog.Logger
}

// Option configures a Lowering.
type Option func(*Lowering)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(lw *Lowering) { lw.limits = l }
}

// WithLogger sets the logger for bail diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(lw *Lowering) { lw.logger = logger }
}

// New returns a lowering over g using the snapshot owned by broker.
func New(g *ir.Graph, broker *heap.Broker, native *heap.NativeContext, ledger *deps.Ledger, opts ...Option) *Lowering {
	l := &Lowering{
		graph:  g,
		broker: broker,
		native: native,
		ledger: ledger,
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name identifies the reducer in logs and persisted reductions.
func (l *Lowering) Name() string { return "create-lowering" }

// Reduce lowers node if it is a construction operator. Nodes of any other
// kind are left alone with BailUnsupported.
func (l *Lowering) Reduce(node ir.NodeID) Reduction {
	release := l.broker.DisallowHeapAccess()
	defer release()

	n := l.graph.Node(node)
	if n.IsDead() {
		return NoChange(BailUnsupported)
	}
	var r Reduction
	switch n.Opcode() {
	case ir.OpJSCreate:
		r = l.reduceJSCreate(node)
	case ir.OpJSCreateArguments:
		r = l.reduceJSCreateArguments(node)
	case ir.OpJSCreateArray:
		r = l.reduceJSCreateArray(node)
	case ir.OpJSCreateArrayIterator:
		r = l.reduceJSCreateArrayIterator(node)
	case ir.OpJSCreateBoundFunction:
		r = l.reduceJSCreateBoundFunction(node)
	case ir.OpJSCreateClosure:
		r = l.reduceJSCreateClosure(node)
	case ir.OpJSCreateCollectionIterator:
		r = l.reduceJSCreateCollectionIterator(node)
	case ir.OpJSCreateGeneratorObject:
		r = l.reduceJSCreateGeneratorObject(node)
	case ir.OpJSCreateIterResultObject:
		r = l.reduceJSCreateIterResultObject(node)
	case ir.OpJSCreateStringIterator:
		r = l.reduceJSCreateStringIterator(node)
	case ir.OpJSCreateKeyValueArray:
		r = l.reduceJSCreateKeyValueArray(node)
	case ir.OpJSCreatePromise:
		r = l.reduceJSCreatePromise(node)
	case ir.OpJSCreateLiteralArray, ir.OpJSCreateLiteralObject:
		r = l.reduceJSCreateLiteralArrayOrObject(node)
	case ir.OpJSCreateLiteralRegExp:
		r = l.reduceJSCreateLiteralRegExp(node)
	case ir.OpJSCreateEmptyLiteralArray:
		r = l.reduceJSCreateEmptyLiteralArray(node)
	case ir.OpJSCreateEmptyLiteralObject:
		r = l.reduceJSCreateEmptyLiteralObject(node)
	case ir.OpJSCreateFunctionContext:
		r = l.reduceJSCreateFunctionContext(node)
	case ir.OpJSCreateWithContext:
		r = l.reduceJSCreateWithContext(node)
	case ir.OpJSCreateCatchContext:
		r = l.reduceJSCreateCatchContext(node)
	case ir.OpJSCreateBlockContext:
		r = l.reduceJSCreateBlockContext(node)
	case ir.OpJSCreateObject:
		r = l.reduceJSCreateObject(node)
	default:
		return NoChange(BailUnsupported)
	}
	if !r.IsChanged() {
		l.logger.Debug("lowering declined",
			"node", int(node),
			"op", n.Opcode().String(),
			"reason", string(r.Reason))
	}
	return r
}

func (l *Lowering) newBuilder(effect, control ir.NodeID) *AllocationBuilder {
	return newAllocationBuilder(l.graph, l.limits.MaxRegularObjectSize, effect, control)
}

// finishAndChange relaxes node's control uses and closes a's region onto
// node.
func (l *Lowering) finishAndChange(node ir.NodeID, a *AllocationBuilder) Reduction {
	l.graph.RelaxControls(node)
	a.FinishAndChange(node)
	return Changed(node)
}

// replaceWithAllocation moves node's uses onto a finished allocation.
func (l *Lowering) replaceWithAllocation(node, value, control ir.NodeID) Reduction {
	l.graph.ReplaceWithValue(node, value, value, control)
	return Replace(value)
}

func (l *Lowering) constant(o heap.HeapObject) ir.NodeID { return l.graph.HeapConstant(o) }
func (l *Lowering) number(v float64) ir.NodeID { return l.graph.NumberConstant(v) }
func (l *Lowering) undefined() ir.NodeID { return l.graph.HeapConstant(l.native.Undefined) }
func (l *Lowering) theHole() ir.NodeID { return l.graph.HeapConstant(l.native.TheHole) }
func (l *Lowering) emptyFixedArray() ir.NodeID { return l.graph.HeapConstant(l.native.EmptyFixedArray) }

// typeOf is the static type of id, treating untyped nodes as Any.
func (l *Lowering) typeOf(id ir.NodeID) ir.Type {
	t := l.graph.Node(id).Type()
	if t.IsNone() {
		return ir.Any
	}
	return t
}

// constantFunction returns the JSFunction that id is statically known to be.
func (l *Lowering) constantFunction(id ir.NodeID) (*heap.Function, bool) {
	t := l.typeOf(id)
	if !t.IsHeapConstant() {
		return nil, false
	}
	fn, ok := t.HeapConstant().(*heap.Function)
	return fn, ok
}

// valueConstant materializes a heap slot value as a constant node.
func (l *Lowering) valueConstant(node ir.NodeID, v heap.Object) ir.NodeID {
	switch o := v.(type) {
	case heap.Smi:
		return l.number(float64(o))
	case heap.RawDouble:
		return l.number(float64(o))
	case heap.HeapObject:
		return l.constant(o)
	}
	invariant(node, "missing heap value")
	return ir.NoNode
}

// typeForMap is the static type of a fresh instance of m.
func typeForMap(m *heap.Map) ir.Type {
	switch m.Type {
	case heap.TypeJSArray:
		return ir.Array
	case heap.TypeJSFunction:
		return ir.Function
	case heap.TypeJSBoundFunction:
		return ir.BoundFunction
	}
	return ir.OtherObject
}

// isAllocationInlineable reports whether an instance of newTarget can be
// allocated for target from newTarget's initial map.
func isAllocationInlineable(node ir.NodeID, target, newTarget *heap.Function) bool {
	if !newTarget.HasInitialMap() {
		return false
	}
	m := newTarget.InitialMap
	check(!m.Dictionary, node, "initial map %s is a dictionary map", m.Label())
	return m.Constructor == heap.HeapObject(target)
}

// storeInObjectUndefined fills in-object slots [from, count) of m with
// undefined.
func (l *Lowering) storeInObjectUndefined(a *AllocationBuilder, m *heap.Map, from, count int) {
	for i := from; i < count; i++ {
		a.Store(ir.ForJSObjectInObjectProperty(m, i), l.undefined())
	}
}
