package lowering

import (
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (l *Lowering) reduceJSCreate(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	target, ok := l.constantFunction(n.ValueInput(0))
	if !ok {
		return NoChange(BailTargetNotConstant)
	}
	newTarget, ok := l.constantFunction(n.ValueInput(1))
	if !ok {
		return NoChange(BailTargetNotConstant)
	}
	if !target.IsConstructor || !newTarget.IsConstructor {
		return NoChange(BailNotInlineable)
	}
	if !isAllocationInlineable(node, target, newTarget) {
		return NoChange(BailNotInlineable)
	}
	m := newTarget.InitialMap
	check(!m.IsJSArrayMap(), node, "JSCreate of array map %s", m.Label())

	prediction, err := l.ledger.RegisterInitialShapePrediction(newTarget)
	if err != nil {
		return NoChange(BailNotInlineable)
	}
	if !l.limits.fits(prediction.InstanceSize) {
		return NoChange(BailTooLarge)
	}

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.Allocate(prediction.InstanceSize, heap.Young, typeForMap(m)); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	l.storeInObjectUndefined(a, m, 0, prediction.InObjectPropertyCount)
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateGeneratorObject(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	closure := n.ValueInput(0)
	receiver := n.ValueInput(1)
	context := n.ContextInput()

	fn, ok := l.constantFunction(closure)
	if !ok {
		return NoChange(BailTargetNotConstant)
	}
	if !fn.HasInitialMap() {
		return NoChange(BailNotInlineable)
	}
	m := fn.InitialMap
	async := m.Type == heap.TypeJSAsyncGeneratorObject
	check(async || m.Type == heap.TypeJSGeneratorObject, node, "generator initial map has type %s", m.Type)
	shared := fn.Shared
	check(shared != nil, node, "generator %s has no shared info", fn.Label())

	prediction, err := l.ledger.RegisterInitialShapePrediction(fn)
	if err != nil {
		return NoChange(BailNotInlineable)
	}
	registers := shared.FormalParameterCount + shared.RegisterCount
	if !l.limits.fits(prediction.InstanceSize) || !l.limits.fits(heap.FixedArraySize(registers)) {
		return NoChange(BailTooLarge)
	}

	// The register file holds the parameters followed by the interpreter
	// registers.
	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.AllocateArray(registers, l.native.FixedArrayMap, heap.Young); err != nil {
		return NoChange(BailTooLarge)
	}
	for i := 0; i < registers; i++ {
		a.StoreElement(ir.ForFixedArrayElement(heap.HoleyElements), i, l.undefined())
	}
	parametersAndRegisters := a.Finish()

	a = l.newBuilder(parametersAndRegisters, n.ControlInput())
	if err := a.Allocate(prediction.InstanceSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSGeneratorObjectContext(), context)
	a.Store(ir.ForJSGeneratorObjectFunction(), closure)
	a.Store(ir.ForJSGeneratorObjectReceiver(), receiver)
	a.Store(ir.ForJSGeneratorObjectInputOrDebugPos(), l.undefined())
	a.Store(ir.ForJSGeneratorObjectResumeMode(), l.number(heap.GeneratorResumeNext))
	a.Store(ir.ForJSGeneratorObjectContinuation(), l.number(heap.GeneratorContinuationExecuting))
	a.Store(ir.ForJSGeneratorObjectParametersAndRegisters(), parametersAndRegisters)
	if async {
		a.Store(ir.ForJSAsyncGeneratorObjectQueue(), l.undefined())
		a.Store(ir.ForJSAsyncGeneratorObjectIsAwaiting(), l.number(0))
	}
	l.storeInObjectUndefined(a, m, 0, prediction.InObjectPropertyCount)
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateBoundFunction(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	p := n.Params().(ir.CreateBoundFunctionParams)
	check(n.Op().ValueInputCount() == p.Arity+2, node,
		"bound function of arity %d has %d value inputs", p.Arity, n.Op().ValueInputCount())
	check(p.Map != nil && p.Map.Type == heap.TypeJSBoundFunction, node, "bound function map is not a JSBoundFunction map")

	boundTarget := n.ValueInput(0)
	boundThis := n.ValueInput(1)
	effect := n.EffectInput()
	control := n.ControlInput()
	if !l.limits.fits(heap.FixedArraySize(p.Arity)) {
		return NoChange(BailTooLarge)
	}

	boundArguments := l.emptyFixedArray()
	if p.Arity > 0 {
		a := l.newBuilder(effect, control)
		if err := a.AllocateArray(p.Arity, l.native.FixedArrayMap, heap.Young); err != nil {
			return NoChange(BailTooLarge)
		}
		for i := 0; i < p.Arity; i++ {
			a.Store(ir.ForFixedArraySlot(i, ir.FullWriteBarrier), n.ValueInput(2+i))
		}
		boundArguments = a.Finish()
		effect = boundArguments
	}

	a := l.newBuilder(effect, control)
	if err := a.Allocate(heap.JSBoundFunctionSize, heap.Young, ir.BoundFunction); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(p.Map))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSBoundFunctionTargetFunction(), boundTarget)
	a.Store(ir.ForJSBoundFunctionBoundThis(), boundThis)
	a.Store(ir.ForJSBoundFunctionBoundArguments(), boundArguments)
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateClosure(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	p := n.Params().(ir.CreateClosureParams)
	check(p.Shared != nil && p.Cell != nil && p.Code != nil, node, "closure parameters incomplete")

	// Only closures whose feedback cell is already shared by many closures
	// can be created without updating the cell.
	if p.Cell.Map != l.native.ManyClosuresCellMap {
		return NoChange(BailNotInlineable)
	}
	m, ok := l.native.FunctionMap(p.Shared.FunctionMapIndex)
	if !ok {
		return NoChange(BailDataMissing)
	}
	check(!m.SlackTracking, node, "function map %s is slack tracking", m.Label())
	check(!m.Dictionary, node, "function map %s is a dictionary map", m.Label())

	// Closures are always allocated in the young region. Pretenuring them
	// would need feedback the closure cell does not carry.
	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.Allocate(m.InstanceSize, heap.Young, ir.Function); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSFunctionSharedFunctionInfo(), l.constant(p.Shared))
	a.Store(ir.ForJSFunctionContext(), n.ContextInput())
	a.Store(ir.ForJSFunctionFeedbackCell(), l.constant(p.Cell))
	a.Store(ir.ForJSFunctionCode(), l.constant(p.Code))
	if m.HasPrototypeSlot {
		a.Store(ir.ForJSFunctionPrototypeOrInitialMap(), l.theHole())
	}
	l.storeInObjectUndefined(a, m, 0, m.InObjectProperties)
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateArrayIterator(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.CreateArrayIteratorParams)

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.Allocate(heap.JSArrayIteratorSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(l.native.InitialArrayIteratorMap))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSArrayIteratorIteratedObject(), n.ValueInput(0))
	a.Store(ir.ForJSArrayIteratorNextIndex(), l.number(0))
	a.Store(ir.ForJSArrayIteratorKind(), l.number(float64(p.Kind)))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateCollectionIterator(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	p := n.Params().(ir.CreateCollectionIteratorParams)
	collection := n.ValueInput(0)
	control := n.ControlInput()

	m, ok := l.native.CollectionIteratorMap(p.Collection, p.Kind)
	check(ok, node, "no iterator map for %s %s", p.Collection, p.Kind)
	if !l.limits.fits(heap.JSCollectionIteratorSize) {
		return NoChange(BailTooLarge)
	}

	table := g.NewTypedNode(ir.Op(ir.OpLoadField, ir.ForJSCollectionTable()), ir.OtherInternal,
		collection, n.EffectInput(), control)

	a := l.newBuilder(table, control)
	if err := a.Allocate(heap.JSCollectionIteratorSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSCollectionIteratorTable(), table)
	a.Store(ir.ForJSCollectionIteratorIndex(), l.number(0))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateIterResultObject(node ir.NodeID) Reduction {
	n := l.graph.Node(node)

	a := l.newBuilder(n.EffectInput(), l.graph.Start())
	if err := a.Allocate(heap.JSIteratorResultSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(l.native.IteratorResultMap))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSIteratorResultValue(), n.ValueInput(0))
	a.Store(ir.ForJSIteratorResultDone(), n.ValueInput(1))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateStringIterator(node ir.NodeID) Reduction {
	n := l.graph.Node(node)

	a := l.newBuilder(n.EffectInput(), l.graph.Start())
	if err := a.Allocate(heap.JSStringIteratorSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(l.native.StringIteratorMap))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSStringIteratorString(), n.ValueInput(0))
	a.Store(ir.ForJSStringIteratorIndex(), l.number(0))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreateKeyValueArray(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	m, ok := l.native.InitialJSArrayMap(heap.PackedElements)
	if !ok {
		return NoChange(BailDataMissing)
	}
	if !l.limits.fits(heap.JSArraySize) {
		return NoChange(BailTooLarge)
	}

	a := l.newBuilder(n.EffectInput(), g.Start())
	if err := a.AllocateArray(2, l.native.FixedArrayMap, heap.Young); err != nil {
		return NoChange(BailTooLarge)
	}
	a.StoreElement(ir.ForFixedArrayElement(heap.PackedElements), 0, n.ValueInput(0))
	a.StoreElement(ir.ForFixedArrayElement(heap.PackedElements), 1, n.ValueInput(1))
	elements := a.Finish()

	a = l.newBuilder(elements, g.Start())
	if err := a.Allocate(heap.JSArraySize, heap.Young, ir.Array); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), elements)
	a.Store(ir.ForJSArrayLength(heap.PackedElements), l.number(2))
	return l.finishAndChange(node, a)
}

func (l *Lowering) reduceJSCreatePromise(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	fn := l.native.PromiseFunction
	check(fn.HasInitialMap(), node, "promise function has no initial map")
	m := fn.InitialMap
	check(m.InstanceSize == heap.JSPromiseSize+heap.PromiseEmbedderFieldCount*heap.PointerSize, node,
		"promise map %s has size %d", m.Label(), m.InstanceSize)

	a := l.newBuilder(n.EffectInput(), l.graph.Start())
	if err := a.Allocate(m.InstanceSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	a.Store(ir.ForJSPromiseReactionsOrResult(), l.number(0))
	a.Store(ir.ForJSPromiseFlags(), l.number(0))
	for i := 0; i < heap.PromiseEmbedderFieldCount; i++ {
		offset := heap.JSPromiseSize + i*heap.PointerSize
		a.Store(ir.ForJSObjectOffset(offset, ir.NoWriteBarrier), l.number(0))
	}
	return l.finishAndChange(node, a)
}
