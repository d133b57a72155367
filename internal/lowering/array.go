package lowering

import (
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (l *Lowering) reduceJSCreateArray(node ir.NodeID) Reduction {
	g := l.graph
	n := g.Node(node)
	p := n.Params().(ir.CreateArrayParams)
	arity := p.Arity
	check(n.Op().ValueInputCount() == arity+2, node,
		"array construction of arity %d has %d value inputs", arity, n.Op().ValueInputCount())
	site := p.Site
	constructor := l.native.ArrayFunction
	target := n.ValueInput(0)
	newTarget := n.ValueInput(1)

	newTargetType := l.typeOf(newTarget)
	if target == newTarget {
		newTargetType = ir.HeapConstantType(constructor)
	}
	if newTargetType.IsHeapConstant() {
		original, ok := newTargetType.HeapConstant().(*heap.Function)
		if ok && isAllocationInlineable(node, constructor, original) {
			if r, handled := l.reduceArrayConstruction(node, arity, site, original); handled {
				return r
			}
		}
	}

	// The generic stub cannot install the subclass's initial map.
	if target != newTarget {
		return NoChange(BailSubclassing)
	}
	return l.reduceNewArrayToStubCall(node, site)
}

// reduceArrayConstruction tries the inline paths of new Array(...). The
// second result is false when none applies and the stub call should be
// used instead.
func (l *Lowering) reduceArrayConstruction(node ir.NodeID, arity int, site *heap.AllocationSite, original *heap.Function) (Reduction, bool) {
	g := l.graph
	n := g.Node(node)

	prediction, err := l.ledger.RegisterInitialShapePrediction(original)
	if err != nil {
		return NoChange(BailNotInlineable), true
	}
	initialMap := original.InitialMap
	region := heap.Young
	var canInlineCall bool
	if site != nil {
		m, ok := initialMap.AsElementsKind(site.Kind)
		if !ok {
			return NoChange(BailDataMissing), true
		}
		initialMap = m
		canInlineCall = site.CanInlineCall
		region = l.ledger.RegisterPretenureDecision(site)
		l.ledger.RegisterElementsKindDependency(site)
	} else {
		protector := l.native.ArrayConstructorProtector
		canInlineCall = protector != nil && protector.Intact
		if canInlineCall {
			l.ledger.RegisterProtectorDependency(protector)
		}
	}

	switch {
	case arity == 0:
		return l.reduceNewArrayCapacity(node, l.number(0), heap.PreallocatedArrayElements, initialMap, region, prediction), true

	case arity == 1:
		length := n.ValueInput(2)
		lengthType := l.typeOf(length)
		if !lengthType.Maybe(ir.Number) {
			// A single non-number argument becomes the only element.
			kind := initialMap.Kind
			if kind.IsHoley() {
				kind = kind.MoreGeneral(heap.HoleyElements)
			} else {
				kind = kind.MoreGeneral(heap.PackedElements)
			}
			m, ok := initialMap.AsElementsKind(kind)
			if !ok {
				return NoChange(BailDataMissing), true
			}
			return l.reduceNewArrayValues(node, []ir.NodeID{length}, m, region, prediction), true
		}
		if lengthType.Is(ir.SignedSmall) && lengthType.Min() >= 0 &&
			lengthType.Max() <= float64(l.limits.ElementLoopUnrollLimit) && lengthType.Min() == lengthType.Max() {
			capacity := int(lengthType.Max())
			return l.reduceNewArrayCapacity(node, length, capacity, initialMap, region, prediction), true
		}
		if lengthType.Maybe(ir.UnsignedSmall) && canInlineCall {
			return l.reduceNewArrayLength(node, length, initialMap, region, prediction), true
		}

	case arity <= heap.InitialMaxFastElementArray:
		values := n.ValueInputs()[2:]
		kind, ok := l.classifyValues(values, initialMap.Kind, canInlineCall)
		if !ok {
			return NoChange(BailAmbiguousKind), true
		}
		m, ok := initialMap.AsElementsKind(kind)
		if !ok {
			return NoChange(BailDataMissing), true
		}
		return l.reduceNewArrayValues(node, values, m, region, prediction), true
	}
	return Reduction{}, false
}

// classifyValues picks the elements kind for new Array(v0, v1, ...). Mixed
// values that are neither all numbers nor provably non-numbers need the
// call to be inlineable, since a wrong guess transitions the kind later.
func (l *Lowering) classifyValues(values []ir.NodeID, kind heap.ElementsKind, canInlineCall bool) (heap.ElementsKind, bool) {
	allSmi, allNumber, anyNonNumber := true, true, false
	for _, v := range values {
		t := l.typeOf(v)
		if !t.Is(ir.SignedSmall) {
			allSmi = false
		}
		if !t.Is(ir.Number) {
			allNumber = false
		}
		if !t.Maybe(ir.Number) {
			anyNonNumber = true
		}
	}
	switch {
	case allSmi:
		return kind, true
	case allNumber:
		if kind.IsHoley() {
			return kind.MoreGeneral(heap.HoleyDoubleElements), true
		}
		return kind.MoreGeneral(heap.PackedDoubleElements), true
	case anyNonNumber:
		if kind.IsHoley() {
			return kind.MoreGeneral(heap.HoleyElements), true
		}
		return kind.MoreGeneral(heap.PackedElements), true
	case canInlineCall:
		return kind, true
	}
	return kind, false
}

// reduceNewArrayCapacity lowers an array of a statically known capacity
// whose elements are all holes.
func (l *Lowering) reduceNewArrayCapacity(node, length ir.NodeID, capacity int, initialMap *heap.Map, region heap.Region, prediction deps.SlackTrackingPrediction) Reduction {
	n := l.graph.Node(node)
	kind := initialMap.Kind
	if l.typeOf(length).Max() > 0 {
		kind = kind.Holey()
	}
	m, ok := initialMap.AsElementsKind(kind)
	if !ok {
		return NoChange(BailDataMissing)
	}
	check(kind.IsFast(), node, "array of non-fast kind %s", kind)
	if !l.limits.fits(prediction.InstanceSize) || !l.limits.fits(elementsSize(kind, capacity)) {
		return NoChange(BailTooLarge)
	}

	effect := n.EffectInput()
	control := n.ControlInput()
	elements := l.emptyFixedArray()
	if capacity > 0 {
		elements, effect = l.allocateHoleyElements(node, effect, control, kind, capacity, region)
	}

	a := l.newBuilder(effect, control)
	if err := a.Allocate(prediction.InstanceSize, region, ir.Array); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), elements)
	a.Store(ir.ForJSArrayLength(kind), length)
	l.storeInObjectUndefined(a, m, 0, prediction.InObjectPropertyCount)
	return l.finishAndChange(node, a)
}

// reduceNewArrayLength lowers new Array(n) for a length known only at run
// time. The backing store is allocated by a checked dynamic allocation.
func (l *Lowering) reduceNewArrayLength(node, length ir.NodeID, initialMap *heap.Map, region heap.Region, prediction deps.SlackTrackingPrediction) Reduction {
	g := l.graph
	n := g.Node(node)
	kind := initialMap.Kind.Holey()
	m, ok := initialMap.AsElementsKind(kind)
	if !ok {
		return NoChange(BailDataMissing)
	}
	if !l.limits.fits(prediction.InstanceSize) {
		return NoChange(BailTooLarge)
	}

	effect := n.EffectInput()
	control := n.ControlInput()
	length = g.NewTypedNode(ir.Op(ir.OpCheckBounds, nil), ir.Range(0, heap.InitialMaxFastElementArray-1),
		length, l.number(heap.InitialMaxFastElementArray), effect, control)
	effect = length

	op := ir.OpNewSmiOrObjectElements
	if kind.IsDouble() {
		op = ir.OpNewDoubleElements
	}
	elements := g.NewTypedNode(ir.Op(op, ir.RegionParams{Region: region}), ir.OtherInternal, length, effect, control)
	effect = elements

	a := l.newBuilder(effect, control)
	if err := a.Allocate(prediction.InstanceSize, region, ir.Array); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), elements)
	a.Store(ir.ForJSArrayLength(kind), length)
	l.storeInObjectUndefined(a, m, 0, prediction.InObjectPropertyCount)
	return l.finishAndChange(node, a)
}

// reduceNewArrayValues lowers new Array(v0, v1, ...) with the values as
// elements. Values are checked against the elements kind first.
func (l *Lowering) reduceNewArrayValues(node ir.NodeID, values []ir.NodeID, initialMap *heap.Map, region heap.Region, prediction deps.SlackTrackingPrediction) Reduction {
	g := l.graph
	n := g.Node(node)
	kind := initialMap.Kind
	if !l.limits.fits(prediction.InstanceSize) || !l.limits.fits(elementsSize(kind, len(values))) {
		return NoChange(BailTooLarge)
	}

	effect := n.EffectInput()
	control := n.ControlInput()
	checked := make([]ir.NodeID, len(values))
	for i, v := range values {
		switch {
		case kind.IsSmi():
			if !l.typeOf(v).Is(ir.SignedSmall) {
				v = g.NewTypedNode(ir.Op(ir.OpCheckSmi, nil), ir.SignedSmall, v, effect, control)
				effect = v
			}
		case kind.IsDouble():
			if !l.typeOf(v).Is(ir.Number) {
				v = g.NewTypedNode(ir.Op(ir.OpCheckNumber, nil), ir.Number, v, effect, control)
				effect = v
			}
			v = g.NewTypedNode(ir.Op(ir.OpNumberSilenceNaN, nil), ir.Number, v)
		}
		checked[i] = v
	}

	elements, effect := l.allocateValueElements(node, effect, control, kind, checked, region)

	a := l.newBuilder(effect, control)
	if err := a.Allocate(prediction.InstanceSize, region, ir.Array); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(initialMap))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), elements)
	a.Store(ir.ForJSArrayLength(kind), l.number(float64(len(values))))
	l.storeInObjectUndefined(a, initialMap, 0, prediction.InObjectPropertyCount)
	return l.finishAndChange(node, a)
}

func elementsSize(kind heap.ElementsKind, length int) int {
	if kind.IsDouble() {
		return heap.FixedDoubleArraySize(length)
	}
	return heap.FixedArraySize(length)
}

func (l *Lowering) elementsStore(kind heap.ElementsKind) (*heap.Map, ir.ElementAccess, ir.ElementAccess) {
	if kind.IsDouble() {
		return l.native.FixedDoubleArrayMap, ir.ForFixedDoubleArrayElement(), ir.ForFixedDoubleArrayElement()
	}
	return l.native.FixedArrayMap, ir.ForFixedArrayElement(heap.HoleyElements), ir.ForFixedArrayElement(kind)
}

// allocateHoleyElements allocates a backing store of capacity holes.
func (l *Lowering) allocateHoleyElements(node, effect, control ir.NodeID, kind heap.ElementsKind, capacity int, region heap.Region) (elements, newEffect ir.NodeID) {
	m, holeAccess, _ := l.elementsStore(kind)
	a := l.newBuilder(effect, control)
	check(a.AllocateArray(capacity, m, region) == nil, node, "elements of capacity %d too large", capacity)
	for i := 0; i < capacity; i++ {
		a.StoreElement(holeAccess, i, l.theHole())
	}
	elements = a.Finish()
	return elements, elements
}

// allocateValueElements allocates a backing store holding values.
func (l *Lowering) allocateValueElements(node, effect, control ir.NodeID, kind heap.ElementsKind, values []ir.NodeID, region heap.Region) (elements, newEffect ir.NodeID) {
	m, _, access := l.elementsStore(kind)
	a := l.newBuilder(effect, control)
	check(a.AllocateArray(len(values), m, region) == nil, node, "elements of length %d too large", len(values))
	for i, v := range values {
		a.StoreElement(access, i, v)
	}
	elements = a.Finish()
	return elements, elements
}

// reduceNewArrayToStubCall turns the construction into a call to the
// matching array constructor builtin. Value inputs become the stub's calling
// convention: code, new target, allocation site, argument count, receiver,
// arguments.
func (l *Lowering) reduceNewArrayToStubCall(node ir.NodeID, site *heap.AllocationSite) Reduction {
	g := l.graph
	n := g.Node(node)
	arity := n.Params().(ir.CreateArrayParams).Arity
	target := n.ValueInput(0)
	newTarget := n.ValueInput(1)

	typeInfo := l.undefined()
	kind := heap.PackedSmiElements
	if site != nil {
		typeInfo = l.constant(site)
		kind = site.Kind
	}
	mode := heap.DontOverride
	if site == nil || kind.ShouldTrack() {
		mode = heap.DisableAllocationSites
	}

	// Calls with a new target other than the Array function itself, or a
	// new target that may be a proxy, can run arbitrary code.
	props := ir.CallNoDeopt
	if newTarget == target && !l.typeOf(newTarget).Maybe(ir.Proxy) {
		props |= ir.CallNoWrite
	}

	var builtin string
	switch arity {
	case 0:
		builtin = heap.ArrayNoArgumentConstructor(kind, mode)
	case 1:
		builtin = heap.ArraySingleArgumentConstructor(kind.Holey(), mode)
	default:
		builtin = heap.ArrayNArgumentsConstructor
		props = ir.CallNoProperties
	}
	code, ok := l.native.Builtin(builtin)
	if !ok {
		return NoChange(BailDataMissing)
	}

	g.ReplaceInput(node, 0, l.constant(code))
	g.InsertInput(node, 2, typeInfo)
	g.InsertInput(node, 3, l.number(float64(arity)))
	g.InsertInput(node, 4, l.undefined())
	g.ChangeOp(node, ir.NewOperator(ir.OpCall,
		ir.CallParams{Builtin: builtin, Arity: arity, Properties: props}, arity+5))
	return Changed(node)
}

func (l *Lowering) reduceJSCreateEmptyLiteralArray(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.FeedbackParams)
	site, ok := p.Vector.Get(p.Slot).(*heap.AllocationSite)
	if !ok {
		return NoChange(BailNoFeedback)
	}
	check(site.Boilerplate == nil, node, "empty literal site %s has a boilerplate", site.Label())
	m, ok := l.native.InitialJSArrayMap(site.Kind)
	if !ok {
		return NoChange(BailDataMissing)
	}
	region := l.ledger.RegisterPretenureDecision(site)
	l.ledger.RegisterElementsKindDependency(site)
	prediction := deps.SlackTrackingPrediction{InstanceSize: m.InstanceSize, InObjectPropertyCount: m.InObjectProperties}
	return l.reduceNewArrayCapacity(node, l.number(0), 0, m, region, prediction)
}

func (l *Lowering) reduceJSCreateEmptyLiteralObject(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	fn := l.native.ObjectFunction
	check(fn.HasInitialMap(), node, "object function has no initial map")
	m := fn.InitialMap
	check(!m.IsJSArrayMap(), node, "object function initial map is an array map")
	check(!m.Dictionary, node, "object function initial map is a dictionary map")
	if !l.limits.fits(m.InstanceSize) {
		return NoChange(BailTooLarge)
	}

	a := l.newBuilder(n.EffectInput(), n.ControlInput())
	if err := a.Allocate(m.InstanceSize, heap.Young, ir.OtherObject); err != nil {
		return NoChange(BailTooLarge)
	}
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), l.emptyFixedArray())
	l.storeInObjectUndefined(a, m, 0, m.InObjectProperties)
	return l.finishAndChange(node, a)
}
