package lowering

import (
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

func (l *Lowering) reduceJSCreateLiteralArrayOrObject(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.CreateLiteralParams)
	site, ok := p.Feedback.Vector.Get(p.Feedback.Slot).(*heap.AllocationSite)
	if !ok || !site.IsFastLiteral() {
		return NoChange(BailNoFeedback)
	}
	region := heap.Young
	if l.limits.AllocationSitePretenuring && site.Pretenure {
		region = heap.Old
	}
	if reason := l.checkFastLiteral(site.Boilerplate, region); reason != "" {
		return NoChange(reason)
	}
	if l.limits.AllocationSitePretenuring {
		region = l.ledger.RegisterPretenureDecision(site)
	}
	l.ledger.RegisterElementsKindsDependency(site)

	control := n.ControlInput()
	value := l.allocateFastLiteral(node, n.EffectInput(), control, site.Boilerplate, region)
	return l.replaceWithAllocation(node, value, control)
}

// checkFastLiteral walks the boilerplate graph and reports why it cannot be
// cloned inline, or "" when it can. Every later allocation of the clone is
// guaranteed to fit.
func (l *Lowering) checkFastLiteral(root *heap.JSObject, region heap.Region) BailReason {
	type item struct {
		obj   *heap.JSObject
		depth int
	}
	properties := 0
	stack := []item{{root, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.depth > l.limits.MaxFastLiteralDepth {
			return BailOverLimit
		}
		m := it.obj.Map
		if m.Dictionary || m.SlackTracking {
			return BailNotInlineable
		}
		if !l.limits.fits(m.InstanceSize) {
			return BailTooLarge
		}
		for _, d := range m.Descriptors {
			if d.Location != heap.LocationField {
				continue
			}
			properties++
			if properties > l.limits.MaxFastLiteralProperties {
				return BailOverLimit
			}
			v := it.obj.Field(d.FieldIndex)
			if nested, ok := v.(*heap.JSObject); ok {
				stack = append(stack, item{nested, it.depth + 1})
			}
			if d.Representation == heap.RepresentationDouble && !l.limits.fits(heap.HeapNumberSize) {
				return BailTooLarge
			}
		}

		e := it.obj.Elements
		if e == nil || e.Len() == 0 || heap.IsCopyOnWrite(e) {
			if e != nil && region == heap.Old && !e.Immortal() && it.obj.TenuredElements == nil {
				return BailDataMissing
			}
			continue
		}
		if !l.limits.fits(heap.FixedArraySize(e.Len())) {
			return BailTooLarge
		}
		if fa, ok := e.(*heap.FixedArray); ok {
			for _, v := range fa.Values {
				if nested, ok := v.(*heap.JSObject); ok {
					stack = append(stack, item{nested, it.depth + 1})
				}
			}
		}
	}
	return ""
}

// cloneFrame is the state of one boilerplate being cloned. Nested
// boilerplates are cloned before their parent is allocated, in field order
// and then element order.
type cloneFrame struct {
	obj *heap.JSObject

	// Next descriptor and element to visit.
	desc int
	elem int

	fields        []fieldInit
	elementsDone  bool
	elements      ir.NodeID
	elementValues []ir.NodeID
	// awaiting is set while a nested clone is on the stack above.
	awaiting bool
}

type fieldInit struct {
	access ir.FieldAccess
	value  ir.NodeID
}

// allocateFastLiteral emits a deep copy of boilerplate and returns the
// value of the copy. Shared copy-on-write backing stores are referenced,
// not copied. The effect chain runs through every nested allocation.
func (l *Lowering) allocateFastLiteral(node, effect, control ir.NodeID, boilerplate *heap.JSObject, region heap.Region) ir.NodeID {
	result := ir.NoNode
	stack := []*cloneFrame{{obj: boilerplate}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.awaiting {
			f.awaiting = false
			if !f.elementsDone {
				if f.elementValues == nil {
					d := f.obj.Map.Descriptors[f.desc]
					f.fields = append(f.fields, fieldInit{l.fieldAccess(f.obj.Map, d), result})
					f.desc++
				} else {
					f.elementValues[f.elem] = result
					f.elem++
				}
			}
		}

		if child := l.cloneFields(node, f, &effect, control, region); child != nil {
			f.awaiting = true
			stack = append(stack, &cloneFrame{obj: child})
			continue
		}
		if child := l.cloneElements(node, f, &effect, control, region); child != nil {
			f.awaiting = true
			stack = append(stack, &cloneFrame{obj: child})
			continue
		}

		result = l.allocateLiteralObject(node, f, &effect, control, region)
		stack = stack[:len(stack)-1]
	}
	return result
}

func (l *Lowering) fieldAccess(m *heap.Map, d heap.Descriptor) ir.FieldAccess {
	a := ir.ForJSObjectInObjectProperty(m, d.FieldIndex)
	a.Name = d.Name
	return a
}

// cloneFields computes the initial values of f's in-object fields. It
// returns a nested boilerplate that has to be cloned first, or nil when
// every field is done.
func (l *Lowering) cloneFields(node ir.NodeID, f *cloneFrame, effect *ir.NodeID, control ir.NodeID, region heap.Region) *heap.JSObject {
	if f.elementValues != nil || f.elementsDone {
		return nil
	}
	m := f.obj.Map
	for ; f.desc < len(m.Descriptors); f.desc++ {
		d := m.Descriptors[f.desc]
		if d.Location != heap.LocationField {
			continue
		}
		access := l.fieldAccess(m, d)
		v := f.obj.Field(d.FieldIndex)
		var value ir.NodeID
		switch o := v.(type) {
		case heap.RawDouble:
			access = ir.ForJSObjectOffsetFloat64(access.Offset)
			access.Name = d.Name
			value = l.number(float64(o))
		case *heap.JSObject:
			return o
		default:
			switch d.Representation {
			case heap.RepresentationDouble:
				number, ok := v.(*heap.HeapNumber)
				check(ok, node, "double field %s of %s is not a heap number", d.Name, f.obj.Label())
				value = l.allocateMutableHeapNumber(node, effect, control, number.Value, region)
			case heap.RepresentationSmi:
				if odd, ok := v.(*heap.Oddball); ok && odd.Kind == heap.OddballUninitialized {
					value = l.number(0)
				} else {
					smi, ok := v.(heap.Smi)
					check(ok, node, "smi field %s of %s holds a non-smi", d.Name, f.obj.Label())
					value = l.number(float64(smi))
				}
			default:
				value = l.valueConstant(node, v)
			}
		}
		f.fields = append(f.fields, fieldInit{access, value})
	}

	// Slack left by in-object tracking is filled with one-pointer fillers.
	claimed := make(map[int]bool, len(m.Descriptors))
	for _, d := range m.Descriptors {
		if d.Location == heap.LocationField {
			claimed[d.FieldIndex] = true
		}
	}
	filler := l.constant(l.native.OnePointerFillerMap)
	for i := 0; i < m.InObjectProperties; i++ {
		if !claimed[i] {
			f.fields = append(f.fields, fieldInit{ir.ForJSObjectInObjectProperty(m, i), filler})
		}
	}
	f.elementValues = []ir.NodeID{}
	return nil
}

func (l *Lowering) allocateMutableHeapNumber(node ir.NodeID, effect *ir.NodeID, control ir.NodeID, v float64, region heap.Region) ir.NodeID {
	a := l.newBuilder(*effect, control)
	check(a.Allocate(heap.HeapNumberSize, region, ir.OtherInternal) == nil, node, "heap number too large")
	a.Store(ir.ForMap(), l.constant(l.native.MutableHeapNumberMap))
	a.Store(ir.ForHeapNumberValue(), l.number(v))
	box := a.Finish()
	*effect = box
	return box
}

// cloneElements builds f's backing store once its fields are done. It
// returns a nested boilerplate element that has to be cloned first.
func (l *Lowering) cloneElements(node ir.NodeID, f *cloneFrame, effect *ir.NodeID, control ir.NodeID, region heap.Region) *heap.JSObject {
	if f.elementsDone {
		return nil
	}
	e := f.obj.Elements
	if e == nil {
		f.elements = l.emptyFixedArray()
		f.elementsDone = true
		return nil
	}
	if e.Len() == 0 || heap.IsCopyOnWrite(e) {
		if region == heap.Old && !e.Immortal() {
			check(f.obj.TenuredElements != nil, node, "%s has no tenured elements", f.obj.Label())
			e = f.obj.TenuredElements
		}
		f.elements = l.constant(e)
		f.elementsDone = true
		return nil
	}

	if len(f.elementValues) == 0 {
		f.elementValues = make([]ir.NodeID, e.Len())
	}
	switch arr := e.(type) {
	case *heap.FixedDoubleArray:
		for ; f.elem < arr.Len(); f.elem++ {
			if arr.IsHole(f.elem) {
				f.elementValues[f.elem] = l.theHole()
			} else {
				f.elementValues[f.elem] = l.number(arr.Values[f.elem])
			}
		}
	case *heap.FixedArray:
		for ; f.elem < arr.Len(); f.elem++ {
			switch v := arr.Values[f.elem].(type) {
			case *heap.JSObject:
				return v
			case *heap.Oddball:
				if v.Kind == heap.OddballTheHole {
					f.elementValues[f.elem] = l.theHole()
					continue
				}
				f.elementValues[f.elem] = l.constant(v)
			default:
				f.elementValues[f.elem] = l.valueConstant(node, v)
			}
		}
	default:
		invariant(node, "unknown backing store %T", e)
	}

	m := e.ArrayMap()
	check(m != nil, node, "elements of %s have no map", f.obj.Label())
	access := ir.ForFixedArrayElement(heap.HoleyElements)
	if m.IsFixedDoubleArrayMap() {
		access = ir.ForFixedDoubleArrayElement()
	}
	a := l.newBuilder(*effect, control)
	check(a.AllocateArray(e.Len(), m, region) == nil, node, "elements of %s too large", f.obj.Label())
	for i, v := range f.elementValues {
		a.StoreElement(access, i, v)
	}
	f.elements = a.Finish()
	*effect = f.elements
	f.elementsDone = true
	return nil
}

func (l *Lowering) allocateLiteralObject(node ir.NodeID, f *cloneFrame, effect *ir.NodeID, control ir.NodeID, region heap.Region) ir.NodeID {
	m := f.obj.Map
	a := l.newBuilder(*effect, control)
	check(a.Allocate(m.InstanceSize, region, typeForMap(m)) == nil, node, "%s too large", f.obj.Label())
	a.Store(ir.ForMap(), l.constant(m))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.emptyFixedArray())
	a.Store(ir.ForJSObjectElements(), f.elements)
	if m.IsJSArrayMap() {
		check(f.obj.Length != nil, node, "array boilerplate %s has no length", f.obj.Label())
		a.Store(ir.ForJSArrayLength(m.Kind), l.valueConstant(node, f.obj.Length))
	}
	for _, fi := range f.fields {
		a.Store(fi.access, fi.value)
	}
	value := a.Finish()
	*effect = value
	return value
}

func (l *Lowering) reduceJSCreateLiteralRegExp(node ir.NodeID) Reduction {
	n := l.graph.Node(node)
	p := n.Params().(ir.CreateLiteralParams)
	boilerplate, ok := p.Feedback.Vector.Get(p.Feedback.Slot).(*heap.JSRegExp)
	if !ok {
		return NoChange(BailNoFeedback)
	}
	check(boilerplate.Map != nil && boilerplate.Data != nil && boilerplate.Source != nil, node,
		"regexp boilerplate %s is incomplete", boilerplate.Label())

	control := n.ControlInput()
	value, ok := l.allocateLiteralRegExp(node, n.EffectInput(), control, boilerplate)
	if !ok {
		return NoChange(BailTooLarge)
	}
	return l.replaceWithAllocation(node, value, control)
}

// allocateLiteralRegExp copies a regexp boilerplate field by field and
// resets the last match position.
func (l *Lowering) allocateLiteralRegExp(node, effect, control ir.NodeID, boilerplate *heap.JSRegExp) (ir.NodeID, bool) {
	size := heap.JSRegExpSize + heap.JSRegExpInObjectFieldCount*heap.PointerSize
	check(heap.JSRegExpLastIndexOffset+heap.PointerSize == size, node, "regexp layout mismatch")

	a := l.newBuilder(effect, control)
	if err := a.Allocate(size, heap.Young, typeForMap(boilerplate.Map)); err != nil {
		return ir.NoNode, false
	}
	a.Store(ir.ForMap(), l.constant(boilerplate.Map))
	a.Store(ir.ForJSObjectPropertiesOrHash(), l.valueConstant(node, boilerplate.RawPropertiesOrHash))
	a.Store(ir.ForJSObjectElements(), l.valueConstant(node, boilerplate.Elements))
	a.Store(ir.ForJSRegExpData(), l.constant(boilerplate.Data))
	a.Store(ir.ForJSRegExpSource(), l.constant(boilerplate.Source))
	a.Store(ir.ForJSRegExpFlags(), l.number(float64(boilerplate.Flags)))
	a.Store(ir.ForJSRegExpLastIndex(), l.number(0))
	return a.Finish(), true
}
