package compiler

import (
	"fmt"

	"github.com/roach88/alloclower/internal/heap"
)

// heapBuilder materializes the heap section of a unit on top of a
// bootstrapped broker. Objects are declared first so that references may
// form cycles, then defined in label order within each section.
type heapBuilder struct {
	unit   *UnitSpec
	broker *heap.Broker
	native *heap.NativeContext
	err    *ValidationError
}

func buildHeap(u *UnitSpec) (*heap.Broker, *heap.NativeContext, error) {
	b := heap.NewBroker()
	nc := heap.Bootstrap(b)
	if u.ProtectorIntact != nil {
		nc.ArrayConstructorProtector.Intact = *u.ProtectorIntact
	}
	hb := &heapBuilder{unit: u, broker: b, native: nc}
	hb.declare()
	hb.define()
	if hb.err != nil {
		return nil, nil, ValidationErrors{*hb.err}
	}
	return b, nc, nil
}

func (hb *heapBuilder) fail(line int, field, format string, args ...any) {
	if hb.err == nil {
		hb.err = &ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    ErrWrongObjectKind,
			Line:    line,
		}
	}
}

func (hb *heapBuilder) declare() {
	u, b := hb.unit, hb.broker
	for _, l := range sortedKeys(u.Maps) {
		heap.Add(b, l, &heap.Map{})
	}
	for _, l := range sortedKeys(u.Shared) {
		heap.Add(b, l, &heap.SharedInfo{})
	}
	for _, l := range sortedKeys(u.Functions) {
		heap.Add(b, l, &heap.Function{})
		if u.Functions[l].Shared == "" {
			heap.Add(b, l+"_shared", &heap.SharedInfo{
				Name:             l,
				FunctionMapIndex: heap.StrictFunctionMapIndex,
				Code:             hb.lazy(),
			})
		}
	}
	for _, l := range sortedKeys(u.Cells) {
		heap.Add(b, l, &heap.FeedbackCell{})
	}
	for _, l := range sortedKeys(u.Sites) {
		heap.Add(b, l, &heap.AllocationSite{})
	}
	for _, l := range sortedKeys(u.Objects) {
		heap.Add(b, l, &heap.JSObject{})
	}
	for _, l := range sortedKeys(u.Arrays) {
		if hb.isDoubleArray(u.Arrays[l]) {
			heap.Add(b, l, &heap.FixedDoubleArray{})
		} else {
			heap.Add(b, l, &heap.FixedArray{})
		}
	}
	for _, l := range sortedKeys(u.Numbers) {
		heap.Add(b, l, &heap.HeapNumber{})
	}
	for _, l := range sortedKeys(u.Strings) {
		heap.Add(b, l, &heap.String{Value: u.Strings[l]})
	}
	for _, l := range sortedKeys(u.RegExps) {
		heap.Add(b, l, &heap.JSRegExp{})
	}
	for _, l := range sortedKeys(u.Scopes) {
		heap.Add(b, l, &heap.ScopeInfo{})
	}
	for _, l := range sortedKeys(u.Vectors) {
		heap.Add(b, l, &heap.FeedbackVector{})
	}
}

func (hb *heapBuilder) isDoubleArray(a *ArraySpec) bool {
	if m, ok := hb.unit.Maps[a.Map]; ok {
		return m.Type == heap.TypeFixedDoubleArray.String()
	}
	m, ok := lookupAs[*heap.Map](hb.broker, a.Map)
	return ok && m.IsFixedDoubleArrayMap()
}

func (hb *heapBuilder) lazy() *heap.Code {
	code, _ := hb.native.Builtin(heap.CompileLazy)
	return code
}

func (hb *heapBuilder) define() {
	hb.defineMaps()
	hb.defineShared()
	hb.defineFunctions()
	hb.defineCells()
	hb.defineSites()
	hb.defineObjects()
	hb.defineArrays()
	hb.defineNumbers()
	hb.defineRegExps()
	hb.defineScopes()
	hb.defineVectors()
}

// lookupAs finds label and asserts its kind.
func lookupAs[T heap.HeapObject](b *heap.Broker, label string) (T, bool) {
	var zero T
	o, ok := b.Lookup(label)
	if !ok {
		return zero, false
	}
	t, ok := o.(T)
	return t, ok
}

// resolve returns the object named by label as T. An empty label yields
// the zero value.
func resolve[T heap.HeapObject](hb *heapBuilder, line int, field, label, want string) T {
	var zero T
	if label == "" {
		return zero
	}
	o, ok := hb.broker.Lookup(label)
	if !ok {
		hb.fail(line, field, "unknown label %q", label)
		return zero
	}
	t, ok := o.(T)
	if !ok {
		hb.fail(line, field, "%q is a %s, want %s", label, o.InstanceType(), want)
		return zero
	}
	return t
}

func (hb *heapBuilder) value(field string, v ValueSpec) heap.Object {
	switch v.Kind {
	case ValueSmi:
		if v.Smi < heap.SmiMinValue || v.Smi > heap.SmiMaxValue {
			hb.fail(v.Line, field, "%d is outside the Smi range", v.Smi)
		}
		return heap.Smi(v.Smi)
	case ValueDouble:
		return heap.RawDouble(v.Double)
	}
	return resolve[heap.HeapObject](hb, v.Line, field, v.Ref, "a heap object")
}

func (hb *heapBuilder) values(field string, vals []ValueSpec) []heap.Object {
	out := make([]heap.Object, len(vals))
	for i, v := range vals {
		out[i] = hb.value(fmt.Sprintf("%s[%d]", field, i), v)
	}
	return out
}

// baseSize is the header size of instances of t, before in-object
// properties.
func baseSize(t heap.InstanceType) int {
	switch t {
	case heap.TypeJSArray:
		return heap.JSArraySize
	case heap.TypeJSRegExp:
		return heap.JSRegExpSize
	case heap.TypeJSFunction:
		return heap.JSFunctionSizeWithPrototype
	case heap.TypeJSArgumentsObject:
		return heap.JSStrictArgumentsObjectSize
	}
	if t.IsJSReceiver() {
		return heap.JSObjectHeaderSize
	}
	return 0
}

func (hb *heapBuilder) defineMaps() {
	u := hb.unit
	for _, l := range sortedKeys(u.Maps) {
		s := u.Maps[l]
		field := "maps." + l
		m, _ := lookupAs[*heap.Map](hb.broker, l)
		m.Type, _ = heap.ParseInstanceType(s.Type)
		m.InObjectProperties = s.InObject
		m.UnusedPropertyFields = s.Unused
		m.InstanceSize = s.InstanceSize
		if m.InstanceSize < 0 {
			m.InstanceSize = baseSize(m.Type) + s.InObject*heap.PointerSize
		}
		switch {
		case s.Kind != "":
			m.Kind, _ = heap.ParseElementsKind(s.Kind)
		case m.Type == heap.TypeJSArray:
			m.Kind = heap.PackedSmiElements
		default:
			m.Kind = heap.HoleyElements
		}
		m.Dictionary = s.Dictionary
		m.SlackTracking = s.SlackTracking
		m.HasPrototypeSlot = s.PrototypeSlot
		m.CopyOnWrite = s.CopyOnWrite
		if s.Constructor != "" {
			m.Constructor = resolve[heap.HeapObject](hb, s.Line, field+".constructor", s.Constructor, "a heap object")
		}
		for _, d := range s.Descriptors {
			desc := heap.Descriptor{Name: d.Name, FieldIndex: d.Field}
			if d.Location == "descriptor" {
				desc.Location = heap.LocationDescriptor
			}
			if d.Representation != "" {
				desc.Representation, _ = heap.ParseRepresentation(d.Representation)
			}
			m.Descriptors = append(m.Descriptors, desc)
		}
	}
	// Sibling sets need every map's kind.
	for _, l := range sortedKeys(u.Maps) {
		s := u.Maps[l]
		if len(s.Siblings) == 0 {
			continue
		}
		m, _ := lookupAs[*heap.Map](hb.broker, l)
		group := []*heap.Map{m}
		for i, sib := range s.Siblings {
			if sm := resolve[*heap.Map](hb, s.Line, fmt.Sprintf("maps.%s.siblings[%d]", l, i), sib, "a map"); sm != nil {
				group = append(group, sm)
			}
		}
		heap.LinkSiblings(group...)
	}
}

func (hb *heapBuilder) defineShared() {
	u := hb.unit
	for _, l := range sortedKeys(u.Shared) {
		s := u.Shared[l]
		sh, _ := lookupAs[*heap.SharedInfo](hb.broker, l)
		sh.Name = s.Name
		if sh.Name == "" {
			sh.Name = l
		}
		sh.FormalParameterCount = s.Formal
		sh.DuplicateParameters = s.DuplicateParameters
		sh.RegisterCount = s.Registers
		sh.FunctionMapIndex = heap.SloppyFunctionMapIndex
		if s.MapIndex != "" {
			sh.FunctionMapIndex = mapIndexNames[s.MapIndex]
		}
		if s.Kind != "" {
			sh.Kind, _ = heap.ParseFunctionKind(s.Kind)
		}
		sh.Code = hb.lazy()
		if s.Code != "" {
			sh.Code = resolve[*heap.Code](hb, s.Line, "shared."+l+".code", s.Code, "code")
		}
	}
}

func (hb *heapBuilder) defineFunctions() {
	u := hb.unit
	for _, l := range sortedKeys(u.Functions) {
		s := u.Functions[l]
		field := "functions." + l
		f, _ := lookupAs[*heap.Function](hb.broker, l)
		shared := s.Shared
		if shared == "" {
			shared = l + "_shared"
		}
		f.Shared = resolve[*heap.SharedInfo](hb, s.Line, field+".shared", shared, "shared info")
		f.InitialMap = resolve[*heap.Map](hb, s.Line, field+".initial_map", s.InitialMap, "a map")
		f.IsConstructor = s.Constructor
		f.Cell = resolve[*heap.FeedbackCell](hb, s.Line, field+".cell", s.Cell, "a feedback cell")
		f.Vector = resolve[*heap.FeedbackVector](hb, s.Line, field+".vector", s.Vector, "a feedback vector")
		if f.InitialMap != nil && f.InitialMap.Constructor == nil {
			f.InitialMap.Constructor = f
		}
	}
}

func (hb *heapBuilder) defineCells() {
	u := hb.unit
	for _, l := range sortedKeys(u.Cells) {
		s := u.Cells[l]
		c, _ := lookupAs[*heap.FeedbackCell](hb.broker, l)
		c.Map = resolve[*heap.Map](hb, s.Line, "cells."+l+".map", s.Map, "a map")
		c.Vector = resolve[*heap.FeedbackVector](hb, s.Line, "cells."+l+".vector", s.Vector, "a feedback vector")
	}
}

func (hb *heapBuilder) defineSites() {
	u := hb.unit
	for _, l := range sortedKeys(u.Sites) {
		s := u.Sites[l]
		field := "sites." + l
		site, _ := lookupAs[*heap.AllocationSite](hb.broker, l)
		site.Kind = heap.PackedSmiElements
		if s.Kind != "" {
			site.Kind, _ = heap.ParseElementsKind(s.Kind)
		}
		site.CanInlineCall = s.CanInlineCall
		site.Pretenure = s.Pretenure
		site.Boilerplate = resolve[*heap.JSObject](hb, s.Line, field+".boilerplate", s.Boilerplate, "an object")
		site.FastLiteral = s.FastLiteral
		for i, n := range s.Nested {
			nested := resolve[*heap.AllocationSite](hb, s.Line, fmt.Sprintf("%s.nested[%d]", field, i), n, "an allocation site")
			if nested != nil {
				site.Nested = append(site.Nested, nested)
			}
		}
	}
}

func (hb *heapBuilder) defineObjects() {
	u := hb.unit
	for _, l := range sortedKeys(u.Objects) {
		s := u.Objects[l]
		field := "objects." + l
		o, _ := lookupAs[*heap.JSObject](hb.broker, l)
		o.Map = resolve[*heap.Map](hb, s.Line, field+".map", s.Map, "a map")
		o.Fields = hb.values(field+".fields", s.Fields)
		o.Elements = hb.elements(s.Line, field+".elements", s.Elements)
		if o.Elements == nil {
			o.Elements = hb.native.EmptyFixedArray
		}
		o.TenuredElements = hb.elements(s.Line, field+".tenured_elements", s.TenuredElements)
		switch {
		case s.Length != nil:
			o.Length = hb.value(field+".length", *s.Length)
		case o.Map != nil && o.Map.IsJSArrayMap():
			o.Length = heap.Smi(o.Elements.Len())
		}
		o.ObjectCreateMap = resolve[*heap.Map](hb, s.Line, field+".object_create_map", s.ObjectCreateMap, "a map")
	}
}

// elements resolves a backing store label. Elements may be plain or double
// arrays, so the lookup cannot go through resolve.
func (hb *heapBuilder) elements(line int, field, label string) heap.FixedArrayBase {
	if label == "" {
		return nil
	}
	o, ok := hb.broker.Lookup(label)
	if !ok {
		hb.fail(line, field, "unknown label %q", label)
		return nil
	}
	e, ok := o.(heap.FixedArrayBase)
	if !ok {
		hb.fail(line, field, "%q is a %s, want a backing store", label, o.InstanceType())
		return nil
	}
	return e
}

func (hb *heapBuilder) defineArrays() {
	u := hb.unit
	for _, l := range sortedKeys(u.Arrays) {
		s := u.Arrays[l]
		field := "arrays." + l
		o, _ := hb.broker.Lookup(l)
		switch a := o.(type) {
		case *heap.FixedDoubleArray:
			a.Map = resolve[*heap.Map](hb, s.Line, field+".map", s.Map, "a map")
			a.Values = make([]float64, len(s.Values))
			a.Holes = make([]bool, len(s.Values))
			for i, v := range s.Values {
				switch v.Kind {
				case ValueSmi:
					a.Values[i] = float64(v.Smi)
				case ValueDouble:
					a.Values[i] = v.Double
				default:
					a.Holes[i] = true
				}
			}
		case *heap.FixedArray:
			a.Map = hb.native.FixedArrayMap
			if s.Map != "" {
				a.Map = resolve[*heap.Map](hb, s.Line, field+".map", s.Map, "a map")
			}
			a.Values = hb.values(field+".values", s.Values)
		}
	}
}

func (hb *heapBuilder) defineNumbers() {
	u := hb.unit
	for _, l := range sortedKeys(u.Numbers) {
		s := u.Numbers[l]
		n, _ := lookupAs[*heap.HeapNumber](hb.broker, l)
		n.Value = s.Value
		n.Mutable = s.Mutable
	}
}

// defineRegExps builds each boilerplate with its source string and a data
// array holding the source and flag bits.
func (hb *heapBuilder) defineRegExps() {
	u, b, nc := hb.unit, hb.broker, hb.native
	for _, l := range sortedKeys(u.RegExps) {
		s := u.RegExps[l]
		flags, err := regExpFlags(s.Flags)
		if err != nil {
			hb.fail(s.Line, "regexps."+l+".flags", "%v", err)
			continue
		}
		source := heap.Add(b, l+"_source", &heap.String{Value: s.Source})
		data := heap.Add(b, l+"_data", &heap.FixedArray{
			Map:    nc.FixedArrayMap,
			Values: []heap.Object{source, flags},
		})
		r, _ := lookupAs[*heap.JSRegExp](b, l)
		r.Map = nc.RegExpMap
		r.RawPropertiesOrHash = nc.EmptyFixedArray
		r.Elements = nc.EmptyFixedArray
		r.Data = data
		r.Source = source
		r.Flags = flags
	}
}

func (hb *heapBuilder) defineScopes() {
	u := hb.unit
	for _, l := range sortedKeys(u.Scopes) {
		s := u.Scopes[l]
		si, _ := lookupAs[*heap.ScopeInfo](hb.broker, l)
		si.Scope, _ = heap.ParseScopeType(s.Type)
		si.ContextLength = s.Length
	}
}

func (hb *heapBuilder) defineVectors() {
	u := hb.unit
	for _, l := range sortedKeys(u.Vectors) {
		s := u.Vectors[l]
		v, _ := lookupAs[*heap.FeedbackVector](hb.broker, l)
		v.Slots = hb.values("vectors."+l+".slots", s.Slots)
	}
}
