package heap

import "fmt"

// IterationKind selects what an iterator yields.
type IterationKind int

const (
	IterateKeys IterationKind = iota
	IterateValues
	IterateEntries
)

var iterationKindNames = map[IterationKind]string{
	IterateKeys:    "keys",
	IterateValues:  "values",
	IterateEntries: "entries",
}

func (k IterationKind) String() string {
	if s, ok := iterationKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("IterationKind(%d)", int(k))
}

// ParseIterationKind resolves a name produced by IterationKind.String.
func ParseIterationKind(s string) (IterationKind, bool) {
	for k, name := range iterationKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Protector is a property cell guarding a global assumption.
type Protector struct {
	header
	Intact bool
}

func (*Protector) InstanceType() InstanceType { return TypePropertyCell }

// AllocationSiteOverrideMode tells the array constructor stubs whether to
// keep updating the allocation site.
type AllocationSiteOverrideMode int

const (
	DontOverride AllocationSiteOverrideMode = iota
	DisableAllocationSites
)

func (m AllocationSiteOverrideMode) String() string {
	if m == DisableAllocationSites {
		return "DisableAllocationSites"
	}
	return "DontOverride"
}

var stubKindNames = map[ElementsKind]string{
	PackedSmiElements:    "PackedSmi",
	HoleySmiElements:     "HoleySmi",
	PackedElements:       "Packed",
	HoleyElements:        "Holey",
	PackedDoubleElements: "PackedDouble",
	HoleyDoubleElements:  "HoleyDouble",
}

// Builtin names of the generic array constructor entry points.
const (
	ArrayNArgumentsConstructor = "ArrayNArgumentsConstructor"
	CompileLazy                = "CompileLazy"
)

// ArrayNoArgumentConstructor names the zero-argument stub for kind and mode.
func ArrayNoArgumentConstructor(kind ElementsKind, mode AllocationSiteOverrideMode) string {
	return "ArrayNoArgumentConstructor_" + stubKindNames[kind] + "_" + mode.String()
}

// ArraySingleArgumentConstructor names the one-argument stub for kind and
// mode.
func ArraySingleArgumentConstructor(kind ElementsKind, mode AllocationSiteOverrideMode) string {
	return "ArraySingleArgumentConstructor_" + stubKindNames[kind] + "_" + mode.String()
}

// NativeContext holds the roots and the per-realm maps and functions.
type NativeContext struct {
	header

	Undefined     *Oddball
	Null          *Oddball
	True          *Oddball
	False         *Oddball
	TheHole       *Oddball
	Uninitialized *Oddball

	EmptyFixedArray *FixedArray

	FixedArrayMap              *Map
	FixedCOWArrayMap           *Map
	FixedDoubleArrayMap        *Map
	SloppyArgumentsElementsMap *Map
	NameDictionaryMap          *Map
	HeapNumberMap              *Map
	MutableHeapNumberMap       *Map
	OnePointerFillerMap        *Map
	NoClosuresCellMap          *Map
	OneClosureCellMap          *Map
	ManyClosuresCellMap        *Map

	FunctionContextMap *Map
	EvalContextMap     *Map
	BlockContextMap    *Map
	WithContextMap     *Map
	CatchContextMap    *Map

	ObjectFunction  *Function
	ArrayFunction   *Function
	PromiseFunction *Function

	SloppyArgumentsMap      *Map
	FastAliasedArgumentsMap *Map
	StrictArgumentsMap      *Map

	InitialArrayIteratorMap *Map
	IteratorResultMap       *Map
	StringIteratorMap       *Map
	SetValueIteratorMap     *Map
	SetKeyValueIteratorMap  *Map
	MapKeyIteratorMap       *Map
	MapValueIteratorMap     *Map
	MapKeyValueIteratorMap  *Map

	BoundFunctionWithConstructorMap    *Map
	BoundFunctionWithoutConstructorMap *Map

	RegExpMap                      *Map
	SlowObjectWithNullPrototypeMap *Map

	ArrayConstructorProtector *Protector

	functionMaps []*Map
	arrayMaps    map[ElementsKind]*Map
	builtins     map[string]*Code
}

func (*NativeContext) InstanceType() InstanceType { return TypeNativeContext }

// FunctionMap returns the function map at index.
func (nc *NativeContext) FunctionMap(index int) (*Map, bool) {
	if index < 0 || index >= len(nc.functionMaps) {
		return nil, false
	}
	return nc.functionMaps[index], true
}

// InitialJSArrayMap returns the initial JSArray map for a fast kind.
func (nc *NativeContext) InitialJSArrayMap(kind ElementsKind) (*Map, bool) {
	m, ok := nc.arrayMaps[kind]
	return m, ok
}

// Builtin returns the code object of a named builtin.
func (nc *NativeContext) Builtin(name string) (*Code, bool) {
	c, ok := nc.builtins[name]
	return c, ok
}

// CollectionIteratorMap returns the iterator map for a JSSet or JSMap
// iterated with kind. Set key iteration is served by the value iterator
// upstream and has no map.
func (nc *NativeContext) CollectionIteratorMap(collection InstanceType, kind IterationKind) (*Map, bool) {
	switch collection {
	case TypeJSSet:
		switch kind {
		case IterateValues:
			return nc.SetValueIteratorMap, true
		case IterateEntries:
			return nc.SetKeyValueIteratorMap, true
		}
	case TypeJSMap:
		switch kind {
		case IterateKeys:
			return nc.MapKeyIteratorMap, true
		case IterateValues:
			return nc.MapValueIteratorMap, true
		case IterateEntries:
			return nc.MapKeyValueIteratorMap, true
		}
	}
	return nil, false
}

// ObjectCreateMap returns the map Object.create(proto) would use.
func (nc *NativeContext) ObjectCreateMap(proto HeapObject) (*Map, bool) {
	switch p := proto.(type) {
	case *Oddball:
		if p == nc.Null {
			return nc.SlowObjectWithNullPrototypeMap, true
		}
	case *JSObject:
		if p.ObjectCreateMap != nil {
			return p.ObjectCreateMap, true
		}
	}
	return nil, false
}

// Oddball returns the singleton of the given kind.
func (nc *NativeContext) Oddball(kind OddballKind) *Oddball {
	switch kind {
	case OddballUndefined:
		return nc.Undefined
	case OddballNull:
		return nc.Null
	case OddballTrue:
		return nc.True
	case OddballFalse:
		return nc.False
	case OddballTheHole:
		return nc.TheHole
	case OddballUninitialized:
		return nc.Uninitialized
	}
	return nil
}

// Bootstrap registers the roots and native context with b.
func Bootstrap(b *Broker) *NativeContext {
	nc := &NativeContext{
		arrayMaps: make(map[ElementsKind]*Map),
		builtins:  make(map[string]*Code),
	}

	nc.Undefined = addRoot(b, "undefined", &Oddball{Kind: OddballUndefined})
	nc.Null = addRoot(b, "null", &Oddball{Kind: OddballNull})
	nc.True = addRoot(b, "true", &Oddball{Kind: OddballTrue})
	nc.False = addRoot(b, "false", &Oddball{Kind: OddballFalse})
	nc.TheHole = addRoot(b, "the_hole", &Oddball{Kind: OddballTheHole})
	nc.Uninitialized = addRoot(b, "uninitialized", &Oddball{Kind: OddballUninitialized})

	rootMap := func(label string, t InstanceType, size int) *Map {
		return addRoot(b, label, &Map{Type: t, InstanceSize: size})
	}
	nc.FixedArrayMap = rootMap("fixed_array_map", TypeFixedArray, 0)
	nc.FixedCOWArrayMap = rootMap("fixed_cow_array_map", TypeFixedArray, 0)
	nc.FixedCOWArrayMap.CopyOnWrite = true
	nc.FixedDoubleArrayMap = rootMap("fixed_double_array_map", TypeFixedDoubleArray, 0)
	nc.SloppyArgumentsElementsMap = rootMap("sloppy_arguments_elements_map", TypeFixedArray, 0)
	nc.NameDictionaryMap = rootMap("name_dictionary_map", TypeNameDictionary, 0)
	nc.HeapNumberMap = rootMap("heap_number_map", TypeHeapNumber, HeapNumberSize)
	nc.MutableHeapNumberMap = rootMap("mutable_heap_number_map", TypeMutableHeapNumber, HeapNumberSize)
	nc.OnePointerFillerMap = rootMap("one_pointer_filler_map", TypeFiller, PointerSize)
	nc.NoClosuresCellMap = rootMap("no_closures_cell_map", TypeFeedbackCell, 2*PointerSize)
	nc.OneClosureCellMap = rootMap("one_closure_cell_map", TypeFeedbackCell, 2*PointerSize)
	nc.ManyClosuresCellMap = rootMap("many_closures_cell_map", TypeFeedbackCell, 2*PointerSize)
	nc.FunctionContextMap = rootMap("function_context_map", TypeFunctionContext, 0)
	nc.EvalContextMap = rootMap("eval_context_map", TypeEvalContext, 0)
	nc.BlockContextMap = rootMap("block_context_map", TypeBlockContext, 0)
	nc.WithContextMap = rootMap("with_context_map", TypeWithContext, 0)
	nc.CatchContextMap = rootMap("catch_context_map", TypeCatchContext, 0)

	nc.EmptyFixedArray = addRoot(b, "empty_fixed_array", &FixedArray{Map: nc.FixedArrayMap})

	for _, name := range []string{CompileLazy, ArrayNArgumentsConstructor} {
		nc.builtins[name] = addRoot(b, name, &Code{Builtin: name})
	}
	for _, kind := range FastElementsKinds {
		for _, mode := range []AllocationSiteOverrideMode{DontOverride, DisableAllocationSites} {
			for _, name := range []string{
				ArrayNoArgumentConstructor(kind, mode),
				ArraySingleArgumentConstructor(kind, mode),
			} {
				nc.builtins[name] = addRoot(b, name, &Code{Builtin: name})
			}
		}
	}

	objectMap := func(label string, t InstanceType, size, inObject int) *Map {
		return addRoot(b, label, &Map{Type: t, InstanceSize: size, InObjectProperties: inObject, Kind: HoleyElements})
	}

	lazy := nc.builtins[CompileLazy]
	builtinFunction := func(name string, initial *Map) *Function {
		shared := Add(b, name+"_shared", &SharedInfo{
			Name:             name,
			FunctionMapIndex: StrictFunctionMapIndex,
			Code:             lazy,
		})
		f := Add(b, name, &Function{Shared: shared, InitialMap: initial, IsConstructor: true})
		initial.Constructor = f
		return f
	}

	const defaultInObject = 4
	nc.ObjectFunction = builtinFunction("object_function",
		objectMap("object_function_initial_map", TypeJSObject,
			JSObjectHeaderSize+defaultInObject*PointerSize, defaultInObject))

	var arrayMaps []*Map
	for _, kind := range FastElementsKinds {
		m := addRoot(b, "js_array_"+stubKindNames[kind]+"_map", &Map{
			Type:         TypeJSArray,
			InstanceSize: JSArraySize,
			Kind:         kind,
		})
		nc.arrayMaps[kind] = m
		arrayMaps = append(arrayMaps, m)
	}
	LinkSiblings(arrayMaps...)
	nc.ArrayFunction = builtinFunction("array_function", nc.arrayMaps[PackedSmiElements])
	for _, m := range arrayMaps {
		m.Constructor = nc.ArrayFunction
	}

	nc.PromiseFunction = builtinFunction("promise_function",
		objectMap("promise_map", TypeJSPromise,
			JSPromiseSize+PromiseEmbedderFieldCount*PointerSize, 0))

	nc.SloppyArgumentsMap = objectMap("sloppy_arguments_map", TypeJSArgumentsObject, JSSloppyArgumentsObjectSize, 2)
	nc.FastAliasedArgumentsMap = objectMap("fast_aliased_arguments_map", TypeJSArgumentsObject, JSSloppyArgumentsObjectSize, 2)
	nc.FastAliasedArgumentsMap.Kind = HoleyElements
	nc.StrictArgumentsMap = objectMap("strict_arguments_map", TypeJSArgumentsObject, JSStrictArgumentsObjectSize, 1)

	nc.InitialArrayIteratorMap = objectMap("initial_array_iterator_map", TypeJSArrayIterator, JSArrayIteratorSize, 0)
	nc.IteratorResultMap = objectMap("iterator_result_map", TypeJSObject, JSIteratorResultSize, 2)
	nc.StringIteratorMap = objectMap("initial_string_iterator_map", TypeJSStringIterator, JSStringIteratorSize, 0)
	nc.SetValueIteratorMap = objectMap("set_value_iterator_map", TypeJSSetIterator, JSCollectionIteratorSize, 0)
	nc.SetKeyValueIteratorMap = objectMap("set_key_value_iterator_map", TypeJSSetIterator, JSCollectionIteratorSize, 0)
	nc.MapKeyIteratorMap = objectMap("map_key_iterator_map", TypeJSMapIterator, JSCollectionIteratorSize, 0)
	nc.MapValueIteratorMap = objectMap("map_value_iterator_map", TypeJSMapIterator, JSCollectionIteratorSize, 0)
	nc.MapKeyValueIteratorMap = objectMap("map_key_value_iterator_map", TypeJSMapIterator, JSCollectionIteratorSize, 0)

	nc.BoundFunctionWithConstructorMap = objectMap("bound_function_with_constructor_map", TypeJSBoundFunction, JSBoundFunctionSize, 0)
	nc.BoundFunctionWithoutConstructorMap = objectMap("bound_function_without_constructor_map", TypeJSBoundFunction, JSBoundFunctionSize, 0)

	nc.functionMaps = make([]*Map, functionMapCount)
	nc.functionMaps[SloppyFunctionMapIndex] = objectMap("sloppy_function_map", TypeJSFunction, JSFunctionSizeWithPrototype, 0)
	nc.functionMaps[StrictFunctionMapIndex] = objectMap("strict_function_map", TypeJSFunction, JSFunctionSizeWithPrototype, 0)
	nc.functionMaps[MethodFunctionMapIndex] = objectMap("method_with_name_map", TypeJSFunction, JSFunctionSizeWithoutPrototype, 0)
	nc.functionMaps[GeneratorFunctionMapIndex] = objectMap("generator_function_map", TypeJSFunction, JSFunctionSizeWithPrototype, 0)
	nc.functionMaps[AsyncFunctionMapIndex] = objectMap("async_function_map", TypeJSFunction, JSFunctionSizeWithoutPrototype, 0)
	for _, i := range []int{SloppyFunctionMapIndex, StrictFunctionMapIndex, GeneratorFunctionMapIndex} {
		nc.functionMaps[i].HasPrototypeSlot = true
	}

	nc.RegExpMap = objectMap("regexp_map", TypeJSRegExp, JSRegExpSize+JSRegExpInObjectFieldCount*PointerSize, JSRegExpInObjectFieldCount)

	nc.SlowObjectWithNullPrototypeMap = objectMap("slow_object_with_null_prototype_map", TypeJSObject,
		JSObjectHeaderSize+defaultInObject*PointerSize, defaultInObject)
	nc.SlowObjectWithNullPrototypeMap.Dictionary = true

	nc.ArrayConstructorProtector = Add(b, "array_constructor_protector", &Protector{Intact: true})

	return Add(b, "native_context", nc)
}
