package heap

// Object layout constants. All sizes and offsets are in bytes on a 64-bit
// heap with uncompressed tagged pointers.
const (
	PointerSize = 8
	DoubleSize  = 8

	// MaxRegularHeapObjectSize is the largest object that may be allocated
	// inline in the regular (non-large-object) space.
	MaxRegularHeapObjectSize = 507136

	// JSObjectHeaderSize covers map, properties-or-hash and elements.
	// FixedArrayHeaderSize covers map and length.
	JSObjectHeaderSize    = 3 * PointerSize
	FixedArrayHeaderSize  = 2 * PointerSize
	HeapNumberSize        = 2 * PointerSize
	AllocationMementoSize = 2 * PointerSize

	JSArraySize                 = 4 * PointerSize
	JSSloppyArgumentsObjectSize = 5 * PointerSize
	JSStrictArgumentsObjectSize = 4 * PointerSize
	JSArrayIteratorSize         = 6 * PointerSize
	JSCollectionIteratorSize    = 5 * PointerSize
	JSBoundFunctionSize         = 6 * PointerSize
	JSIteratorResultSize        = 5 * PointerSize
	JSStringIteratorSize        = 5 * PointerSize
	JSPromiseSize               = 5 * PointerSize
	JSGeneratorObjectSize       = 10 * PointerSize
	JSAsyncGeneratorObjectSize  = 12 * PointerSize

	JSFunctionSizeWithoutPrototype = 7 * PointerSize
	JSFunctionSizeWithPrototype    = 8 * PointerSize

	JSRegExpSize               = 6 * PointerSize
	JSRegExpInObjectFieldCount = 1

	// PromiseEmbedderFieldCount is the number of embedder slots that follow
	// a JSPromise.
	PromiseEmbedderFieldCount = 0

	// MinContextSlots is the number of header slots every context carries:
	// scope info, previous, extension and native context.
	MinContextSlots = 4

	// PreallocatedArrayElements is the backing store capacity of new Array().
	PreallocatedArrayElements = 4

	// InitialMaxFastElementArray bounds the length of arrays whose backing
	// store is allocated inline, leaving room for the JSArray and a memento.
	InitialMaxFastElementArray = (MaxRegularHeapObjectSize - FixedArrayHeaderSize -
		JSArraySize - AllocationMementoSize) / DoubleSize
)

// Field offsets shared by every JSObject.
const (
	MapOffset              = 0
	PropertiesOrHashOffset = 1 * PointerSize
	ElementsOffset         = 2 * PointerSize
)

// FixedArray and context offsets.
const (
	FixedArrayLengthOffset = 1 * PointerSize
	HeapNumberValueOffset  = 1 * PointerSize
)

// JSObject subclass field offsets.
const (
	JSArrayLengthOffset = JSObjectHeaderSize

	ArgumentsLengthOffset = JSObjectHeaderSize
	ArgumentsCalleeOffset = JSObjectHeaderSize + PointerSize

	JSArrayIteratorIteratedObjectOffset = JSObjectHeaderSize
	JSArrayIteratorNextIndexOffset      = JSObjectHeaderSize + PointerSize
	JSArrayIteratorKindOffset           = JSObjectHeaderSize + 2*PointerSize

	JSCollectionTableOffset         = JSObjectHeaderSize
	JSCollectionIteratorTableOffset = JSObjectHeaderSize
	JSCollectionIteratorIndexOffset = JSObjectHeaderSize + PointerSize

	JSBoundFunctionTargetOffset    = JSObjectHeaderSize
	JSBoundFunctionThisOffset      = JSObjectHeaderSize + PointerSize
	JSBoundFunctionArgumentsOffset = JSObjectHeaderSize + 2*PointerSize

	JSFunctionSharedOffset       = JSObjectHeaderSize
	JSFunctionContextOffset      = JSObjectHeaderSize + PointerSize
	JSFunctionFeedbackCellOffset = JSObjectHeaderSize + 2*PointerSize
	JSFunctionCodeOffset         = JSObjectHeaderSize + 3*PointerSize
	JSFunctionPrototypeOffset    = JSObjectHeaderSize + 4*PointerSize

	JSIteratorResultValueOffset = JSObjectHeaderSize
	JSIteratorResultDoneOffset  = JSObjectHeaderSize + PointerSize

	JSStringIteratorStringOffset = JSObjectHeaderSize
	JSStringIteratorIndexOffset  = JSObjectHeaderSize + PointerSize

	JSPromiseReactionsOrResultOffset = JSObjectHeaderSize
	JSPromiseFlagsOffset             = JSObjectHeaderSize + PointerSize

	JSGeneratorFunctionOffset          = JSObjectHeaderSize
	JSGeneratorContextOffset           = JSObjectHeaderSize + PointerSize
	JSGeneratorReceiverOffset          = JSObjectHeaderSize + 2*PointerSize
	JSGeneratorInputOrDebugPosOffset   = JSObjectHeaderSize + 3*PointerSize
	JSGeneratorResumeModeOffset        = JSObjectHeaderSize + 4*PointerSize
	JSGeneratorContinuationOffset      = JSObjectHeaderSize + 5*PointerSize
	JSGeneratorParametersAndRegsOffset = JSObjectHeaderSize + 6*PointerSize
	JSAsyncGeneratorQueueOffset        = JSObjectHeaderSize + 7*PointerSize
	JSAsyncGeneratorIsAwaitingOffset   = JSObjectHeaderSize + 8*PointerSize

	JSRegExpDataOffset      = JSObjectHeaderSize
	JSRegExpSourceOffset    = JSRegExpDataOffset + PointerSize
	JSRegExpFlagsOffset     = JSRegExpSourceOffset + PointerSize
	JSRegExpLastIndexOffset = JSRegExpSize
)

// Context slot indices.
const (
	ContextScopeInfoIndex     = 0
	ContextPreviousIndex      = 1
	ContextExtensionIndex     = 2
	ContextNativeContextIndex = 3
	ContextThrownObjectIndex  = MinContextSlots
)

// Generator resume modes and continuation markers.
const (
	GeneratorResumeNext            = 0
	GeneratorContinuationExecuting = -2
)

// NameDictionary layout for the empty dictionary that backs objects created
// with a null prototype.
const (
	NameDictionaryInitialCapacity  = 2
	NameDictionaryMinCapacity      = 4
	NameDictionaryEntrySize        = 3
	HashTableNumberOfElementsIndex = 0
	HashTableNumberOfDeletedIndex  = 1
	HashTableCapacityIndex         = 2
	DictionaryNextEnumerationIndex = 3
	DictionaryObjectHashIndex      = 4
	NameDictionaryElementsStart    = 5

	PropertyDetailsInitialIndex = 1
	NoHashSentinel              = 0
)

// FixedArraySize returns the byte size of a FixedArray of the given length.
func FixedArraySize(length int) int {
	return FixedArrayHeaderSize + length*PointerSize
}

// FixedDoubleArraySize returns the byte size of a FixedDoubleArray of the
// given length.
func FixedDoubleArraySize(length int) int {
	return FixedArrayHeaderSize + length*DoubleSize
}

// FixedArraySlotOffset returns the offset of slot i in a FixedArray or
// context.
func FixedArraySlotOffset(i int) int {
	return FixedArrayHeaderSize + i*PointerSize
}

// NameDictionaryCapacity rounds at-least-space-for up to the next power of
// two with 50% headroom, with a floor of NameDictionaryMinCapacity.
func NameDictionaryCapacity(atLeast int) int {
	want := atLeast + atLeast>>1
	c := 1
	for c < want {
		c <<= 1
	}
	if c < NameDictionaryMinCapacity {
		c = NameDictionaryMinCapacity
	}
	return c
}

// NameDictionaryLength returns the FixedArray length backing a dictionary of
// the given capacity.
func NameDictionaryLength(capacity int) int {
	return capacity*NameDictionaryEntrySize + NameDictionaryElementsStart
}
