package ir

import (
	"strconv"

	"github.com/roach88/alloclower/internal/heap"
)

// MachineRep is the in-memory representation of a stored value.
type MachineRep int

const (
	RepTagged MachineRep = iota
	RepTaggedSigned
	RepTaggedPointer
	RepFloat64
)

var machineRepNames = [...]string{
	RepTagged:        "tagged",
	RepTaggedSigned:  "smi",
	RepTaggedPointer: "pointer",
	RepFloat64:       "float64",
}

func (r MachineRep) String() string { return machineRepNames[r] }

// WriteBarrierKind says whether a store must inform the GC.
type WriteBarrierKind int

const (
	FullWriteBarrier WriteBarrierKind = iota
	NoWriteBarrier
)

func (k WriteBarrierKind) String() string {
	if k == NoWriteBarrier {
		return "nowb"
	}
	return "wb"
}

// FieldAccess describes a store to or load from a fixed offset.
type FieldAccess struct {
	Name         string
	Offset       int
	Rep          MachineRep
	WriteBarrier WriteBarrierKind
}

func (FieldAccess) params() {}
func (a FieldAccess) String() string {
	return "+" + strconv.Itoa(a.Offset) + ":" + a.Name + "," + a.Rep.String() + "," + a.WriteBarrier.String()
}

// End is the first offset past the accessed field.
func (a FieldAccess) End() int {
	if a.Rep == RepFloat64 {
		return a.Offset + heap.DoubleSize
	}
	return a.Offset + heap.PointerSize
}

// ElementAccess describes a store to an indexed element.
type ElementAccess struct {
	Name         string
	HeaderSize   int
	Rep          MachineRep
	WriteBarrier WriteBarrierKind
}

func (ElementAccess) params() {}
func (a ElementAccess) String() string {
	return a.Name + "," + a.Rep.String() + "," + a.WriteBarrier.String()
}

// ElementSize is the byte width of one element.
func (a ElementAccess) ElementSize() int {
	if a.Rep == RepFloat64 {
		return heap.DoubleSize
	}
	return heap.PointerSize
}

func tagged(name string, offset int) FieldAccess {
	return FieldAccess{Name: name, Offset: offset, Rep: RepTagged}
}

func pointer(name string, offset int) FieldAccess {
	return FieldAccess{Name: name, Offset: offset, Rep: RepTaggedPointer}
}

func smi(name string, offset int) FieldAccess {
	return FieldAccess{Name: name, Offset: offset, Rep: RepTaggedSigned, WriteBarrier: NoWriteBarrier}
}

func ForMap() FieldAccess { return pointer("map", heap.MapOffset) }

func ForJSObjectPropertiesOrHash() FieldAccess {
	return pointer("properties", heap.PropertiesOrHashOffset)
}

func ForJSObjectElements() FieldAccess { return pointer("elements", heap.ElementsOffset) }

// ForJSObjectInObjectProperty addresses in-object property i of instances
// of m.
func ForJSObjectInObjectProperty(m *heap.Map, i int) FieldAccess {
	return tagged("inobject"+strconv.Itoa(i), m.InObjectOffset(i))
}

// ForJSObjectOffset addresses a raw tagged field at offset.
func ForJSObjectOffset(offset int, wb WriteBarrierKind) FieldAccess {
	a := tagged("field"+strconv.Itoa(offset), offset)
	a.WriteBarrier = wb
	return a
}

// ForJSObjectOffsetFloat64 addresses an unboxed double field at offset.
func ForJSObjectOffsetFloat64(offset int) FieldAccess {
	return FieldAccess{Name: "double" + strconv.Itoa(offset), Offset: offset, Rep: RepFloat64, WriteBarrier: NoWriteBarrier}
}

// ForJSArrayLength addresses the length of a JSArray. Arrays with fast
// elements always hold a Smi length.
func ForJSArrayLength(kind heap.ElementsKind) FieldAccess {
	if kind.IsFast() {
		return smi("length", heap.JSArrayLengthOffset)
	}
	return tagged("length", heap.JSArrayLengthOffset)
}

func ForFixedArrayLength() FieldAccess { return smi("length", heap.FixedArrayLengthOffset) }

// ForFixedArraySlot addresses slot i of a FixedArray.
func ForFixedArraySlot(i int, wb WriteBarrierKind) FieldAccess {
	a := tagged("slot"+strconv.Itoa(i), heap.FixedArraySlotOffset(i))
	a.WriteBarrier = wb
	return a
}

// ForContextSlot addresses slot i of a context.
func ForContextSlot(i int) FieldAccess {
	return tagged("context"+strconv.Itoa(i), heap.FixedArraySlotOffset(i))
}

func ForArgumentsLength() FieldAccess { return tagged("arguments_length", heap.ArgumentsLengthOffset) }
func ForArgumentsCallee() FieldAccess { return pointer("callee", heap.ArgumentsCalleeOffset) }

func ForJSArrayIteratorIteratedObject() FieldAccess {
	return pointer("iterated_object", heap.JSArrayIteratorIteratedObjectOffset)
}

func ForJSArrayIteratorNextIndex() FieldAccess {
	return tagged("next_index", heap.JSArrayIteratorNextIndexOffset)
}

func ForJSArrayIteratorKind() FieldAccess {
	return smi("kind", heap.JSArrayIteratorKindOffset)
}

func ForJSCollectionTable() FieldAccess {
	return pointer("table", heap.JSCollectionTableOffset)
}

func ForJSCollectionIteratorTable() FieldAccess {
	return pointer("table", heap.JSCollectionIteratorTableOffset)
}

func ForJSCollectionIteratorIndex() FieldAccess {
	return smi("index", heap.JSCollectionIteratorIndexOffset)
}

func ForJSBoundFunctionTargetFunction() FieldAccess {
	return pointer("bound_target", heap.JSBoundFunctionTargetOffset)
}

func ForJSBoundFunctionBoundThis() FieldAccess {
	return tagged("bound_this", heap.JSBoundFunctionThisOffset)
}

func ForJSBoundFunctionBoundArguments() FieldAccess {
	return pointer("bound_arguments", heap.JSBoundFunctionArgumentsOffset)
}

func ForJSFunctionSharedFunctionInfo() FieldAccess {
	return pointer("shared", heap.JSFunctionSharedOffset)
}

func ForJSFunctionContext() FieldAccess { return pointer("context", heap.JSFunctionContextOffset) }

func ForJSFunctionFeedbackCell() FieldAccess {
	return pointer("feedback_cell", heap.JSFunctionFeedbackCellOffset)
}

func ForJSFunctionCode() FieldAccess { return pointer("code", heap.JSFunctionCodeOffset) }

func ForJSFunctionPrototypeOrInitialMap() FieldAccess {
	return pointer("prototype_or_initial_map", heap.JSFunctionPrototypeOffset)
}

func ForJSIteratorResultValue() FieldAccess {
	return tagged("value", heap.JSIteratorResultValueOffset)
}

func ForJSIteratorResultDone() FieldAccess {
	return tagged("done", heap.JSIteratorResultDoneOffset)
}

func ForJSStringIteratorString() FieldAccess {
	return pointer("string", heap.JSStringIteratorStringOffset)
}

func ForJSStringIteratorIndex() FieldAccess {
	return smi("index", heap.JSStringIteratorIndexOffset)
}

func ForJSPromiseReactionsOrResult() FieldAccess {
	return tagged("reactions_or_result", heap.JSPromiseReactionsOrResultOffset)
}

func ForJSPromiseFlags() FieldAccess { return smi("flags", heap.JSPromiseFlagsOffset) }

func ForJSGeneratorObjectFunction() FieldAccess {
	return pointer("function", heap.JSGeneratorFunctionOffset)
}

func ForJSGeneratorObjectContext() FieldAccess {
	return pointer("context", heap.JSGeneratorContextOffset)
}

func ForJSGeneratorObjectReceiver() FieldAccess {
	return tagged("receiver", heap.JSGeneratorReceiverOffset)
}

func ForJSGeneratorObjectInputOrDebugPos() FieldAccess {
	return tagged("input_or_debug_pos", heap.JSGeneratorInputOrDebugPosOffset)
}

func ForJSGeneratorObjectResumeMode() FieldAccess {
	return smi("resume_mode", heap.JSGeneratorResumeModeOffset)
}

func ForJSGeneratorObjectContinuation() FieldAccess {
	return smi("continuation", heap.JSGeneratorContinuationOffset)
}

func ForJSGeneratorObjectParametersAndRegisters() FieldAccess {
	return pointer("parameters_and_registers", heap.JSGeneratorParametersAndRegsOffset)
}

func ForJSAsyncGeneratorObjectQueue() FieldAccess {
	return tagged("queue", heap.JSAsyncGeneratorQueueOffset)
}

func ForJSAsyncGeneratorObjectIsAwaiting() FieldAccess {
	return smi("is_awaiting", heap.JSAsyncGeneratorIsAwaitingOffset)
}

func ForJSRegExpData() FieldAccess { return tagged("data", heap.JSRegExpDataOffset) }
func ForJSRegExpSource() FieldAccess { return tagged("source", heap.JSRegExpSourceOffset) }
func ForJSRegExpFlags() FieldAccess { return tagged("flags", heap.JSRegExpFlagsOffset) }
func ForJSRegExpLastIndex() FieldAccess { return tagged("last_index", heap.JSRegExpLastIndexOffset) }

func ForHeapNumberValue() FieldAccess {
	return FieldAccess{Name: "value", Offset: heap.HeapNumberValueOffset, Rep: RepFloat64, WriteBarrier: NoWriteBarrier}
}

// ForFixedArrayElement addresses the elements of a FixedArray holding kind.
func ForFixedArrayElement(kind heap.ElementsKind) ElementAccess {
	a := ElementAccess{Name: "element", HeaderSize: heap.FixedArrayHeaderSize, Rep: RepTagged}
	if kind.IsSmi() {
		a.Rep = RepTaggedSigned
		a.WriteBarrier = NoWriteBarrier
	}
	return a
}

// ForFixedDoubleArrayElement addresses the elements of a FixedDoubleArray.
func ForFixedDoubleArrayElement() ElementAccess {
	return ElementAccess{Name: "double_element", HeaderSize: heap.FixedArrayHeaderSize, Rep: RepFloat64, WriteBarrier: NoWriteBarrier}
}
