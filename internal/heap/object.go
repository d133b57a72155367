package heap

import (
	"fmt"
	"math"
)

// ObjectID identifies a heap object within one Broker.
type ObjectID int

// Object is a sealed interface over every value a heap slot can hold:
// tagged small integers, raw unboxed doubles and heap objects.
type Object interface {
	object() // Sealed - only heap package types implement it
}

// HeapObject is an Object that lives on the heap and is owned by a Broker.
type HeapObject interface {
	Object
	ID() ObjectID
	Label() string
	InstanceType() InstanceType
	// Immortal reports whether the object is an immortal, immovable root.
	// Stores of immortal objects never need a write barrier.
	Immortal() bool
	base() *header
}

// header carries the identity every heap object shares.
type header struct {
	id       ObjectID
	label    string
	immortal bool
	owner    *Broker
}

func (h *header) object() {}
func (h *header) ID() ObjectID { return h.id }
func (h *header) Label() string { return h.label }
func (h *header) Immortal() bool { return h.immortal }
func (h *header) base() *header { return h }
func (h *header) String() string { return h.label }

// Smi is a tagged small integer.
type Smi int64

func (Smi) object() {}

// Smi range: 31-bit signed payload.
const (
	SmiMinValue = -(1 << 30)
	SmiMaxValue = 1<<30 - 1
)

// IsSmiValue reports whether v is exactly representable as a Smi.
func IsSmiValue(v float64) bool {
	if v != math.Trunc(v) || v < SmiMinValue || v > SmiMaxValue {
		return false
	}
	return !(v == 0 && math.Signbit(v))
}

// RawDouble is an unboxed double stored directly in an in-object field.
type RawDouble float64

func (RawDouble) object() {}

// InstanceType classifies heap objects.
type InstanceType int

const (
	TypeInvalid InstanceType = iota
	TypeMap
	TypeOddball
	TypeString
	TypeHeapNumber
	TypeMutableHeapNumber
	TypeCode
	TypeFixedArray
	TypeFixedDoubleArray
	TypeNameDictionary
	TypeScopeInfo
	TypeSharedFunctionInfo
	TypeFeedbackCell
	TypeFeedbackVector
	TypeAllocationSite
	TypeFunctionContext
	TypeEvalContext
	TypeBlockContext
	TypeWithContext
	TypeCatchContext
	TypeNativeContext
	TypePropertyCell
	TypeFiller
	TypeJSObject
	TypeJSArray
	TypeJSArgumentsObject
	TypeJSFunction
	TypeJSBoundFunction
	TypeJSArrayIterator
	TypeJSStringIterator
	TypeJSSetIterator
	TypeJSMapIterator
	TypeJSPromise
	TypeJSRegExp
	TypeJSGeneratorObject
	TypeJSAsyncGeneratorObject
	TypeJSSet
	TypeJSMap
)

var instanceTypeNames = map[InstanceType]string{
	TypeMap:                    "MAP_TYPE",
	TypeOddball:                "ODDBALL_TYPE",
	TypeString:                 "STRING_TYPE",
	TypeHeapNumber:             "HEAP_NUMBER_TYPE",
	TypeMutableHeapNumber:      "MUTABLE_HEAP_NUMBER_TYPE",
	TypeCode:                   "CODE_TYPE",
	TypeFixedArray:             "FIXED_ARRAY_TYPE",
	TypeFixedDoubleArray:       "FIXED_DOUBLE_ARRAY_TYPE",
	TypeNameDictionary:         "NAME_DICTIONARY_TYPE",
	TypeScopeInfo:              "SCOPE_INFO_TYPE",
	TypeSharedFunctionInfo:     "SHARED_FUNCTION_INFO_TYPE",
	TypeFeedbackCell:           "FEEDBACK_CELL_TYPE",
	TypeFeedbackVector:         "FEEDBACK_VECTOR_TYPE",
	TypeAllocationSite:         "ALLOCATION_SITE_TYPE",
	TypeFunctionContext:        "FUNCTION_CONTEXT_TYPE",
	TypeEvalContext:            "EVAL_CONTEXT_TYPE",
	TypeBlockContext:           "BLOCK_CONTEXT_TYPE",
	TypeWithContext:            "WITH_CONTEXT_TYPE",
	TypeCatchContext:           "CATCH_CONTEXT_TYPE",
	TypeNativeContext:          "NATIVE_CONTEXT_TYPE",
	TypePropertyCell:           "PROPERTY_CELL_TYPE",
	TypeFiller:                 "FILLER_TYPE",
	TypeJSObject:               "JS_OBJECT_TYPE",
	TypeJSArray:                "JS_ARRAY_TYPE",
	TypeJSArgumentsObject:      "JS_ARGUMENTS_TYPE",
	TypeJSFunction:             "JS_FUNCTION_TYPE",
	TypeJSBoundFunction:        "JS_BOUND_FUNCTION_TYPE",
	TypeJSArrayIterator:        "JS_ARRAY_ITERATOR_TYPE",
	TypeJSStringIterator:       "JS_STRING_ITERATOR_TYPE",
	TypeJSSetIterator:          "JS_SET_ITERATOR_TYPE",
	TypeJSMapIterator:          "JS_MAP_ITERATOR_TYPE",
	TypeJSPromise:              "JS_PROMISE_TYPE",
	TypeJSRegExp:               "JS_REGEXP_TYPE",
	TypeJSGeneratorObject:      "JS_GENERATOR_OBJECT_TYPE",
	TypeJSAsyncGeneratorObject: "JS_ASYNC_GENERATOR_OBJECT_TYPE",
	TypeJSSet:                  "JS_SET_TYPE",
	TypeJSMap:                  "JS_MAP_TYPE",
}

func (t InstanceType) String() string {
	if s, ok := instanceTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("InstanceType(%d)", int(t))
}

// ParseInstanceType resolves a name produced by InstanceType.String.
func ParseInstanceType(s string) (InstanceType, bool) {
	for t, name := range instanceTypeNames {
		if name == s {
			return t, true
		}
	}
	return TypeInvalid, false
}

// IsJSReceiver reports whether objects of this type are JS-visible objects.
func (t InstanceType) IsJSReceiver() bool {
	return t >= TypeJSObject
}

// IsContext reports whether t is one of the context instance types.
func (t InstanceType) IsContext() bool {
	return t >= TypeFunctionContext && t <= TypeNativeContext
}

// OddballKind distinguishes the oddball singletons.
type OddballKind int

const (
	OddballUndefined OddballKind = iota + 1
	OddballNull
	OddballTrue
	OddballFalse
	OddballTheHole
	OddballUninitialized
)

// Oddball is one of the singleton special values.
type Oddball struct {
	header
	Kind OddballKind
}

func (*Oddball) InstanceType() InstanceType { return TypeOddball }

// String is an internalized string constant.
type String struct {
	header
	Value string
}

func (*String) InstanceType() InstanceType { return TypeString }

// HeapNumber is a boxed double. Mutable boxes back double-representation
// fields of literal boilerplates.
type HeapNumber struct {
	header
	Value   float64
	Mutable bool
}

func (n *HeapNumber) InstanceType() InstanceType {
	if n.Mutable {
		return TypeMutableHeapNumber
	}
	return TypeHeapNumber
}

// Code is an entry point: a builtin stub or a function's code object.
type Code struct {
	header
	Builtin string
}

func (*Code) InstanceType() InstanceType { return TypeCode }

// ScopeType is the kind of scope a ScopeInfo describes.
type ScopeType int

const (
	ScopeFunction ScopeType = iota + 1
	ScopeEval
	ScopeBlock
	ScopeWith
	ScopeCatch
	ScopeScript
	ScopeModule
)

var scopeTypeNames = map[ScopeType]string{
	ScopeFunction: "function",
	ScopeEval:     "eval",
	ScopeBlock:    "block",
	ScopeWith:     "with",
	ScopeCatch:    "catch",
	ScopeScript:   "script",
	ScopeModule:   "module",
}

func (s ScopeType) String() string {
	if n, ok := scopeTypeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("ScopeType(%d)", int(s))
}

// ParseScopeType resolves a name produced by ScopeType.String.
func ParseScopeType(s string) (ScopeType, bool) {
	for t, name := range scopeTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// ScopeInfo describes a scope's context layout.
type ScopeInfo struct {
	header
	Scope ScopeType
	// ContextLength includes the MinContextSlots header slots.
	ContextLength int
}

func (*ScopeInfo) InstanceType() InstanceType { return TypeScopeInfo }
