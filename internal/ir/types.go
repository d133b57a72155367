package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/alloclower/internal/heap"
)

type bitset uint32

const (
	bitNegative31 bitset = 1 << iota
	bitUnsigned30
	bitOtherNumber
	bitNaN
	bitMinusZero
	bitString
	bitBoolean
	bitNull
	bitUndefined
	bitOtherObject
	bitFunction
	bitBoundFunction
	bitArray
	bitProxy
	bitOtherInternal
	bitHole

	bitSignedSmall = bitNegative31 | bitUnsigned30
	bitNumber      = bitSignedSmall | bitOtherNumber | bitNaN | bitMinusZero
	bitReceiver    = bitOtherObject | bitFunction | bitBoundFunction | bitArray | bitProxy
	bitAny         = bitNumber | bitString | bitBoolean | bitNull | bitUndefined |
		bitReceiver | bitOtherInternal | bitHole
)

var bitNames = []struct {
	bits bitset
	name string
}{
	{bitAny, "Any"},
	{bitNumber, "Number"},
	{bitReceiver, "Receiver"},
	{bitSignedSmall, "SignedSmall"},
	{bitNegative31, "Negative31"},
	{bitUnsigned30, "Unsigned30"},
	{bitOtherNumber, "OtherNumber"},
	{bitNaN, "NaN"},
	{bitMinusZero, "MinusZero"},
	{bitString, "String"},
	{bitBoolean, "Boolean"},
	{bitNull, "Null"},
	{bitUndefined, "Undefined"},
	{bitOtherObject, "OtherObject"},
	{bitFunction, "Function"},
	{bitBoundFunction, "BoundFunction"},
	{bitArray, "Array"},
	{bitProxy, "Proxy"},
	{bitOtherInternal, "OtherInternal"},
	{bitHole, "Hole"},
}

// Type is a static type from the lattice the typer computes. A Type is a
// union of bits, optionally narrowed to an integral range or to a single
// heap constant.
type Type struct {
	bits     bitset
	ranged   bool
	min, max float64
	constant heap.HeapObject
}

var (
	None          = Type{}
	Negative31    = Type{bits: bitNegative31}
	Unsigned30    = Type{bits: bitUnsigned30}
	OtherNumber   = Type{bits: bitOtherNumber}
	NaN           = Type{bits: bitNaN}
	MinusZero     = Type{bits: bitMinusZero}
	StringType    = Type{bits: bitString}
	Boolean       = Type{bits: bitBoolean}
	Null          = Type{bits: bitNull}
	Undefined     = Type{bits: bitUndefined}
	OtherObject   = Type{bits: bitOtherObject}
	Function      = Type{bits: bitFunction}
	BoundFunction = Type{bits: bitBoundFunction}
	Array         = Type{bits: bitArray}
	Proxy         = Type{bits: bitProxy}
	OtherInternal = Type{bits: bitOtherInternal}
	Hole          = Type{bits: bitHole}

	SignedSmall   = Type{bits: bitSignedSmall}
	UnsignedSmall = Type{bits: bitUnsigned30}
	Number        = Type{bits: bitNumber}
	Receiver      = Type{bits: bitReceiver}
	Any           = Type{bits: bitAny}
)

// Range returns the integral range [min, max].
func Range(min, max float64) Type {
	if min > max {
		min, max = max, min
	}
	var bits bitset
	if min < 0 {
		bits |= bitNegative31
	}
	if max >= 0 {
		bits |= bitUnsigned30
	}
	if min < heap.SmiMinValue || max > heap.SmiMaxValue {
		bits |= bitOtherNumber
	}
	return Type{bits: bits, ranged: true, min: min, max: max}
}

// NumberConstantType is the type of a number constant node.
func NumberConstantType(v float64) Type {
	switch {
	case math.IsNaN(v):
		return NaN
	case v == 0 && math.Signbit(v):
		return MinusZero
	case v == math.Trunc(v) && !math.IsInf(v, 0):
		return Range(v, v)
	}
	return OtherNumber
}

// HeapConstantType is the type of a heap constant node.
func HeapConstantType(o heap.HeapObject) Type {
	var bits bitset
	switch v := o.(type) {
	case *heap.Oddball:
		switch v.Kind {
		case heap.OddballUndefined:
			bits = bitUndefined
		case heap.OddballNull:
			bits = bitNull
		case heap.OddballTrue, heap.OddballFalse:
			bits = bitBoolean
		case heap.OddballTheHole:
			bits = bitHole
		default:
			bits = bitOtherInternal
		}
	case *heap.String:
		bits = bitString
	case *heap.HeapNumber:
		return NumberConstantType(v.Value)
	default:
		switch o.InstanceType() {
		case heap.TypeJSFunction:
			bits = bitFunction
		case heap.TypeJSBoundFunction:
			bits = bitBoundFunction
		case heap.TypeJSArray:
			bits = bitArray
		default:
			if o.InstanceType().IsJSReceiver() {
				bits = bitOtherObject
			} else {
				bits = bitOtherInternal
			}
		}
	}
	return Type{bits: bits, constant: o}
}

// Union returns the least type containing both a and b. Constants and
// ranges are widened as needed.
func Union(a, b Type) Type {
	if a.IsNone() {
		return b
	}
	if b.IsNone() {
		return a
	}
	if a.constant != nil && a.constant == b.constant {
		return a
	}
	out := Type{bits: a.bits | b.bits}
	if a.ranged && b.ranged {
		out.ranged = true
		out.min = math.Min(a.min, b.min)
		out.max = math.Max(a.max, b.max)
	}
	return out
}

func (t Type) IsNone() bool { return t.bits == 0 }

// Is reports whether t is a subtype of other.
func (t Type) Is(other Type) bool {
	if t.IsNone() {
		return true
	}
	if other.constant != nil {
		return t.constant == other.constant
	}
	if t.bits&^other.bits != 0 {
		return false
	}
	if other.ranged {
		if !t.isIntegral() {
			return false
		}
		return t.Min() >= other.min && t.Max() <= other.max
	}
	return true
}

// Maybe reports whether t and other may share a value.
func (t Type) Maybe(other Type) bool {
	if t.bits&other.bits == 0 {
		return false
	}
	if t.constant != nil && other.constant != nil {
		return t.constant == other.constant
	}
	if t.ranged && other.ranged {
		return t.min <= other.max && other.min <= t.max
	}
	if t.ranged && !other.ranged {
		return other.Maybe(t)
	}
	if other.ranged && t.bits&bitNumber == t.bits&(bitNegative31|bitUnsigned30) {
		return t.Min() <= other.max && other.min <= t.Max()
	}
	return true
}

func (t Type) isIntegral() bool {
	return t.ranged || t.bits&^bitSignedSmall == 0
}

// Min is the smallest number in t. Non-number types report +Inf.
func (t Type) Min() float64 {
	if t.ranged {
		return t.min
	}
	switch {
	case t.bits&bitOtherNumber != 0:
		return math.Inf(-1)
	case t.bits&bitNegative31 != 0:
		return heap.SmiMinValue
	case t.bits&(bitUnsigned30|bitMinusZero) != 0:
		return 0
	}
	return math.Inf(1)
}

// Max is the largest number in t. Non-number types report -Inf.
func (t Type) Max() float64 {
	if t.ranged {
		return t.max
	}
	switch {
	case t.bits&bitOtherNumber != 0:
		return math.Inf(1)
	case t.bits&bitUnsigned30 != 0:
		return heap.SmiMaxValue
	case t.bits&bitMinusZero != 0:
		return 0
	case t.bits&bitNegative31 != 0:
		return -1
	}
	return math.Inf(-1)
}

// IsHeapConstant reports whether t is a singleton heap constant.
func (t Type) IsHeapConstant() bool { return t.constant != nil }

// HeapConstant returns the constant of a heap constant type, or nil.
func (t Type) HeapConstant() heap.HeapObject { return t.constant }

func (t Type) String() string {
	if t.constant != nil {
		return "HeapConstant(" + t.constant.Label() + ")"
	}
	if t.ranged {
		return "Range(" + formatNumber(t.min) + ", " + formatNumber(t.max) + ")"
	}
	if t.bits == 0 {
		return "None"
	}
	var parts []string
	rest := t.bits
	for _, bn := range bitNames {
		if rest&bn.bits == bn.bits {
			parts = append(parts, bn.name)
			rest &^= bn.bits
		}
	}
	return strings.Join(parts, "|")
}

// ParseType resolves a type name as accepted in compilation units: a bit
// name, a union of names joined by "|", or "Range(min, max)".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "Range(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(s, "Range("), ")"), ",")
		if len(parts) != 2 {
			return None, fmt.Errorf("range needs two bounds: %q", s)
		}
		lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return None, fmt.Errorf("range min: %w", err)
		}
		hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return None, fmt.Errorf("range max: %w", err)
		}
		return Range(lo, hi), nil
	}
	out := None
	for _, name := range strings.Split(s, "|") {
		name = strings.TrimSpace(name)
		found := false
		for _, bn := range bitNames {
			if bn.name == name {
				out = Union(out, Type{bits: bn.bits})
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown type %q", name)
		}
	}
	return out, nil
}

func formatNumber(v float64) string {
	if v == 0 && math.Signbit(v) {
		return "-0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
