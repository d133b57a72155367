package ir

import "fmt"

// Opcode identifies an operator.
type Opcode int

const (
	OpInvalid Opcode = iota

	// Common
	OpStart
	OpReturn
	OpParameter
	OpNumberConstant
	OpHeapConstant
	OpFrameState
	OpStateValues
	OpDeadValue
	OpBeginRegion
	OpFinishRegion
	OpSelect
	OpCall

	// Object construction, in the order the lowering dispatches them.
	OpJSCreate
	OpJSCreateArguments
	OpJSCreateArray
	OpJSCreateArrayIterator
	OpJSCreateBoundFunction
	OpJSCreateClosure
	OpJSCreateCollectionIterator
	OpJSCreateGeneratorObject
	OpJSCreateIterResultObject
	OpJSCreateStringIterator
	OpJSCreateKeyValueArray
	OpJSCreatePromise
	OpJSCreateLiteralArray
	OpJSCreateLiteralObject
	OpJSCreateLiteralRegExp
	OpJSCreateEmptyLiteralArray
	OpJSCreateEmptyLiteralObject
	OpJSCreateFunctionContext
	OpJSCreateWithContext
	OpJSCreateCatchContext
	OpJSCreateBlockContext
	OpJSCreateObject

	// Lowered memory and checked operations
	OpAllocate
	OpStoreField
	OpStoreElement
	OpLoadField
	OpArgumentsFrame
	OpArgumentsLength
	OpNewArgumentsElements
	OpCheckBounds
	OpNewSmiOrObjectElements
	OpNewDoubleElements
	OpCheckSmi
	OpCheckNumber
	OpNumberSilenceNaN
	OpNumberLessThan

	opcodeCount
)

// variadic marks operators whose value input count is set per node.
const variadic = -1

// opInfo is the static shape of an opcode.
type opInfo struct {
	name       string
	valueIn    int
	context    bool
	frameState bool
	effectIn   int
	controlIn  int
	valueOut   int
	effectOut  int
	controlOut int
}

// js describes a construction operator: context, optional frame state, one
// effect and one control input, and one output of each kind.
func js(name string, valueIn int, frameState bool) opInfo {
	return opInfo{name, valueIn, true, frameState, 1, 1, 1, 1, 1}
}

var opInfos = [opcodeCount]opInfo{
	OpStart:          {"Start", 0, false, false, 0, 0, 1, 1, 1},
	OpReturn:         {"Return", 1, false, false, 1, 1, 0, 0, 1},
	OpParameter:      {"Parameter", 1, false, false, 0, 0, 1, 0, 0},
	OpNumberConstant: {"NumberConstant", 0, false, false, 0, 0, 1, 0, 0},
	OpHeapConstant:   {"HeapConstant", 0, false, false, 0, 0, 1, 0, 0},
	OpFrameState:     {"FrameState", 6, false, false, 0, 0, 1, 0, 0},
	OpStateValues:    {"StateValues", variadic, false, false, 0, 0, 1, 0, 0},
	OpDeadValue:      {"DeadValue", 0, false, false, 0, 0, 1, 0, 0},
	OpBeginRegion:    {"BeginRegion", 0, false, false, 1, 0, 0, 1, 0},
	OpFinishRegion:   {"FinishRegion", 1, false, false, 1, 0, 1, 1, 0},
	OpSelect:         {"Select", 3, false, false, 0, 0, 1, 0, 0},
	OpCall:           {"Call", variadic, true, true, 1, 1, 1, 1, 1},

	OpJSCreate:                   js("JSCreate", 2, true),
	OpJSCreateArguments:          js("JSCreateArguments", 1, true),
	OpJSCreateArray:              js("JSCreateArray", variadic, true),
	OpJSCreateArrayIterator:      js("JSCreateArrayIterator", 1, false),
	OpJSCreateBoundFunction:      js("JSCreateBoundFunction", variadic, false),
	OpJSCreateClosure:            js("JSCreateClosure", 0, false),
	OpJSCreateCollectionIterator: js("JSCreateCollectionIterator", 1, false),
	OpJSCreateGeneratorObject:    js("JSCreateGeneratorObject", 2, false),
	OpJSCreateIterResultObject:   js("JSCreateIterResultObject", 2, false),
	OpJSCreateStringIterator:     js("JSCreateStringIterator", 1, false),
	OpJSCreateKeyValueArray:      js("JSCreateKeyValueArray", 2, false),
	OpJSCreatePromise:            js("JSCreatePromise", 0, false),
	OpJSCreateLiteralArray:       js("JSCreateLiteralArray", 0, true),
	OpJSCreateLiteralObject:      js("JSCreateLiteralObject", 0, true),
	OpJSCreateLiteralRegExp:      js("JSCreateLiteralRegExp", 0, true),
	OpJSCreateEmptyLiteralArray:  js("JSCreateEmptyLiteralArray", 0, false),
	OpJSCreateEmptyLiteralObject: js("JSCreateEmptyLiteralObject", 0, false),
	OpJSCreateFunctionContext:    js("JSCreateFunctionContext", 0, false),
	OpJSCreateWithContext:        js("JSCreateWithContext", 1, false),
	OpJSCreateCatchContext:       js("JSCreateCatchContext", 1, false),
	OpJSCreateBlockContext:       js("JSCreateBlockContext", 0, false),
	OpJSCreateObject:             js("JSCreateObject", 1, true),

	OpAllocate:               {"Allocate", 1, false, false, 1, 1, 1, 1, 0},
	OpStoreField:             {"StoreField", 2, false, false, 1, 1, 0, 1, 0},
	OpStoreElement:           {"StoreElement", 3, false, false, 1, 1, 0, 1, 0},
	OpLoadField:              {"LoadField", 1, false, false, 1, 1, 1, 1, 0},
	OpArgumentsFrame:         {"ArgumentsFrame", 0, false, false, 0, 0, 1, 0, 0},
	OpArgumentsLength:        {"ArgumentsLength", 1, false, false, 0, 0, 1, 0, 0},
	OpNewArgumentsElements:   {"NewArgumentsElements", 2, false, false, 1, 0, 1, 1, 0},
	OpCheckBounds:            {"CheckBounds", 2, false, false, 1, 1, 1, 1, 0},
	OpNewSmiOrObjectElements: {"NewSmiOrObjectElements", 1, false, false, 1, 1, 1, 1, 0},
	OpNewDoubleElements:      {"NewDoubleElements", 1, false, false, 1, 1, 1, 1, 0},
	OpCheckSmi:               {"CheckSmi", 1, false, false, 1, 1, 1, 1, 0},
	OpCheckNumber:            {"CheckNumber", 1, false, false, 1, 1, 1, 1, 0},
	OpNumberSilenceNaN:       {"NumberSilenceNaN", 1, false, false, 0, 0, 1, 0, 0},
	OpNumberLessThan:         {"NumberLessThan", 2, false, false, 0, 0, 1, 0, 0},
}

func (op Opcode) info() opInfo {
	if op <= OpInvalid || op >= opcodeCount {
		return opInfo{name: fmt.Sprintf("Opcode(%d)", int(op))}
	}
	return opInfos[op]
}

func (op Opcode) String() string { return op.info().name }

// ParseOpcode resolves a name produced by Opcode.String.
func ParseOpcode(s string) (Opcode, bool) {
	for op := OpStart; op < opcodeCount; op++ {
		if opInfos[op].name == s {
			return op, true
		}
	}
	return OpInvalid, false
}

// IsJSCreate reports whether op is one of the object construction
// operators the allocation lowering consumes.
func (op Opcode) IsJSCreate() bool {
	return op >= OpJSCreate && op <= OpJSCreateObject
}

// JSCreateOpcodes lists every construction opcode.
func JSCreateOpcodes() []Opcode {
	var out []Opcode
	for op := OpJSCreate; op <= OpJSCreateObject; op++ {
		out = append(out, op)
	}
	return out
}

// IsVariadic reports whether op takes a per-node number of value inputs.
func (op Opcode) IsVariadic() bool { return op.info().valueIn == variadic }
