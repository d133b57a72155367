package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/alloclower/internal/heap"
)

// Operator is an opcode together with its input counts and parameters.
// Operators are values and may be shared between nodes.
type Operator struct {
	Opcode  Opcode
	ValueIn int
	Params  Params
}

// NewOperator builds an operator for op. valueIn is consulted only for
// variadic opcodes.
func NewOperator(op Opcode, params Params, valueIn int) Operator {
	info := op.info()
	if info.valueIn != variadic {
		valueIn = info.valueIn
	}
	return Operator{Opcode: op, ValueIn: valueIn, Params: params}
}

// Op builds an operator for a fixed-arity opcode.
func Op(op Opcode, params Params) Operator {
	if op.IsVariadic() {
		panic(&GraphError{Message: fmt.Sprintf("%s needs an explicit value input count", op)})
	}
	return NewOperator(op, params, 0)
}

func (o Operator) ValueInputCount() int { return o.ValueIn }
func (o Operator) EffectInputCount() int { return o.Opcode.info().effectIn }
func (o Operator) ControlInputCount() int { return o.Opcode.info().controlIn }
func (o Operator) EffectOutputCount() int { return o.Opcode.info().effectOut }
func (o Operator) HasContext() bool { return o.Opcode.info().context }
func (o Operator) HasFrameState() bool { return o.Opcode.info().frameState }

// InputCount is the total number of inputs a node with o must have.
func (o Operator) InputCount() int {
	n := o.ValueIn + o.EffectInputCount() + o.ControlInputCount()
	if o.HasContext() {
		n++
	}
	if o.HasFrameState() {
		n++
	}
	return n
}

func (o Operator) contextIndex() int { return o.ValueIn }

func (o Operator) frameStateIndex() int {
	i := o.ValueIn
	if o.HasContext() {
		i++
	}
	return i
}

func (o Operator) effectIndex() int {
	i := o.frameStateIndex()
	if o.HasFrameState() {
		i++
	}
	return i
}

func (o Operator) controlIndex() int { return o.effectIndex() + o.EffectInputCount() }

// isEffectEdge reports whether input i of a node with o is an effect input.
func (o Operator) isEffectEdge(i int) bool {
	e := o.effectIndex()
	return i >= e && i < e+o.EffectInputCount()
}

// isControlEdge reports whether input i of a node with o is a control input.
func (o Operator) isControlEdge(i int) bool {
	c := o.controlIndex()
	return i >= c && i < c+o.ControlInputCount()
}

func (o Operator) String() string {
	if o.Params == nil {
		return o.Opcode.String()
	}
	return o.Opcode.String() + "[" + o.Params.String() + "]"
}

// Params is the closed set of operator parameter variants.
type Params interface {
	params() // Sealed - only ir parameter types implement it
	String() string
}

// ParameterParams names a function parameter.
type ParameterParams struct {
	Index int
	Name  string
}

func (ParameterParams) params() {}
func (p ParameterParams) String() string {
	if p.Name == "" {
		return strconv.Itoa(p.Index)
	}
	return strconv.Itoa(p.Index) + ":" + p.Name
}

// NumberParams is the value of a NumberConstant.
type NumberParams struct {
	Value float64
}

func (NumberParams) params() {}
func (p NumberParams) String() string { return formatNumber(p.Value) }

// HeapConstantParams is the object of a HeapConstant.
type HeapConstantParams struct {
	Object heap.HeapObject
}

func (HeapConstantParams) params() {}
func (p HeapConstantParams) String() string { return p.Object.Label() }

// FrameStateType distinguishes interpreted frames from the argument
// adaptor frames inserted when a call's argument count mismatches.
type FrameStateType int

const (
	FrameInterpreted FrameStateType = iota
	FrameArgumentsAdaptor
)

func (t FrameStateType) String() string {
	if t == FrameArgumentsAdaptor {
		return "adaptor"
	}
	return "interpreted"
}

// FrameStateInfo describes one frame of a frame state chain.
type FrameStateInfo struct {
	Type FrameStateType
	// ParameterCount includes the receiver.
	ParameterCount int
	Shared         *heap.SharedInfo
}

func (FrameStateInfo) params() {}
func (p FrameStateInfo) String() string {
	s := p.Type.String() + "," + strconv.Itoa(p.ParameterCount)
	if p.Shared != nil {
		s += "," + p.Shared.Label()
	}
	return s
}

// AllocateParams carries the static type and target region of an
// allocation.
type AllocateParams struct {
	Type   Type
	Region heap.Region
}

func (AllocateParams) params() {}
func (p AllocateParams) String() string { return p.Region.String() + "," + p.Type.String() }

// CallParams identifies the builtin a Call targets.
type CallParams struct {
	Builtin    string
	Arity      int
	Properties CallProperties
}

// CallProperties are the side-effect guarantees of a call.
type CallProperties int

const (
	CallNoProperties CallProperties = 0
	CallNoDeopt      CallProperties = 1 << 0
	CallNoWrite      CallProperties = 1 << 1
)

func (p CallProperties) String() string {
	var parts []string
	if p&CallNoDeopt != 0 {
		parts = append(parts, "NoDeopt")
	}
	if p&CallNoWrite != 0 {
		parts = append(parts, "NoWrite")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

func (CallParams) params() {}
func (p CallParams) String() string {
	return p.Builtin + "," + strconv.Itoa(p.Arity) + "," + p.Properties.String()
}

// ArgumentsLengthParams configures an ArgumentsLength.
type ArgumentsLengthParams struct {
	FormalParameterCount int
	IsRest               bool
}

func (ArgumentsLengthParams) params() {}
func (p ArgumentsLengthParams) String() string {
	return strconv.Itoa(p.FormalParameterCount) + "," + strconv.FormatBool(p.IsRest)
}

// NewArgumentsElementsParams is the number of mapped parameters that the
// elements store must leave as holes.
type NewArgumentsElementsParams struct {
	MappedCount int
}

func (NewArgumentsElementsParams) params() {}
func (p NewArgumentsElementsParams) String() string { return strconv.Itoa(p.MappedCount) }

// RegionParams carries the target region of a dynamically sized
// backing-store allocation.
type RegionParams struct {
	Region heap.Region
}

func (RegionParams) params() {}
func (p RegionParams) String() string { return p.Region.String() }

// CreateArgumentsType is the flavor of a JSCreateArguments.
type CreateArgumentsType int

const (
	MappedArguments CreateArgumentsType = iota
	UnmappedArguments
	RestParameter
)

var createArgumentsNames = map[CreateArgumentsType]string{
	MappedArguments:   "mapped",
	UnmappedArguments: "unmapped",
	RestParameter:     "rest",
}

func (t CreateArgumentsType) String() string { return createArgumentsNames[t] }

// ParseCreateArgumentsType resolves a name produced by String.
func ParseCreateArgumentsType(s string) (CreateArgumentsType, bool) {
	for t, name := range createArgumentsNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// CreateArgumentsParams configures a JSCreateArguments.
type CreateArgumentsParams struct {
	Type CreateArgumentsType
}

func (CreateArgumentsParams) params() {}
func (p CreateArgumentsParams) String() string { return p.Type.String() }

// CreateArrayParams configures a JSCreateArray.
type CreateArrayParams struct {
	Arity int
	// Site is the allocation site feedback, nil when there is none.
	Site *heap.AllocationSite
}

func (CreateArrayParams) params() {}
func (p CreateArrayParams) String() string {
	s := strconv.Itoa(p.Arity)
	if p.Site != nil {
		s += "," + p.Site.Label()
	}
	return s
}

// CreateArrayIteratorParams configures a JSCreateArrayIterator.
type CreateArrayIteratorParams struct {
	Kind heap.IterationKind
}

func (CreateArrayIteratorParams) params() {}
func (p CreateArrayIteratorParams) String() string { return p.Kind.String() }

// CreateCollectionIteratorParams configures a JSCreateCollectionIterator.
type CreateCollectionIteratorParams struct {
	// Collection is heap.TypeJSSet or heap.TypeJSMap.
	Collection heap.InstanceType
	Kind       heap.IterationKind
}

func (CreateCollectionIteratorParams) params() {}
func (p CreateCollectionIteratorParams) String() string {
	return p.Collection.String() + "," + p.Kind.String()
}

// CreateBoundFunctionParams configures a JSCreateBoundFunction.
type CreateBoundFunctionParams struct {
	Arity int
	Map   *heap.Map
}

func (CreateBoundFunctionParams) params() {}
func (p CreateBoundFunctionParams) String() string {
	return strconv.Itoa(p.Arity) + "," + p.Map.Label()
}

// CreateClosureParams configures a JSCreateClosure.
type CreateClosureParams struct {
	Shared *heap.SharedInfo
	Cell   *heap.FeedbackCell
	Code   *heap.Code
}

func (CreateClosureParams) params() {}
func (p CreateClosureParams) String() string {
	return p.Shared.Label() + "," + p.Cell.Label() + "," + p.Code.Label()
}

// FeedbackParams points at a feedback vector slot.
type FeedbackParams struct {
	Vector *heap.FeedbackVector
	Slot   int
}

func (FeedbackParams) params() {}
func (p FeedbackParams) String() string {
	return p.Vector.Label() + "#" + strconv.Itoa(p.Slot)
}

// CreateLiteralParams configures literal creation.
type CreateLiteralParams struct {
	Feedback FeedbackParams
	Length   int
	Flags    int
}

func (CreateLiteralParams) params() {}
func (p CreateLiteralParams) String() string {
	return p.Feedback.String() + "," + strconv.Itoa(p.Length) + "," + strconv.Itoa(p.Flags)
}

// CreateFunctionContextParams configures a JSCreateFunctionContext.
type CreateFunctionContextParams struct {
	ScopeInfo *heap.ScopeInfo
	SlotCount int
	ScopeType heap.ScopeType
}

func (CreateFunctionContextParams) params() {}
func (p CreateFunctionContextParams) String() string {
	return p.ScopeInfo.Label() + "," + strconv.Itoa(p.SlotCount) + "," + p.ScopeType.String()
}

// ScopeInfoParams carries the scope info of with, catch and block contexts.
type ScopeInfoParams struct {
	ScopeInfo *heap.ScopeInfo
}

func (ScopeInfoParams) params() {}
func (p ScopeInfoParams) String() string { return p.ScopeInfo.Label() }

var (
	_ Params = ParameterParams{}
	_ Params = NumberParams{}
	_ Params = HeapConstantParams{}
	_ Params = FrameStateInfo{}
	_ Params = AllocateParams{}
	_ Params = CallParams{}
	_ Params = FieldAccess{}
	_ Params = ElementAccess{}
	_ Params = ArgumentsLengthParams{}
	_ Params = NewArgumentsElementsParams{}
	_ Params = RegionParams{}
	_ Params = CreateArgumentsParams{}
	_ Params = CreateArrayParams{}
	_ Params = CreateArrayIteratorParams{}
	_ Params = CreateCollectionIteratorParams{}
	_ Params = CreateBoundFunctionParams{}
	_ Params = CreateClosureParams{}
	_ Params = FeedbackParams{}
	_ Params = CreateLiteralParams{}
	_ Params = CreateFunctionContextParams{}
	_ Params = ScopeInfoParams{}
)
