package heap

import "fmt"

// FunctionKind is the syntactic kind of a function.
type FunctionKind int

const (
	NormalFunction FunctionKind = iota
	ArrowFunction
	MethodFunction
	GeneratorFunction
	AsyncFunction
	AsyncGeneratorFunction
	ClassConstructor
)

var functionKindNames = map[FunctionKind]string{
	NormalFunction:         "normal",
	ArrowFunction:          "arrow",
	MethodFunction:         "method",
	GeneratorFunction:      "generator",
	AsyncFunction:          "async",
	AsyncGeneratorFunction: "async_generator",
	ClassConstructor:       "class_constructor",
}

func (k FunctionKind) String() string {
	if s, ok := functionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FunctionKind(%d)", int(k))
}

// ParseFunctionKind resolves a name produced by FunctionKind.String.
func ParseFunctionKind(s string) (FunctionKind, bool) {
	for k, name := range functionKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// IsGenerator reports whether k resumes through a generator object.
func (k FunctionKind) IsGenerator() bool {
	return k == GeneratorFunction || k == AsyncGeneratorFunction
}

// Function map indices into NativeContext.FunctionMaps.
const (
	SloppyFunctionMapIndex = iota
	StrictFunctionMapIndex
	MethodFunctionMapIndex
	GeneratorFunctionMapIndex
	AsyncFunctionMapIndex
	functionMapCount
)

// SharedInfo is the closure-independent part of a function.
type SharedInfo struct {
	header
	Name string
	// FormalParameterCount excludes the receiver.
	FormalParameterCount int
	DuplicateParameters  bool
	// RegisterCount is the interpreter register file size.
	RegisterCount    int
	FunctionMapIndex int
	Kind             FunctionKind
	Code             *Code
}

func (*SharedInfo) InstanceType() InstanceType { return TypeSharedFunctionInfo }

// Function is a JSFunction constant.
type Function struct {
	header
	Shared        *SharedInfo
	InitialMap    *Map
	IsConstructor bool
	Cell          *FeedbackCell
	Vector        *FeedbackVector
}

func (*Function) InstanceType() InstanceType { return TypeJSFunction }

// HasInitialMap reports whether the function has allocated instances before.
func (f *Function) HasInitialMap() bool { return f.InitialMap != nil }

// FeedbackCell holds a closure's feedback. Its map encodes how many closures
// share it.
type FeedbackCell struct {
	header
	Map    *Map
	Vector *FeedbackVector
}

func (*FeedbackCell) InstanceType() InstanceType { return TypeFeedbackCell }

// FeedbackVector maps literal slots to their feedback.
type FeedbackVector struct {
	header
	Slots []Object
}

func (*FeedbackVector) InstanceType() InstanceType { return TypeFeedbackVector }

// Get returns the feedback in slot i, or nil when i is out of range.
func (v *FeedbackVector) Get(i int) Object {
	if v == nil || i < 0 || i >= len(v.Slots) {
		return nil
	}
	return v.Slots[i]
}
