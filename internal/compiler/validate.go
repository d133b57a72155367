package compiler

import (
	"fmt"
	"sync"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrEmptyUnit       = "E200" // unit has no nodes
	ErrDuplicateID     = "E201" // duplicate node id or heap label
	ErrUnknownOp       = "E202" // unknown or disallowed operator
	ErrUnknownNode     = "E203" // unknown or forward node reference
	ErrUnknownLabel    = "E204" // unknown heap label
	ErrBadEnum         = "E205" // invalid enum name
	ErrInputArity      = "E206" // wrong input shape or missing parameter
	ErrInvalidRegExp   = "E207" // regexp boilerplate does not parse
	ErrInvalidType     = "E208" // invalid node type
	ErrLayout          = "E209" // inconsistent object layout
	ErrWrongObjectKind = "E210" // label names an object of the wrong kind
)

// StartNode is the predefined id of the graph's Start node.
const StartNode = "start"

// ValidationError represents a unit validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one unit.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", errs[0].Error(), len(errs)-1)
}

// graphOps are the non-construction operators a unit may declare.
var graphOps = map[ir.Opcode]bool{
	ir.OpParameter:      true,
	ir.OpNumberConstant: true,
	ir.OpHeapConstant:   true,
	ir.OpFrameState:     true,
	ir.OpDeadValue:      true,
	ir.OpReturn:         true,
}

// labelParams are node parameters that name heap objects.
var labelParams = []string{"object", "site", "map", "shared", "cell", "code", "vector", "scope"}

// requiredParams lists the parameters each operator cannot do without.
var requiredParams = map[ir.Opcode][]string{
	ir.OpNumberConstant:             {"number"},
	ir.OpHeapConstant:               {"object"},
	ir.OpJSCreateArguments:          {"type"},
	ir.OpJSCreateArrayIterator:      {"kind"},
	ir.OpJSCreateCollectionIterator: {"collection", "kind"},
	ir.OpJSCreateBoundFunction:      {"map"},
	ir.OpJSCreateClosure:            {"shared", "cell"},
	ir.OpJSCreateLiteralArray:       {"vector", "slot"},
	ir.OpJSCreateLiteralObject:      {"vector", "slot"},
	ir.OpJSCreateLiteralRegExp:      {"vector", "slot"},
	ir.OpJSCreateEmptyLiteralArray:  {"vector", "slot"},
	ir.OpJSCreateFunctionContext:    {"scope", "slots"},
	ir.OpJSCreateWithContext:        {"scope"},
	ir.OpJSCreateCatchContext:       {"scope"},
	ir.OpJSCreateBlockContext:       {"scope"},
}

// enumParams are node parameters restricted to a set of names.
var enumParams = []struct {
	name  string
	valid func(string) bool
}{
	{"type", func(s string) bool {
		_, ok := ir.ParseCreateArgumentsType(s)
		return ok
	}},
	{"kind", func(s string) bool {
		_, ok := heap.ParseIterationKind(s)
		return ok
	}},
	{"collection", func(s string) bool { return s == "set" || s == "map" }},
	{"scope_type", func(s string) bool { return s == "function" || s == "eval" }},
	{"frame", func(s string) bool { return s == "interpreted" || s == "adaptor" }},
}

var mapIndexNames = map[string]int{
	"sloppy":    heap.SloppyFunctionMapIndex,
	"strict":    heap.StrictFunctionMapIndex,
	"method":    heap.MethodFunctionMapIndex,
	"generator": heap.GeneratorFunctionMapIndex,
	"async":     heap.AsyncFunctionMapIndex,
}

// bootstrapLabels are the labels every snapshot starts with.
var bootstrapLabels = sync.OnceValue(func() map[string]bool {
	b := heap.NewBroker()
	heap.Bootstrap(b)
	out := make(map[string]bool, b.Len())
	for _, l := range b.Labels() {
		out[l] = true
	}
	return out
})

// holeLabel marks a hole in a double array.
const holeLabel = "hole"

// Validate checks a parsed unit against the structural rules the builder
// relies on. Returns all errors found (does not fail-fast).
func Validate(u *UnitSpec) []ValidationError {
	v := &validator{unit: u, labels: make(map[string]bool)}
	v.checkLabels()
	v.checkMaps()
	v.checkShared()
	v.checkFunctions()
	v.checkCells()
	v.checkSites()
	v.checkObjects()
	v.checkArrays()
	v.checkRegExps()
	v.checkScopes()
	v.checkVectors()
	v.checkNodes()
	return v.errs
}

type validator struct {
	unit   *UnitSpec
	labels map[string]bool
	errs   []ValidationError
}

func (v *validator) add(code string, line int, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Line:    line,
	})
}

func (v *validator) known(label string) bool {
	return v.labels[label] || bootstrapLabels()[label]
}

// ref checks an optional label reference.
func (v *validator) ref(line int, field, label string) {
	if label != "" && !v.known(label) {
		v.add(ErrUnknownLabel, line, field, "unknown label %q", label)
	}
}

// required checks a mandatory label reference.
func (v *validator) required(line int, field, label string) {
	if label == "" {
		v.add(ErrUnknownLabel, line, field, "label is required")
		return
	}
	v.ref(line, field, label)
}

func (v *validator) values(field string, vals []ValueSpec) {
	for i, val := range vals {
		if val.Kind == ValueRef {
			v.ref(val.Line, fmt.Sprintf("%s[%d]", field, i), val.Ref)
		}
	}
}

func (v *validator) declare(line int, field, label string) {
	switch {
	case v.labels[label]:
		v.add(ErrDuplicateID, line, field, "duplicate label %q", label)
	case bootstrapLabels()[label]:
		v.add(ErrDuplicateID, line, field, "label %q shadows a root", label)
	}
	v.labels[label] = true
}

// checkLabels declares every label, including the ones the builder
// derives: "<fn>_shared" for functions without shared info and
// "<re>_source" and "<re>_data" for regexps.
func (v *validator) checkLabels() {
	u := v.unit
	for _, l := range sortedKeys(u.Maps) {
		v.declare(u.Maps[l].Line, "maps."+l, l)
	}
	for _, l := range sortedKeys(u.Shared) {
		v.declare(u.Shared[l].Line, "shared."+l, l)
	}
	for _, l := range sortedKeys(u.Functions) {
		f := u.Functions[l]
		v.declare(f.Line, "functions."+l, l)
		if f.Shared == "" {
			v.declare(f.Line, "functions."+l, l+"_shared")
		}
	}
	for _, l := range sortedKeys(u.Cells) {
		v.declare(u.Cells[l].Line, "cells."+l, l)
	}
	for _, l := range sortedKeys(u.Sites) {
		v.declare(u.Sites[l].Line, "sites."+l, l)
	}
	for _, l := range sortedKeys(u.Objects) {
		v.declare(u.Objects[l].Line, "objects."+l, l)
	}
	for _, l := range sortedKeys(u.Arrays) {
		v.declare(u.Arrays[l].Line, "arrays."+l, l)
	}
	for _, l := range sortedKeys(u.Numbers) {
		v.declare(u.Numbers[l].Line, "numbers."+l, l)
	}
	for _, l := range sortedKeys(u.Strings) {
		v.declare(0, "strings."+l, l)
	}
	for _, l := range sortedKeys(u.RegExps) {
		r := u.RegExps[l]
		v.declare(r.Line, "regexps."+l, l)
		v.declare(r.Line, "regexps."+l, l+"_source")
		v.declare(r.Line, "regexps."+l, l+"_data")
	}
	for _, l := range sortedKeys(u.Scopes) {
		v.declare(u.Scopes[l].Line, "scopes."+l, l)
	}
	for _, l := range sortedKeys(u.Vectors) {
		v.declare(u.Vectors[l].Line, "vectors."+l, l)
	}
}

func (v *validator) checkMaps() {
	u := v.unit
	for _, l := range sortedKeys(u.Maps) {
		m := u.Maps[l]
		field := "maps." + l
		if _, ok := heap.ParseInstanceType(m.Type); !ok {
			v.add(ErrBadEnum, m.Line, field+".type", "unknown instance type %q", m.Type)
		}
		if m.Kind != "" {
			if _, ok := heap.ParseElementsKind(m.Kind); !ok {
				v.add(ErrBadEnum, m.Line, field+".kind", "unknown elements kind %q", m.Kind)
			}
		}
		if m.InstanceSize >= 0 && m.InObject*heap.PointerSize > m.InstanceSize {
			v.add(ErrLayout, m.Line, field+".in_object",
				"%d in-object properties do not fit instance size %d", m.InObject, m.InstanceSize)
		}
		if m.Unused > m.InObject {
			v.add(ErrLayout, m.Line, field+".unused",
				"%d unused fields exceed %d in-object properties", m.Unused, m.InObject)
		}
		v.ref(m.Line, field+".constructor", m.Constructor)

		kinds := map[string]string{m.Kind: l}
		for i, s := range m.Siblings {
			sf := fmt.Sprintf("%s.siblings[%d]", field, i)
			v.required(m.Line, sf, s)
			if sib, ok := u.Maps[s]; ok {
				if other, dup := kinds[sib.Kind]; dup {
					v.add(ErrLayout, m.Line, sf, "sibling %q has the same elements kind as %q", s, other)
				}
				kinds[sib.Kind] = s
			}
		}

		owner := map[int]int{}
		for i, d := range m.Descriptors {
			df := fmt.Sprintf("%s.descriptors[%d]", field, i)
			if d.Location != "" && d.Location != "field" && d.Location != "descriptor" {
				v.add(ErrBadEnum, m.Line, df+".location", "unknown location %q", d.Location)
			}
			if d.Representation != "" {
				if _, ok := heap.ParseRepresentation(d.Representation); !ok {
					v.add(ErrBadEnum, m.Line, df+".representation", "unknown representation %q", d.Representation)
				}
			}
			if d.Location == "descriptor" {
				continue
			}
			if d.Field < 0 || d.Field >= m.InObject {
				v.add(ErrLayout, m.Line, df+".field",
					"field %d is outside %d in-object properties", d.Field, m.InObject)
				continue
			}
			if j, dup := owner[d.Field]; dup {
				v.add(ErrLayout, m.Line, df+".field", "field %d is already used by descriptors[%d]", d.Field, j)
				continue
			}
			owner[d.Field] = i
		}
		// Fields are numbered densely from 0.
		for i := 0; i < len(owner); i++ {
			if _, ok := owner[i]; !ok {
				v.add(ErrLayout, m.Line, field+".descriptors", "field %d is skipped", i)
				break
			}
		}
	}
}

func (v *validator) checkShared() {
	u := v.unit
	for _, l := range sortedKeys(u.Shared) {
		s := u.Shared[l]
		field := "shared." + l
		if s.MapIndex != "" {
			if _, ok := mapIndexNames[s.MapIndex]; !ok {
				v.add(ErrBadEnum, s.Line, field+".map_index", "unknown function map %q", s.MapIndex)
			}
		}
		if s.Kind != "" {
			if _, ok := heap.ParseFunctionKind(s.Kind); !ok {
				v.add(ErrBadEnum, s.Line, field+".kind", "unknown function kind %q", s.Kind)
			}
		}
		v.ref(s.Line, field+".code", s.Code)
	}
}

func (v *validator) checkFunctions() {
	u := v.unit
	for _, l := range sortedKeys(u.Functions) {
		f := u.Functions[l]
		field := "functions." + l
		v.ref(f.Line, field+".shared", f.Shared)
		v.ref(f.Line, field+".initial_map", f.InitialMap)
		v.ref(f.Line, field+".cell", f.Cell)
		v.ref(f.Line, field+".vector", f.Vector)
	}
}

func (v *validator) checkCells() {
	u := v.unit
	for _, l := range sortedKeys(u.Cells) {
		c := u.Cells[l]
		v.required(c.Line, "cells."+l+".map", c.Map)
		v.ref(c.Line, "cells."+l+".vector", c.Vector)
	}
}

func (v *validator) checkSites() {
	u := v.unit
	for _, l := range sortedKeys(u.Sites) {
		s := u.Sites[l]
		field := "sites." + l
		if s.Kind != "" {
			if _, ok := heap.ParseElementsKind(s.Kind); !ok {
				v.add(ErrBadEnum, s.Line, field+".kind", "unknown elements kind %q", s.Kind)
			}
		}
		v.ref(s.Line, field+".boilerplate", s.Boilerplate)
		if s.FastLiteral && s.Boilerplate == "" {
			v.add(ErrLayout, s.Line, field+".fast_literal", "fast literal site needs a boilerplate")
		}
		for i, n := range s.Nested {
			v.required(s.Line, fmt.Sprintf("%s.nested[%d]", field, i), n)
		}
	}
}

func (v *validator) checkObjects() {
	u := v.unit
	for _, l := range sortedKeys(u.Objects) {
		o := u.Objects[l]
		field := "objects." + l
		v.required(o.Line, field+".map", o.Map)
		if m, ok := u.Maps[o.Map]; ok && len(o.Fields) > m.InObject {
			v.add(ErrLayout, o.Line, field+".fields",
				"%d fields exceed %d in-object properties of %q", len(o.Fields), m.InObject, o.Map)
		}
		v.values(field+".fields", o.Fields)
		v.ref(o.Line, field+".elements", o.Elements)
		v.ref(o.Line, field+".tenured_elements", o.TenuredElements)
		v.ref(o.Line, field+".object_create_map", o.ObjectCreateMap)
		if o.Length != nil && o.Length.Kind == ValueRef {
			v.ref(o.Line, field+".length", o.Length.Ref)
		}
	}
}

func (v *validator) checkArrays() {
	u := v.unit
	for _, l := range sortedKeys(u.Arrays) {
		a := u.Arrays[l]
		field := "arrays." + l
		v.ref(a.Line, field+".map", a.Map)
		if !v.isDoubleArrayMap(a.Map) {
			v.values(field+".values", a.Values)
			continue
		}
		for i, val := range a.Values {
			if val.Kind == ValueRef && val.Ref != holeLabel {
				v.add(ErrLayout, val.Line, fmt.Sprintf("%s.values[%d]", field, i),
					"double array holds numbers or %q, got %q", holeLabel, val.Ref)
			}
		}
	}
}

func (v *validator) isDoubleArrayMap(label string) bool {
	if label == "fixed_double_array_map" {
		return true
	}
	m, ok := v.unit.Maps[label]
	return ok && m.Type == heap.TypeFixedDoubleArray.String()
}

func (v *validator) checkRegExps() {
	u := v.unit
	for _, l := range sortedKeys(u.RegExps) {
		r := u.RegExps[l]
		if err := checkRegExp(r.Source, r.Flags); err != nil {
			v.add(ErrInvalidRegExp, r.Line, "regexps."+l, "/%s/%s: %v", r.Source, r.Flags, err)
		}
	}
}

func (v *validator) checkScopes() {
	u := v.unit
	for _, l := range sortedKeys(u.Scopes) {
		s := u.Scopes[l]
		if _, ok := heap.ParseScopeType(s.Type); !ok {
			v.add(ErrBadEnum, s.Line, "scopes."+l+".type", "unknown scope type %q", s.Type)
		}
		if s.Length < heap.MinContextSlots {
			v.add(ErrLayout, s.Line, "scopes."+l+".length",
				"context length %d is below the %d header slots", s.Length, heap.MinContextSlots)
		}
	}
}

func (v *validator) checkVectors() {
	u := v.unit
	for _, l := range sortedKeys(u.Vectors) {
		v.values("vectors."+l+".slots", u.Vectors[l].Slots)
	}
}

func (v *validator) checkNodes() {
	if len(v.unit.Nodes) == 0 {
		v.add(ErrEmptyUnit, 0, "nodes", "unit has no nodes")
		return
	}
	defined := map[string]bool{StartNode: true}
	for i, n := range v.unit.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.ID != "" {
			field = "nodes." + n.ID
		}
		v.checkNode(field, n, defined)
		if n.ID == "" {
			v.add(ErrDuplicateID, n.Line, field+".id", "node id is required")
		} else if defined[n.ID] {
			v.add(ErrDuplicateID, n.Line, field+".id", "duplicate node id %q", n.ID)
		}
		defined[n.ID] = true
	}
}

func (v *validator) checkNode(field string, n *NodeSpec, defined map[string]bool) {
	input := func(name, id string) {
		if id != "" && !defined[id] {
			v.add(ErrUnknownNode, n.Line, field+"."+name, "unknown or later node %q", id)
		}
	}
	for i, id := range n.Value {
		input(fmt.Sprintf("value[%d]", i), id)
	}
	input("context", n.Context)
	input("frame_state", n.FrameState)
	input("effect", n.Effect)
	input("control", n.Control)
	if outer, ok := n.Params.Str("outer"); ok {
		input("params.outer", outer)
	}
	if closure, ok := n.Params.Str("closure"); ok {
		input("params.closure", closure)
	}

	if n.Type != "" {
		if _, err := ir.ParseType(n.Type); err != nil {
			v.add(ErrInvalidType, n.Line, field+".type", "%v", err)
		}
	}

	op, ok := ir.ParseOpcode(n.Op)
	if !ok || (!op.IsJSCreate() && !graphOps[op]) {
		v.add(ErrUnknownOp, n.Line, field+".op", "operator %q cannot appear in a unit", n.Op)
		return
	}
	v.checkArity(field, n, op)
	v.checkParams(field, n, op)
}

func (v *validator) checkArity(field string, n *NodeSpec, op ir.Opcode) {
	switch op {
	case ir.OpParameter, ir.OpNumberConstant, ir.OpHeapConstant, ir.OpDeadValue:
		if len(n.Value) != 0 {
			v.add(ErrInputArity, n.Line, field+".value", "%s takes no value inputs", op)
		}
		return
	case ir.OpFrameState:
		if n.Context == "" {
			v.add(ErrInputArity, n.Line, field+".context", "FrameState needs a context")
		}
		return
	case ir.OpReturn:
		if len(n.Value) != 1 {
			v.add(ErrInputArity, n.Line, field+".value", "Return takes one value input, got %d", len(n.Value))
		}
		return
	}

	operator := ir.NewOperator(op, nil, len(n.Value))
	switch {
	case op.IsVariadic():
		if len(n.Value) < 2 {
			v.add(ErrInputArity, n.Line, field+".value",
				"%s needs target and new target or receiver, got %d inputs", op, len(n.Value))
		}
	case len(n.Value) != operator.ValueInputCount():
		v.add(ErrInputArity, n.Line, field+".value",
			"%s takes %d value inputs, got %d", op, operator.ValueInputCount(), len(n.Value))
	}
	if operator.HasContext() && n.Context == "" {
		v.add(ErrInputArity, n.Line, field+".context", "%s needs a context", op)
	}
	if operator.HasFrameState() && n.FrameState == "" {
		v.add(ErrInputArity, n.Line, field+".frame_state", "%s needs a frame state", op)
	}
}

func (v *validator) checkParams(field string, n *NodeSpec, op ir.Opcode) {
	for _, p := range requiredParams[op] {
		if !n.Params.Has(p) {
			v.add(ErrInputArity, n.Line, field+".params."+p, "%s needs parameter %q", op, p)
		}
	}
	for _, p := range labelParams {
		if !n.Params.Has(p) {
			continue
		}
		label, ok := n.Params.Str(p)
		if !ok {
			v.add(ErrUnknownLabel, n.Line, field+".params."+p, "parameter %q must be a label", p)
			continue
		}
		v.ref(n.Line, field+".params."+p, label)
	}
	for _, e := range enumParams {
		if !n.Params.Has(e.name) {
			continue
		}
		if s, ok := n.Params.Str(e.name); !ok || !e.valid(s) {
			v.add(ErrBadEnum, n.Line, field+".params."+e.name, "invalid %s %v", e.name, n.Params[e.name])
		}
	}
	for _, p := range []string{"slot", "slots", "index", "length", "flags"} {
		if n.Params.Has(p) {
			if _, ok := n.Params.Int(p); !ok {
				v.add(ErrInputArity, n.Line, field+".params."+p, "parameter %q must be an integer", p)
			}
		}
	}
	if n.Params.Has("number") {
		if _, ok := n.Params.Number("number"); !ok {
			v.add(ErrInputArity, n.Line, field+".params.number", "parameter %q must be a number", "number")
		}
	}
}
