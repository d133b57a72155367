package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
)

// ValueKind distinguishes the three slot value encodings of a unit.
type ValueKind int

const (
	ValueSmi ValueKind = iota
	ValueDouble
	ValueRef
)

// ValueSpec is one slot value: an integer Smi, a raw double or a label.
type ValueSpec struct {
	Kind   ValueKind
	Smi    int64
	Double float64
	Ref    string
	Line   int
}

// DescriptorSpec is one own property of a map.
type DescriptorSpec struct {
	Name           string
	Location       string
	Representation string
	Field          int
}

type MapSpec struct {
	Type          string
	InstanceSize  int // -1 derives the size from the type and in-object count
	InObject      int
	Unused        int
	Kind          string
	Dictionary    bool
	SlackTracking bool
	PrototypeSlot bool
	CopyOnWrite   bool
	Constructor   string
	Siblings      []string
	Descriptors   []DescriptorSpec
	Line          int
}

type SharedSpec struct {
	Name                string
	Formal              int
	DuplicateParameters bool
	Registers           int
	MapIndex            string
	Kind                string
	Code                string
	Line                int
}

type FunctionSpec struct {
	Shared      string
	InitialMap  string
	Constructor bool
	Cell        string
	Vector      string
	Line        int
}

type CellSpec struct {
	Map    string
	Vector string
	Line   int
}

type SiteSpec struct {
	Kind          string
	CanInlineCall bool
	Pretenure     bool
	Boilerplate   string
	FastLiteral   bool
	Nested        []string
	Line          int
}

type ObjectSpec struct {
	Map             string
	Fields          []ValueSpec
	Elements        string
	TenuredElements string
	Length          *ValueSpec
	ObjectCreateMap string
	Line            int
}

// ArraySpec is a FixedArray, or a FixedDoubleArray when its map is a double
// array map. Double arrays take numbers and the label "hole".
type ArraySpec struct {
	Map    string
	Values []ValueSpec
	Line   int
}

type NumberSpec struct {
	Value   float64
	Mutable bool
	Line    int
}

type RegExpSpec struct {
	Source string
	Flags  string
	Line   int
}

type ScopeSpec struct {
	Type   string
	Length int
	Line   int
}

type VectorSpec struct {
	Slots []ValueSpec
	Line  int
}

// NodeSpec is one graph node. Inputs name earlier nodes by id.
type NodeSpec struct {
	ID         string
	Op         string
	Value      []string
	Context    string
	FrameState string
	Effect     string
	Control    string
	Type       string
	Params     Params
	Line       int
}

// Params holds the scalar operator parameters of a node. Values are int64,
// float64, string or bool.
type Params map[string]any

// UnitSpec is a parsed, not yet validated compilation unit.
type UnitSpec struct {
	Name            string
	ProtectorIntact *bool

	Maps      map[string]*MapSpec
	Shared    map[string]*SharedSpec
	Functions map[string]*FunctionSpec
	Cells     map[string]*CellSpec
	Sites     map[string]*SiteSpec
	Objects   map[string]*ObjectSpec
	Arrays    map[string]*ArraySpec
	Numbers   map[string]*NumberSpec
	Strings   map[string]string
	RegExps   map[string]*RegExpSpec
	Scopes    map[string]*ScopeSpec
	Vectors   map[string]*VectorSpec

	Nodes []*NodeSpec
}

// Parse reads a unit from a CUE value that already satisfies #Unit.
func Parse(v cue.Value) (*UnitSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	u := &UnitSpec{
		Maps:      make(map[string]*MapSpec),
		Shared:    make(map[string]*SharedSpec),
		Functions: make(map[string]*FunctionSpec),
		Cells:     make(map[string]*CellSpec),
		Sites:     make(map[string]*SiteSpec),
		Objects:   make(map[string]*ObjectSpec),
		Arrays:    make(map[string]*ArraySpec),
		Numbers:   make(map[string]*NumberSpec),
		Strings:   make(map[string]string),
		RegExps:   make(map[string]*RegExpSpec),
		Scopes:    make(map[string]*ScopeSpec),
		Vectors:   make(map[string]*VectorSpec),
	}

	var err error
	if u.Name, err = optString(v, "name"); err != nil {
		return nil, err
	}
	if f := lookup(v, "protector_intact"); f.Exists() {
		intact, err := f.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		u.ProtectorIntact = &intact
	}

	sections := []struct {
		name  string
		parse func(label string, v cue.Value) error
	}{
		{"maps", func(l string, v cue.Value) error { return parseInto(u.Maps, l, v, parseMap) }},
		{"shared", func(l string, v cue.Value) error { return parseInto(u.Shared, l, v, parseShared) }},
		{"functions", func(l string, v cue.Value) error { return parseInto(u.Functions, l, v, parseFunction) }},
		{"cells", func(l string, v cue.Value) error { return parseInto(u.Cells, l, v, parseCell) }},
		{"sites", func(l string, v cue.Value) error { return parseInto(u.Sites, l, v, parseSite) }},
		{"objects", func(l string, v cue.Value) error { return parseInto(u.Objects, l, v, parseObject) }},
		{"arrays", func(l string, v cue.Value) error { return parseInto(u.Arrays, l, v, parseArray) }},
		{"numbers", func(l string, v cue.Value) error { return parseInto(u.Numbers, l, v, parseNumber) }},
		{"strings", func(l string, v cue.Value) error {
			s, err := v.String()
			if err != nil {
				return formatCUEError(err)
			}
			u.Strings[l] = s
			return nil
		}},
		{"regexps", func(l string, v cue.Value) error { return parseInto(u.RegExps, l, v, parseRegExp) }},
		{"scopes", func(l string, v cue.Value) error { return parseInto(u.Scopes, l, v, parseScope) }},
		{"vectors", func(l string, v cue.Value) error { return parseInto(u.Vectors, l, v, parseVector) }},
	}
	for _, s := range sections {
		if err := eachField(v, s.name, s.parse); err != nil {
			return nil, err
		}
	}

	nodes := lookup(v, "nodes")
	if !nodes.Exists() {
		return nil, &CompileError{Field: "nodes", Message: "nodes is required", Pos: v.Pos()}
	}
	iter, err := nodes.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		n, err := parseNode(iter.Value())
		if err != nil {
			return nil, err
		}
		u.Nodes = append(u.Nodes, n)
	}
	return u, nil
}

func parseInto[T any](dst map[string]*T, label string, v cue.Value, parse func(cue.Value) (*T, error)) error {
	s, err := parse(v)
	if err != nil {
		return err
	}
	dst[label] = s
	return nil
}

func parseMap(v cue.Value) (*MapSpec, error) {
	m := &MapSpec{Line: line(v)}
	var err error
	if m.Type, err = optString(v, "type"); err != nil {
		return nil, err
	}
	if m.InstanceSize, err = optInt(v, "instance_size", -1); err != nil {
		return nil, err
	}
	if m.InObject, err = optInt(v, "in_object", 0); err != nil {
		return nil, err
	}
	if m.Unused, err = optInt(v, "unused", 0); err != nil {
		return nil, err
	}
	if m.Kind, err = optString(v, "kind"); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		dst  *bool
	}{
		{"dictionary", &m.Dictionary},
		{"slack_tracking", &m.SlackTracking},
		{"prototype_slot", &m.PrototypeSlot},
		{"copy_on_write", &m.CopyOnWrite},
	} {
		if *f.dst, err = optBool(v, f.name); err != nil {
			return nil, err
		}
	}
	if m.Constructor, err = optString(v, "constructor"); err != nil {
		return nil, err
	}
	if m.Siblings, err = optStrings(v, "siblings"); err != nil {
		return nil, err
	}
	if d := lookup(v, "descriptors"); d.Exists() {
		iter, err := d.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		fields := 0
		for iter.Next() {
			dv := iter.Value()
			var desc DescriptorSpec
			if desc.Name, err = optString(dv, "name"); err != nil {
				return nil, err
			}
			if desc.Location, err = optString(dv, "location"); err != nil {
				return nil, err
			}
			if desc.Representation, err = optString(dv, "representation"); err != nil {
				return nil, err
			}
			if desc.Field, err = optInt(dv, "field", fields); err != nil {
				return nil, err
			}
			if desc.Location != "descriptor" {
				fields++
			}
			m.Descriptors = append(m.Descriptors, desc)
		}
	}
	return m, nil
}

func parseShared(v cue.Value) (*SharedSpec, error) {
	s := &SharedSpec{Line: line(v)}
	var err error
	if s.Name, err = optString(v, "name"); err != nil {
		return nil, err
	}
	if s.Formal, err = optInt(v, "formal", 0); err != nil {
		return nil, err
	}
	if s.DuplicateParameters, err = optBool(v, "duplicate_parameters"); err != nil {
		return nil, err
	}
	if s.Registers, err = optInt(v, "registers", 0); err != nil {
		return nil, err
	}
	if s.MapIndex, err = optString(v, "map_index"); err != nil {
		return nil, err
	}
	if s.Kind, err = optString(v, "kind"); err != nil {
		return nil, err
	}
	if s.Code, err = optString(v, "code"); err != nil {
		return nil, err
	}
	return s, nil
}

func parseFunction(v cue.Value) (*FunctionSpec, error) {
	f := &FunctionSpec{Line: line(v)}
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"shared", &f.Shared},
		{"initial_map", &f.InitialMap},
		{"cell", &f.Cell},
		{"vector", &f.Vector},
	} {
		if *f.dst, err = optString(v, f.name); err != nil {
			return nil, err
		}
	}
	if f.Constructor, err = optBool(v, "constructor"); err != nil {
		return nil, err
	}
	return f, nil
}

func parseCell(v cue.Value) (*CellSpec, error) {
	c := &CellSpec{Line: line(v)}
	var err error
	if c.Map, err = optString(v, "map"); err != nil {
		return nil, err
	}
	if c.Vector, err = optString(v, "vector"); err != nil {
		return nil, err
	}
	return c, nil
}

func parseSite(v cue.Value) (*SiteSpec, error) {
	s := &SiteSpec{Line: line(v)}
	var err error
	if s.Kind, err = optString(v, "kind"); err != nil {
		return nil, err
	}
	if s.CanInlineCall, err = optBool(v, "can_inline_call"); err != nil {
		return nil, err
	}
	if s.Pretenure, err = optBool(v, "pretenure"); err != nil {
		return nil, err
	}
	if s.Boilerplate, err = optString(v, "boilerplate"); err != nil {
		return nil, err
	}
	if s.FastLiteral, err = optBool(v, "fast_literal"); err != nil {
		return nil, err
	}
	if s.Nested, err = optStrings(v, "nested"); err != nil {
		return nil, err
	}
	return s, nil
}

func parseObject(v cue.Value) (*ObjectSpec, error) {
	o := &ObjectSpec{Line: line(v)}
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"map", &o.Map},
		{"elements", &o.Elements},
		{"tenured_elements", &o.TenuredElements},
		{"object_create_map", &o.ObjectCreateMap},
	} {
		if *f.dst, err = optString(v, f.name); err != nil {
			return nil, err
		}
	}
	if o.Fields, err = optValues(v, "fields"); err != nil {
		return nil, err
	}
	if l := lookup(v, "length"); l.Exists() {
		length, err := parseValue(l)
		if err != nil {
			return nil, err
		}
		o.Length = &length
	}
	return o, nil
}

func parseArray(v cue.Value) (*ArraySpec, error) {
	a := &ArraySpec{Line: line(v)}
	var err error
	if a.Map, err = optString(v, "map"); err != nil {
		return nil, err
	}
	if a.Values, err = optValues(v, "values"); err != nil {
		return nil, err
	}
	return a, nil
}

func parseNumber(v cue.Value) (*NumberSpec, error) {
	n := &NumberSpec{Line: line(v)}
	f, err := lookup(v, "value").Float64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	n.Value = f
	if n.Mutable, err = optBool(v, "mutable"); err != nil {
		return nil, err
	}
	return n, nil
}

func parseRegExp(v cue.Value) (*RegExpSpec, error) {
	r := &RegExpSpec{Line: line(v)}
	var err error
	if r.Source, err = optString(v, "source"); err != nil {
		return nil, err
	}
	if r.Flags, err = optString(v, "flags"); err != nil {
		return nil, err
	}
	return r, nil
}

func parseScope(v cue.Value) (*ScopeSpec, error) {
	s := &ScopeSpec{Line: line(v)}
	var err error
	if s.Type, err = optString(v, "type"); err != nil {
		return nil, err
	}
	if s.Length, err = optInt(v, "length", 0); err != nil {
		return nil, err
	}
	return s, nil
}

func parseVector(v cue.Value) (*VectorSpec, error) {
	slots, err := optValues(v, "slots")
	if err != nil {
		return nil, err
	}
	return &VectorSpec{Slots: slots, Line: line(v)}, nil
}

func parseNode(v cue.Value) (*NodeSpec, error) {
	n := &NodeSpec{Params: Params{}, Line: line(v)}
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"id", &n.ID},
		{"op", &n.Op},
		{"context", &n.Context},
		{"frame_state", &n.FrameState},
		{"effect", &n.Effect},
		{"control", &n.Control},
		{"type", &n.Type},
	} {
		if *f.dst, err = optString(v, f.name); err != nil {
			return nil, err
		}
	}
	if n.Value, err = optStrings(v, "value"); err != nil {
		return nil, err
	}
	err = eachField(v, "params", func(label string, pv cue.Value) error {
		var (
			val any
			err error
		)
		switch pv.Kind() {
		case cue.IntKind:
			val, err = pv.Int64()
		case cue.FloatKind:
			val, err = pv.Float64()
		case cue.StringKind:
			val, err = pv.String()
		case cue.BoolKind:
			val, err = pv.Bool()
		default:
			return &CompileError{
				Field:   "params." + label,
				Message: fmt.Sprintf("parameter must be a scalar, got %s", pv.Kind()),
				Pos:     pv.Pos(),
			}
		}
		if err != nil {
			return formatCUEError(err)
		}
		n.Params[label] = val
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// parseValue decodes the #Value encoding.
func parseValue(v cue.Value) (ValueSpec, error) {
	out := ValueSpec{Line: line(v)}
	var err error
	switch v.Kind() {
	case cue.IntKind:
		out.Kind = ValueSmi
		out.Smi, err = v.Int64()
	case cue.FloatKind:
		out.Kind = ValueDouble
		out.Double, err = v.Float64()
	case cue.StringKind:
		out.Kind = ValueRef
		out.Ref, err = v.String()
	case cue.StructKind:
		out.Kind = ValueDouble
		out.Double, err = lookup(v, "double").Float64()
	default:
		return out, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value of kind %s", v.Kind()),
			Pos:     v.Pos(),
		}
	}
	if err != nil {
		return out, formatCUEError(err)
	}
	return out, nil
}

func lookup(v cue.Value, field string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(field)))
}

func line(v cue.Value) int { return v.Pos().Line() }

func optString(v cue.Value, field string) (string, error) {
	f := lookup(v, field)
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optInt(v cue.Value, field string, def int) (int, error) {
	f := lookup(v, field)
	if !f.Exists() {
		return def, nil
	}
	i, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(i), nil
}

func optBool(v cue.Value, field string) (bool, error) {
	f := lookup(v, field)
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optStrings(v cue.Value, field string) ([]string, error) {
	f := lookup(v, field)
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func optValues(v cue.Value, field string) ([]ValueSpec, error) {
	f := lookup(v, field)
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ValueSpec
	for iter.Next() {
		val, err := parseValue(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// eachField calls fn for every field of the struct at field, in label
// order. A missing struct is not an error.
func eachField(v cue.Value, field string, fn func(label string, v cue.Value) error) error {
	f := lookup(v, field)
	if !f.Exists() {
		return nil
	}
	iter, err := f.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	fields := make(map[string]cue.Value)
	var labels []string
	for iter.Next() {
		label := iter.Selector().Unquoted()
		fields[label] = iter.Value()
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if err := fn(label, fields[label]); err != nil {
			return err
		}
	}
	return nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) Str(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func (p Params) Number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (p Params) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
