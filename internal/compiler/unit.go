package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Unit is one compiled compilation unit: a heap snapshot and the graph
// that is lowered against it.
type Unit struct {
	Name   string
	Source []byte
	// Digest identifies Source, see ir.UnitDigest.
	Digest string

	Graph  *ir.Graph
	Broker *heap.Broker
	Native *heap.NativeContext

	// Nodes maps unit node ids to graph nodes.
	Nodes map[string]ir.NodeID
}

// Node returns the graph node declared under id, or ir.NoNode.
func (u *Unit) Node(id string) ir.NodeID {
	if n, ok := u.Nodes[id]; ok {
		return n
	}
	return ir.NoNode
}

// NameOf returns the unit id a graph node was declared under. Nodes added
// by lowering have none.
func (u *Unit) NameOf(id ir.NodeID) (string, bool) {
	names := make([]string, 0, 1)
	for name, n := range u.Nodes {
		if n == id {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	// Cached constants may be declared twice.
	sort.Strings(names)
	return names[0], true
}

// Compile checks v against the unit schema, validates it and builds the
// snapshot and graph. source is kept on the unit for digests and replay.
func Compile(v cue.Value, source []byte) (*Unit, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("unit schema: %w", formatCUEError(err))
	}
	v = schema.LookupPath(cue.ParsePath("#Unit")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec, err := Parse(v)
	if err != nil {
		return nil, err
	}
	if errs := Validate(spec); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	unit, err := Build(spec)
	if err != nil {
		return nil, err
	}
	unit.Source = source
	unit.Digest = ir.UnitDigest(source)
	return unit, nil
}

// Build materializes a validated unit.
func Build(spec *UnitSpec) (*Unit, error) {
	broker, native, err := buildHeap(spec)
	if err != nil {
		return nil, err
	}
	hb := &heapBuilder{unit: spec, broker: broker, native: native}
	g, ids, err := buildGraph(hb)
	if err != nil {
		return nil, err
	}
	return &Unit{
		Name:   spec.Name,
		Graph:  g,
		Broker: broker,
		Native: native,
		Nodes:  ids,
	}, nil
}

// CompileSource compiles CUE source text. The unit name defaults to the
// file's base name.
func CompileSource(filename string, src []byte) (*Unit, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	unit, err := Compile(v, src)
	if err != nil {
		return nil, err
	}
	if unit.Name == "" {
		unit.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return unit, nil
}

// CompileFile reads and compiles one unit file.
func CompileFile(path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit: %w", err)
	}
	return CompileSource(path, src)
}
