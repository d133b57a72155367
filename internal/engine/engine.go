package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/alloclower/internal/ir"
	"github.com/roach88/alloclower/internal/lowering"
)

// IDGenerator generates unique compilation IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// Reducer rewrites single nodes of a graph. *lowering.Lowering is the
// production reducer.
type Reducer interface {
	Name() string
	Reduce(node ir.NodeID) lowering.Reduction
}

// DefaultMaxSteps is the default maximum number of node visits per run.
const DefaultMaxSteps = 100000

// Engine runs reducers over one graph until its worklist drains.
//
// INVARIANTS:
//   - reducers slice order NEVER changes after construction
//   - a replaced node is killed before its replacement is visited
//   - Run is called from one goroutine
type Engine struct {
	graph    *ir.Graph
	reducers []Reducer
	clock    LogicalClock
	ids      IDGenerator
	maxSteps int
	logger   *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the maximum node visits per run.
//
// Default: DefaultMaxSteps. Use a small value to test budget enforcement.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithLogger sets the logger for run start, finish and abort messages.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces the record clock.
func WithClock(c LogicalClock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithReducers appends reducers. They run in the given order on every
// node.
func WithReducers(reducers ...Reducer) EngineOption {
	return func(e *Engine) {
		e.reducers = append(e.reducers, reducers...)
	}
}

// New creates an Engine over g.
func New(g *ir.Graph, ids IDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:    g,
		clock:    NewClock(),
		ids:      ids,
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome classifies a reduction record.
type Outcome string

const (
	OutcomeChanged  Outcome = "changed"
	OutcomeReplaced Outcome = "replaced"
	OutcomeNoChange Outcome = "no_change"
)

// Record is one reducer decision about one node. Declines with
// lowering.BailUnsupported are not recorded.
type Record struct {
	Seq         int64     `json:"seq"`
	Node        ir.NodeID `json:"node"`
	Op          string    `json:"op"`
	Reducer     string    `json:"reducer"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Replacement ir.NodeID `json:"replacement"`
}

// Result summarizes a run.
type Result struct {
	CompilationID string
	Records       []Record
	Steps         int
	Changed       int
	// Fingerprint is the content hash of the graph after the run.
	Fingerprint string
}

// RecordFor returns the record of the first reducer decision about node.
func (r *Result) RecordFor(node ir.NodeID) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Node == node {
			return rec, true
		}
	}
	return Record{}, false
}

// Run visits every live node of the graph and applies the reducers.
//
// On an invariant violation or a budget overrun Run stops and returns the
// partial result along with a *RuntimeError. Context cancellation is
// checked between visits.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	id := e.ids.Generate()
	logger := e.logger.With("compilation", id)
	logger.Info("reduction starting",
		"nodes", e.graph.NodeCount(),
		"reducers", len(e.reducers),
	)

	res := &Result{CompilationID: id}
	budget := NewStepBudget(e.maxSteps)
	wl := newWorklist(e.graph.NodeCount())
	for _, n := range e.graph.LiveNodes() {
		wl.Push(n)
	}

	for {
		node, ok := wl.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			logger.Info("reduction stopping: context cancelled")
			return res, err
		}
		if err := budget.Check(id); err != nil {
			logger.Error("reduction aborted", "error", err)
			return res, err
		}
		res.Steps = budget.Current()
		if err := e.visit(id, node, wl, res); err != nil {
			logger.Error("reduction aborted", "error", err)
			return res, err
		}
	}

	fp, err := ir.Fingerprint(e.graph)
	if err != nil {
		return res, fmt.Errorf("fingerprint graph: %w", err)
	}
	res.Fingerprint = fp

	logger.Info("reduction finished",
		"steps", res.Steps,
		"changed", res.Changed,
		"records", len(res.Records),
	)
	return res, nil
}

// visit offers node to each reducer until one changes it.
func (e *Engine) visit(id string, node ir.NodeID, wl *worklist, res *Result) error {
	n := e.graph.Node(node)
	if n.IsDead() {
		return nil
	}
	op := n.Opcode().String()
	for _, r := range e.reducers {
		red, err := e.reduce(id, r, node)
		if err != nil {
			return err
		}
		rec := Record{
			Node:        node,
			Op:          op,
			Reducer:     r.Name(),
			Replacement: red.Replacement(),
		}
		if !red.IsChanged() {
			if red.Reason == lowering.BailUnsupported {
				continue
			}
			rec.Seq = e.clock.Next()
			rec.Outcome = OutcomeNoChange
			rec.Reason = string(red.Reason)
			res.Records = append(res.Records, rec)
			continue
		}

		rec.Seq = e.clock.Next()
		rec.Outcome = OutcomeChanged
		if red.Replacement() != node {
			rec.Outcome = OutcomeReplaced
			if err := e.protect(id, r.Name(), node, func() { e.graph.Kill(node) }); err != nil {
				return err
			}
			wl.Push(red.Replacement())
		}
		res.Changed++
		res.Records = append(res.Records, rec)
		return nil
	}
	return nil
}

// invariantViolation is implemented by the panic values of the ir, heap and
// lowering packages that mark a broken precondition.
type invariantViolation interface {
	error
	InvariantViolation()
}

func (e *Engine) reduce(id string, r Reducer, node ir.NodeID) (red lowering.Reduction, err error) {
	err = e.protect(id, r.Name(), node, func() { red = r.Reduce(node) })
	return red, err
}

// protect runs fn and converts an invariant panic into a RuntimeError.
// Other panics propagate.
func (e *Engine) protect(id, reducer string, node ir.NodeID, fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			v, ok := p.(invariantViolation)
			if !ok {
				panic(p)
			}
			err = NewInvariantError(id, reducer, node, v)
		}
	}()
	fn()
	return nil
}
