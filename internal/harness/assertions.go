package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the run's records to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Records  []engine.Record // Full record list for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRecords:\n")
	for i, rec := range e.Records {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, rec)
	}
	return buf.String()
}

// node resolves a unit node id against the result's unit.
func node(result *Result, id string) (ir.NodeID, error) {
	n := result.Unit.Node(id)
	if n == ir.NoNode {
		return ir.NoNode, fmt.Errorf("unknown node %q", id)
	}
	return n, nil
}

func assertReduction(result *Result, a Assertion) error {
	want := a.Outcome
	if a.Reason != "" {
		want += "(" + a.Reason + ")"
	}
	rec, ok := result.record(a.Node)
	if !ok {
		return &AssertionError{
			Type:     AssertReduction,
			Expected: fmt.Sprintf("%s %s", a.Node, want),
			Actual:   "no record",
			Records:  result.Records,
		}
	}
	got := string(rec.Outcome)
	if rec.Reason != "" {
		got += "(" + rec.Reason + ")"
	}
	if string(rec.Outcome) != a.Outcome || (a.Reason != "" && rec.Reason != a.Reason) {
		return &AssertionError{
			Type:     AssertReduction,
			Expected: fmt.Sprintf("%s %s", a.Node, want),
			Actual:   fmt.Sprintf("%s %s", a.Node, got),
			Records:  result.Records,
		}
	}
	return nil
}

func assertOpcode(result *Result, a Assertion) error {
	n, err := node(result, a.Node)
	if err != nil {
		return err
	}
	got := result.Unit.Graph.Node(n).Opcode().String()
	if got != a.Op {
		return &AssertionError{
			Type:     AssertOpcode,
			Expected: fmt.Sprintf("%s is %s", a.Node, a.Op),
			Actual:   fmt.Sprintf("%s is %s", a.Node, got),
			Records:  result.Records,
		}
	}
	return nil
}

func assertLedgerContains(result *Result, a Assertion) error {
	for _, e := range result.Ledger {
		if string(e.Kind) == a.Kind && e.Object == a.Object && (a.Detail == "" || e.Detail == a.Detail) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLedgerContains,
		Expected: formatEntry(deps.Entry{Kind: deps.Kind(a.Kind), Object: a.Object, Detail: a.Detail}),
		Actual:   fmt.Sprintf("not found in %d entries", len(result.Ledger)),
		Records:  result.Records,
	}
}

func assertCount(result *Result, a Assertion, got int, what string) error {
	if a.Count == nil {
		return fmt.Errorf("%s needs a count", a.Type)
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
			Records:  result.Records,
		}
	}
	return nil
}

// countOps counts live nodes with opcode op.
func countOps(g *ir.Graph, op ir.Opcode) int {
	count := 0
	for _, id := range g.LiveNodes() {
		if g.Node(id).Opcode() == op {
			count++
		}
	}
	return count
}

// assertEffectOrder checks that Ops appear in order on the effect chain of
// the node. Operators don't need to be consecutive.
func assertEffectOrder(result *Result, a Assertion) error {
	n, err := node(result, a.Node)
	if err != nil {
		return err
	}
	g := result.Unit.Graph
	chain := ir.EffectChain(g, n)
	ops := make([]string, len(chain))
	for i, id := range chain {
		ops[i] = g.Node(id).Opcode().String()
	}

	next := 0
	for _, op := range ops {
		if next < len(a.Ops) && op == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return &AssertionError{
			Type:     AssertEffectOrder,
			Expected: fmt.Sprintf("effect chain of %s contains %v in order", a.Node, a.Ops),
			Actual:   fmt.Sprintf("%v (first missing: %s)", ops, a.Ops[next]),
			Records:  result.Records,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertReduction:
			err = assertReduction(result, a)
		case AssertOpcode:
			err = assertOpcode(result, a)
		case AssertLedgerContains:
			err = assertLedgerContains(result, a)
		case AssertLedgerCount:
			err = assertCount(result, a, len(result.Ledger), "ledger entries")
		case AssertAllocationCount:
			err = assertCount(result, a, countOps(result.Unit.Graph, ir.OpAllocate), "allocations")
		case AssertEffectOrder:
			err = assertEffectOrder(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errors
}

func formatEntry(e deps.Entry) string {
	s := string(e.Kind) + " " + e.Object
	if e.Detail != "" {
		s += " " + e.Detail
	}
	return s
}
