package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the parts of a result that golden files pin: the
// reduction records, the dependency ledger and the final graph.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	if result.ErrorCode != "" {
		fmt.Fprintf(&b, "error: %s\n", result.ErrorCode)
	}

	b.WriteString("reductions:\n")
	for _, rec := range result.Records {
		fmt.Fprintf(&b, "  %s\n", rec)
	}

	b.WriteString("ledger:\n")
	for _, e := range result.Ledger {
		fmt.Fprintf(&b, "  %s\n", formatEntry(e))
	}

	b.WriteString("graph:\n")
	b.WriteString(result.Dump)
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// dir/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, dir string, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	AssertGolden(t, dir, scenario.Name, result)
	return nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, dir, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
