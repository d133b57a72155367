package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	scenarioDir = "../../testdata/scenarios"
	goldenDir   = "../../testdata/golden"
)

const iterUnit = `
name: "iter"
nodes: [
	{id: "ctx", op: "Parameter", type: "OtherInternal"},
	{id: "value", op: "Parameter"},
	{id: "done", op: "HeapConstant", params: object: "false"},
	{id: "iter", op: "JSCreateIterResultObject", value: ["value", "done"], context: "ctx"},
	{id: "ret", op: "Return", value: ["iter"]},
]
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// iterScenario writes the iter unit to a temp dir and returns a scenario
// over it with the given assertions.
func iterScenario(t *testing.T, assertions ...Assertion) *Scenario {
	t.Helper()
	dir := t.TempDir()
	return &Scenario{
		Name:        "iter",
		Description: "iterator result",
		Unit:        writeFile(t, dir, "iter.cue", iterUnit),
		Assertions:  assertions,
	}
}

func count(n int) *int { return &n }

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
	require.NoError(t, err)
	return s
}
