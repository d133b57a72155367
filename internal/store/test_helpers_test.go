package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/lowering"
	"github.com/roach88/alloclower/internal/testutil"
)

const newArraySource = `
name: "new_array"
sites: site: {kind: "PACKED_SMI_ELEMENTS"}
nodes: [
	{id: "ctx", op: "Parameter", type: "OtherInternal"},
	{id: "array_function", op: "HeapConstant", params: object: "array_function"},
	{id: "fs", op: "FrameState", context: "ctx"},
	{id: "create", op: "JSCreateArray", value: ["array_function", "array_function"], context: "ctx",
		frame_state: "fs", params: site: "site"},
	{id: "ret", op: "Return", value: ["create"]},
]
`

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRun is one lowering run ready to be written.
type testRun struct {
	compilation Compilation
	result      *engine.Result
	ledger      *deps.Ledger
}

// lowerSource compiles src and lowers it under id.
func lowerSource(t *testing.T, id, src string, maxSteps int) testRun {
	t.Helper()
	unit, err := compiler.CompileSource("unit.cue", []byte(src))
	if err != nil {
		t.Fatalf("CompileSource() failed: %v", err)
	}
	limits := lowering.DefaultLimits()
	res, ledger, runErr := engine.LowerUnit(context.Background(), unit, engine.NewFixedGenerator(id), limits,
		engine.WithMaxSteps(maxSteps),
		engine.WithLogger(quietLogger()),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	return testRun{
		compilation: NewCompilation(unit, res, limits, maxSteps, runErr),
		result:      res,
		ledger:      ledger,
	}
}

// writeRun lowers src and stores the run.
func writeRun(t *testing.T, s *Store, id, src string) testRun {
	t.Helper()
	run := lowerSource(t, id, src, engine.DefaultMaxSteps)
	if err := s.WriteCompilation(context.Background(), run.compilation, run.result.Records, run.ledger); err != nil {
		t.Fatalf("WriteCompilation() failed: %v", err)
	}
	return run
}
