package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
)

func TestRunWithGolden_IterResult(t *testing.T) {
	// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
	require.NoError(t, RunWithGolden(t, goldenDir, loadScenario(t, "iter_result")))
}

func TestSnapshot(t *testing.T) {
	result := &Result{
		ErrorCode: "STEP_BUDGET_EXCEEDED",
		Records: []engine.Record{
			{Seq: 1, Node: 4, Op: "JSCreateBlockContext", Reducer: "create-lowering", Outcome: engine.OutcomeNoChange, Reason: "over_limit"},
		},
		Ledger: []deps.Entry{{Kind: deps.KindProtector, Object: "array_constructor_protector", Detail: "intact"}},
		Dump:   "#0 Start()\n",
	}
	want := "scenario: s\n" +
		"error: STEP_BUDGET_EXCEEDED\n" +
		"reductions:\n" +
		"  #4 JSCreateBlockContext create-lowering no_change(over_limit)\n" +
		"ledger:\n" +
		"  protector array_constructor_protector intact\n" +
		"graph:\n" +
		"#0 Start()\n"
	assert.Equal(t, want, string(Snapshot("s", result)))
}
