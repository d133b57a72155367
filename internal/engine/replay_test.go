package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/ir"
)

func sampleResult() *Result {
	return &Result{
		CompilationID: "c-1",
		Changed:       1,
		Fingerprint:   "abc",
		Records: []Record{
			{Seq: 1, Node: 4, Op: "JSCreateArray", Reducer: "create-lowering", Outcome: OutcomeChanged, Replacement: 4},
			{Seq: 2, Node: 9, Op: "JSCreate", Reducer: "create-lowering", Outcome: OutcomeNoChange, Reason: "slack_tracking", Replacement: ir.NoNode},
		},
	}
}

func TestCompare_IgnoresCompilationID(t *testing.T) {
	want := sampleResult()
	got := sampleResult()
	got.CompilationID = "c-2"

	assert.Empty(t, Compare(want, got))
}

func TestCompare_ReportsDivergence(t *testing.T) {
	want := sampleResult()
	got := sampleResult()
	got.Fingerprint = "def"
	got.Records[1].Reason = "too_large"

	divs := Compare(want, got)
	require.Len(t, divs, 2)
	assert.Equal(t, "fingerprint", divs[0].Field)
	assert.Equal(t, "fingerprint: want abc, got def", divs[0].String())
	assert.Equal(t, "records[1]", divs[1].Field)
	assert.Equal(t, "#9 JSCreate create-lowering no_change(slack_tracking)", divs[1].Want)
	assert.Equal(t, "#9 JSCreate create-lowering no_change(too_large)", divs[1].Got)
}

func TestCompare_RecordCountMismatch(t *testing.T) {
	want := sampleResult()
	got := sampleResult()
	got.Records = got.Records[:1]

	divs := Compare(want, got)
	require.Len(t, divs, 1)
	assert.Equal(t, Divergence{Field: "records", Want: "2", Got: "1"}, divs[0])
}
