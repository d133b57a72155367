package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/deps"
)

func TestDeps_ListsEveryCompilation(t *testing.T) {
	db := lowerInto(t, "nested_literal", "new_array_no_args", "iter_result")

	opts := testOptionsWithDB(db)
	opts.Format = "json"
	out, err := execute(NewDepsCommand(opts))
	require.NoError(t, err)

	var result []CompilationDeps
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
	require.Len(t, result, 3)

	assert.Equal(t, "nested_literal", result[0].Unit)
	assert.Contains(t, result[0].Ledger, deps.Entry{Kind: deps.KindPretenureMode, Object: "outer_site", Detail: "young"})
	assert.Equal(t, "new_array_no_args", result[1].Unit)
	assert.NotEmpty(t, result[1].Ledger)
	assert.Equal(t, "iter_result", result[2].Unit)
	assert.Empty(t, result[2].Ledger)
}

func TestDeps_SingleCompilationText(t *testing.T) {
	db := lowerInto(t, "nested_literal", "iter_result")
	id := storedIDs(t, db)[0]

	out, err := execute(NewDepsCommand(testOptionsWithDB(db)), id)
	require.NoError(t, err)
	assert.Contains(t, out, id+" nested_literal\n")
	assert.Contains(t, out, "  pretenure_mode outer_site young\n")
	assert.NotContains(t, out, "iter_result")
}

func TestDeps_AbortedRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(NewLowerCommand(testOptionsWithDB(db)), unitPath("new_array_no_args"), "--max-steps", "1")
	require.Error(t, err)

	out, err := execute(NewDepsCommand(testOptionsWithDB(db)))
	require.NoError(t, err)
	assert.Contains(t, out, "aborted: STEP_BUDGET_EXCEEDED")
}

func TestDeps_Query(t *testing.T) {
	db := lowerInto(t, "nested_literal", "cow_array_literal", "iter_result")

	opts := testOptionsWithDB(db)
	opts.Format = "json"
	out, err := execute(NewDepsCommand(opts), "--kind", "elements_kind", "--object", "array_site")
	require.NoError(t, err, out)

	var matches []DependencyMatch
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "cow_array_literal", matches[0].Unit)
	assert.Equal(t, "PACKED_SMI_ELEMENTS", matches[0].Detail)
}

func TestDeps_QueryNoMatch(t *testing.T) {
	db := lowerInto(t, "iter_result")
	out, err := execute(NewDepsCommand(testOptionsWithDB(db)), "--unit", "iter_result")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching dependencies.")
}

func TestDeps_QueryWithIDRejected(t *testing.T) {
	db := lowerInto(t, "iter_result")
	_, err := execute(NewDepsCommand(testOptionsWithDB(db)), "some-id", "--kind", "protector")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
