package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	out, err := execute(NewValidateCommand(testOptions("text")), unitPath("inlined_mapped_arguments"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ inlined_mapped_arguments is valid")
}

func TestValidate_JSON(t *testing.T) {
	out, err := execute(NewValidateCommand(testOptions("json")), unitPath("iter_result"))
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status)
	var result ValidationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Valid)
	assert.Equal(t, "iter_result", result.Unit)
	assert.Positive(t, result.Nodes)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	src := `
name: "broken"
nodes: [
	{id: "p", op: "Parameter"},
	{id: "p", op: "Parameter"},
	{id: "x", op: "NotAnOperator"},
	{id: "ret", op: "Return", value: ["missing"]},
]
`
	path := writeFile(t, t.TempDir(), "broken.cue", src)

	out, err := execute(NewValidateCommand(testOptions("json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	var problems []Problem
	require.NoError(t, json.Unmarshal(resp.Error.Details, &problems))

	var codes []string
	for _, p := range problems {
		codes = append(codes, p.Code)
	}
	assert.Contains(t, codes, "E201")
	assert.Contains(t, codes, "E202")
	assert.Contains(t, codes, "E203")
}

func TestValidate_NotFound(t *testing.T) {
	out, err := execute(NewValidateCommand(testOptions("json")), "nope.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
