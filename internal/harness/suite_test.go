package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConformance runs every scenario under testdata/scenarios.
func TestConformance(t *testing.T) {
	result, err := New().RunDir(context.Background(), scenarioDir)
	require.NoError(t, err)
	assert.Positive(t, result.TotalScenarios)
	assert.Equal(t, result.TotalScenarios, result.Passed)
	for _, f := range result.Failures {
		t.Errorf("%s (%s): %s", f.Scenario, f.ScenarioPath, f.Error)
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "")
	writeFile(t, dir, "a.yml", "")
	writeFile(t, dir, "nested/c.yaml", "")
	writeFile(t, dir, "notes.txt", "")

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)
}

func TestRunDir_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "iter.cue", iterUnit)
	writeFile(t, dir, "pass.yaml", `
name: pass
description: lowers
unit: iter.cue
assertions: [{type: reduction, node: iter, outcome: changed}]
`)
	writeFile(t, dir, "fail.yaml", `
name: fail
description: wrong outcome
unit: iter.cue
assertions: [{type: reduction, node: iter, outcome: replaced}]
`)
	writeFile(t, dir, "broken.yaml", "name: [")

	result, err := New().RunDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "fail", result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Error, "scenario assertions failed")
}

func TestRunDir_MissingDir(t *testing.T) {
	_, err := New().RunDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
