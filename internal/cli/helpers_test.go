package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alloclower/internal/config"
)

const (
	unitsDir     = "../../testdata/units"
	scenariosDir = "../../testdata/scenarios"
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

// testOptions returns root options with the default config, so tests do
// not pick up a config file from the working tree.
func testOptions(format string) *RootOptions {
	return &RootOptions{Format: format, cfg: config.Default()}
}

func unitPath(name string) string {
	return filepath.Join(unitsDir, name+".cue")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns its stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// response is CLIResponse with the payload left undecoded.
type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeResponse(t *testing.T, out string) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}
