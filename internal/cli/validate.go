package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/alloclower/internal/compiler"
)

// ValidationResult is the result of checking one unit.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Unit   string `json:"unit"`
	Digest string `json:"digest"`
	Nodes  int    `json:"nodes"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <unit.cue>",
		Short: "Check a unit without lowering it",
		Long: `Check a unit file against the unit schema and its own references.

Reports every problem the compiler finds: unknown operators, dangling node
references, heap labels of the wrong kind, inconsistent layouts and input
shapes that do not match the operator.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, w io.Writer) error {
	out := opts.formatter(w)

	unit, err := LoadUnit(path)
	if err != nil {
		return reportLoadError(out, err)
	}
	opts.Logger().Debug("unit is valid", "unit", unit.Name, "nodes", unit.Graph.NodeCount())

	result := newValidationResult(unit)
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid (%d nodes)\n", result.Unit, result.Nodes)
	})
}

func newValidationResult(unit *compiler.Unit) ValidationResult {
	return ValidationResult{
		Valid:  true,
		Unit:   unit.Name,
		Digest: unit.Digest,
		Nodes:  unit.Graph.NodeCount(),
	}
}
