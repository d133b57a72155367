package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/store"
)

// CompilationDeps is the dependency ledger of one stored run.
type CompilationDeps struct {
	ID     string       `json:"id"`
	Unit   string       `json:"unit"`
	Error  string       `json:"error,omitempty"`
	Ledger []deps.Entry `json:"ledger"`
}

// DepsOptions holds flags for the deps command.
type DepsOptions struct {
	*RootOptions
	Kind   string
	Object string
	Unit   string
}

// DependencyMatch is one ledger entry found by a filtered deps query.
type DependencyMatch struct {
	CompilationID string `json:"compilation_id"`
	Unit          string `json:"unit"`
	deps.Entry
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DepsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deps [compilation-id]",
		Short: "Show the dependencies stored runs registered",
		Long: `Print the dependency ledger of stored compilations: the initial maps,
slack tracking predictions, pretenuring decisions, elements kinds and
protectors the lowered code assumes.

Without an id every stored compilation is listed. --kind, --object and
--unit search the entries of all stored compilations instead.

Examples:
  alloclower deps --db runs.db
  alloclower deps --db runs.db --kind elements_kind --object array_site`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			if opts.filtered() {
				if id != "" {
					return NewExitError(ExitCommandError, "filters and a compilation id cannot be combined")
				}
				return runDepsQuery(cmd.Context(), opts, cmd.OutOrStdout())
			}
			return runDeps(cmd.Context(), rootOpts, id, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only entries of this kind (initial_map, slack_tracking, pretenure_mode, elements_kind, protector)")
	cmd.Flags().StringVar(&opts.Object, "object", "", "only entries about this heap object label")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "only compilations of this unit")

	return cmd
}

func (o *DepsOptions) filtered() bool {
	return o.Kind != "" || o.Object != "" || o.Unit != ""
}

func runDeps(ctx context.Context, opts *RootOptions, id string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := compilationIDs(ctx, st, id)
	if err != nil {
		return err
	}

	result := make([]CompilationDeps, 0, len(ids))
	for _, cid := range ids {
		c, err := st.ReadCompilation(ctx, cid)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read compilation", err)
		}
		ledger, err := st.ReadLedger(ctx, cid)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read ledger", err)
		}
		if ledger == nil {
			ledger = []deps.Entry{}
		}
		result = append(result, CompilationDeps{ID: c.ID, Unit: c.Unit, Error: c.Error, Ledger: ledger})
	}

	return opts.formatter(w).Success(result, func(w io.Writer) {
		if len(result) == 0 {
			fmt.Fprintln(w, "No compilations found in database.")
			return
		}
		for _, c := range result {
			fmt.Fprintf(w, "%s %s\n", c.ID, c.Unit)
			if c.Error != "" {
				fmt.Fprintf(w, "  aborted: %s\n", c.Error)
			}
			writeLedger(w, c.Ledger)
		}
	})
}

func runDepsQuery(ctx context.Context, opts *DepsOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	found, err := st.FindDependencies(ctx, store.Where("kind", opts.Kind, "object", opts.Object, "unit", opts.Unit))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query dependencies", err)
	}
	matches := make([]DependencyMatch, len(found))
	for i, d := range found {
		matches[i] = DependencyMatch{CompilationID: d.CompilationID, Unit: d.Unit, Entry: d.Entry}
	}

	return opts.formatter(w).Success(matches, func(w io.Writer) {
		if len(matches) == 0 {
			fmt.Fprintln(w, "No matching dependencies.")
			return
		}
		for _, m := range matches {
			fmt.Fprintf(w, "%s %s %s %s", m.CompilationID, m.Unit, m.Kind, m.Object)
			if m.Detail != "" {
				fmt.Fprintf(w, " %s", m.Detail)
			}
			fmt.Fprintln(w)
		}
	})
}
