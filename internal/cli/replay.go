package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/store"
)

// ReplayCompilationResult holds the replay result for one stored run.
type ReplayCompilationResult struct {
	ID            string   `json:"id"`
	Unit          string   `json:"unit"`
	Fingerprint   string   `json:"fingerprint"`
	Reductions    int      `json:"reductions"`
	Deterministic bool     `json:"deterministic"`
	Divergences   []string `json:"divergences,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Compilations     []ReplayCompilationResult `json:"compilations"`
	Total            int                       `json:"total"`
	AllDeterministic bool                      `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [compilation-id]",
		Short: "Rerun stored compilations and verify determinism",
		Long: `Recompile the stored source of each compilation, lower it again with the
stored limits and compare records, fingerprint and dependency ledger with
what was stored.

Without an id every stored compilation is replayed.

Exit codes:
  0 - All compilations are deterministic
  1 - A rerun diverged from the stored run
  2 - Command error (database not found, unknown id, etc.)

Examples:
  alloclower replay --db runs.db
  alloclower replay --db runs.db 0192f0c4-...
  alloclower replay --db runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReplay(cmd.Context(), rootOpts, id, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, id string, w io.Writer) error {
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

	result := ReplayResult{
		Compilations:     make([]ReplayCompilationResult, 0, len(ids)),
		Total:            len(ids),
		AllDeterministic: true,
	}
	for _, cid := range ids {
		report, err := st.Replay(ctx, cid, engine.NewFixedGenerator(cid), engine.WithLogger(opts.Logger()))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay compilation %s", cid), err)
		}
		cr := ReplayCompilationResult{
			ID:            cid,
			Unit:          report.Stored.Unit,
			Fingerprint:   report.Stored.Fingerprint,
			Reductions:    len(report.Result.Records),
			Deterministic: report.Deterministic(),
		}
		for _, d := range report.Divergences {
			cr.Divergences = append(cr.Divergences, d.String())
		}
		if !cr.Deterministic {
			result.AllDeterministic = false
		}
		result.Compilations = append(result.Compilations, cr)
	}

	out := opts.formatter(w)
	if err := out.Success(result, result.writeText); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from stored runs")
	}
	return nil
}

func (r ReplayResult) writeText(w io.Writer) {
	if r.Total == 0 {
		fmt.Fprintln(w, "No compilations found in database.")
		return
	}
	for _, c := range r.Compilations {
		if c.Deterministic {
			fmt.Fprintf(w, "✓ %s %s (%d reductions)\n", c.ID, c.Unit, c.Reductions)
			continue
		}
		fmt.Fprintf(w, "✗ %s %s\n", c.ID, c.Unit)
		for _, d := range c.Divergences {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	fmt.Fprintln(w)
	if r.AllDeterministic {
		fmt.Fprintf(w, "All %d compilation(s) replayed deterministically\n", r.Total)
	} else {
		fmt.Fprintln(w, "Replay diverged from stored runs")
	}
}

// openStore opens the database named by --db or store.path. It never
// creates a database.
func openStore(opts *RootOptions) (*store.Store, error) {
	path, err := opts.Database()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set store.path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// compilationIDs returns id, checked to exist, or every stored id.
func compilationIDs(ctx context.Context, st *store.Store, id string) ([]string, error) {
	if id != "" {
		if _, err := st.ReadCompilation(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, WrapExitError(ExitCommandError, "unknown compilation", err)
			}
			return nil, WrapExitError(ExitCommandError, "failed to read compilation", err)
		}
		return []string{id}, nil
	}
	all, err := st.ListCompilations(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list compilations", err)
	}
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	return ids, nil
}
