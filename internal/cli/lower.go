package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/ir"
	"github.com/roach88/alloclower/internal/store"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	*RootOptions
	Dump     bool
	MaxSteps int
}

// LowerReport is the result of one lowering run.
type LowerReport struct {
	CompilationID string          `json:"compilation_id"`
	Unit          string          `json:"unit"`
	Digest        string          `json:"digest"`
	Steps         int             `json:"steps"`
	Changed       int             `json:"changed"`
	Fingerprint   string          `json:"fingerprint"`
	Error         string          `json:"error,omitempty"`
	Reductions    []engine.Record `json:"reductions"`
	Ledger        []deps.Entry    `json:"ledger"`
	Graph         string          `json:"graph,omitempty"`
	Stored        string          `json:"stored,omitempty"` // database path
}

// NewLowerCommand creates the lower command.
func NewLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lower <unit.cue>",
		Short: "Lower the create operators of a unit",
		Long: `Compile a unit and run create-lowering over its graph.

Prints every reducer decision, the fingerprint of the lowered graph and
the dependencies the run registered. With --db (or store.path in the
config) the run is stored for replay.

Exit codes:
  0 - Run finished
  1 - Unit rejected or run aborted
  2 - Command error

Examples:
  alloclower lower unit.cue
  alloclower lower unit.cue --dump
  alloclower lower unit.cue --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the lowered graph")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "node visit budget (default: engine.max_steps from config)")

	return cmd
}

func runLower(ctx context.Context, opts *LowerOptions, path string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(w)
	logger := opts.Logger()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	dbPath, err := opts.Database()
	if err != nil {
		return err
	}

	unit, err := LoadUnit(path)
	if err != nil {
		return reportLoadError(out, err)
	}

	limits := cfg.Limits()
	maxSteps := cfg.Engine.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}
	logger.Debug("lowering unit", "unit", unit.Name, "digest", unit.Digest, "max_steps", maxSteps)

	res, ledger, runErr := engine.LowerUnit(ctx, unit, engine.UUIDv7Generator{}, limits,
		engine.WithMaxSteps(maxSteps),
		engine.WithLogger(logger),
	)
	var abort *engine.RuntimeError
	if runErr != nil && !errors.As(runErr, &abort) {
		return WrapExitError(ExitFailure, "lowering failed", runErr)
	}

	report := newLowerReport(unit, res, ledger, runErr)
	if opts.Dump {
		report.Graph = ir.Dump(unit.Graph)
	}

	if dbPath != "" {
		if err := storeRun(ctx, dbPath, store.NewCompilation(unit, res, limits, maxSteps, runErr), res.Records, ledger); err != nil {
			return reportStoreError(out, err)
		}
		report.Stored = dbPath
		logger.Info("stored compilation", "id", res.CompilationID, "db", dbPath)
	}

	if abort != nil {
		if err := out.Error(string(abort.Code), abort.Error(), report); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "run aborted", runErr)
	}
	return out.Success(report, report.writeText)
}

func newLowerReport(unit *compiler.Unit, res *engine.Result, ledger *deps.Ledger, runErr error) *LowerReport {
	r := &LowerReport{
		CompilationID: res.CompilationID,
		Unit:          unit.Name,
		Digest:        unit.Digest,
		Steps:         res.Steps,
		Changed:       res.Changed,
		Fingerprint:   res.Fingerprint,
		Reductions:    res.Records,
		Ledger:        ledger.Entries(),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if r.Reductions == nil {
		r.Reductions = []engine.Record{}
	}
	if r.Ledger == nil {
		r.Ledger = []deps.Entry{}
	}
	return r
}

func (r *LowerReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "unit %s (%s)\n", r.Unit, r.Digest)
	fmt.Fprintf(w, "compilation %s: %d steps, %d changed\n", r.CompilationID, r.Steps, r.Changed)
	fmt.Fprintf(w, "fingerprint %s\n", r.Fingerprint)
	fmt.Fprintln(w, "reductions:")
	for _, rec := range r.Reductions {
		fmt.Fprintf(w, "  %s\n", rec)
	}
	writeLedger(w, r.Ledger)
	if r.Graph != "" {
		fmt.Fprintln(w, "graph:")
		fmt.Fprint(w, r.Graph)
	}
	if r.Stored != "" {
		fmt.Fprintf(w, "stored in %s\n", r.Stored)
	}
}

func writeLedger(w io.Writer, entries []deps.Entry) {
	fmt.Fprintln(w, "dependencies:")
	for _, e := range entries {
		if e.Detail != "" {
			fmt.Fprintf(w, "  %s %s %s\n", e.Kind, e.Object, e.Detail)
		} else {
			fmt.Fprintf(w, "  %s %s\n", e.Kind, e.Object)
		}
	}
}

func storeRun(ctx context.Context, dbPath string, c store.Compilation, records []engine.Record, ledger *deps.Ledger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.WriteCompilation(ctx, c, records, ledger)
}

// reportLoadError prints the problems of a unit that failed to load.
// Missing or unreadable files are command errors; a unit that loads but
// does not check out is a failure.
func reportLoadError(out *OutputFormatter, err error) error {
	problems := Problems(err)
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if ferr := out.Error(loadErr.Code, loadErr.Message, nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "cannot load unit", err)
	}
	msg := fmt.Sprintf("unit rejected with %d problem(s)", len(problems))
	if ferr := out.Error(problems[0].Code, msg, problems); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, msg, err)
}

func reportStoreError(out *OutputFormatter, err error) error {
	if ferr := out.Error(ErrCodeWriteFailed, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitCommandError, "cannot store run", err)
}
