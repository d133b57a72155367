package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/config"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/ir"
	"github.com/roach88/alloclower/internal/testutil"
)

// Harness runs scenarios against one base configuration.
type Harness struct {
	base   *config.Config
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithConfig sets the configuration scenarios override. Default:
// config.Default().
func WithConfig(c *config.Config) Option {
	return func(h *Harness) {
		h.base = c
	}
}

// WithLogger sets the logger passed to the engine. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		base:   config.Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with the default configuration.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Every run compiles the unit afresh and uses a deterministic clock and
// compilation IDs derived from the scenario name, so repeated runs
// produce identical results. An error is returned only when the scenario
// cannot be executed at all; assertion failures are reported in the
// result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := scenario.Config(h.base)
	if err != nil {
		return nil, err
	}
	unit, err := compiler.CompileFile(scenario.Unit)
	if err != nil {
		return nil, fmt.Errorf("failed to compile unit: %w", err)
	}

	run, ledger, runErr := engine.LowerUnit(ctx, unit,
		testutil.NewSequentialIDGenerator(scenario.Name), cfg.Limits(),
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithLogger(h.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
	)

	result := NewResult(unit)
	if runErr != nil {
		var rtErr *engine.RuntimeError
		if !errors.As(runErr, &rtErr) {
			return nil, fmt.Errorf("failed to lower unit: %w", runErr)
		}
		result.ErrorCode = string(rtErr.Code)
	}
	if run != nil {
		result.Records = append(result.Records, run.Records...)
		result.Steps = run.Steps
		result.Changed = run.Changed
		result.Fingerprint = run.Fingerprint
	}
	result.Ledger = append(result.Ledger, ledger.Entries()...)
	result.Dump = ir.Dump(unit.Graph)

	if result.ErrorCode != scenario.ExpectError {
		switch {
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("run aborted: %v", runErr))
		case result.ErrorCode == "":
			result.AddError(fmt.Sprintf("expected run to abort with %s, but it finished", scenario.ExpectError))
		default:
			result.AddError(fmt.Sprintf("expected run to abort with %s, got %s", scenario.ExpectError, result.ErrorCode))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	if result.ErrorCode == "" {
		for _, msg := range CheckProperties(ctx, result, cfg) {
			result.AddError(msg)
		}
	}
	return result, nil
}
