package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/alloclower/internal/config"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/ir"
	"github.com/roach88/alloclower/internal/testutil"
)

// CheckProperties checks the properties every finished lowering run must
// keep, whatever the scenario asserts:
//
//   - no constant-size allocation exceeds the configured object size limit;
//   - every FinishRegion closes a region opened on its effect chain;
//   - lowering is idempotent, a second pass over the result changes nothing.
//
// The idempotence check runs the pass again over result.Unit.
func CheckProperties(ctx context.Context, result *Result, cfg *config.Config) []string {
	var errs []string
	g := result.Unit.Graph
	errs = append(errs, checkSizeLimit(g, cfg.Lowering.MaxRegularObjectSize)...)
	errs = append(errs, checkRegions(g)...)
	if msg := checkIdempotent(ctx, result, cfg); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

func checkSizeLimit(g *ir.Graph, limit int) []string {
	var errs []string
	for _, id := range g.LiveNodes() {
		n := g.Node(id)
		if n.Opcode() != ir.OpAllocate {
			continue
		}
		size, ok := g.Node(n.ValueInput(0)).Params().(ir.NumberParams)
		if !ok {
			continue
		}
		if int(size.Value) > limit {
			errs = append(errs, fmt.Sprintf("property size_limit: #%d allocates %d bytes, limit %d", id, int(size.Value), limit))
		}
	}
	return errs
}

func checkRegions(g *ir.Graph) []string {
	var errs []string
	begins, finishes := 0, 0
	for _, id := range g.LiveNodes() {
		switch g.Node(id).Opcode() {
		case ir.OpBeginRegion:
			begins++
		case ir.OpFinishRegion:
			finishes++
			if !opensRegion(g, id) {
				errs = append(errs, fmt.Sprintf("property regions: #%d has no BeginRegion on its effect chain", id))
			}
		}
	}
	if begins != finishes {
		errs = append(errs, fmt.Sprintf("property regions: %d BeginRegion, %d FinishRegion", begins, finishes))
	}
	return errs
}

// opensRegion walks the effect chain of a FinishRegion back to its
// BeginRegion. Nested regions are skipped.
func opensRegion(g *ir.Graph, finish ir.NodeID) bool {
	chain := ir.EffectChain(g, finish)
	depth := 0
	for i := len(chain) - 1; i >= 0; i-- {
		switch g.Node(chain[i]).Opcode() {
		case ir.OpFinishRegion:
			depth++
		case ir.OpBeginRegion:
			depth--
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

func checkIdempotent(ctx context.Context, result *Result, cfg *config.Config) string {
	again, _, err := engine.LowerUnit(ctx, result.Unit, testutil.NewSequentialIDGenerator("recheck"), cfg.Limits(),
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	if err != nil {
		return fmt.Sprintf("property idempotence: second pass failed: %v", err)
	}
	if again.Changed != 0 {
		return fmt.Sprintf("property idempotence: second pass changed %d nodes", again.Changed)
	}
	if again.Fingerprint != result.Fingerprint {
		return fmt.Sprintf("property idempotence: fingerprint %s after second pass, want %s", again.Fingerprint, result.Fingerprint)
	}
	return ""
}
