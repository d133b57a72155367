package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/engine"
)

// ReplayReport is the outcome of rerunning a stored compilation.
type ReplayReport struct {
	Stored      Compilation
	Result      *engine.Result
	Divergences []engine.Divergence
}

// Deterministic reports whether the rerun matched the stored run.
func (r *ReplayReport) Deterministic() bool {
	return len(r.Divergences) == 0
}

// Replay recompiles the stored source of compilation id, lowers it again
// with the stored limits and step budget and compares the outcome with the
// stored records, fingerprint and ledger.
//
// A rerun that aborts is not an error of Replay as long as the stored run
// aborted the same way; a differing abort shows up as a divergence on
// "error".
func (s *Store) Replay(ctx context.Context, id string, ids engine.IDGenerator, opts ...engine.EngineOption) (*ReplayReport, error) {
	stored, err := s.ReadCompilation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	want, err := s.ReadResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	wantLedger, err := s.ReadLedgerCBOR(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	unit, err := compiler.CompileSource(stored.Unit+".cue", stored.Source)
	if err != nil {
		return nil, fmt.Errorf("replay: recompile %s: %w", stored.Unit, err)
	}
	if unit.Digest != stored.Digest {
		return nil, fmt.Errorf("replay: unit digest %s does not match stored %s", unit.Digest, stored.Digest)
	}

	opts = append(opts, engine.WithMaxSteps(stored.MaxSteps))
	got, ledger, runErr := engine.LowerUnit(ctx, unit, ids, stored.Limits, opts...)
	if runErr != nil && !isRunAbort(runErr) {
		return nil, fmt.Errorf("replay: %w", runErr)
	}

	report := &ReplayReport{
		Stored:      stored,
		Result:      got,
		Divergences: engine.Compare(want, got),
	}
	// Error texts carry the compilation ID, so only codes are compared.
	gotCode := ""
	if runErr != nil {
		gotCode = errorCode(runErr.Error())
	}
	if wantCode := errorCode(stored.Error); wantCode != gotCode {
		report.Divergences = append(report.Divergences, engine.Divergence{Field: "error", Want: wantCode, Got: gotCode})
	}
	gotLedger, err := ledger.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if !bytes.Equal(wantLedger, gotLedger) {
		report.Divergences = append(report.Divergences, engine.Divergence{
			Field: "ledger",
			Want:  fmt.Sprintf("%x", wantLedger),
			Got:   fmt.Sprintf("%x", gotLedger),
		})
	}
	return report, nil
}

// errorCode returns the RuntimeErrorCode prefix of a stored error text.
func errorCode(text string) string {
	code, _, _ := strings.Cut(text, ":")
	return code
}

func isRunAbort(err error) bool {
	var re *engine.RuntimeError
	return errors.As(err, &re)
}
