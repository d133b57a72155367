package store

import (
	"context"
	"fmt"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/lowering"
)

// Compilation is one persisted lowering run.
type Compilation struct {
	ID  string
	Seq int64

	Unit   string
	Digest string
	Source []byte

	Fingerprint string
	Steps       int
	Changed     int

	MaxSteps int
	Limits   lowering.Limits

	// Error is the text of the error that aborted the run, if any.
	Error string
}

// NewCompilation describes the run res of unit. runErr is the error
// engine.Run returned alongside res.
func NewCompilation(unit *compiler.Unit, res *engine.Result, limits lowering.Limits, maxSteps int, runErr error) Compilation {
	c := Compilation{
		ID:          res.CompilationID,
		Unit:        unit.Name,
		Digest:      unit.Digest,
		Source:      unit.Source,
		Fingerprint: res.Fingerprint,
		Steps:       res.Steps,
		Changed:     res.Changed,
		MaxSteps:    maxSteps,
		Limits:      limits,
	}
	if runErr != nil {
		c.Error = runErr.Error()
	}
	return c
}

// WriteCompilation stores a run with its reduction records and ledger in
// one transaction. Writing the same compilation ID twice is a no-op.
func (s *Store) WriteCompilation(ctx context.Context, c Compilation, records []engine.Record, ledger *deps.Ledger) error {
	limitsJSON, err := marshalLimits(c.Limits)
	if err != nil {
		return fmt.Errorf("write compilation: %w", err)
	}
	ledgerCBOR, err := ledger.MarshalCBOR()
	if err != nil {
		return fmt.Errorf("write compilation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write compilation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO compilations
		(id, unit, digest, source, fingerprint, steps, changed, max_steps, limits, error, ledger)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID,
		c.Unit,
		c.Digest,
		c.Source,
		c.Fingerprint,
		c.Steps,
		c.Changed,
		c.MaxSteps,
		limitsJSON,
		c.Error,
		ledgerCBOR,
	)
	if err != nil {
		return fmt.Errorf("write compilation: insert: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write compilation: rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reductions
			(compilation_id, seq, node, op, reducer, outcome, reason, replacement)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID,
			r.Seq,
			int(r.Node),
			r.Op,
			r.Reducer,
			string(r.Outcome),
			r.Reason,
			int(r.Replacement),
		)
		if err != nil {
			return fmt.Errorf("write compilation: reduction %d: %w", r.Seq, err)
		}
	}

	for i, e := range ledger.Entries() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies
			(compilation_id, seq, kind, object, detail)
			VALUES (?, ?, ?, ?, ?)
		`,
			c.ID,
			i,
			string(e.Kind),
			e.Object,
			e.Detail,
		)
		if err != nil {
			return fmt.Errorf("write compilation: dependency %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write compilation: commit: %w", err)
	}
	return nil
}
