package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/ir"
)

// ErrNotFound is returned when no compilation has the requested ID.
var ErrNotFound = errors.New("compilation not found")

const compilationColumns = `seq, id, unit, digest, source, fingerprint, steps, changed, max_steps, limits, error`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompilation(row rowScanner) (Compilation, error) {
	var c Compilation
	var limits string
	err := row.Scan(
		&c.Seq,
		&c.ID,
		&c.Unit,
		&c.Digest,
		&c.Source,
		&c.Fingerprint,
		&c.Steps,
		&c.Changed,
		&c.MaxSteps,
		&limits,
		&c.Error,
	)
	if err != nil {
		return Compilation{}, err
	}
	c.Limits, err = unmarshalLimits(limits)
	if err != nil {
		return Compilation{}, err
	}
	return c, nil
}

// ReadCompilation retrieves one compilation by ID. Returns an error
// wrapping ErrNotFound if there is none.
func (s *Store) ReadCompilation(ctx context.Context, id string) (Compilation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+compilationColumns+`
		FROM compilations
		WHERE id = ?
	`, id)
	c, err := scanCompilation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Compilation{}, fmt.Errorf("read compilation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Compilation{}, fmt.Errorf("read compilation %s: %w", id, err)
	}
	return c, nil
}

// ListCompilations returns every stored compilation in insertion order.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListCompilations(ctx context.Context) ([]Compilation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+compilationColumns+`
		FROM compilations
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query compilations: %w", err)
	}
	defer rows.Close()

	out := []Compilation{}
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compilations: %w", err)
	}
	return out, nil
}

// ReadReductions returns the reduction records of a compilation ordered by
// seq.
func (s *Store) ReadReductions(ctx context.Context, id string) ([]engine.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, node, op, reducer, outcome, reason, replacement
		FROM reductions
		WHERE compilation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query reductions: %w", err)
	}
	defer rows.Close()

	out := []engine.Record{}
	for rows.Next() {
		var r engine.Record
		var node, replacement int
		var outcome string
		if err := rows.Scan(&r.Seq, &node, &r.Op, &r.Reducer, &outcome, &r.Reason, &replacement); err != nil {
			return nil, fmt.Errorf("scan reduction: %w", err)
		}
		r.Node = ir.NodeID(node)
		r.Replacement = ir.NodeID(replacement)
		r.Outcome = engine.Outcome(outcome)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reductions: %w", err)
	}
	return out, nil
}

// ReadLedgerCBOR returns the encoded ledger of a compilation as written.
func (s *Store) ReadLedgerCBOR(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT ledger FROM compilations WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read ledger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", id, err)
	}
	return data, nil
}

// ReadLedger returns the decoded dependency ledger of a compilation.
func (s *Store) ReadLedger(ctx context.Context, id string) ([]deps.Entry, error) {
	data, err := s.ReadLedgerCBOR(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := deps.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", id, err)
	}
	return entries, nil
}

// ReadResult rebuilds the engine.Result of a stored run.
func (s *Store) ReadResult(ctx context.Context, id string) (*engine.Result, error) {
	c, err := s.ReadCompilation(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.ReadReductions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		CompilationID: c.ID,
		Records:       records,
		Steps:         c.Steps,
		Changed:       c.Changed,
		Fingerprint:   c.Fingerprint,
	}, nil
}
