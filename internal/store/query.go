package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/alloclower/internal/deps"
)

// Predicate filters stored dependencies.
//
// This is a sealed interface; only Equals and And implement it. A nil
// Predicate matches every row.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose Field has exactly Value.
type Equals struct {
	Field string
	Value string
}

func (Equals) predicateNode() {}

// And matches rows every one of its predicates matches. An empty And
// matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds the conjunction of field = value pairs, skipping empty
// values.
//
//	Where("kind", "elements_kind", "object", "") // kind = elements_kind
func Where(pairs ...string) Predicate {
	var and And
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			and.Predicates = append(and.Predicates, Equals{Field: pairs[i], Value: pairs[i+1]})
		}
	}
	return and
}

// dependencyColumns maps the fields a Predicate may name to their columns.
var dependencyColumns = map[string]string{
	"compilation_id": "d.compilation_id",
	"unit":           "c.unit",
	"digest":         "c.digest",
	"kind":           "d.kind",
	"object":         "d.object",
	"detail":         "d.detail",
}

// Dependency is one ledger entry of a stored compilation.
type Dependency struct {
	CompilationID string
	Unit          string
	Entry         deps.Entry
}

// FindDependencies returns the stored ledger entries matching p, in
// compilation order and then registration order.
func (s *Store) FindDependencies(ctx context.Context, p Predicate) ([]Dependency, error) {
	query, params, err := compileDependencyQuery(p)
	if err != nil {
		return nil, fmt.Errorf("find dependencies: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find dependencies: %w", err)
	}
	defer rows.Close()

	out := []Dependency{}
	for rows.Next() {
		var d Dependency
		var kind string
		if err := rows.Scan(&d.CompilationID, &d.Unit, &kind, &d.Entry.Object, &d.Entry.Detail); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Entry.Kind = deps.Kind(kind)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return out, nil
}

// compileDependencyQuery builds the parameterized SELECT for p. Values are
// never interpolated and the ORDER BY is always present.
func compileDependencyQuery(p Predicate) (string, []any, error) {
	where, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	query := `SELECT d.compilation_id, c.unit, d.kind, d.object, d.detail
		FROM dependencies d
		INNER JOIN compilations c ON c.id = d.compilation_id
		WHERE ` + where + `
		ORDER BY c.seq ASC, d.seq ASC`
	return query, params, nil
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		col, ok := dependencyColumns[pred.Field]
		if !ok {
			return "", nil, fmt.Errorf("unknown field %q", pred.Field)
		}
		return col + " = ?", []any{pred.Value}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}
