package harness

import (
	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the run matched every assertion and property.
	Pass bool `json:"pass"`

	// Errors contains assertion and property failures. Empty if Pass.
	Errors []string `json:"errors,omitempty"`

	Records     []engine.Record `json:"records"`
	Steps       int             `json:"steps"`
	Changed     int             `json:"changed"`
	Fingerprint string          `json:"fingerprint,omitempty"`

	// ErrorCode is the RuntimeError code of an aborted run.
	ErrorCode string `json:"error_code,omitempty"`

	Ledger []deps.Entry `json:"ledger"`

	// Dump is the graph after the run, see ir.Dump.
	Dump string `json:"dump"`

	// Unit is the lowered unit. Its graph reflects the run.
	Unit *compiler.Unit `json:"-"`
}

// NewResult creates a passing result for unit.
func NewResult(unit *compiler.Unit) *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Records: []engine.Record{},
		Ledger:  []deps.Entry{},
		Unit:    unit,
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record returns the record for the unit node named id.
func (r *Result) record(id string) (engine.Record, bool) {
	node := r.Unit.Node(id)
	for _, rec := range r.Records {
		if rec.Node == node {
			return rec, true
		}
	}
	return engine.Record{}, false
}
