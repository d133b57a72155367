package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/alloclower/internal/ir"
)

// RuntimeError represents an error that aborted a reduction run.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// CompilationID identifies the affected run.
	CompilationID string

	// Reducer names the reducer that was running, if any.
	Reducer string

	// Node is the node being reduced, or ir.NoNode.
	Node ir.NodeID

	// Details contains additional context.
	Details map[string]string

	// Err is the recovered invariant error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvariantViolation indicates a reducer found the graph or the
	// heap snapshot in an impossible state.
	ErrCodeInvariantViolation RuntimeErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeStepBudgetExceeded indicates the run visited more nodes than
	// its step budget allows.
	ErrCodeStepBudgetExceeded RuntimeErrorCode = "STEP_BUDGET_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Node != ir.NoNode && e.Reducer != "" {
		return fmt.Sprintf("%s: %s (compilation=%s, reducer=%s, node=#%d)",
			e.Code, e.Message, e.CompilationID, e.Reducer, e.Node)
	}
	if e.CompilationID != "" {
		return fmt.Sprintf("%s: %s (compilation=%s)", e.Code, e.Message, e.CompilationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsInvariantError returns true if the error is an invariant violation.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvariantViolation
	}
	return false
}

// IsBudgetError returns true if the error is a step budget overrun.
func IsBudgetError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStepBudgetExceeded
	}
	return false
}

// NewInvariantError wraps a recovered invariant violation.
func NewInvariantError(compilationID, reducer string, node ir.NodeID, cause error) *RuntimeError {
	return &RuntimeError{
		Code:          ErrCodeInvariantViolation,
		Message:       cause.Error(),
		CompilationID: compilationID,
		Reducer:       reducer,
		Node:          node,
		Err:           cause,
	}
}

// NewBudgetError creates a RuntimeError for a step budget overrun.
func NewBudgetError(compilationID string, steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:          ErrCodeStepBudgetExceeded,
		Message:       fmt.Sprintf("run exceeded max steps (%d > %d)", steps, maxSteps),
		CompilationID: compilationID,
		Node:          ir.NoNode,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}
