// Package engine drives reducers over a compilation's graph.
//
// The engine is a worklist loop. Every live node is visited once in creation
// order, and each node a reducer replaces is killed and its replacement
// revisited. Reducers run in the order they were configured.
//
// Single goroutine:
// A compilation's graph, heap snapshot and ledger belong to one engine run.
// Separate compilations may run concurrently with separate engines.
//
// Aborts:
// Reducers signal broken preconditions by panicking with an error that has an
// InvariantViolation method. Run recovers those into a RuntimeError with
// ErrCodeInvariantViolation and stops. Any other panic is re-raised.
//
// Determinism:
// Visit order depends only on node ids, and reduction records are stamped
// from a logical clock, never from wall time. Running the same unit twice
// yields the same records and the same graph fingerprint.
package engine
