// Package store persists lowering runs in SQLite so they can be listed,
// inspected and replayed.
//
// A compilation row keeps the unit source, the configuration the run used,
// its graph fingerprint and the CBOR-encoded dependency ledger. Reduction
// records live in their own table keyed by (compilation_id, seq), and so
// do the ledger entries, which FindDependencies searches with a Predicate.
//
// # Ordering
//
// Compilations list in insertion order (the seq column) and reductions in
// record seq order. Wall-clock time is never stored, so a replayed run can
// be compared field by field with the stored one.
package store
