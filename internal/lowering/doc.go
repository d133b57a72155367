// Package lowering replaces high-level object construction operators with
// explicit allocation and initialization sequences.
//
// Each JSCreate* node is visited by Lowering.Reduce, which either rewrites it
// into a BeginRegion / Allocate / StoreField... / FinishRegion sequence, or
// declines with a NoChange carrying a BailReason. Declining always leaves the
// graph untouched, so a later generic lowering can still handle the node.
//
// Heap facts are read from a snapshot owned by a heap.Broker. Every fact the
// generated code relies on is recorded in a deps.Ledger so the embedding
// compiler can invalidate the code when the fact stops holding.
//
// The lowering never allocates anything larger than Limits.MaxRegularObjectSize
// inline and never observes the heap directly: Reduce holds the broker's
// DisallowHeapAccess guard for its whole duration.
package lowering
