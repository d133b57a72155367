// Package ir is the sea-of-nodes graph the allocation lowering rewrites.
//
// A Graph is an arena of Nodes addressed by NodeID. Every node has an
// Operator and an ordered input list laid out as
//
//	values, context, frame state, effect, control
//
// where the context and frame state slots are present only when the opcode
// declares them. Use lists are kept in sync by the Graph mutators, so nodes
// are never edited directly.
//
// Mutations that would break the graph (wrong input arity, killing a node
// that is still used, replacing an edge with no replacement) panic with a
// *GraphError. Callers treat those as programmer errors.
//
// The package also carries the static Type lattice attached to nodes, the
// field and element access descriptors used by lowered stores, a stable
// textual Dump for golden files, and content fingerprints.
package ir
