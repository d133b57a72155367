// Package heap models the read-only heap snapshot that the allocation
// lowering pass consults: shape descriptors (maps), functions and their
// shared info, feedback, allocation sites, literal boilerplates, scope
// infos and the native context.
//
// All objects are owned by a Broker. Objects are registered while a
// compilation unit is being prepared and are immutable afterwards. While the
// lowering pass runs, the broker holds a disallow-heap-access guard; any
// attempt to register a new object during that window panics with an
// *AccessError, which the engine reports as an invariant violation.
//
// Values that the pass needs but that were not prepared up front (an
// elements-kind sibling map, a tenured copy of copy-on-write elements, an
// object-create map) are reported as "data missing" through a boolean
// result rather than being computed on demand.
//
// heap imports nothing internal. Both ir and deps build on it.
package heap
