// Package harness runs conformance scenarios against the lowering pass.
//
// A scenario is a YAML file naming one compilation unit (a CUE file, see
// package compiler), optional limit overrides, and a list of assertions:
//
//	name: new_array_no_args
//	description: new Array() becomes a preallocated packed Smi array
//	unit: ../units/new_array_no_args.cue
//	assertions:
//	  - type: reduction
//	    node: create
//	    outcome: changed
//	  - type: ledger_contains
//	    kind: protector
//	    object: array_constructor_protector
//
// Each run compiles the unit afresh and lowers it with a deterministic
// clock and compilation IDs, so the records, ledger and graph dump of a
// scenario are reproducible and can be compared against golden files.
//
// Besides the scenario's own assertions every successful run is checked
// for the properties any lowering must keep, see CheckProperties.
package harness
