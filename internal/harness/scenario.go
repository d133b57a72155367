package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/alloclower/internal/config"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/engine"
)

// Scenario defines a conformance test scenario: one compilation unit,
// lowered once, and the assertions its run must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Unit is the path of the CUE compilation unit. LoadScenario resolves
	// it relative to the scenario file.
	Unit string `yaml:"unit"`

	// Limits overrides lowering limits for this scenario only.
	Limits *Limits `yaml:"limits,omitempty"`

	// MaxSteps overrides the engine step budget when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// ExpectError is the RuntimeError code the run must abort with, e.g.
	// STEP_BUDGET_EXCEEDED. Empty means the run must finish.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the records, ledger and final graph.
	Assertions []Assertion `yaml:"assertions"`
}

// Limits are optional overrides of config.Lowering. Nil fields keep the
// base configuration.
type Limits struct {
	MaxRegularObjectSize      *int  `yaml:"max_regular_object_size,omitempty"`
	FunctionContextSlotLimit  *int  `yaml:"function_context_slot_limit,omitempty"`
	BlockContextSlotLimit     *int  `yaml:"block_context_slot_limit,omitempty"`
	ElementLoopUnrollLimit    *int  `yaml:"element_loop_unroll_limit,omitempty"`
	MaxFastLiteralDepth       *int  `yaml:"max_fast_literal_depth,omitempty"`
	MaxFastLiteralProperties  *int  `yaml:"max_fast_literal_properties,omitempty"`
	AllocationSitePretenuring *bool `yaml:"allocation_site_pretenuring,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "reduction": the node was reduced with Outcome (and Reason)
	// - "opcode": the node's operator after the run is Op
	// - "ledger_contains": the ledger holds a Kind/Object(/Detail) entry
	// - "ledger_count": the ledger holds exactly Count entries
	// - "allocation_count": the graph holds exactly Count live Allocate nodes
	// - "effect_order": Ops appear in order on the effect chain ending at Node
	Type string `yaml:"type"`

	// Node is a unit node id (reduction, opcode, effect_order).
	Node string `yaml:"node,omitempty"`

	// Outcome is changed, replaced or no_change (reduction).
	Outcome string `yaml:"outcome,omitempty"`

	// Reason is the bail reason of a no_change reduction. Empty matches
	// any reason.
	Reason string `yaml:"reason,omitempty"`

	// Op is an opcode name (opcode).
	Op string `yaml:"op,omitempty"`

	// Kind, Object and Detail select a ledger entry (ledger_contains).
	// An empty Detail matches any detail.
	Kind   string `yaml:"kind,omitempty"`
	Object string `yaml:"object,omitempty"`
	Detail string `yaml:"detail,omitempty"`

	// Count is the expected number (ledger_count, allocation_count).
	Count *int `yaml:"count,omitempty"`

	// Ops is the expected opcode order (effect_order). Other operators may
	// appear in between.
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertReduction       = "reduction"
	AssertOpcode          = "opcode"
	AssertLedgerContains  = "ledger_contains"
	AssertLedgerCount     = "ledger_count"
	AssertAllocationCount = "allocation_count"
	AssertEffectOrder     = "effect_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Unit != "" && !filepath.IsAbs(scenario.Unit) {
		scenario.Unit = filepath.Join(filepath.Dir(path), scenario.Unit)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Config applies the scenario's overrides to a copy of base.
func (s *Scenario) Config(base *config.Config) (*config.Config, error) {
	c := *base
	if s.MaxSteps > 0 {
		c.Engine.MaxSteps = s.MaxSteps
	}
	if l := s.Limits; l != nil {
		setInt(&c.Lowering.MaxRegularObjectSize, l.MaxRegularObjectSize)
		setInt(&c.Lowering.FunctionContextSlotLimit, l.FunctionContextSlotLimit)
		setInt(&c.Lowering.BlockContextSlotLimit, l.BlockContextSlotLimit)
		setInt(&c.Lowering.ElementLoopUnrollLimit, l.ElementLoopUnrollLimit)
		setInt(&c.Lowering.MaxFastLiteralDepth, l.MaxFastLiteralDepth)
		setInt(&c.Lowering.MaxFastLiteralProperties, l.MaxFastLiteralProperties)
		if l.AllocationSitePretenuring != nil {
			c.Lowering.AllocationSitePretenuring = *l.AllocationSitePretenuring
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return &c, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if _, err := os.Stat(s.Unit); os.IsNotExist(err) {
		return fmt.Errorf("unit file not found: %s", s.Unit)
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	switch engine.RuntimeErrorCode(s.ExpectError) {
	case "", engine.ErrCodeInvariantViolation, engine.ErrCodeStepBudgetExceeded:
	default:
		return fmt.Errorf("unknown expect_error code %q", s.ExpectError)
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReduction:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for reduction", index)
		}
		switch engine.Outcome(a.Outcome) {
		case engine.OutcomeChanged, engine.OutcomeReplaced, engine.OutcomeNoChange:
		default:
			return fmt.Errorf("assertions[%d]: outcome must be changed, replaced or no_change, got %q", index, a.Outcome)
		}
		if a.Reason != "" && engine.Outcome(a.Outcome) != engine.OutcomeNoChange {
			return fmt.Errorf("assertions[%d]: reason only applies to no_change", index)
		}
	case AssertOpcode:
		if a.Node == "" || a.Op == "" {
			return fmt.Errorf("assertions[%d]: node and op are required for opcode", index)
		}
	case AssertLedgerContains:
		switch deps.Kind(a.Kind) {
		case deps.KindInitialMap, deps.KindSlackTracking, deps.KindPretenureMode,
			deps.KindElementsKind, deps.KindProtector:
		default:
			return fmt.Errorf("assertions[%d]: unknown ledger kind %q", index, a.Kind)
		}
		if a.Object == "" {
			return fmt.Errorf("assertions[%d]: object is required for ledger_contains", index)
		}
	case AssertLedgerCount, AssertAllocationCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEffectOrder:
		if a.Node == "" || len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: node and ops are required for effect_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
