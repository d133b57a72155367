package engine

// StepBudget counts node visits of one run and enforces a maximum.
//
// A reducer that keeps producing replacements which in turn get replaced
// would otherwise never let the worklist drain.
type StepBudget struct {
	maxSteps int
	current  int
}

// NewStepBudget creates a budget allowing maxSteps visits.
func NewStepBudget(maxSteps int) *StepBudget {
	return &StepBudget{maxSteps: maxSteps}
}

// Check counts one visit and returns a STEP_BUDGET_EXCEEDED RuntimeError
// once the count passes the limit.
func (b *StepBudget) Check(compilationID string) error {
	b.current++
	if b.current > b.maxSteps {
		return NewBudgetError(compilationID, b.current, b.maxSteps)
	}
	return nil
}

// Current returns the number of visits counted so far.
func (b *StepBudget) Current() int {
	return b.current
}

// MaxSteps returns the limit.
func (b *StepBudget) MaxSteps() int {
	return b.maxSteps
}
