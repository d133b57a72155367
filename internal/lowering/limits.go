package lowering

import "github.com/roach88/alloclower/internal/heap"

// Limits bounds what a handler may emit inline.
type Limits struct {
	// MaxRegularObjectSize is the largest single allocation.
	MaxRegularObjectSize int
	// FunctionContextSlotLimit bounds the slot count of function and eval
	// contexts.
	FunctionContextSlotLimit int
	// BlockContextSlotLimit bounds the context length of block contexts.
	BlockContextSlotLimit int
	// ElementLoopUnrollLimit is the largest constant capacity for which
	// new Array(n) fills its backing store inline.
	ElementLoopUnrollLimit int
	// MaxFastLiteralDepth bounds the nesting of cloned boilerplates.
	MaxFastLiteralDepth int
	// MaxFastLiteralProperties bounds the total in-object fields of one
	// cloned literal.
	MaxFastLiteralProperties int
	// AllocationSitePretenuring lets literal sites pick the old region.
	AllocationSitePretenuring bool
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRegularObjectSize:      heap.MaxRegularHeapObjectSize,
		FunctionContextSlotLimit:  16,
		BlockContextSlotLimit:     16,
		ElementLoopUnrollLimit:    16,
		MaxFastLiteralDepth:       3,
		MaxFastLiteralProperties:  252,
		AllocationSitePretenuring: true,
	}
}

func (l Limits) fits(size int) bool { return size <= l.MaxRegularObjectSize }
