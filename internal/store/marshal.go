package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/alloclower/internal/ir"
	"github.com/roach88/alloclower/internal/lowering"
)

// storedLimits is the column form of lowering.Limits.
type storedLimits struct {
	MaxRegularObjectSize      int  `json:"max_regular_object_size"`
	FunctionContextSlotLimit  int  `json:"function_context_slot_limit"`
	BlockContextSlotLimit     int  `json:"block_context_slot_limit"`
	ElementLoopUnrollLimit    int  `json:"element_loop_unroll_limit"`
	MaxFastLiteralDepth       int  `json:"max_fast_literal_depth"`
	MaxFastLiteralProperties  int  `json:"max_fast_literal_properties"`
	AllocationSitePretenuring bool `json:"allocation_site_pretenuring"`
}

// marshalLimits converts limits to canonical JSON TEXT so equal limits
// store as equal strings.
func marshalLimits(l lowering.Limits) (string, error) {
	data, err := ir.MarshalCanonical(map[string]any{
		"max_regular_object_size":     l.MaxRegularObjectSize,
		"function_context_slot_limit": l.FunctionContextSlotLimit,
		"block_context_slot_limit":    l.BlockContextSlotLimit,
		"element_loop_unroll_limit":   l.ElementLoopUnrollLimit,
		"max_fast_literal_depth":      l.MaxFastLiteralDepth,
		"max_fast_literal_properties": l.MaxFastLiteralProperties,
		"allocation_site_pretenuring": l.AllocationSitePretenuring,
	})
	if err != nil {
		return "", fmt.Errorf("marshal limits: %w", err)
	}
	return string(data), nil
}

func unmarshalLimits(data string) (lowering.Limits, error) {
	var s storedLimits
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return lowering.Limits{}, fmt.Errorf("unmarshal limits: %w", err)
	}
	return lowering.Limits{
		MaxRegularObjectSize:      s.MaxRegularObjectSize,
		FunctionContextSlotLimit:  s.FunctionContextSlotLimit,
		BlockContextSlotLimit:     s.BlockContextSlotLimit,
		ElementLoopUnrollLimit:    s.ElementLoopUnrollLimit,
		MaxFastLiteralDepth:       s.MaxFastLiteralDepth,
		MaxFastLiteralProperties:  s.MaxFastLiteralProperties,
		AllocationSitePretenuring: s.AllocationSitePretenuring,
	}, nil
}
