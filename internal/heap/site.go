package heap

// AllocationSite is the feedback attached to an allocation call site.
type AllocationSite struct {
	header
	Kind          ElementsKind
	CanInlineCall bool
	// Pretenure is the site's tenuring decision.
	Pretenure bool
	// Boilerplate is the literal template, nil for constructor sites.
	Boilerplate *JSObject
	FastLiteral bool
	Nested      []*AllocationSite
}

func (*AllocationSite) InstanceType() InstanceType { return TypeAllocationSite }

// IsFastLiteral reports whether the boilerplate may be cloned inline.
func (s *AllocationSite) IsFastLiteral() bool {
	return s.FastLiteral && s.Boilerplate != nil
}

// Walk visits s and every nested site, depth first.
func (s *AllocationSite) Walk(fn func(*AllocationSite)) {
	stack := []*AllocationSite{s}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(top)
		for i := len(top.Nested) - 1; i >= 0; i-- {
			stack = append(stack, top.Nested[i])
		}
	}
}
