package heap

// Region is the space an allocation targets.
type Region int

const (
	// Young is the short-lived nursery.
	Young Region = iota
	// Old is the long-lived space used for pretenured allocations.
	Old
)

func (r Region) String() string {
	if r == Old {
		return "old"
	}
	return "young"
}
