package heap

import "fmt"

// ElementsKind is the representation of a JSObject's backing store.
// The fast kinds form a lattice: Smi < Double < Elements, packed < holey.
type ElementsKind int

const (
	PackedSmiElements ElementsKind = iota
	HoleySmiElements
	PackedElements
	HoleyElements
	PackedDoubleElements
	HoleyDoubleElements
	DictionaryElements
)

var elementsKindNames = [...]string{
	PackedSmiElements:    "PACKED_SMI_ELEMENTS",
	HoleySmiElements:     "HOLEY_SMI_ELEMENTS",
	PackedElements:       "PACKED_ELEMENTS",
	HoleyElements:        "HOLEY_ELEMENTS",
	PackedDoubleElements: "PACKED_DOUBLE_ELEMENTS",
	HoleyDoubleElements:  "HOLEY_DOUBLE_ELEMENTS",
	DictionaryElements:   "DICTIONARY_ELEMENTS",
}

// FastElementsKinds lists every fast kind in lattice order.
var FastElementsKinds = []ElementsKind{
	PackedSmiElements, HoleySmiElements,
	PackedDoubleElements, HoleyDoubleElements,
	PackedElements, HoleyElements,
}

func (k ElementsKind) String() string {
	if k >= 0 && int(k) < len(elementsKindNames) {
		return elementsKindNames[k]
	}
	return fmt.Sprintf("ElementsKind(%d)", int(k))
}

// ParseElementsKind resolves a name produced by ElementsKind.String.
func ParseElementsKind(s string) (ElementsKind, bool) {
	for k, name := range elementsKindNames {
		if name == s {
			return ElementsKind(k), true
		}
	}
	return 0, false
}

func (k ElementsKind) IsFast() bool { return k >= PackedSmiElements && k <= HoleyDoubleElements }

func (k ElementsKind) IsSmi() bool { return k == PackedSmiElements || k == HoleySmiElements }

func (k ElementsKind) IsDouble() bool { return k == PackedDoubleElements || k == HoleyDoubleElements }

func (k ElementsKind) IsObject() bool { return k == PackedElements || k == HoleyElements }

func (k ElementsKind) IsHoley() bool {
	return k == HoleySmiElements || k == HoleyElements || k == HoleyDoubleElements
}

// Holey returns the holey variant of a fast kind. Other kinds are returned
// unchanged.
func (k ElementsKind) Holey() ElementsKind {
	switch k {
	case PackedSmiElements:
		return HoleySmiElements
	case PackedElements:
		return HoleyElements
	case PackedDoubleElements:
		return HoleyDoubleElements
	}
	return k
}

// ShouldTrack reports whether allocation sites of this kind still collect
// transitions. Only Smi kinds can transition further in a way the array
// constructor stubs care about.
func (k ElementsKind) ShouldTrack() bool { return k.IsSmi() }

func (k ElementsKind) generality() int {
	switch {
	case k.IsSmi():
		return 0
	case k.IsDouble():
		return 1
	default:
		return 2
	}
}

// MoreGeneral returns the least kind that can represent both k and other.
// Both must be fast kinds.
func (k ElementsKind) MoreGeneral(other ElementsKind) ElementsKind {
	base := k
	if other.generality() > k.generality() {
		base = other
	}
	var out ElementsKind
	switch base.generality() {
	case 0:
		out = PackedSmiElements
	case 1:
		out = PackedDoubleElements
	default:
		out = PackedElements
	}
	if k.IsHoley() || other.IsHoley() {
		out = out.Holey()
	}
	return out
}

// IsMoreGeneralTransition reports whether moving from k to to widens the
// representation.
func (k ElementsKind) IsMoreGeneralTransition(to ElementsKind) bool {
	return k != to && k.MoreGeneral(to) == to
}
