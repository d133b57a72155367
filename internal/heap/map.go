package heap

// PropertyLocation says where a described property's value lives.
type PropertyLocation int

const (
	LocationField PropertyLocation = iota
	LocationDescriptor
)

// Representation is the field representation recorded in a descriptor.
type Representation int

const (
	RepresentationTagged Representation = iota
	RepresentationSmi
	RepresentationDouble
	RepresentationHeapObject
)

var representationNames = map[Representation]string{
	RepresentationTagged:     "tagged",
	RepresentationSmi:        "smi",
	RepresentationDouble:     "double",
	RepresentationHeapObject: "heap_object",
}

func (r Representation) String() string { return representationNames[r] }

// ParseRepresentation resolves a name produced by Representation.String.
func ParseRepresentation(s string) (Representation, bool) {
	for r, name := range representationNames {
		if name == s {
			return r, true
		}
	}
	return 0, false
}

// Descriptor is one own property of a map.
type Descriptor struct {
	Name           string
	Location       PropertyLocation
	Representation Representation
	// FieldIndex is the in-object field index for LocationField entries.
	FieldIndex int
}

// Map is a shape descriptor.
type Map struct {
	header

	Type                 InstanceType
	InstanceSize         int
	InObjectProperties   int
	UnusedPropertyFields int
	Kind                 ElementsKind

	Dictionary       bool
	SlackTracking    bool
	HasPrototypeSlot bool
	// CopyOnWrite marks the map of shared copy-on-write backing stores.
	CopyOnWrite bool

	// Constructor is the back pointer of an initial map. Nil for maps that
	// are not initial maps.
	Constructor HeapObject
	Descriptors []Descriptor

	siblings *siblingSet
}

func (*Map) InstanceType() InstanceType { return TypeMap }

type siblingSet struct {
	byKind map[ElementsKind]*Map
}

// InObjectStart is the offset of the first in-object property.
func (m *Map) InObjectStart() int {
	return m.InstanceSize - m.InObjectProperties*PointerSize
}

// InObjectOffset returns the offset of in-object property i.
func (m *Map) InObjectOffset(i int) int {
	return m.InObjectStart() + i*PointerSize
}

// IsJSArrayMap reports whether instances of m are JSArrays.
func (m *Map) IsJSArrayMap() bool { return m.Type == TypeJSArray }

// IsFixedDoubleArrayMap reports whether instances of m are FixedDoubleArrays.
func (m *Map) IsFixedDoubleArrayMap() bool { return m.Type == TypeFixedDoubleArray }

// AsElementsKind returns the sibling of m with the given elements kind. The
// second result is false when the sibling was not part of the snapshot.
func (m *Map) AsElementsKind(kind ElementsKind) (*Map, bool) {
	if m.Kind == kind {
		return m, true
	}
	if m.siblings == nil {
		return nil, false
	}
	s, ok := m.siblings.byKind[kind]
	return s, ok
}

// LinkSiblings makes the given maps elements-kind siblings of each other.
// Maps must be distinct in kind.
func LinkSiblings(maps ...*Map) {
	set := &siblingSet{byKind: make(map[ElementsKind]*Map, len(maps))}
	for _, m := range maps {
		set.byKind[m.Kind] = m
		m.siblings = set
	}
}
