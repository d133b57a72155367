package heap

// FixedArrayBase is a backing store: FixedArray or FixedDoubleArray.
type FixedArrayBase interface {
	HeapObject
	Len() int
	ArrayMap() *Map
}

// FixedArray is a tagged backing store.
type FixedArray struct {
	header
	Map    *Map
	Values []Object
}

func (a *FixedArray) InstanceType() InstanceType {
	if a.Map != nil {
		return a.Map.Type
	}
	return TypeFixedArray
}

func (a *FixedArray) Len() int { return len(a.Values) }
func (a *FixedArray) ArrayMap() *Map { return a.Map }

// FixedDoubleArray is an unboxed double backing store. Holes[i] marks
// element i as the hole.
type FixedDoubleArray struct {
	header
	Map    *Map
	Values []float64
	Holes  []bool
}

func (*FixedDoubleArray) InstanceType() InstanceType { return TypeFixedDoubleArray }

func (a *FixedDoubleArray) Len() int { return len(a.Values) }
func (a *FixedDoubleArray) ArrayMap() *Map { return a.Map }

// IsHole reports whether element i is the hole.
func (a *FixedDoubleArray) IsHole(i int) bool {
	return i < len(a.Holes) && a.Holes[i]
}

// IsCopyOnWrite reports whether the store is shared between all clones.
func IsCopyOnWrite(e FixedArrayBase) bool {
	m := e.ArrayMap()
	return m != nil && m.CopyOnWrite
}

// JSObject is a literal boilerplate or any other plain JS object constant.
type JSObject struct {
	header
	Map *Map
	// Fields holds in-object property values by field index. A RawDouble
	// entry is an unboxed double field.
	Fields   []Object
	Elements FixedArrayBase
	// TenuredElements is the old-space copy of copy-on-write Elements used
	// when a clone is pretenured.
	TenuredElements FixedArrayBase
	// Length is the array length for JSArray boilerplates.
	Length Object
	// ObjectCreateMap is the map Object.create uses with this object as
	// prototype.
	ObjectCreateMap *Map
}

func (o *JSObject) InstanceType() InstanceType { return o.Map.Type }

// Field returns the value at field index i, or nil.
func (o *JSObject) Field(i int) Object {
	if i < 0 || i >= len(o.Fields) {
		return nil
	}
	return o.Fields[i]
}

// JSRegExp is a regexp literal boilerplate.
type JSRegExp struct {
	header
	Map                 *Map
	RawPropertiesOrHash Object
	Elements            Object
	Data                *FixedArray
	Source              *String
	Flags               Smi
}

func (*JSRegExp) InstanceType() InstanceType { return TypeJSRegExp }
