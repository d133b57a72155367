package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_AddAssignsIdentity(t *testing.T) {
	b := NewBroker()

	s := Add(b, "greeting", &String{Value: "hi"})
	n := Add(b, "pi", &HeapNumber{Value: 3.14})

	assert.Equal(t, ObjectID(0), s.ID())
	assert.Equal(t, ObjectID(1), n.ID())
	assert.Equal(t, "greeting", s.Label())
	assert.False(t, s.Immortal())
	assert.True(t, b.Owns(s))

	got, ok := b.Lookup("pi")
	require.True(t, ok)
	assert.Same(t, n, got)
	assert.Equal(t, []string{"greeting", "pi"}, b.Labels())
}

func TestBroker_DuplicateLabelPanics(t *testing.T) {
	b := NewBroker()
	Add(b, "x", &String{Value: "a"})

	assert.PanicsWithError(t, `heap access violation: register duplicate "x"`, func() {
		Add(b, "x", &String{Value: "b"})
	})
}

func TestBroker_DisallowHeapAccess(t *testing.T) {
	b := NewBroker()
	release := b.DisallowHeapAccess()
	assert.False(t, b.HeapAccessAllowed())

	defer func() {
		r := recover()
		require.NotNil(t, r, "Add under guard must panic")
		err, ok := r.(*AccessError)
		require.True(t, ok)
		assert.Equal(t, "allocate", err.Op)

		release()
		release() // idempotent
		assert.True(t, b.HeapAccessAllowed())
	}()
	Add(b, "late", &String{Value: "nope"})
}

func TestElementsKind_MoreGeneral(t *testing.T) {
	tests := []struct {
		a, b, want ElementsKind
	}{
		{PackedSmiElements, PackedSmiElements, PackedSmiElements},
		{PackedSmiElements, PackedDoubleElements, PackedDoubleElements},
		{PackedSmiElements, HoleyElements, HoleyElements},
		{HoleySmiElements, PackedDoubleElements, HoleyDoubleElements},
		{PackedDoubleElements, PackedElements, PackedElements},
		{HoleyDoubleElements, PackedSmiElements, HoleyDoubleElements},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"+"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.MoreGeneral(tt.b))
			assert.Equal(t, tt.want, tt.b.MoreGeneral(tt.a))
		})
	}
}

func TestElementsKind_Predicates(t *testing.T) {
	assert.True(t, HoleySmiElements.IsHoley())
	assert.False(t, PackedElements.IsHoley())
	assert.Equal(t, HoleyDoubleElements, PackedDoubleElements.Holey())
	assert.True(t, PackedSmiElements.ShouldTrack())
	assert.False(t, PackedElements.ShouldTrack())
	assert.True(t, PackedSmiElements.IsMoreGeneralTransition(PackedElements))
	assert.False(t, PackedElements.IsMoreGeneralTransition(PackedSmiElements))

	k, ok := ParseElementsKind("HOLEY_DOUBLE_ELEMENTS")
	require.True(t, ok)
	assert.Equal(t, HoleyDoubleElements, k)
}

func TestBootstrap_ArrayMapsAreSiblings(t *testing.T) {
	b := NewBroker()
	nc := Bootstrap(b)

	packed, ok := nc.InitialJSArrayMap(PackedSmiElements)
	require.True(t, ok)
	assert.Same(t, nc.ArrayFunction.InitialMap, packed)
	assert.Same(t, nc.ArrayFunction, packed.Constructor)

	for _, kind := range FastElementsKinds {
		sibling, ok := packed.AsElementsKind(kind)
		require.True(t, ok, kind.String())
		assert.Equal(t, kind, sibling.Kind)
		assert.Equal(t, JSArraySize, sibling.InstanceSize)
	}

	_, ok = nc.ObjectFunction.InitialMap.AsElementsKind(PackedDoubleElements)
	assert.False(t, ok, "object maps carry no siblings")
}

func TestBootstrap_Roots(t *testing.T) {
	b := NewBroker()
	nc := Bootstrap(b)

	assert.True(t, nc.Undefined.Immortal())
	assert.True(t, nc.EmptyFixedArray.Immortal())
	assert.True(t, nc.FixedArrayMap.Immortal())
	assert.False(t, nc.ObjectFunction.Immortal())
	assert.True(t, nc.FixedCOWArrayMap.CopyOnWrite)
	assert.True(t, nc.ArrayConstructorProtector.Intact)

	code, ok := nc.Builtin(ArrayNoArgumentConstructor(HoleySmiElements, DisableAllocationSites))
	require.True(t, ok)
	assert.Equal(t, "ArrayNoArgumentConstructor_HoleySmi_DisableAllocationSites", code.Builtin)

	fm, ok := nc.FunctionMap(SloppyFunctionMapIndex)
	require.True(t, ok)
	assert.True(t, fm.HasPrototypeSlot)
	fm, ok = nc.FunctionMap(MethodFunctionMapIndex)
	require.True(t, ok)
	assert.False(t, fm.HasPrototypeSlot)
	_, ok = nc.FunctionMap(99)
	assert.False(t, ok)
}

func TestNativeContext_ObjectCreateMap(t *testing.T) {
	b := NewBroker()
	nc := Bootstrap(b)

	m, ok := nc.ObjectCreateMap(nc.Null)
	require.True(t, ok)
	assert.True(t, m.Dictionary)

	createMap := Add(b, "create_map", &Map{Type: TypeJSObject, InstanceSize: 56, InObjectProperties: 4})
	proto := Add(b, "proto", &JSObject{Map: nc.ObjectFunction.InitialMap, ObjectCreateMap: createMap})
	m, ok = nc.ObjectCreateMap(proto)
	require.True(t, ok)
	assert.Same(t, createMap, m)

	_, ok = nc.ObjectCreateMap(nc.Undefined)
	assert.False(t, ok)
}

func TestNativeContext_CollectionIteratorMap(t *testing.T) {
	nc := Bootstrap(NewBroker())

	m, ok := nc.CollectionIteratorMap(TypeJSMap, IterateEntries)
	require.True(t, ok)
	assert.Same(t, nc.MapKeyValueIteratorMap, m)

	_, ok = nc.CollectionIteratorMap(TypeJSSet, IterateKeys)
	assert.False(t, ok)
}

func TestMap_InObjectOffsets(t *testing.T) {
	m := &Map{InstanceSize: 56, InObjectProperties: 4}
	assert.Equal(t, 24, m.InObjectStart())
	assert.Equal(t, 40, m.InObjectOffset(2))
}

func TestLayout_Constants(t *testing.T) {
	assert.Equal(t, 63384, InitialMaxFastElementArray)
	assert.Equal(t, 4, NameDictionaryCapacity(NameDictionaryInitialCapacity))
	assert.Equal(t, 17, NameDictionaryLength(4))
	assert.Equal(t, 152, FixedArraySize(17))
	assert.Equal(t, 56, FixedArraySlotOffset(5))
}

func TestIsSmiValue(t *testing.T) {
	assert.True(t, IsSmiValue(0))
	assert.True(t, IsSmiValue(-5))
	assert.False(t, IsSmiValue(1.5))
	assert.False(t, IsSmiValue(SmiMaxValue+1))
}

func TestAllocationSite_Walk(t *testing.T) {
	inner := &AllocationSite{Kind: PackedDoubleElements}
	mid := &AllocationSite{Kind: PackedElements, Nested: []*AllocationSite{inner}}
	leaf := &AllocationSite{Kind: PackedSmiElements}
	root := &AllocationSite{Nested: []*AllocationSite{mid, leaf}}

	var seen []*AllocationSite
	root.Walk(func(s *AllocationSite) { seen = append(seen, s) })
	assert.Equal(t, []*AllocationSite{root, mid, inner, leaf}, seen)
}
