package heap

import (
	"fmt"
	"sort"
)

// AccessError reports a heap access made while it was disallowed, or a
// malformed registration. It is raised with panic.
type AccessError struct {
	Op    string
	Label string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("heap access violation: %s %q", e.Op, e.Label)
}

// InvariantViolation marks the error as a programmer error that aborts the
// compilation.
func (e *AccessError) InvariantViolation() {}

// Broker owns the heap snapshot of one compilation.
type Broker struct {
	objects  []HeapObject
	byLabel  map[string]HeapObject
	disallow int
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{byLabel: make(map[string]HeapObject)}
}

// Add registers o under label and returns it. Labels must be unique.
// Add panics with *AccessError while heap access is disallowed.
func Add[T HeapObject](b *Broker, label string, o T) T {
	b.register(label, o, false)
	return o
}

func addRoot[T HeapObject](b *Broker, label string, o T) T {
	b.register(label, o, true)
	return o
}

func (b *Broker) register(label string, o HeapObject, immortal bool) {
	if b.disallow > 0 {
		panic(&AccessError{Op: "allocate", Label: label})
	}
	if label == "" {
		panic(&AccessError{Op: "register unlabeled", Label: label})
	}
	if _, dup := b.byLabel[label]; dup {
		panic(&AccessError{Op: "register duplicate", Label: label})
	}
	h := o.base()
	if h.owner != nil {
		panic(&AccessError{Op: "register twice", Label: label})
	}
	h.id = ObjectID(len(b.objects))
	h.label = label
	h.immortal = immortal
	h.owner = b
	b.objects = append(b.objects, o)
	b.byLabel[label] = o
}

// DisallowHeapAccess forbids registrations until the returned release
// function is called. Guards nest.
func (b *Broker) DisallowHeapAccess() (release func()) {
	b.disallow++
	released := false
	return func() {
		if !released {
			released = true
			b.disallow--
		}
	}
}

// HeapAccessAllowed reports whether no guard is held.
func (b *Broker) HeapAccessAllowed() bool { return b.disallow == 0 }

// Lookup finds an object by label.
func (b *Broker) Lookup(label string) (HeapObject, bool) {
	o, ok := b.byLabel[label]
	return o, ok
}

// Owns reports whether o was registered with b.
func (b *Broker) Owns(o HeapObject) bool {
	return o != nil && o.base().owner == b
}

// Objects returns all objects in registration order.
func (b *Broker) Objects() []HeapObject {
	out := make([]HeapObject, len(b.objects))
	copy(out, b.objects)
	return out
}

// Labels returns all labels, sorted.
func (b *Broker) Labels() []string {
	out := make([]string, 0, len(b.byLabel))
	for l := range b.byLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (b *Broker) Len() int { return len(b.objects) }
