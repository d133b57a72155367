// Package deps records the assumptions a compilation makes about the heap.
//
// A Ledger is append-only and owned by one compilation. Handlers register
// assumptions while they lower nodes; a later stage takes the Entries (or
// their CBOR encoding) and installs code-invalidation hooks for them.
package deps

import (
	"errors"
	"strconv"
	"sync"

	"github.com/roach88/alloclower/internal/heap"
)

// Kind classifies a recorded assumption.
type Kind string

const (
	// KindInitialMap pins a constructor's initial map.
	KindInitialMap Kind = "initial_map"
	// KindSlackTracking pins the instance size predicted while in-object
	// slack tracking is still running.
	KindSlackTracking Kind = "slack_tracking"
	// KindPretenureMode pins an allocation site's tenuring decision.
	KindPretenureMode Kind = "pretenure_mode"
	// KindElementsKind pins an allocation site's elements kind.
	KindElementsKind Kind = "elements_kind"
	// KindProtector pins a protector cell in its intact state.
	KindProtector Kind = "protector"
)

// Entry is one recorded assumption. Object is the label of the heap object
// the assumption is about and Detail the value assumed.
type Entry struct {
	Kind   Kind   `cbor:"kind" json:"kind"`
	Object string `cbor:"object" json:"object"`
	Detail string `cbor:"detail,omitempty" json:"detail,omitempty"`
}

// SlackTrackingPrediction is the instance layout inline allocations of a
// constructor assume.
type SlackTrackingPrediction struct {
	InstanceSize          int
	InObjectPropertyCount int
}

// ErrNoInitialMap is returned when a prediction is requested for a function
// that has never allocated an instance.
var ErrNoInitialMap = errors.New("deps: function has no initial map")

// Ledger is the dependency ledger of one compilation. It is safe for
// concurrent use; entries are deduplicated and keep registration order.
type Ledger struct {
	mu          sync.Mutex
	entries     []Entry
	seen        map[Entry]struct{}
	predictions map[*heap.Function]SlackTrackingPrediction
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		seen:        make(map[Entry]struct{}),
		predictions: make(map[*heap.Function]SlackTrackingPrediction),
	}
}

func (l *Ledger) record(e Entry) {
	if _, dup := l.seen[e]; dup {
		return
	}
	l.seen[e] = struct{}{}
	l.entries = append(l.entries, e)
}

// RegisterInitialShapePrediction depends on fn's initial map and returns the
// layout to allocate. While slack tracking is in progress the unused
// property fields are subtracted, and the prediction itself becomes a
// dependency. The result is cached per function.
func (l *Ledger) RegisterInitialShapePrediction(fn *heap.Function) (SlackTrackingPrediction, error) {
	if fn == nil || !fn.HasInitialMap() {
		return SlackTrackingPrediction{}, ErrNoInitialMap
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.predictions[fn]; ok {
		return p, nil
	}

	m := fn.InitialMap
	p := SlackTrackingPrediction{
		InstanceSize:          m.InstanceSize,
		InObjectPropertyCount: m.InObjectProperties,
	}
	l.record(Entry{Kind: KindInitialMap, Object: fn.Label(), Detail: m.Label()})
	if m.SlackTracking {
		p.InstanceSize -= m.UnusedPropertyFields * heap.PointerSize
		p.InObjectPropertyCount -= m.UnusedPropertyFields
		l.record(Entry{Kind: KindSlackTracking, Object: fn.Label(), Detail: strconv.Itoa(p.InstanceSize)})
	}
	l.predictions[fn] = p
	return p, nil
}

// RegisterPretenureDecision depends on the site's tenuring decision and
// returns the region to allocate in.
func (l *Ledger) RegisterPretenureDecision(site *heap.AllocationSite) heap.Region {
	region := heap.Young
	if site.Pretenure {
		region = heap.Old
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(Entry{Kind: KindPretenureMode, Object: site.Label(), Detail: region.String()})
	return region
}

// RegisterElementsKindDependency depends on the site keeping its elements
// kind. Kinds that no longer transition need no dependency.
func (l *Ledger) RegisterElementsKindDependency(site *heap.AllocationSite) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elementsKind(site)
}

// RegisterElementsKindsDependency registers an elements-kind dependency for
// site and every nested site.
func (l *Ledger) RegisterElementsKindsDependency(site *heap.AllocationSite) {
	l.mu.Lock()
	defer l.mu.Unlock()
	site.Walk(l.elementsKind)
}

func (l *Ledger) elementsKind(site *heap.AllocationSite) {
	kind := site.Kind
	if b := site.Boilerplate; b != nil && b.Map != nil {
		kind = b.Map.Kind
	}
	if !kind.ShouldTrack() {
		return
	}
	l.record(Entry{Kind: KindElementsKind, Object: site.Label(), Detail: kind.String()})
}

// RegisterProtectorDependency depends on p staying intact.
func (l *Ledger) RegisterProtectorDependency(p *heap.Protector) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(Entry{Kind: KindProtector, Object: p.Label(), Detail: "intact"})
}

// Entries returns a copy of the recorded entries in registration order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len is the number of distinct entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
