package engine

import "sync/atomic"

// LogicalClock stamps reduction records. Implemented by Clock and by
// testutil.DeterministicClock.
type LogicalClock interface {
	Next() int64
}

// Clock is a monotonic logical clock for record ordering.
//
// Every reduction record is stamped with a strictly increasing seq number.
// Wall-clock time never takes part in ordering, so reruns of a unit produce
// identical records.
//
// Clock is safe for concurrent use, though an engine run only calls it from
// one goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue numbering across passes that share a record stream.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
