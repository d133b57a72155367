package engine

import "github.com/roach88/alloclower/internal/ir"

// worklist is a FIFO of node ids. A node is held at most once at a time;
// pushing a node that is already queued is a no-op.
type worklist struct {
	nodes  []ir.NodeID
	queued map[ir.NodeID]bool
}

func newWorklist(capacity int) *worklist {
	return &worklist{
		nodes:  make([]ir.NodeID, 0, capacity),
		queued: make(map[ir.NodeID]bool, capacity),
	}
}

// Push adds id to the back. Returns false if id was already queued.
func (w *worklist) Push(id ir.NodeID) bool {
	if w.queued[id] {
		return false
	}
	w.queued[id] = true
	w.nodes = append(w.nodes, id)
	return true
}

// Pop removes and returns the front id.
func (w *worklist) Pop() (ir.NodeID, bool) {
	if len(w.nodes) == 0 {
		return ir.NoNode, false
	}
	id := w.nodes[0]
	if len(w.nodes) == 1 {
		w.nodes = w.nodes[:0]
	} else {
		w.nodes = w.nodes[1:]
	}
	delete(w.queued, id)
	return id, true
}

// Len returns the number of queued ids.
func (w *worklist) Len() int { return len(w.nodes) }
