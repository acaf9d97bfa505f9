package graph

import "github.com/syssam/linkage"

// batch collects the states touched by one public operation so each
// (record, relationship) pair is notified exactly once after the session
// lock is released.
type batch struct {
	seen   map[*State]struct{}
	states []*State
}

func newBatch() *batch {
	return &batch{seen: make(map[*State]struct{})}
}

func (b *batch) touch(st *State) {
	if _, ok := b.seen[st]; ok {
		return
	}
	b.seen[st] = struct{}{}
	b.states = append(b.states, st)
}

func (b *batch) empty() bool { return len(b.states) == 0 }

// markDirty flags every touched state as locally modified. Callers hold the
// session lock.
func (b *batch) markDirty() {
	for _, st := range b.states {
		st.dirty = true
	}
}

// deliver notifies observers in the order the states were touched. It must
// be called without the session lock so observers can read the graph.
func (b *batch) deliver(n linkage.Notifier) {
	if n == nil {
		return
	}
	for _, st := range b.states {
		n.Notify(st.owner, st.desc.Name)
	}
}
