package graph

import (
	"slices"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

// Status is the materialization status of a relationship state.
type Status uint8

// Materialization statuses.
const (
	StatusEmpty Status = iota
	StatusLoading
	StatusLoaded
	StatusLoadFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusLoadFailed:
		return "load-failed"
	default:
		return "unknown"
	}
}

// State holds the membership of one relationship on one record.
//
// A State is created lazily by the session the first time the relationship is
// touched. All reads go through the session lock, so a State may be inspected
// while loads complete on other goroutines.
type State struct {
	s       *Session
	owner   linkage.Record
	desc    *edge.Descriptor
	members []linkage.Record
	set     map[linkage.Record]struct{}
	status  Status
	loaded  bool
	dirty   bool
	err     error
	pending *Pending
}

func newState(s *Session, owner linkage.Record, desc *edge.Descriptor) *State {
	st := &State{
		s:     s,
		owner: owner,
		desc:  desc,
		set:   make(map[linkage.Record]struct{}),
	}
	// Nothing remote exists yet for records that were never saved.
	if owner.ID() == "" {
		st.status, st.loaded = StatusLoaded, true
	}
	return st
}

// Owner returns the record the relationship belongs to.
func (st *State) Owner() linkage.Record { return st.owner }

// Descriptor returns the relationship descriptor.
func (st *State) Descriptor() *edge.Descriptor { return st.desc }

// Status returns the current materialization status.
func (st *State) Status() Status {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.status
}

// IsLoaded reports whether the members were materialized at least once.
func (st *State) IsLoaded() bool {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.loaded
}

// IsDirty reports whether the membership was changed locally since it was
// last populated by the server.
func (st *State) IsDirty() bool {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.dirty
}

// Err returns the error of the last failed load, if any.
func (st *State) Err() error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.err
}

// Members returns a copy of the resident members in order.
func (st *State) Members() []linkage.Record {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return slices.Clone(st.members)
}

// Len returns the number of resident members.
func (st *State) Len() int {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return len(st.members)
}

// Has reports whether rec is a resident member.
func (st *State) Has(rec linkage.Record) bool {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.has(rec)
}

// The methods below must be called with the session lock held.

func (st *State) has(rec linkage.Record) bool {
	_, ok := st.set[rec]
	return ok
}

func (st *State) first() linkage.Record {
	if len(st.members) == 0 {
		return nil
	}
	return st.members[0]
}

// insert appends rec and reports whether membership changed.
func (st *State) insert(rec linkage.Record) bool {
	if st.has(rec) {
		return false
	}
	st.set[rec] = struct{}{}
	st.members = append(st.members, rec)
	return true
}

// delete drops rec and reports whether membership changed.
func (st *State) delete(rec linkage.Record) bool {
	if !st.has(rec) {
		return false
	}
	delete(st.set, rec)
	st.members = slices.DeleteFunc(st.members, func(m linkage.Record) bool { return m == rec })
	return true
}

// reorder sorts members into the given order and reports whether the order
// changed. Records in order that are not members are skipped, and members
// missing from order keep their relative position at the end.
func (st *State) reorder(order []linkage.Record) bool {
	next := make([]linkage.Record, 0, len(st.members))
	placed := make(map[linkage.Record]struct{}, len(order))
	for _, rec := range order {
		if _, dup := placed[rec]; dup || !st.has(rec) {
			continue
		}
		placed[rec] = struct{}{}
		next = append(next, rec)
	}
	for _, m := range st.members {
		if _, ok := placed[m]; !ok {
			next = append(next, m)
		}
	}
	if slices.Equal(next, st.members) {
		return false
	}
	st.members = next
	return true
}
