package graph

import (
	"context"
	"errors"
	"slices"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/schema/edge"
)

// mutation implements linkage.Mutation for policy evaluation.
type mutation struct {
	op      linkage.Op
	owner   linkage.Record
	name    string
	records []linkage.Record
}

func (m *mutation) Op() linkage.Op { return m.op }

func (m *mutation) Owner() linkage.Record { return m.owner }

func (m *mutation) Relationship() string { return m.name }

func (m *mutation) Records() []linkage.Record { return slices.Clone(m.records) }

var errNilRecord = errors.New("linkage: nil record")

// mutate validates and applies one public mutation. Nothing changes unless
// every check passes; notifications go out after the lock is released.
func (s *Session) mutate(ctx context.Context, owner linkage.Record, name string, op linkage.Op, records []linkage.Record) error {
	if owner == nil {
		return errNilRecord
	}
	s.mu.Lock()
	st, err := s.state(owner, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if op == linkage.OpClear {
		records = slices.Clone(st.members)
	}
	inv, err := s.prepare(st, records)
	if err == nil && s.policy != nil {
		err = s.policy.EvalMutation(ctx, &mutation{op: op, owner: owner, name: name, records: records})
	}
	if err != nil {
		s.mu.Unlock()
		return linkage.NewMutationError(owner.TypeName(), name, op, err)
	}
	b := newBatch()
	switch op {
	case linkage.OpAdd:
		s.add(st, inv, records, b)
	case linkage.OpRemove, linkage.OpClear:
		s.remove(st, inv, records, b)
	case linkage.OpSet:
		s.set(st, inv, records, b)
	}
	b.markDirty()
	s.mu.Unlock()
	if !b.empty() {
		s.logger.Debug("relationship changed", "op", op, "type", owner.TypeName(), "id", owner.ID(),
			"relationship", name, "affected", len(b.states))
	}
	b.deliver(s.notifier)
	return nil
}

// prepare checks the records against the relationship and resolves its
// inverse. It makes no changes.
func (s *Session) prepare(st *State, records []linkage.Record) (*edge.Descriptor, error) {
	distinct := make(map[linkage.Record]struct{}, len(records))
	for _, rec := range records {
		if rec == nil {
			return nil, errNilRecord
		}
		if got := edge.NormalizeType(rec.TypeName()); got != st.desc.Type {
			return nil, &linkage.RecordTypeError{Relationship: st.desc.Name, Want: st.desc.Type, Got: got}
		}
		distinct[rec] = struct{}{}
	}
	if st.desc.Unique() && len(distinct) > 1 {
		return nil, linkage.NewCardinalityError(st.owner.TypeName(), st.desc.Name, len(distinct))
	}
	return s.schema.Inverse(st.owner.TypeName(), st.desc.Name)
}

func (s *Session) add(st *State, inv *edge.Descriptor, records []linkage.Record, b *batch) {
	for _, rec := range records {
		s.link(st, rec, inv, b)
	}
}

func (s *Session) remove(st *State, inv *edge.Descriptor, records []linkage.Record, b *batch) {
	for _, rec := range records {
		s.unlink(st, rec, inv, b)
	}
}

// set makes the members of st exactly records, in that order. Only records
// that really join or leave are linked or unlinked, so untouched members and
// their partners are not notified. A pure reorder touches st alone.
func (s *Session) set(st *State, inv *edge.Descriptor, records []linkage.Record, b *batch) {
	want := make(map[linkage.Record]struct{}, len(records))
	for _, rec := range records {
		want[rec] = struct{}{}
	}
	for _, m := range slices.Clone(st.members) {
		if _, ok := want[m]; !ok {
			s.unlink(st, m, inv, b)
		}
	}
	for _, rec := range records {
		s.link(st, rec, inv, b)
	}
	if st.reorder(records) {
		b.touch(st)
	}
}

// link puts rec into st and st.owner into the paired state of rec. A to-one
// state on either side drops its previous occupant first, detaching it from
// its own partner as well. Calling link for an existing member repairs the
// inverse side if it drifted.
func (s *Session) link(st *State, rec linkage.Record, inv *edge.Descriptor, b *batch) {
	if st.desc.Unique() {
		if prev := st.first(); prev != nil && prev != rec {
			s.unlink(st, prev, inv, b)
		}
	}
	if st.insert(rec) {
		b.touch(st)
	}
	if inv == nil {
		return
	}
	other := s.pair(rec, inv)
	if other.desc.Unique() {
		if prev := other.first(); prev != nil && prev != st.owner {
			s.unlink(other, prev, st.desc, b)
		}
	}
	if other.insert(st.owner) {
		b.touch(other)
	}
}

// unlink removes rec from st and st.owner from the paired state of rec.
func (s *Session) unlink(st *State, rec linkage.Record, inv *edge.Descriptor, b *batch) {
	if st.delete(rec) {
		b.touch(st)
	}
	if inv == nil {
		return
	}
	if other, ok := s.states[stateKey{rec, inv.Name}]; ok && other.delete(st.owner) {
		b.touch(other)
	}
}

// pair returns the state of rec for the inverse descriptor, creating it when
// the relationship was never touched on rec.
func (s *Session) pair(rec linkage.Record, inv *edge.Descriptor) *State {
	key := stateKey{rec, inv.Name}
	if st, ok := s.states[key]; ok {
		return st
	}
	st := newState(s, rec, inv)
	s.states[key] = st
	return st
}

// markPartnersLoaded marks the to-one partner states of server-supplied records as
// loaded, since a record belongs to at most one owner through them.
func (s *Session) markPartnersLoaded(records []linkage.Record, inv *edge.Descriptor) {
	if inv == nil || !inv.Unique() {
		return
	}
	for _, rec := range records {
		if other, ok := s.states[stateKey{rec, inv.Name}]; ok && !other.loaded {
			other.loaded = true
			if other.pending == nil {
				other.status = StatusLoaded
			}
		}
	}
}
