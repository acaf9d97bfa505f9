package graph

import (
	"context"
	"slices"
	"time"

	"github.com/syssam/linkage"
)

// Pending is the eventual result of reading a relationship. Concurrent
// readers of a relationship that is still loading share one Pending.
type Pending struct {
	done    chan struct{}
	records []linkage.Record
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolved(records []linkage.Record, err error) *Pending {
	p := newPending()
	p.settle(records, err)
	return p
}

func (p *Pending) settle(records []linkage.Record, err error) {
	p.records, p.err = records, err
	close(p.done)
}

// Done returns a channel that is closed once the result is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Settled reports whether the result is available.
func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the result is available or ctx is done. Cancelling ctx
// stops the wait only; the load itself runs to completion.
func (p *Pending) Wait(ctx context.Context) ([]linkage.Record, error) {
	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return slices.Clone(p.records), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// get returns the members of st, starting a load if needed. Callers hold
// the session lock.
func (s *Session) get(ctx context.Context, st *State) (*Pending, error) {
	switch {
	case st.loaded:
		return resolved(slices.Clone(st.members), nil), nil
	case st.pending != nil:
		return st.pending, nil
	case !st.desc.Async:
		return nil, linkage.NewNotLoadedError(st.owner.TypeName(), st.desc.Name, false)
	default:
		return s.load(ctx, st, false), nil
	}
}

// load starts a loader call for st on its own goroutine. Callers hold the
// session lock.
func (s *Session) load(ctx context.Context, st *State, reload bool) *Pending {
	p := newPending()
	st.pending, st.status = p, StatusLoading
	ctx = context.WithoutCancel(ctx)
	if reload {
		ctx = linkage.WithReload(ctx)
	}
	s.logger.Debug("loading relationship", "type", st.owner.TypeName(), "id", st.owner.ID(),
		"relationship", st.desc.Name, "reload", reload)
	go s.complete(ctx, st, p, reload)
	return p
}

func (s *Session) complete(ctx context.Context, st *State, p *Pending, reload bool) {
	var (
		records []linkage.Record
		err     = linkage.ErrNoLoader
		start   = time.Now()
	)
	if s.loader != nil {
		records, err = s.loader.Load(ctx, st.owner, st.desc.Name)
	}
	s.mu.Lock()
	if s.states[stateKey{st.owner, st.desc.Name}] != st {
		// The owner was forgotten while loading.
		s.mu.Unlock()
		if err != nil {
			err = linkage.NewLoadError(st.owner, st.desc.Name, err)
		}
		p.settle(records, err)
		return
	}
	b := newBatch()
	if err == nil {
		err = s.merge(st, records, reload, b)
	}
	var members []linkage.Record
	if st.pending == p {
		st.pending = nil
	}
	if err != nil {
		err = linkage.NewLoadError(st.owner, st.desc.Name, err)
		st.status, st.err = StatusLoadFailed, err
	} else {
		st.status, st.loaded, st.err = StatusLoaded, true, nil
		members = slices.Clone(st.members)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("relationship load failed", "type", st.owner.TypeName(), "id", st.owner.ID(),
			"relationship", st.desc.Name, "error", err)
	} else {
		s.logger.Debug("relationship loaded", "type", st.owner.TypeName(), "id", st.owner.ID(),
			"relationship", st.desc.Name, "records", len(members), "duration", time.Since(start))
	}
	b.deliver(s.notifier)
	p.settle(members, err)
}

// merge applies loaded records to st on both sides. A reload replaces the
// members. A first load keeps local members that the server does not know
// about after the loaded ones, except that a locally assigned to-one member
// wins over the loaded one. Callers hold the session lock.
func (s *Session) merge(st *State, records []linkage.Record, reload bool, b *batch) error {
	inv, err := s.prepare(st, records)
	if err != nil {
		return err
	}
	switch {
	case reload:
		s.set(st, inv, records, b)
		st.dirty = false
	case st.desc.Unique() && st.dirty && len(st.members) > 0:
		return nil
	default:
		local := slices.Clone(st.members)
		s.add(st, inv, records, b)
		order := append(slices.Clone(records), local...)
		if st.reorder(order) {
			b.touch(st)
		}
	}
	s.markPartnersLoaded(records, inv)
	return nil
}
