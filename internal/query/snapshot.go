package query

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the runtime pinned to one revision. Any
// number of goroutines may read through the same or different snapshots
// concurrently.
type Snapshot struct {
	rt       *Runtime
	rev      Revision
	released atomic.Bool

	// Values computed for nodes whose shared memo already reflects a newer
	// revision than this snapshot can see.
	localMu sync.Mutex
	local   map[nodeID]result
}

// Revision returns the revision the snapshot is pinned to.
func (s *Snapshot) Revision() Revision {
	return s.rev
}

// Release unpins the snapshot. Reads after Release fail with
// ErrSnapshotReleased.
func (s *Snapshot) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.rt.release(s.rev)
	}
}

// Checkpoint returns ErrCancelled if a cancellation was requested after the
// snapshot was taken.
func (s *Snapshot) Checkpoint() error {
	if s.released.Load() {
		return ErrSnapshotReleased
	}
	if uint64(s.rev) < s.rt.cancelBelow.Load() {
		return ErrCancelled
	}
	return nil
}

// Cancelled reports whether the snapshot has been superseded by a
// cancellation request.
func (s *Snapshot) Cancelled() bool {
	return uint64(s.rev) < s.rt.cancelBelow.Load()
}

func (s *Snapshot) root() *Ctx {
	return &Ctx{snap: s}
}

func (s *Snapshot) frame(parent *Ctx, n *node) *Ctx {
	return &Ctx{snap: s, parent: parent, node: n}
}

// probe resolves any node by id at the snapshot's revision.
func (s *Snapshot) probe(parent *Ctx, id nodeID) (result, error) {
	n := s.rt.arena.get(id)
	if n.kind == inputNode {
		v := n.versionAt(s.rev)
		if v == nil {
			return result{}, nil
		}
		return result{value: v.value, changedAt: v.rev, inputsAt: v.rev}, nil
	}
	return s.resolve(parent, n)
}

func (s *Snapshot) resolve(parent *Ctx, n *node) (result, error) {
	if err := s.Checkpoint(); err != nil {
		return result{}, err
	}
	for f := parent; f != nil; f = f.parent {
		if f.node == n {
			panic(&CycleError{Key: n.key})
		}
	}
	if r, ok := s.localResult(n.id); ok {
		return r, nil
	}
	r, local, err := s.resolveShared(parent, n)
	if err != nil || !local {
		return r, err
	}
	return s.computeLocal(parent, n)
}

// resolveShared serves, re-validates or recomputes the node's shared memo.
// It reports local=true when the memo is newer than the snapshot and the
// value must be computed privately instead.
func (s *Snapshot) resolveShared(parent *Ctx, n *node) (r result, local bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	m := n.memo
	if m != nil {
		switch {
		case s.rev < m.inputsAt:
			return result{}, true, nil
		case s.rev <= m.verifiedAt:
			return m.result(), false, nil
		}
		ok, err := s.deepVerify(parent, n, m)
		if err != nil {
			return result{}, false, err
		}
		if ok {
			s.rt.observer.QueryValidated(n.key.Query)
			return n.memo.result(), false, nil
		}
	}

	value, deps, inputsAt, err := s.execute(parent, n)
	if err != nil {
		return result{}, false, err
	}
	next := &memo{
		value:      value,
		changedAt:  s.rev,
		verifiedAt: s.rev,
		inputsAt:   inputsAt,
		deps:       deps,
	}
	if m != nil && n.equal(m.value, value) {
		next.value = m.value
		next.changedAt = m.changedAt
		next.bytes = m.bytes
	} else {
		next.bytes = estimate(value)
	}
	s.rt.store(n, next)
	return next.result(), false, nil
}

// deepVerify walks the memo's dependencies in recording order. The memo
// stays valid if none of them changed after it was last verified.
func (s *Snapshot) deepVerify(parent *Ctx, n *node, m *memo) (bool, error) {
	f := s.frame(parent, n)
	var inputsAt Revision
	for _, dep := range m.deps {
		r, err := s.probe(f, dep)
		if err != nil {
			return false, err
		}
		if r.changedAt > m.verifiedAt {
			return false, nil
		}
		inputsAt = max(inputsAt, r.inputsAt)
	}
	s.rt.store(n, &memo{
		value:      m.value,
		changedAt:  m.changedAt,
		verifiedAt: s.rev,
		inputsAt:   inputsAt,
		deps:       m.deps,
		bytes:      m.bytes,
	})
	return true, nil
}

func (s *Snapshot) execute(parent *Ctx, n *node) (any, []nodeID, Revision, error) {
	f := s.frame(parent, n)
	start := time.Now()
	value, err := n.compute(f)
	s.rt.observer.QueryExecuted(n.key.Query, time.Since(start))
	if err != nil {
		return nil, nil, 0, err
	}
	f.mu.Lock()
	deps, inputsAt := f.deps, f.inputsAt
	f.mu.Unlock()
	return value, deps, inputsAt, nil
}

func (s *Snapshot) computeLocal(parent *Ctx, n *node) (result, error) {
	value, _, inputsAt, err := s.execute(parent, n)
	if err != nil {
		return result{}, err
	}
	r := result{value: value, changedAt: s.rev, inputsAt: inputsAt}
	s.localMu.Lock()
	if s.local == nil {
		s.local = make(map[nodeID]result)
	}
	if prior, ok := s.local[n.id]; ok {
		r = prior
	} else {
		s.local[n.id] = r
	}
	s.localMu.Unlock()
	return r, nil
}

func (s *Snapshot) localResult(id nodeID) (result, bool) {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	r, ok := s.local[id]
	return r, ok
}
