// Package query implements a memoizing, revision-tracked query engine.
//
// Inputs are set through the single writable [Runtime]; derived queries are
// pure functions of the inputs they read and are computed lazily through
// immutable [Snapshot] handles. Each derived node records the nodes it read
// so a later read can re-validate it by walking those dependencies instead of
// re-running it, and a recomputed value equal to the previous one keeps its
// old change revision so dependents stay valid (early cutoff).
//
// Dependency edges between query types must form a DAG: a node's lock is
// held while it computes or re-validates, so lock order follows query order.
package query

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Revision is the global logical clock. Every input write advances it.
type Revision uint64

// Observer receives execution events from the runtime. Implementations must
// be safe for concurrent use.
type Observer interface {
	QueryExecuted(query string, elapsed time.Duration)
	QueryValidated(query string)
	CancellationChecked(query string)
}

type nopObserver struct{}

func (nopObserver) QueryExecuted(string, time.Duration) {}
func (nopObserver) QueryValidated(string)               {}
func (nopObserver) CancellationChecked(string)          {}

// Runtime owns every node and the revision clock. Writes and snapshot
// creation are serialized by one mutex; reads through snapshots are not.
type Runtime struct {
	mu          sync.Mutex
	revision    atomic.Uint64
	cancelBelow atomic.Uint64

	arena     arena
	observer  Observer
	memoBytes atomic.Int64

	liveMu sync.Mutex
	live   map[Revision]int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithObserver routes execution events to o.
func WithObserver(o Observer) Option {
	return func(rt *Runtime) {
		if o != nil {
			rt.observer = o
		}
	}
}

// New creates an empty runtime at revision 1.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		observer: nopObserver{},
		live:     make(map[Revision]int),
	}
	rt.arena.ids = make(map[Key]nodeID)
	rt.revision.Store(1)
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Revision returns the current revision.
func (rt *Runtime) Revision() Revision {
	return Revision(rt.revision.Load())
}

func (rt *Runtime) set(key Key, value any) Revision {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	n := rt.arena.intern(key, inputNode, nil)
	floor := rt.oldestLive()
	rev := Revision(rt.revision.Load()) + 1

	v := &inputVersion{rev: rev, value: value}
	v.prev.Store(n.head.Load())
	prune(v, floor)
	n.head.Store(v)
	rt.revision.Store(uint64(rev))
	return rev
}

// current returns the newest value of an input, or nil if it was never set.
func (rt *Runtime) current(key Key) any {
	n, ok := rt.arena.lookup(key)
	if !ok || n.kind != inputNode {
		return nil
	}
	if v := n.head.Load(); v != nil {
		return v.value
	}
	return nil
}

// RequestCancellation advances the revision without changing any value.
// Every snapshot taken before the call observes ErrCancelled at its next
// checkpoint.
func (rt *Runtime) RequestCancellation() Revision {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	next := rt.revision.Load() + 1
	rt.cancelBelow.Store(next)
	rt.revision.Store(next)
	return Revision(next)
}

// Snapshot pins a read-only view at the current revision. The caller must
// Release it when done so superseded input versions can be reclaimed.
func (rt *Runtime) Snapshot() *Snapshot {
	rt.mu.Lock()
	rev := Revision(rt.revision.Load())
	rt.liveMu.Lock()
	rt.live[rev]++
	rt.liveMu.Unlock()
	rt.mu.Unlock()
	return &Snapshot{rt: rt, rev: rev}
}

func (rt *Runtime) release(rev Revision) {
	rt.liveMu.Lock()
	defer rt.liveMu.Unlock()
	if rt.live[rev] <= 1 {
		delete(rt.live, rev)
		return
	}
	rt.live[rev]--
}

// oldestLive returns the lowest revision any live snapshot is pinned to, or
// the current revision when there is none. Callers hold rt.mu.
func (rt *Runtime) oldestLive() Revision {
	floor := Revision(rt.revision.Load())
	rt.liveMu.Lock()
	for rev := range rt.live {
		if rev < floor {
			floor = rev
		}
	}
	rt.liveMu.Unlock()
	return floor
}

// OldestLive returns the lowest revision any live snapshot is pinned to, or
// the current revision when there is none.
func (rt *Runtime) OldestLive() Revision {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.oldestLive()
}

// LiveSnapshots returns the number of unreleased snapshots.
func (rt *Runtime) LiveSnapshots() int {
	rt.liveMu.Lock()
	defer rt.liveMu.Unlock()
	total := 0
	for _, n := range rt.live {
		total += n
	}
	return total
}

func (rt *Runtime) store(n *node, next *memo) {
	var prev uint64
	if n.memo != nil {
		prev = n.memo.bytes
	}
	n.memo = next
	rt.memoBytes.Add(int64(next.bytes) - int64(prev))
}

// MemoBytes returns the estimated footprint of every memoized derived value.
// Values that do not implement Sizer count as zero.
func (rt *Runtime) MemoBytes() uint64 {
	if b := rt.memoBytes.Load(); b > 0 {
		return uint64(b)
	}
	return 0
}

// MemoBytesByQuery breaks MemoBytes down by query name. Queries with no
// memoized bytes are omitted.
func (rt *Runtime) MemoBytesByQuery() map[string]uint64 {
	out := make(map[string]uint64)
	rt.arena.each(func(n *node) {
		if n.kind != derivedNode {
			return
		}
		n.mu.Lock()
		if n.memo != nil && n.memo.bytes > 0 {
			out[n.key.Query] += n.memo.bytes
		}
		n.mu.Unlock()
	})
	return out
}

// MemoCount returns the number of memoized derived nodes.
func (rt *Runtime) MemoCount() int {
	count := 0
	rt.arena.each(func(n *node) {
		if n.kind != derivedNode {
			return
		}
		n.mu.Lock()
		if n.memo != nil {
			count++
		}
		n.mu.Unlock()
	})
	return count
}

// EvictMemos drops every memoized derived value. Inputs are untouched, so
// later reads recompute the same values. Returns the number of memos dropped.
func (rt *Runtime) EvictMemos() int {
	evicted := 0
	rt.arena.each(func(n *node) {
		if n.kind != derivedNode {
			return
		}
		n.mu.Lock()
		if n.memo != nil {
			rt.memoBytes.Add(-int64(n.memo.bytes))
			n.memo = nil
			evicted++
		}
		n.mu.Unlock()
	})
	return evicted
}

// Queries returns the sorted names of every query with at least one node.
func (rt *Runtime) Queries() []string {
	seen := make(map[string]struct{})
	rt.arena.each(func(n *node) {
		seen[n.key.Query] = struct{}{}
	})
	return slices.Sorted(maps.Keys(seen))
}
