package query

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Key identifies a node: the query name plus its argument.
type Key struct {
	Query string
	Arg   any
}

// String formats the key as query(arg).
func (k Key) String() string {
	return fmt.Sprintf("%s(%v)", k.Query, k.Arg)
}

type nodeID uint32

type nodeKind uint8

const (
	inputNode nodeKind = iota
	derivedNode
)

type node struct {
	id   nodeID
	key  Key
	kind nodeKind

	// Input nodes: newest version first.
	head atomic.Pointer[inputVersion]

	// Derived nodes. mu is held while the memo is verified or recomputed.
	mu      sync.Mutex
	memo    *memo
	compute func(*Ctx) (any, error)
	equal   func(a, b any) bool
}

type inputVersion struct {
	rev   Revision
	value any
	prev  atomic.Pointer[inputVersion]
}

// versionAt returns the newest version visible at rev, or nil if the input
// was unset at rev.
func (n *node) versionAt(rev Revision) *inputVersion {
	v := n.head.Load()
	for v != nil && v.rev > rev {
		v = v.prev.Load()
	}
	return v
}

// prune drops every version older than the newest one visible at floor.
func prune(v *inputVersion, floor Revision) {
	for cur := v; cur != nil; cur = cur.prev.Load() {
		if cur.rev <= floor {
			cur.prev.Store(nil)
			return
		}
	}
}

func (n *node) versions() int {
	count := 0
	for v := n.head.Load(); v != nil; v = v.prev.Load() {
		count++
	}
	return count
}

type memo struct {
	value      any
	changedAt  Revision
	verifiedAt Revision
	inputsAt   Revision
	deps       []nodeID
	bytes      uint64
}

func (m *memo) result() result {
	return result{value: m.value, changedAt: m.changedAt, inputsAt: m.inputsAt}
}

type result struct {
	value     any
	changedAt Revision
	inputsAt  Revision
}

// Sizer is implemented by memoized values that can estimate their own heap
// footprint.
type Sizer interface {
	EstimatedBytes() uint64
}

func estimate(v any) uint64 {
	if s, ok := v.(Sizer); ok && s != nil {
		return s.EstimatedBytes()
	}
	return 0
}

// arena interns keys to dense node ids. Nodes are never removed.
type arena struct {
	mu    sync.RWMutex
	ids   map[Key]nodeID
	nodes []*node
}

func (a *arena) intern(key Key, kind nodeKind, init func(*node)) *node {
	a.mu.RLock()
	id, ok := a.ids[key]
	if ok {
		n := a.nodes[id]
		a.mu.RUnlock()
		return n
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.ids[key]; ok {
		return a.nodes[id]
	}
	n := &node{id: nodeID(len(a.nodes)), key: key, kind: kind}
	if init != nil {
		init(n)
	}
	a.nodes = append(a.nodes, n)
	a.ids[key] = n.id
	return n
}

func (a *arena) lookup(key Key) (*node, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.ids[key]
	if !ok {
		return nil, false
	}
	return a.nodes[id], true
}

func (a *arena) get(id nodeID) *node {
	a.mu.RLock()
	n := a.nodes[id]
	a.mu.RUnlock()
	return n
}

// each visits the nodes present when it was called.
func (a *arena) each(fn func(*node)) {
	a.mu.RLock()
	nodes := a.nodes[:len(a.nodes):len(a.nodes)]
	a.mu.RUnlock()
	for _, n := range nodes {
		fn(n)
	}
}
