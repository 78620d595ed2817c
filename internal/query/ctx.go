package query

import (
	"sync"
	"sync/atomic"
)

// CheckpointInterval is how many loop iterations CheckpointEvery lets pass
// between cancellation checks.
const CheckpointInterval = 256

// depScanLimit is the dependency count above which a frame switches from a
// linear duplicate scan to a set.
const depScanLimit = 16

// Ctx is the frame of one executing query. It records every node the query
// reads. A Ctx is safe for use by the goroutines started through Parallel.
type Ctx struct {
	snap   *Snapshot
	parent *Ctx
	node   *node

	mu       sync.Mutex
	deps     []nodeID
	seen     map[nodeID]struct{}
	inputsAt Revision

	steps atomic.Uint64
}

// Snapshot returns the snapshot the frame executes under.
func (c *Ctx) Snapshot() *Snapshot {
	return c.snap
}

// Revision returns the revision the frame executes at.
func (c *Ctx) Revision() Revision {
	return c.snap.rev
}

// Query returns the name of the executing query, or "" for a root frame.
func (c *Ctx) Query() string {
	if c.node == nil {
		return ""
	}
	return c.node.key.Query
}

// Checkpoint returns ErrCancelled if the snapshot has been cancelled. Query
// bodies call it at entry and periodically while iterating.
func (c *Ctx) Checkpoint() error {
	c.snap.rt.observer.CancellationChecked(c.Query())
	return c.snap.Checkpoint()
}

// CheckpointEvery calls Checkpoint on every CheckpointInterval-th iteration.
func (c *Ctx) CheckpointEvery(i int) error {
	if i%CheckpointInterval != 0 {
		return nil
	}
	return c.Checkpoint()
}

// Step counts one unit of work and checkpoints every CheckpointInterval
// steps. Unlike CheckpointEvery it needs no loop index, so it suits
// recursive walks.
func (c *Ctx) Step() error {
	if c.steps.Add(1)%CheckpointInterval != 0 {
		return nil
	}
	return c.Checkpoint()
}

func (c *Ctx) record(id nodeID, inputsAt Revision) {
	if c.node == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if inputsAt > c.inputsAt {
		c.inputsAt = inputsAt
	}
	if c.seen == nil && len(c.deps) >= depScanLimit {
		c.seen = make(map[nodeID]struct{}, len(c.deps)*2)
		for _, d := range c.deps {
			c.seen[d] = struct{}{}
		}
	}
	if c.seen != nil {
		if _, ok := c.seen[id]; ok {
			return
		}
		c.seen[id] = struct{}{}
	} else {
		for _, d := range c.deps {
			if d == id {
				return
			}
		}
	}
	c.deps = append(c.deps, id)
}

func (c *Ctx) readInput(key Key) any {
	n := c.snap.rt.arena.intern(key, inputNode, nil)
	v := n.versionAt(c.snap.rev)
	if v == nil {
		c.record(n.id, 0)
		return nil
	}
	c.record(n.id, v.rev)
	return v.value
}

func (c *Ctx) fetch(key Key, init func(*node)) (any, error) {
	n := c.snap.rt.arena.intern(key, derivedNode, init)
	r, err := c.snap.resolve(c, n)
	if err != nil {
		return nil, err
	}
	c.record(n.id, r.inputsAt)
	return r.value, nil
}
