package query

import (
	"reflect"

	"golang.org/x/sync/errgroup"
)

// Input is a typed input fact keyed by A. Unset inputs read as the zero V.
type Input[A comparable, V any] struct {
	name string
}

// NewInput declares an input. Names must be unique within a runtime.
func NewInput[A comparable, V any](name string) *Input[A, V] {
	return &Input[A, V]{name: name}
}

// Name returns the input's name.
func (in *Input[A, V]) Name() string {
	return in.name
}

// Set stores value for arg at a new revision. Nothing is recomputed until a
// later read.
func (in *Input[A, V]) Set(rt *Runtime, arg A, value V) Revision {
	return rt.set(Key{Query: in.name, Arg: arg}, value)
}

// Get reads the input at the frame's revision and records the dependency.
func (in *Input[A, V]) Get(c *Ctx, arg A) V {
	v, _ := c.readInput(Key{Query: in.name, Arg: arg}).(V)
	return v
}

// Peek reads the input at the snapshot's revision without recording a
// dependency.
func (in *Input[A, V]) Peek(s *Snapshot, arg A) V {
	n, ok := s.rt.arena.lookup(Key{Query: in.name, Arg: arg})
	if !ok {
		var zero V
		return zero
	}
	var v V
	if ver := n.versionAt(s.rev); ver != nil {
		v, _ = ver.value.(V)
	}
	return v
}

// Current reads the newest value of the input.
func (in *Input[A, V]) Current(rt *Runtime, arg A) V {
	v, _ := rt.current(Key{Query: in.name, Arg: arg}).(V)
	return v
}

// Derived is a memoized query computed from other queries and inputs.
type Derived[A comparable, V any] struct {
	name    string
	compute func(*Ctx, A) (V, error)
	equal   func(a, b any) bool
}

// NewDerived declares a derived query. equal decides early cutoff; nil falls
// back to reflect.DeepEqual.
func NewDerived[A comparable, V any](name string, compute func(*Ctx, A) (V, error), equal func(a, b V) bool) *Derived[A, V] {
	q := &Derived[A, V]{name: name, compute: compute}
	if equal == nil {
		q.equal = reflect.DeepEqual
	} else {
		q.equal = func(a, b any) bool {
			av, aok := a.(V)
			bv, bok := b.(V)
			return aok == bok && equal(av, bv)
		}
	}
	return q
}

// Name returns the query's name.
func (q *Derived[A, V]) Name() string {
	return q.name
}

// Get returns the query's value for arg at the frame's revision, recording
// the dependency.
func (q *Derived[A, V]) Get(c *Ctx, arg A) (V, error) {
	raw, err := c.fetch(Key{Query: q.name, Arg: arg}, func(n *node) {
		n.compute = func(c *Ctx) (any, error) { return q.compute(c, arg) }
		n.equal = q.equal
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := raw.(V)
	return v, nil
}

// Fetch returns the query's value for arg at the snapshot's revision.
func (q *Derived[A, V]) Fetch(s *Snapshot, arg A) (V, error) {
	return q.Get(s.root(), arg)
}

// Equal is an equality function for comparable values.
func Equal[V comparable](a, b V) bool {
	return a == b
}

// Parallel runs fn for every index in [0, n) on at most limit goroutines
// (unbounded when limit <= 0). Every read performed through c is recorded as
// a dependency of c's query. The first error is returned.
func Parallel(c *Ctx, n, limit int, fn func(i int) error) error {
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range n {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
