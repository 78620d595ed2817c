package query

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// countingObserver tallies executions and validations per query.
type countingObserver struct {
	mu        sync.Mutex
	executed  map[string]int
	validated map[string]int
	checks    int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{executed: map[string]int{}, validated: map[string]int{}}
}

func (o *countingObserver) QueryExecuted(q string, _ time.Duration) {
	o.mu.Lock()
	o.executed[q]++
	o.mu.Unlock()
}

func (o *countingObserver) QueryValidated(q string) {
	o.mu.Lock()
	o.validated[q]++
	o.mu.Unlock()
}

func (o *countingObserver) CancellationChecked(string) {
	o.mu.Lock()
	o.checks++
	o.mu.Unlock()
}

func (o *countingObserver) exec(q string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executed[q]
}

func (o *countingObserver) valid(q string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validated[q]
}

type sized struct {
	text string
}

func (s *sized) EstimatedBytes() uint64 {
	return uint64(len(s.text)) + 16
}

// textPipeline is a three-stage pipeline: text -> trimmed -> length.
type textPipeline struct {
	text    *Input[int, string]
	trimmed *Derived[int, string]
	length  *Derived[int, int]
	boxed   *Derived[int, *sized]
}

func newTextPipeline() *textPipeline {
	p := &textPipeline{text: NewInput[int, string]("text")}
	p.trimmed = NewDerived("trimmed", func(c *Ctx, id int) (string, error) {
		if err := c.Checkpoint(); err != nil {
			return "", err
		}
		return strings.TrimSpace(p.text.Get(c, id)), nil
	}, Equal[string])
	p.length = NewDerived("length", func(c *Ctx, id int) (int, error) {
		if err := c.Checkpoint(); err != nil {
			return 0, err
		}
		s, err := p.trimmed.Get(c, id)
		if err != nil {
			return 0, err
		}
		return len(s), nil
	}, Equal[int])
	p.boxed = NewDerived("boxed", func(c *Ctx, id int) (*sized, error) {
		return &sized{text: p.text.Get(c, id)}, nil
	}, func(a, b *sized) bool { return a.text == b.text })
	return p
}

func fetch[A comparable, V any](t *testing.T, rt *Runtime, q *Derived[A, V], arg A) V {
	t.Helper()
	snap := rt.Snapshot()
	defer snap.Release()
	v, err := q.Fetch(snap, arg)
	require.NoError(t, err)
	return v
}

func TestDerived_MemoizedUntilInputChanges(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()

	p.text.Set(rt, 1, "hello")
	assert.Equal(t, 5, fetch(t, rt, p.length, 1))
	assert.Equal(t, 5, fetch(t, rt, p.length, 1))
	assert.Equal(t, 1, obs.exec("length"))
	assert.Equal(t, 1, obs.exec("trimmed"))

	p.text.Set(rt, 1, "hello world")
	assert.Equal(t, 11, fetch(t, rt, p.length, 1))
	assert.Equal(t, 2, obs.exec("length"))
	assert.Equal(t, 2, obs.exec("trimmed"))
}

func TestDerived_EarlyCutoff(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()

	p.text.Set(rt, 1, "abc")
	require.Equal(t, 3, fetch(t, rt, p.length, 1))

	p.text.Set(rt, 1, "   abc  ")
	require.Equal(t, 3, fetch(t, rt, p.length, 1))

	assert.Equal(t, 2, obs.exec("trimmed"))
	assert.Equal(t, 1, obs.exec("length"), "equal trimmed value must not re-run length")
	assert.Equal(t, 1, obs.valid("length"))
}

func TestDerived_UnrelatedInputOnlyValidates(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()

	p.text.Set(rt, 1, "one")
	p.text.Set(rt, 2, "two")
	require.Equal(t, 3, fetch(t, rt, p.length, 1))

	p.text.Set(rt, 2, "changed")
	require.Equal(t, 3, fetch(t, rt, p.length, 1))
	assert.Equal(t, 1, obs.exec("trimmed"))
	assert.Equal(t, 1, obs.exec("length"))
	assert.Equal(t, 1, obs.valid("length"))
}

func TestInput_UnsetReadsZero(t *testing.T) {
	t.Parallel()
	rt := New()
	p := newTextPipeline()
	assert.Equal(t, 0, fetch(t, rt, p.length, 42))

	p.text.Set(rt, 42, "later")
	assert.Equal(t, 5, fetch(t, rt, p.length, 42))
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	t.Parallel()
	rt := New()
	p := newTextPipeline()
	p.text.Set(rt, 1, "old")

	old := rt.Snapshot()
	defer old.Release()

	p.text.Set(rt, 1, "newer")
	current := rt.Snapshot()
	defer current.Release()

	got, err := p.length.Fetch(current, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	// The shared memo now reflects "newer"; the old snapshot computes its
	// own value privately.
	got, err = p.length.Fetch(old, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, "old", p.text.Peek(old, 1))
	assert.Equal(t, "newer", p.text.Current(rt, 1))

	got, err = p.length.Fetch(current, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestSnapshot_ReleasePrunesInputVersions(t *testing.T) {
	t.Parallel()
	rt := New()
	p := newTextPipeline()
	p.text.Set(rt, 1, "a")

	snap := rt.Snapshot()
	p.text.Set(rt, 1, "b")
	p.text.Set(rt, 1, "c")

	n, ok := rt.arena.lookup(Key{Query: "text", Arg: 1})
	require.True(t, ok)
	assert.Equal(t, 3, n.versions(), "version visible to the live snapshot is kept")
	assert.Equal(t, 1, rt.LiveSnapshots())

	snap.Release()
	assert.Equal(t, 0, rt.LiveSnapshots())
	p.text.Set(rt, 1, "d")
	assert.Equal(t, 2, n.versions())

	assert.ErrorIs(t, snap.Checkpoint(), ErrSnapshotReleased)
}

func TestCancellation_LongRunningQuery(t *testing.T) {
	t.Parallel()
	rt := New()
	limit := NewInput[int, int]("limit")
	started := make(chan struct{})
	var once sync.Once

	spin := NewDerived("spin", func(c *Ctx, _ int) (int, error) {
		if err := c.Checkpoint(); err != nil {
			return 0, err
		}
		n := limit.Get(c, 0)
		sum := 0
		for i := 0; n == 0 || i < n; i++ {
			once.Do(func() { close(started) })
			if err := c.CheckpointEvery(i); err != nil {
				return 0, err
			}
			sum += i
		}
		return sum, nil
	}, Equal[int])

	snap := rt.Snapshot()
	defer snap.Release()

	done := make(chan error, 1)
	go func() {
		_, err := spin.Fetch(snap, 0)
		done <- err
	}()

	<-started
	rt.RequestCancellation()

	select {
	case err := <-done:
		assert.True(t, IsCancelled(err))
		assert.True(t, errors.Is(err, ErrCancelled))
	case <-time.After(10 * time.Second):
		t.Fatal("query did not observe cancellation")
	}
	assert.True(t, snap.Cancelled())

	// Nothing was memoized; a fresh snapshot computes normally.
	limit.Set(rt, 0, 4)
	fresh := rt.Snapshot()
	defer fresh.Release()
	got, err := spin.Fetch(fresh, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestCancellation_DoesNotAffectLaterSnapshots(t *testing.T) {
	t.Parallel()
	rt := New()
	p := newTextPipeline()
	p.text.Set(rt, 1, "abc")

	before := rt.Snapshot()
	defer before.Release()
	rt.RequestCancellation()

	_, err := p.length.Fetch(before, 1)
	assert.ErrorIs(t, err, ErrCancelled)

	after := rt.Snapshot()
	defer after.Release()
	got, err := p.length.Fetch(after, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestSnapshot_ConcurrentReadersAgree(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()
	for i := range 32 {
		p.text.Set(rt, i, strings.Repeat("x", i))
	}

	a := rt.Snapshot()
	b := rt.Snapshot()
	defer a.Release()
	defer b.Release()
	require.Equal(t, a.Revision(), b.Revision())

	results := make([][]int, 2)
	var g errgroup.Group
	for s, snap := range []*Snapshot{a, b} {
		results[s] = make([]int, 32)
		g.Go(func() error {
			for i := range 32 {
				v, err := p.length.Fetch(snap, i)
				if err != nil {
					return err
				}
				results[s][i] = v
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 32, obs.exec("length"), "each node computed once across both snapshots")
}

func TestCycle_Panics(t *testing.T) {
	t.Parallel()
	rt := New()
	var loop *Derived[int, int]
	loop = NewDerived("loop", func(c *Ctx, n int) (int, error) {
		return loop.Get(c, n)
	}, Equal[int])

	snap := rt.Snapshot()
	defer snap.Release()
	assert.PanicsWithError(t, "query: dependency cycle through loop(1)", func() {
		_, _ = loop.Fetch(snap, 1)
	})
}

func TestMemoBytes_EvictRoundTrip(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()
	p.text.Set(rt, 1, "payload")
	assert.Zero(t, rt.MemoBytes())

	v := fetch(t, rt, p.boxed, 1)
	assert.Equal(t, v.EstimatedBytes(), rt.MemoBytes())
	assert.Equal(t, map[string]uint64{"boxed": v.EstimatedBytes()}, rt.MemoBytesByQuery())

	assert.Equal(t, 1, rt.EvictMemos())
	assert.Zero(t, rt.MemoBytes())
	assert.Zero(t, rt.MemoCount())

	again := fetch(t, rt, p.boxed, 1)
	assert.Equal(t, v.text, again.text)
	assert.Equal(t, 2, obs.exec("boxed"))
	assert.Equal(t, again.EstimatedBytes(), rt.MemoBytes())
}

func TestParallel_RecordsDependencies(t *testing.T) {
	t.Parallel()
	obs := newCountingObserver()
	rt := New(WithObserver(obs))
	p := newTextPipeline()
	for i := range 8 {
		p.text.Set(rt, i, "ab")
	}
	total := NewDerived("total", func(c *Ctx, n int) (int, error) {
		parts := make([]int, n)
		err := Parallel(c, n, 4, func(i int) error {
			v, err := p.length.Get(c, i)
			parts[i] = v
			return err
		})
		sum := 0
		for _, v := range parts {
			sum += v
		}
		return sum, err
	}, Equal[int])

	assert.Equal(t, 16, fetch(t, rt, total, 8))

	p.text.Set(rt, 5, "abcd")
	assert.Equal(t, 18, fetch(t, rt, total, 8))
	assert.Equal(t, 2, obs.exec("total"))
	assert.Equal(t, 9, obs.exec("length"))
}

func TestQueries_ListsNames(t *testing.T) {
	t.Parallel()
	rt := New()
	p := newTextPipeline()
	p.text.Set(rt, 1, "x")
	fetch(t, rt, p.length, 1)
	assert.Equal(t, []string{"length", "text", "trimmed"}, rt.Queries())
}
