package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/novadb/internal/itemtree"
	"github.com/jward/novadb/internal/syntax"
)

func delta(t *testing.T, path, src string) *FileIndexDelta {
	t.Helper()
	p, err := syntax.Parse(context.Background(), src)
	require.NoError(t, err)
	j := syntax.AnalyzeJava(p, src, 0)
	return BuildDelta(path, itemtree.Build(j), j.Position)
}

func shardsOf(deltas ...*FileIndexDelta) []*ProjectIndexShard {
	buckets := make([][]*FileIndexDelta, ShardCount)
	for _, d := range deltas {
		id := ShardForPath(d.File)
		buckets[id] = append(buckets[id], d)
	}
	out := make([]*ProjectIndexShard, ShardCount)
	for i := range out {
		out[i] = NewShard(uint32(i), buckets[i])
	}
	return out
}

func TestBuildDelta_Locations(t *testing.T) {
	t.Parallel()
	d := delta(t, "src/B.java", "package p;\nclass B {\n  class C {}\n}\n")

	require.Len(t, d.Symbols, 2)
	assert.Equal(t, Symbol{
		Name:      "B",
		Kind:      "class",
		Container: "p",
		Location:  Location{File: "src/B.java", Line: 1, Column: 6},
	}, d.Symbols[0])
	assert.Equal(t, Symbol{
		Name:      "C",
		Kind:      "class",
		Container: "p.B",
		Location:  Location{File: "src/B.java", Line: 2, Column: 8},
	}, d.Symbols[1])
	assert.Positive(t, d.EstimatedBytes())
}

func TestBuildDelta_SupertypesAndAnnotations(t *testing.T) {
	t.Parallel()
	d := delta(t, "A.java", "@Entity class A extends Base implements Runnable {}")
	assert.Equal(t, []Supertype{{Type: "A", Super: "Base"}, {Type: "A", Super: "Runnable"}}, d.Supertypes)
	require.Len(t, d.Annotations, 1)
	assert.Equal(t, "Entity", d.Annotations[0].Name)
	assert.Equal(t, "A", d.Annotations[0].Target)
}

func TestBuildDelta_References(t *testing.T) {
	t.Parallel()
	d := delta(t, "B.java", "class B extends A {\n  List<A> all;\n  void add(A a) {}\n}\n")
	assert.Equal(t, []Reference{
		{Name: "A", Location: Location{File: "B.java", Line: 0, Column: 16}},
		{Name: "List", Location: Location{File: "B.java", Line: 1, Column: 2}},
		{Name: "A", Location: Location{File: "B.java", Line: 1, Column: 7}},
		{Name: "A", Location: Location{File: "B.java", Line: 2, Column: 11}},
	}, d.References)
}

func TestMerge_References(t *testing.T) {
	t.Parallel()
	a := delta(t, "A.java", "class A { B next; }")
	b := delta(t, "B.java", "class B extends A {}")
	idx := Merge(shardsOf(b, a), nil)
	assert.Equal(t, []Location{{File: "B.java", Line: 0, Column: 16}}, idx.ReferencesTo("A"))
	assert.Equal(t, []Location{{File: "A.java", Line: 0, Column: 10}}, idx.ReferencesTo("B"))

	stamp := idx.Stamp()
	retyped := Merge(shardsOf(b, delta(t, "A.java", "class A { C next; }")), &stamp)
	assert.False(t, idx.SameContent(retyped))
	assert.Equal(t, uint64(2), retyped.Generation)
	assert.Empty(t, retyped.ReferencesTo("B"))
}

func TestShardForPath_Deterministic(t *testing.T) {
	t.Parallel()
	seen := map[uint32]bool{}
	for i := range 200 {
		path := fmt.Sprintf("pkg/File%d.java", i)
		id := ShardForPath(path)
		assert.Less(t, id, uint32(ShardCount))
		assert.Equal(t, id, ShardForPath(path))
		seen[id] = true
	}
	assert.Greater(t, len(seen), ShardCount/2, "paths spread over shards")
}

func TestNewShard_OrderIndependent(t *testing.T) {
	t.Parallel()
	a := delta(t, "A.java", "class A {}")
	b := delta(t, "B.java", "class A {} class B {}")

	s1 := NewShard(3, []*FileIndexDelta{a, b})
	s2 := NewShard(3, []*FileIndexDelta{b, nil, a})
	assert.True(t, s1.Equal(s2))
	assert.Equal(t, []string{"A.java", "B.java"}, s1.Paths())
	assert.Len(t, s1.Lookup("A"), 2)
	assert.Equal(t, "A.java", s1.Lookup("A")[0].Location.File)
}

func TestMerge_Generation(t *testing.T) {
	t.Parallel()
	a := delta(t, "A.java", "class A {}")
	b := delta(t, "B.java", "class B {}")

	first := Merge(shardsOf(a, b), nil)
	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, 2, first.SymbolCount())

	stamp := first.Stamp()
	same := Merge(shardsOf(b, a), &stamp)
	assert.Equal(t, uint64(1), same.Generation)
	assert.True(t, first.Equal(same))

	b2 := delta(t, "B.java", "class B { class C {} }")
	changed := Merge(shardsOf(a, b2), &stamp)
	assert.Equal(t, uint64(2), changed.Generation)
	assert.False(t, first.SameContent(changed))
	require.Len(t, changed.Lookup("C"), 1)
	assert.Equal(t, "B.java", changed.Lookup("C")[0].Location.File)
}

func TestMerge_Subtypes(t *testing.T) {
	t.Parallel()
	idx := Merge(shardsOf(
		delta(t, "A.java", "class A extends Base {}"),
		delta(t, "B.java", "class B extends Base {}"),
	), nil)
	assert.Equal(t, []string{"A", "B"}, idx.SubtypesOf("Base"))
	assert.Equal(t, []string{"Base"}, idx.SupertypesOf("A"))
}

func TestMerge_SymbolsOnlyInOwningShard(t *testing.T) {
	t.Parallel()
	a := delta(t, "A.java", "class A {}")
	shards := shardsOf(a)
	owner := ShardForPath("A.java")
	for _, s := range shards {
		if s.ID == owner {
			assert.Len(t, s.Lookup("A"), 1)
		} else {
			assert.Empty(t, s.Lookup("A"))
		}
	}
}

func TestEstimatedBytes_NilSafe(t *testing.T) {
	t.Parallel()
	var d *FileIndexDelta
	var s *ProjectIndexShard
	var p *ProjectIndexes
	assert.Zero(t, d.EstimatedBytes())
	assert.Zero(t, s.EstimatedBytes())
	assert.Zero(t, p.EstimatedBytes())

	idx := Merge(shardsOf(delta(t, "A.java", "class A {}")), nil)
	assert.Positive(t, idx.EstimatedBytes())
}
