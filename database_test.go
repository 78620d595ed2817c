package novadb

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jward/novadb/internal/index"
)

const (
	srcA = "package p;\n\npublic class A {\n  void run() {}\n}\n"
	srcB = "package p;\n\nclass B extends A {\n  class C {}\n}\n"
)

const testProject ProjectID = 1

// newMemoryDB sets up a project of the given files, in path order, without
// touching the disk.
func newMemoryDB(t *testing.T, files map[string]string) (*Database, map[string]FileID) {
	t.Helper()
	db := New()
	t.Cleanup(func() { db.Close() })

	ids := make(map[string]FileID, len(files))
	var list []FileID
	for i, rel := range sortedKeys(files) {
		id := FileID(i + 1)
		ids[rel] = id
		list = append(list, id)
		db.SetFileRelPath(id, rel)
		db.SetFileProject(id, testProject)
		db.SetFileExists(id, true)
		db.SetFileContent(id, files[rel])
	}
	db.SetProjectFiles(testProject, list)
	return db, ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func projectIndexes(t *testing.T, db *Database) *ProjectIndexes {
	t.Helper()
	snap := db.Snapshot()
	defer snap.Release()
	idx, err := snap.ProjectIndexes(testProject)
	require.NoError(t, err)
	return idx
}

func TestNew_StartsAtRevisionOne(t *testing.T) {
	t.Parallel()
	db := New()
	defer db.Close()
	assert.Equal(t, Revision(1), db.Revision())
	assert.Empty(t, db.QueryStats())
	assert.Empty(t, db.CacheDir())
}

func TestSetters_AdvanceRevision(t *testing.T) {
	t.Parallel()
	db := New()
	defer db.Close()
	db.SetFileContent(1, "class A {}")
	db.SetFileExists(1, true)
	assert.Equal(t, Revision(3), db.Revision())

	snap := db.Snapshot()
	defer snap.Release()
	assert.Equal(t, "class A {}", snap.FileContent(1))
	assert.True(t, snap.FileExists(1))
	assert.False(t, snap.FileIsDirty(1))
	assert.Empty(t, snap.FileRelPath(2))
}

func TestSymbolCount_PerFile(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	snap := db.Snapshot()
	defer snap.Release()

	n, err := snap.SymbolCount(ids["A.java"])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum, err := snap.SymbolSummary(ids["B.java"])
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, sum.Names)

	total, err := snap.ProjectSymbolCount(testProject)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestProjectIndexes_LookupAndSubtypes(t *testing.T) {
	t.Parallel()
	db, _ := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	idx := projectIndexes(t, db)

	syms := idx.Lookup("C")
	require.Len(t, syms, 1)
	assert.Equal(t, Location{File: "B.java", Line: 3, Column: 8}, syms[0].Location)
	assert.Equal(t, "p.B", syms[0].Container)
	assert.Equal(t, []string{"B"}, idx.SubtypesOf("A"))
	assert.Equal(t, []Location{{File: "B.java", Line: 2, Column: 16}}, idx.ReferencesTo("A"))
	assert.Equal(t, uint64(1), idx.Generation)
}

func TestFileFingerprint_IsContentHash(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA})
	snap := db.Snapshot()
	defer snap.Release()

	fp, err := snap.FileFingerprint(ids["A.java"])
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	empty, err := snap.FileFingerprint(99)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", empty)
}

func TestParse_EditInvalidates(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"Foo.java": "class Foo {}"})
	foo := ids["Foo.java"]
	parse := func() *ParseResult {
		snap := db.Snapshot()
		defer snap.Release()
		p, err := snap.Parse(foo)
		require.NoError(t, err)
		return p
	}

	before := parse()
	_ = parse()
	assert.Equal(t, uint64(1), db.QueryStats().Executions(QueryParse))

	db.SetFileContent(foo, "class Foo { int x; }")
	after := parse()
	assert.Equal(t, uint64(2), db.QueryStats().Executions(QueryParse))
	assert.False(t, before.Equal(after))
}

func TestUnchangedInputs_NoRecompute(t *testing.T) {
	t.Parallel()
	db, _ := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	first := projectIndexes(t, db)

	db.ClearQueryStats()
	db.SetProjectConfig(testProject+1, ProjectConfig{LanguageLevel: 8})
	second := projectIndexes(t, db)

	assert.Same(t, first, second)
	stats := db.QueryStats()
	for _, name := range stats.Names() {
		assert.Zero(t, stats.Executions(name), name)
	}
	assert.Positive(t, stats[QueryProjectIndexes].ValidatedMemoized)
}

func TestEarlyCutoff_SummaryStableAcrossWhitespace(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA})
	a := ids["A.java"]
	read := func() int {
		snap := db.Snapshot()
		defer snap.Release()
		n, err := snap.SymbolCount(a)
		require.NoError(t, err)
		return n
	}
	require.Equal(t, 2, read())

	db.ClearQueryStats()
	db.SetFileContent(a, "package p;\n\npublic class A {\n\n\n  void run() {}\n}\n")
	assert.Equal(t, 2, read())

	stats := db.QueryStats()
	assert.Equal(t, uint64(1), stats.Executions(QueryParse))
	assert.Equal(t, uint64(1), stats.Executions(QueryItemTree))
	assert.Equal(t, uint64(1), stats.Executions(QuerySymbolSummary))
	assert.Zero(t, stats.Executions(QuerySymbolCount))
}

func TestEarlyCutoff_TrailingCommentStopsAtShard(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	before := projectIndexes(t, db)

	db.ClearQueryStats()
	db.SetFileContent(ids["B.java"], srcB+"// tail\n")
	after := projectIndexes(t, db)

	assert.Same(t, before, after)
	stats := db.QueryStats()
	assert.Equal(t, uint64(1), stats.Executions(QueryFileIndexDelta))
	assert.Equal(t, uint64(1), stats.Executions(QueryProjectIndexShard))
	assert.Zero(t, stats.Executions(QueryProjectIndexShards))
	assert.Zero(t, stats.Executions(QueryProjectIndexes))
}

func TestProjectIndexes_GenerationAdvancesOnlyOnChange(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	require.Equal(t, uint64(1), projectIndexes(t, db).Generation)

	db.SetFileContent(ids["B.java"], "package p;\n\nclass B extends A {\n  class D {}\n}\n")
	idx := projectIndexes(t, db)
	assert.Equal(t, uint64(2), idx.Generation)
	assert.Empty(t, idx.Lookup("C"))
	assert.Len(t, idx.Lookup("D"), 1)

	db.SetFileContent(ids["B.java"], srcB)
	assert.Equal(t, uint64(3), projectIndexes(t, db).Generation)
}

func TestProjectIndexes_OldSnapshotsIgnoreLaterMerges(t *testing.T) {
	t.Parallel()
	files := map[string]string{"A.java": srcA, "B.java": srcB}
	db, ids := newMemoryDB(t, files)
	a := db.Snapshot()
	defer a.Release()
	b := db.Snapshot()
	defer b.Release()
	require.Equal(t, a.Revision(), b.Revision())

	db.SetFileContent(ids["B.java"], srcB+"class D {}\n")
	require.Equal(t, uint64(1), projectIndexes(t, db).Generation)
	fromA, err := a.ProjectIndexes(testProject)
	require.NoError(t, err)

	db.SetFileContent(ids["B.java"], srcB+"class E {}\n")
	require.Equal(t, uint64(2), projectIndexes(t, db).Generation)
	fromB, err := b.ProjectIndexes(testProject)
	require.NoError(t, err)

	assert.True(t, fromA.Equal(fromB))
	assert.Equal(t, uint64(1), fromA.Generation)
	assert.Empty(t, fromA.Lookup("D"))

	fresh, _ := newMemoryDB(t, files)
	assert.True(t, fromA.Equal(projectIndexes(t, fresh)))

	// Merges from old snapshots do not disturb the current history.
	db.SetFileContent(ids["B.java"], srcB+"class F {}\n")
	assert.Equal(t, uint64(3), projectIndexes(t, db).Generation)
}

func TestMissingFile_LeavesIndex(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	db.SetFileExists(ids["B.java"], false)

	snap := db.Snapshot()
	defer snap.Release()
	idx, err := snap.ProjectIndexes(testProject)
	require.NoError(t, err)
	assert.Empty(t, idx.Lookup("B"))
	assert.Len(t, idx.Lookup("A"), 1)

	delta, err := snap.FileIndexDelta(ids["B.java"])
	require.NoError(t, err)
	assert.Equal(t, "B.java", delta.File)
	assert.Empty(t, delta.Symbols)

	tree, err := snap.ItemTree(ids["B.java"])
	require.NoError(t, err)
	assert.Zero(t, tree.Count())
}

func TestShardFiles_PartitionProject(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for _, name := range []string{"a/A", "a/B", "b/C", "b/D", "c/E", "F"} {
		files[name+".java"] = "class " + name[len(name)-1:] + " {}\n"
	}
	db, ids := newMemoryDB(t, files)
	snap := db.Snapshot()
	defer snap.Release()

	seen := map[FileID]uint32{}
	for shard := range uint32(index.ShardCount) {
		got, err := snap.ProjectShardFiles(testProject, shard)
		require.NoError(t, err)
		for _, f := range got {
			_, dup := seen[f]
			require.False(t, dup, "file %d in two shards", f)
			seen[f] = shard
		}
	}
	require.Len(t, seen, len(files))
	for rel, id := range ids {
		assert.Equal(t, index.ShardForPath(rel), seen[id], rel)
	}
}

func TestShards_MergeMatchesProjectIndexes(t *testing.T) {
	t.Parallel()
	db, _ := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB, "q/E.java": "package q;\nenum E { X }\n"})
	snap := db.Snapshot()
	defer snap.Release()

	shards, err := snap.ProjectIndexShards(testProject)
	require.NoError(t, err)
	require.Len(t, shards, index.ShardCount)
	for i, s := range shards {
		assert.Equal(t, uint32(i), s.ID)
	}

	got, err := snap.ProjectIndexes(testProject)
	require.NoError(t, err)
	assert.True(t, index.Merge(shards, nil).Equal(got))
}

func TestLanguageLevel_ComesFromProjectConfig(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"R.java": "record R(int x) {}\n"})
	r := ids["R.java"]
	diags := func() int {
		snap := db.Snapshot()
		defer snap.Release()
		j, err := snap.ParseJava(r)
		require.NoError(t, err)
		return len(j.Diagnostics)
	}
	assert.Zero(t, diags())

	db.SetProjectConfig(testProject, ProjectConfig{LanguageLevel: 11})
	assert.Equal(t, 1, diags())
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	old := db.Snapshot()
	defer old.Release()

	db.SetFileContent(ids["B.java"], "package p;\n\nclass B extends A {\n  class D {}\n}\n")
	cur := db.Snapshot()
	defer cur.Release()

	oldIdx, err := old.ProjectIndexes(testProject)
	require.NoError(t, err)
	curIdx, err := cur.ProjectIndexes(testProject)
	require.NoError(t, err)

	assert.Len(t, oldIdx.Lookup("C"), 1)
	assert.Empty(t, oldIdx.Lookup("D"))
	assert.Empty(t, curIdx.Lookup("C"))
	assert.Len(t, curIdx.Lookup("D"), 1)
	assert.Equal(t, srcB, old.FileContent(ids["B.java"]))
	assert.Less(t, old.Revision(), cur.Revision())
}

func TestRequestCancellation_CancelsOlderSnapshots(t *testing.T) {
	t.Parallel()
	db, _ := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})
	want := projectIndexes(t, db)

	old := db.Snapshot()
	defer old.Release()
	db.RequestCancellation()

	assert.True(t, old.Cancelled())
	assert.ErrorIs(t, old.Checkpoint(), ErrCancelled)
	_, err := old.ProjectSymbolCount(testProject)
	assert.ErrorIs(t, err, ErrCancelled)

	// Values are untouched by cancellation.
	assert.Same(t, want, projectIndexes(t, db))
}

func TestSnapshot_ReleasedFails(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA})
	snap := db.Snapshot()
	snap.Release()
	snap.Release()

	_, err := snap.ItemTree(ids["A.java"])
	assert.ErrorIs(t, err, ErrSnapshotReleased)
}

func TestConcurrentSnapshots_SeeSameValues(t *testing.T) {
	t.Parallel()
	files := map[string]string{"A.java": srcA, "B.java": srcB}
	for _, name := range []string{"E", "F", "G", "H", "I", "J"} {
		files["x/"+name+".java"] = "package x;\nclass " + name + " extends A {}\n"
	}
	db, _ := newMemoryDB(t, files)

	s1 := db.Snapshot()
	defer s1.Release()
	s2 := db.Snapshot()
	defer s2.Release()
	require.Equal(t, s1.Revision(), s2.Revision())

	results := make([]*ProjectIndexes, 8)
	var g errgroup.Group
	for i := range results {
		snap := s1
		if i%2 == 1 {
			snap = s2
		}
		g.Go(func() error {
			idx, err := snap.ProjectIndexes(testProject)
			results[i] = idx
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, idx := range results[1:] {
		assert.True(t, results[0].Equal(idx))
	}
	assert.Len(t, results[0].SubtypesOf("A"), 7)
	assert.Equal(t, uint64(1), db.QueryStats().Executions(QueryProjectIndexes))
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	t.Parallel()
	db, ids := newMemoryDB(t, map[string]string{"A.java": srcA, "B.java": srcB})

	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			for range 20 {
				snap := db.Snapshot()
				n, err := snap.ProjectSymbolCount(testProject)
				snap.Release()
				if err != nil {
					return err
				}
				if n != 4 && n != 3 {
					return assert.AnError
				}
			}
			return nil
		})
	}
	for i := range 20 {
		if i%2 == 0 {
			db.SetFileContent(ids["B.java"], "package p;\n\nclass B extends A {}\n")
		} else {
			db.SetFileContent(ids["B.java"], srcB)
		}
	}
	require.NoError(t, g.Wait())
}

func TestWithStats_SharesCollector(t *testing.T) {
	t.Parallel()
	db1, _ := newMemoryDB(t, map[string]string{"A.java": srcA})
	db2 := New(WithStats(db1.stats))
	defer db2.Close()

	db2.SetFileContent(1, srcA)
	db2.SetFileExists(1, true)
	snap := db2.Snapshot()
	defer snap.Release()
	_, err := snap.ItemTree(1)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), db1.QueryStats().Executions(QueryItemTree))
}
