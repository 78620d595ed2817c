package novadb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/novadb/internal/config"
)

func openProject(t *testing.T, f fixture) (*Database, *Project) {
	t.Helper()
	db := New()
	t.Cleanup(func() { db.Close() })
	p, err := db.OpenProject(testProject, f.root, config.Default().Index)
	require.NoError(t, err)
	return db, p
}

func TestProject_SyncAddsFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "build/Gen.java", "class Gen {}\n")
	f.write(t, "README.md", "# readme\n")
	db, p := openProject(t, f)

	res, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Files: 2, Added: 2}, res)

	a, ok := p.FileID("A.java")
	require.True(t, ok)
	_, ok = p.FileID("build/Gen.java")
	assert.False(t, ok)

	snap := db.Snapshot()
	defer snap.Release()
	assert.Equal(t, srcA, snap.FileContent(a))
	assert.Equal(t, "A.java", snap.FileRelPath(a))
	assert.Equal(t, testProject, snap.FileProject(a))
	assert.Len(t, snap.ProjectFiles(testProject), 2)
}

func TestProject_ResyncWritesOnlyChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	db, p := openProject(t, f)
	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	rev := db.Revision()
	res, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Files: 2}, res)
	assert.Equal(t, rev, db.Revision())

	f.write(t, "B.java", srcBRenamed)
	require.NoError(t, os.Remove(filepath.Join(f.root, "A.java")))
	f.write(t, "q/D.java", "package q;\nclass D {}\n")
	res, err = p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Files: 2, Added: 1, Changed: 1, Removed: 1}, res)

	idx := projectIndexes(t, db)
	assert.Empty(t, idx.Lookup("A"))
	assert.Len(t, idx.Lookup("Inner"), 1)
	assert.Len(t, idx.Lookup("D"), 1)
}

func TestProject_DirtyContentSurvivesSync(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	db, p := openProject(t, f)
	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Edit("B.java", srcBRenamed))
	_, err = p.Sync(context.Background())
	require.NoError(t, err)

	b, _ := p.FileID("B.java")
	snap := db.Snapshot()
	assert.Equal(t, srcBRenamed, snap.FileContent(b))
	assert.True(t, snap.FileIsDirty(b))
	snap.Release()

	require.NoError(t, p.Save(context.Background(), "B.java"))
	snap = db.Snapshot()
	defer snap.Release()
	assert.Equal(t, srcB, snap.FileContent(b))
	assert.False(t, snap.FileIsDirty(b))
}

func TestProject_EditUnknownFile(t *testing.T) {
	t.Parallel()
	_, p := openProject(t, newFixture(t))
	assert.Error(t, p.Edit("Nope.java", "class Nope {}"))
	assert.Error(t, p.Save(context.Background(), "Nope.java"))
}

func TestProject_RefreshAddsNewAndIgnoresUnknownMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	db, p := openProject(t, f)
	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	f.write(t, "E.java", "class E {}\n")
	n, err := p.Refresh(context.Background(), []string{"E.java", "Ghost.java"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok := p.FileID("Ghost.java")
	assert.False(t, ok)

	assert.Len(t, projectIndexes(t, db).Lookup("E"), 1)
}

func TestProject_SyncHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	_, p := openProject(t, newFixture(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
