package novadb

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jward/novadb/internal/config"
	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/store"
)

// Version is the novadb release. ToolVersion, derived from it, is stamped
// into every persisted artifact.
const Version = "0.1.0"

// ToolVersion is the default tool version of persisted artifacts.
const ToolVersion = "novadb/" + Version

// PersistenceMode and its values are re-exported from internal/config.
type PersistenceMode = config.PersistenceMode

const (
	PersistenceDisabled  = config.PersistenceDisabled
	PersistenceReadOnly  = config.PersistenceReadOnly
	PersistenceReadWrite = config.PersistenceReadWrite
)

// PersistenceConfig selects the persistence mode and cache root.
type PersistenceConfig = config.Persistence

// PersistenceStats counts warm-start loads and persists.
type PersistenceStats struct {
	LoadHits   uint64
	LoadMisses uint64

	StoreSuccesses uint64
	StoreFailures  uint64

	// SkippedDirty counts persists refused because a tracked file was dirty.
	SkippedDirty uint64
}

// shardCacheCapacity bounds the number of shard artifacts kept in memory.
const shardCacheCapacity = index.ShardCount

type persistence struct {
	mode        PersistenceMode
	projectRoot string
	cache       *store.Cache

	// mu serializes persists.
	mu sync.Mutex

	loadHits       atomic.Uint64
	loadMisses     atomic.Uint64
	storeSuccesses atomic.Uint64
	storeFailures  atomic.Uint64
	skippedDirty   atomic.Uint64
}

// warmState is a loaded, validated warm-start record and its shards.
type warmState struct {
	record *store.Record
	shards *store.ShardLoader
}

// NewWithPersistence creates a database for the project at projectRoot
// whose warm-start cache is governed by cfg. Cache problems never fail
// construction: an unusable cache is logged and treated as empty. Only an
// unresolvable project root or cache root is an error.
func NewWithPersistence(projectRoot string, cfg PersistenceConfig, opts ...Option) (*Database, error) {
	d := New(opts...)
	if cfg.Mode == PersistenceDisabled {
		return d, nil
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("novadb: resolve project root: %w", err)
	}
	cacheRoot, err := cfg.CacheRoot()
	if err != nil {
		return nil, fmt.Errorf("novadb: resolve cache root: %w", err)
	}
	layout, err := store.ProjectLayout(cacheRoot, root)
	if err != nil {
		return nil, fmt.Errorf("novadb: %w", err)
	}

	d.persist = &persistence{
		mode:        cfg.Mode,
		projectRoot: root,
		cache:       store.NewCache(layout, d.toolVersion, d.logger),
	}
	d.loadWarm()
	return d, nil
}

// CacheDir returns the project's cache directory, or "" when persistence is
// disabled.
func (d *Database) CacheDir() string {
	if d.persist == nil {
		return ""
	}
	return d.persist.cache.Layout.Dir
}

// ownsCache reports whether project is the one the warm-start cache belongs
// to.
func (d *Database) ownsCache(project ProjectID) bool {
	return d.cacheProject.Load() == int64(project)
}

// bindCache makes project the cache's owner unless one is already bound.
func (d *Database) bindCache(project ProjectID) {
	if d.persist != nil {
		d.cacheProject.CompareAndSwap(-1, int64(project))
	}
}

// warmFor returns the warm-start state if project owns the cache.
func (d *Database) warmFor(project ProjectID) *warmState {
	if !d.ownsCache(project) {
		return nil
	}
	return d.warm.Load()
}

func (d *Database) loadWarm() {
	p := d.persist
	miss := func(reason string, err error) {
		p.loadMisses.Add(1)
		d.logger.Debug("warm start unavailable",
			slog.String("path", p.cache.Layout.Dir),
			slog.String("reason", reason),
			slog.Any("error", err))
	}

	rec, err := p.cache.LoadRecord()
	if err != nil {
		miss("no record", err)
		return
	}
	if err := rec.Validate(d.toolVersion, p.projectRoot, index.ShardCount); err != nil {
		miss("incompatible record", err)
		return
	}
	m, err := p.cache.ReadManifest()
	if err != nil {
		miss("no manifest", err)
		return
	}
	if !m.Matches(rec) {
		miss("manifest does not match record", nil)
		return
	}
	loader, err := p.cache.NewShardLoader(m, shardCacheCapacity)
	if err != nil {
		miss("shard loader", err)
		return
	}

	d.warm.Store(&warmState{record: rec, shards: loader})
	d.stampMu.Lock()
	d.seedStamp = &index.Stamp{Digest: rec.Digest, Generation: rec.Generation}
	d.stampMu.Unlock()
	p.loadHits.Add(1)
	d.logger.Debug("warm start loaded",
		slog.String("path", p.cache.Layout.Dir),
		slog.Int("files", len(rec.Files)),
		slog.Uint64("generation", rec.Generation))
}

// cachedDelta returns the persisted delta of rel if the file is clean and
// its on-disk size and modification time match the record.
func (d *Database) cachedDelta(w *warmState, rel string, dirty bool) (*index.FileIndexDelta, bool) {
	if dirty {
		return nil, false
	}
	entry, ok := w.record.Entry(rel)
	if !ok || !d.onDiskMatches(entry) {
		return nil, false
	}
	shard, err := w.shards.Load(index.ShardForPath(rel))
	if err != nil {
		return nil, false
	}
	delta, ok := shard.Files[rel]
	return delta, ok && delta != nil
}

func (d *Database) onDiskMatches(e store.FileEntry) bool {
	info, err := d.stat(d.absPath(e.RelPath))
	return err == nil && e.Matches(info.Size(), info.ModTime())
}

func (d *Database) absPath(rel string) string {
	return filepath.Join(d.persist.projectRoot, filepath.FromSlash(rel))
}

// PersistenceStats returns the warm-start counters.
func (d *Database) PersistenceStats() PersistenceStats {
	p := d.persist
	if p == nil {
		return PersistenceStats{}
	}
	return PersistenceStats{
		LoadHits:       p.loadHits.Load(),
		LoadMisses:     p.loadMisses.Load(),
		StoreSuccesses: p.storeSuccesses.Load(),
		StoreFailures:  p.storeFailures.Load(),
		SkippedDirty:   p.skippedDirty.Load(),
	}
}

// PersistProjectIndexes writes the project's shards, merged index, shard
// manifest and metadata record to the cache. It does nothing unless the
// mode allows writes, and writes nothing at all while any existing file of
// the project is dirty.
//
// The cache belongs to a single project; persisting any other project is a
// no-op.
//
// Disk failures are logged and counted, never returned: the in-memory
// results stay authoritative and the next call tries again. The only error
// returned is ErrCancelled (or ErrSnapshotReleased) from computing the
// index.
func (d *Database) PersistProjectIndexes(project ProjectID) error {
	p := d.persist
	if p == nil || !p.mode.CanWrite() || d.closed.Load() {
		return nil
	}
	d.bindCache(project)
	if !d.ownsCache(project) {
		d.logger.Warn("persist skipped: cache belongs to another project",
			slog.String("path", p.cache.Layout.Dir),
			slog.Uint64("project", uint64(project)),
			slog.Int64("owner", d.cacheProject.Load()))
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := d.Snapshot()
	defer snap.Release()

	files := d.q.projectFiles.Peek(snap.s, project)
	for _, f := range files {
		if d.q.fileExists.Peek(snap.s, f) && d.q.fileIsDirty.Peek(snap.s, f) {
			p.skippedDirty.Add(1)
			d.logger.Debug("persist skipped: dirty file",
				slog.String("file", d.q.fileRelPath.Peek(snap.s, f)))
			return nil
		}
	}

	shards, err := snap.ProjectIndexShards(project)
	if err != nil {
		return err
	}
	merged, err := snap.ProjectIndexes(project)
	if err != nil {
		return err
	}

	rec := &store.Record{
		SchemaVersion: store.SchemaVersion,
		ToolVersion:   d.toolVersion,
		ProjectRoot:   p.projectRoot,
		ShardCount:    index.ShardCount,
		Generation:    merged.Generation,
		Digest:        merged.Digest,
		Files:         make(map[string]store.FileEntry, len(files)),
	}
	warm := d.warmFor(project)
	for _, f := range files {
		if err := snap.s.Checkpoint(); err != nil {
			return err
		}
		if !d.q.fileExists.Peek(snap.s, f) {
			continue
		}
		rel := d.q.fileRelPath.Peek(snap.s, f)
		info, err := d.stat(d.absPath(rel))
		if err != nil {
			d.logger.Warn("persist: file not on disk, leaving it out",
				slog.String("file", rel), slog.Any("error", err))
			continue
		}
		entry := store.FileEntry{RelPath: rel, Size: info.Size(), ModTimeNano: info.ModTime().UnixNano()}
		if old, ok := warm.entry(rel); ok && old.Size == entry.Size && old.ModTimeNano == entry.ModTimeNano {
			entry.Fingerprint = old.Fingerprint
		} else if entry.Fingerprint, err = snap.FileFingerprint(f); err != nil {
			return err
		}
		rec.Files[rel] = entry
	}

	if err := d.writeArtifacts(rec, shards, merged); err != nil {
		p.storeFailures.Add(1)
		d.logger.Warn("persist failed",
			slog.String("path", p.cache.Layout.Dir), slog.Any("error", err))
		return nil
	}
	p.storeSuccesses.Add(1)
	d.logger.Debug("persisted project indexes",
		slog.String("path", p.cache.Layout.Dir),
		slog.Int("files", len(rec.Files)),
		slog.Uint64("generation", rec.Generation))
	d.replaceWarm(rec)
	return nil
}

// writeArtifacts writes shards, the merged index and the manifest, then the
// record as the commit point.
func (d *Database) writeArtifacts(rec *store.Record, shards ProjectIndexShards, merged *index.ProjectIndexes) error {
	c := d.persist.cache
	m := &store.Manifest{
		SchemaVersion: rec.SchemaVersion,
		ToolVersion:   rec.ToolVersion,
		Generation:    rec.Generation,
		Digest:        rec.Digest,
		Project:       filepath.Base(c.Layout.Project()),
	}
	for _, s := range shards {
		if err := c.WriteShard(s); err != nil {
			return fmt.Errorf("shard %d: %w", s.ID, err)
		}
		m.Shards = append(m.Shards, store.ManifestShard{ID: s.ID, File: store.ShardFile(s.ID), Files: len(s.Files)})
	}
	if err := c.WriteProject(merged); err != nil {
		return fmt.Errorf("project index: %w", err)
	}
	if err := c.WriteManifest(m); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := c.WriteRecord(rec); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

// replaceWarm makes a freshly written record the warm-start state.
func (d *Database) replaceWarm(rec *store.Record) {
	c := d.persist.cache
	m, err := c.ReadManifest()
	if err == nil && !m.Matches(rec) {
		err = errors.New("manifest does not match record")
	}
	if err != nil {
		d.logger.Warn("persist: cannot reload manifest", slog.Any("error", err))
		d.warm.Store(nil)
		return
	}
	loader, err := c.NewShardLoader(m, shardCacheCapacity)
	if err != nil {
		d.warm.Store(nil)
		return
	}
	d.warm.Store(&warmState{record: rec, shards: loader})
}

func (w *warmState) entry(rel string) (store.FileEntry, bool) {
	if w == nil {
		return store.FileEntry{}, false
	}
	return w.record.Entry(rel)
}
