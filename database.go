package novadb

import (
	"cmp"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/query"
	"github.com/jward/novadb/internal/stats"
)

// FileID identifies a file. IDs are assigned by the host.
type FileID uint32

// ProjectID identifies a project. IDs are assigned by the host.
type ProjectID uint32

// ProjectConfig holds per-project settings that affect analysis.
type ProjectConfig struct {
	// LanguageLevel is the Java release the project targets. Zero means
	// the latest supported release.
	LanguageLevel int
}

// ShardKey names one shard of a project's index.
type ShardKey struct {
	Project ProjectID
	Shard   uint32
}

// Database is the single writable handle. Input setters and cancellation
// requests are serialized by its lock; reads go through snapshots.
type Database struct {
	mu sync.Mutex
	rt *query.Runtime
	q  *queries

	stats  *stats.Collector
	logger *slog.Logger

	// stamps holds each project's merge stamps in revision order. It
	// outlives memo eviction so generations keep counting.
	stampMu   sync.Mutex
	stamps    map[ProjectID][]stampEntry
	seedStamp *index.Stamp

	persist *persistence
	warm    atomic.Pointer[warmState]

	// cacheProject is the ProjectID the warm-start cache belongs to, or -1
	// while unbound.
	cacheProject atomic.Int64
	stat    func(string) (os.FileInfo, error)

	nextFile atomic.Uint32

	toolVersion string
	closed      atomic.Bool
}

type stampEntry struct {
	stamp index.Stamp
	rev   query.Revision
}

// Option configures a Database.
type Option func(*Database)

// WithLogger routes the database's logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithStats shares c as the query statistics collector, so several
// databases can report into one place.
func WithStats(c *stats.Collector) Option {
	return func(d *Database) {
		if c != nil {
			d.stats = c
		}
	}
}

// WithToolVersion overrides the tool version stamped into persisted
// artifacts. Artifacts written by another tool version are ignored.
func WithToolVersion(v string) Option {
	return func(d *Database) {
		if v != "" {
			d.toolVersion = v
		}
	}
}

// WithCacheProject binds the warm-start cache to project. Without it the
// cache belongs to the first project opened at the persistence root, or the
// first one persisted.
func WithCacheProject(project ProjectID) Option {
	return func(d *Database) {
		d.cacheProject.Store(int64(project))
	}
}

// New creates an in-memory database without persistence.
func New(opts ...Option) *Database {
	d := &Database{
		stats:       stats.NewCollector(),
		logger:      slog.New(slog.DiscardHandler),
		stamps:      make(map[ProjectID][]stampEntry),
		stat:        os.Stat,
		toolVersion: ToolVersion,
	}
	d.cacheProject.Store(-1)
	for _, opt := range opts {
		opt(d)
	}
	d.rt = query.New(query.WithObserver(d.stats))
	d.q = newQueries(d)
	return d
}

// Close releases the database's warm-start state. Snapshots taken earlier
// remain readable.
func (d *Database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.warm.Store(nil)
	return nil
}

// Revision returns the current revision.
func (d *Database) Revision() query.Revision {
	return d.rt.Revision()
}

// SetFileContent sets the file's text.
func (d *Database) SetFileContent(file FileID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.fileContent.Set(d.rt, file, text)
}

// SetFileExists sets whether the file exists.
func (d *Database) SetFileExists(file FileID, exists bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.fileExists.Set(d.rt, file, exists)
}

// SetFileRelPath sets the file's slash-separated path relative to its
// project root.
func (d *Database) SetFileRelPath(file FileID, relPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.fileRelPath.Set(d.rt, file, relPath)
}

// SetFileIsDirty marks whether the file has in-memory edits that are not
// on disk.
func (d *Database) SetFileIsDirty(file FileID, dirty bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.fileIsDirty.Set(d.rt, file, dirty)
}

// SetFileProject assigns the file to a project.
func (d *Database) SetFileProject(file FileID, project ProjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.fileProject.Set(d.rt, file, project)
}

// SetProjectFiles sets the ordered file list of a project. The slice must
// not be modified afterwards.
func (d *Database) SetProjectFiles(project ProjectID, files []FileID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.projectFiles.Set(d.rt, project, files)
}

// SetProjectConfig sets the project's analysis settings.
func (d *Database) SetProjectConfig(project ProjectID, cfg ProjectConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.projectConfig.Set(d.rt, project, cfg)
}

// RequestCancellation makes every computation running on an existing
// snapshot stop with ErrCancelled at its next checkpoint. Values are left
// untouched.
func (d *Database) RequestCancellation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	rev := d.rt.RequestCancellation()
	d.logger.Debug("cancellation requested", slog.Uint64("revision", uint64(rev)))
}

// Snapshot returns a read-only view pinned to the current revision. The
// caller must Release it.
func (d *Database) Snapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Snapshot{db: d, s: d.rt.Snapshot()}
}

// QueryStats returns a copy of the per-query statistics.
func (d *Database) QueryStats() QueryStats {
	return d.stats.Snapshot()
}

// ClearQueryStats resets every query statistic.
func (d *Database) ClearQueryStats() {
	d.stats.Reset()
}

// previousStamp returns the stamp a merge of project computed at rev is
// compared to: the newest merge recorded at or before rev, else the
// warm-start seed when project owns the cache.
func (d *Database) previousStamp(project ProjectID, rev query.Revision) *index.Stamp {
	d.stampMu.Lock()
	defer d.stampMu.Unlock()
	hist := d.stamps[project]
	i, found := slices.BinarySearchFunc(hist, rev, func(e stampEntry, r query.Revision) int {
		return cmp.Compare(e.rev, r)
	})
	if found {
		i++
	}
	if i > 0 {
		s := hist[i-1].stamp
		return &s
	}
	if d.seedStamp != nil && d.ownsCache(project) {
		s := *d.seedStamp
		return &s
	}
	return nil
}

// recordStamp appends a merge made at rev to project's history. Merges from
// snapshots older than the newest recorded one are not recorded. Entries no
// live snapshot can reach are dropped.
func (d *Database) recordStamp(project ProjectID, s index.Stamp, rev query.Revision) {
	floor := d.rt.OldestLive()

	d.stampMu.Lock()
	defer d.stampMu.Unlock()
	hist := d.stamps[project]
	if n := len(hist); n > 0 && hist[n-1].rev >= rev {
		return
	}
	hist = append(hist, stampEntry{stamp: s, rev: rev})
	keep := 0
	for keep+1 < len(hist) && hist[keep+1].rev <= floor {
		keep++
	}
	d.stamps[project] = slices.Delete(hist, 0, keep)
}
