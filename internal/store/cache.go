package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jward/novadb/internal/archive"
	"github.com/jward/novadb/internal/index"
)

// Cache reads and writes the artifacts of one project's cache directory.
type Cache struct {
	Layout Layout
	format archive.Format
	logger *slog.Logger
}

// NewCache returns a Cache over layout whose archives carry toolVersion.
func NewCache(layout Layout, toolVersion string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		Layout: layout,
		format: archive.Format{Schema: SchemaVersion, Tool: toolVersion, Compress: true},
		logger: logger,
	}
}

// LoadRecord reads the project record, preferring the archive variant and
// falling back to SQLite. It returns ErrNoRecord if neither holds a readable
// record.
func (c *Cache) LoadRecord() (*Record, error) {
	var r Record
	err := c.format.Read(c.Layout.MetadataBin(), archive.KindMetadata, &r)
	if err == nil {
		if r.Files == nil {
			r.Files = make(map[string]FileEntry)
		}
		return &r, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("discarding binary metadata record",
			slog.String("path", c.Layout.MetadataBin()), slog.Any("error", err))
	}

	if _, statErr := os.Stat(c.Layout.MetadataDB()); statErr != nil {
		return nil, ErrNoRecord
	}
	s, err := NewReadOnlyStore(c.Layout.MetadataDB())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	defer s.Close()
	rec, err := s.LoadRecord()
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	return rec, nil
}

// WriteRecord writes both variants of the record, SQLite first.
func (c *Cache) WriteRecord(r *Record) error {
	if err := os.MkdirAll(c.Layout.Dir, 0o755); err != nil {
		return fmt.Errorf("store: create cache dir: %w", err)
	}
	s, err := NewStore(c.Layout.MetadataDB())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return err
	}
	if err := s.SaveRecord(r); err != nil {
		return err
	}
	return c.format.Write(c.Layout.MetadataBin(), archive.KindMetadata, r)
}

// WriteShard writes shard s's artifact.
func (c *Cache) WriteShard(s *index.ProjectIndexShard) error {
	return c.format.Write(c.Layout.Shard(s.ID), archive.KindShard, s)
}

// WriteProject writes the merged index artifact.
func (c *Cache) WriteProject(p *index.ProjectIndexes) error {
	return c.format.Write(c.Layout.Project(), archive.KindProject, p)
}

// ReadProject reads the merged index artifact.
func (c *Cache) ReadProject() (*index.ProjectIndexes, error) {
	var p index.ProjectIndexes
	if err := c.format.Read(c.Layout.Project(), archive.KindProject, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// WriteManifest writes the shard manifest.
func (c *Cache) WriteManifest(m *Manifest) error {
	return WriteManifest(c.Layout.Manifest(), m)
}

// ReadManifest reads the shard manifest.
func (c *Cache) ReadManifest() (*Manifest, error) {
	return ReadManifest(c.Layout.Manifest())
}

// ShardLoader loads shard artifacts on first use. Concurrent loads of the
// same shard share one read, and loaded shards are kept in a bounded LRU.
type ShardLoader struct {
	cache *Cache
	files map[uint32]string
	group singleflight.Group
	lru   *lru.Cache[uint32, shardEntry]
}

type shardEntry struct {
	shard *index.ProjectIndexShard
	err   error
}

// NewShardLoader returns a loader for the shards listed in m that keeps at
// most capacity shards in memory.
func (c *Cache) NewShardLoader(m *Manifest, capacity int) (*ShardLoader, error) {
	cache, err := lru.New[uint32, shardEntry](max(capacity, 1))
	if err != nil {
		return nil, fmt.Errorf("store: shard cache: %w", err)
	}
	files := make(map[uint32]string, len(m.Shards))
	for _, s := range m.Shards {
		files[s.ID] = s.File
	}
	return &ShardLoader{cache: c, files: files, lru: cache}, nil
}

// Load returns shard id's artifact. A shard missing from the manifest, or
// whose artifact cannot be read, yields an error; failures are remembered
// until the entry is evicted.
func (l *ShardLoader) Load(id uint32) (*index.ProjectIndexShard, error) {
	if e, ok := l.lru.Get(id); ok {
		return e.shard, e.err
	}
	v, _, _ := l.group.Do(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		if e, ok := l.lru.Get(id); ok {
			return e, nil
		}
		e := l.read(id)
		if e.err != nil {
			l.cache.logger.Warn("discarding shard artifact",
				slog.Uint64("shard", uint64(id)), slog.Any("error", e.err))
		}
		l.lru.Add(id, e)
		return e, nil
	})
	e := v.(shardEntry)
	return e.shard, e.err
}

func (l *ShardLoader) read(id uint32) shardEntry {
	name, ok := l.files[id]
	if !ok || name != ShardFile(id) {
		return shardEntry{err: fmt.Errorf("store: shard %d not in manifest", id)}
	}
	var s index.ProjectIndexShard
	if err := l.cache.format.Read(l.cache.Layout.Shard(id), archive.KindShard, &s); err != nil {
		return shardEntry{err: err}
	}
	if s.ID != id {
		return shardEntry{err: fmt.Errorf("%w: shard %d holds shard %d", archive.ErrCorrupt, id, s.ID)}
	}
	return shardEntry{shard: &s}
}

// Cached returns the number of shards currently held in memory.
func (l *ShardLoader) Cached() int {
	return l.lru.Len()
}

// Purge drops every shard held in memory. Later loads read from disk again.
func (l *ShardLoader) Purge() {
	l.lru.Purge()
}
