// Package store persists the warm-start cache of a project.
//
// Each project gets its own directory under the cache root, named after a
// hash of the project's absolute path:
//
//	metadata.db          SQLite project record
//	metadata.bin         the same record as an archive, read first
//	indexes/manifest.json
//	indexes/shard-XX.idx per-shard artifacts
//	indexes/project.idx  merged project index
//
// The record is written last and acts as the commit point of a persist.
package store

import (
	"fmt"
	"time"
)

// SchemaVersion is the layout version of every persisted artifact.
const SchemaVersion = 2

// FileEntry is what the record knows about one persisted file.
type FileEntry struct {
	RelPath     string
	Size        int64
	ModTimeNano int64
	Fingerprint string
}

// Matches reports whether the file's current on-disk size and modification
// time equal the recorded ones.
func (e FileEntry) Matches(size int64, modTime time.Time) bool {
	return e.Size == size && e.ModTimeNano == modTime.UnixNano()
}

// Record is the project metadata record.
type Record struct {
	SchemaVersion uint32
	ToolVersion   string
	ProjectRoot   string
	ShardCount    int

	// Generation and Digest stamp the merged index the record was written
	// with.
	Generation uint64
	Digest     uint64

	Files map[string]FileEntry
}

// Validate returns an error if the record was written by another schema,
// tool, shard layout or project.
func (r *Record) Validate(tool, projectRoot string, shardCount int) error {
	switch {
	case r.SchemaVersion != SchemaVersion:
		return fmt.Errorf("schema version %d, want %d", r.SchemaVersion, SchemaVersion)
	case r.ToolVersion != tool:
		return fmt.Errorf("tool version %q, want %q", r.ToolVersion, tool)
	case r.ShardCount != shardCount:
		return fmt.Errorf("shard count %d, want %d", r.ShardCount, shardCount)
	case r.ProjectRoot != projectRoot:
		return fmt.Errorf("project root %q, want %q", r.ProjectRoot, projectRoot)
	}
	return nil
}

// Entry returns the record's entry for relPath.
func (r *Record) Entry(relPath string) (FileEntry, bool) {
	if r == nil {
		return FileEntry{}, false
	}
	e, ok := r.Files[relPath]
	return e, ok
}
