package novadb

import (
	"github.com/jward/novadb/internal/query"
)

// Snapshot is a read-only view of the database pinned to one revision.
// Reads through a snapshot never observe later writes, and any number of
// goroutines may read through it at once. A snapshot must be released when
// done so old input versions can be pruned.
type Snapshot struct {
	db *Database
	s  *query.Snapshot
}

// Revision returns the revision the snapshot is pinned to.
func (s *Snapshot) Revision() query.Revision {
	return s.s.Revision()
}

// Release unpins the snapshot. Later reads fail with ErrSnapshotReleased.
func (s *Snapshot) Release() {
	s.s.Release()
}

// Checkpoint returns ErrCancelled once cancellation was requested after the
// snapshot was taken.
func (s *Snapshot) Checkpoint() error {
	return s.s.Checkpoint()
}

// Cancelled reports whether a cancellation request superseded the snapshot.
func (s *Snapshot) Cancelled() bool {
	return s.s.Cancelled()
}

// FileContent returns the file's text at the snapshot's revision.
func (s *Snapshot) FileContent(file FileID) string {
	return s.db.q.fileContent.Peek(s.s, file)
}

// FileExists reports whether the file exists at the snapshot's revision.
func (s *Snapshot) FileExists(file FileID) bool {
	return s.db.q.fileExists.Peek(s.s, file)
}

// FileRelPath returns the file's project-relative path.
func (s *Snapshot) FileRelPath(file FileID) string {
	return s.db.q.fileRelPath.Peek(s.s, file)
}

// FileIsDirty reports whether the file has unsaved edits.
func (s *Snapshot) FileIsDirty(file FileID) bool {
	return s.db.q.fileIsDirty.Peek(s.s, file)
}

// FileProject returns the project the file belongs to.
func (s *Snapshot) FileProject(file FileID) ProjectID {
	return s.db.q.fileProject.Peek(s.s, file)
}

// ProjectFiles returns the project's ordered file list.
func (s *Snapshot) ProjectFiles(project ProjectID) []FileID {
	return s.db.q.projectFiles.Peek(s.s, project)
}

// ProjectConfig returns the project's analysis settings.
func (s *Snapshot) ProjectConfig(project ProjectID) ProjectConfig {
	return s.db.q.projectConfig.Peek(s.s, project)
}

// Parse returns the file's concrete syntax tree.
func (s *Snapshot) Parse(file FileID) (*ParseResult, error) {
	return s.db.q.parse.Fetch(s.s, file)
}

// ParseJava returns the file's Java view at its project's language level.
func (s *Snapshot) ParseJava(file FileID) (*JavaParseResult, error) {
	return s.db.q.parseJava.Fetch(s.s, file)
}

// ItemTree returns the file's declarations with their ranges.
func (s *Snapshot) ItemTree(file FileID) (*ItemTree, error) {
	return s.db.q.itemTree.Fetch(s.s, file)
}

// SymbolSummary returns the file's declared names.
func (s *Snapshot) SymbolSummary(file FileID) (*SymbolSummary, error) {
	return s.db.q.symbolSummary.Fetch(s.s, file)
}

// SymbolCount returns the number of declarations in the file.
func (s *Snapshot) SymbolCount(file FileID) (int, error) {
	return s.db.q.symbolCount.Fetch(s.s, file)
}

// FileFingerprint returns the hex SHA-256 of the file's content.
func (s *Snapshot) FileFingerprint(file FileID) (string, error) {
	return s.db.q.fingerprint.Fetch(s.s, file)
}

// FileIndexDelta returns the file's contribution to the project index.
func (s *Snapshot) FileIndexDelta(file FileID) (*FileIndexDelta, error) {
	return s.db.q.fileIndexDelta.Fetch(s.s, file)
}

// ProjectShardFiles lists the project's existing files assigned to shard.
func (s *Snapshot) ProjectShardFiles(project ProjectID, shard uint32) ([]FileID, error) {
	return s.db.q.shardFiles.Fetch(s.s, ShardKey{Project: project, Shard: shard})
}

// ProjectIndexShard returns one shard of the project's index.
func (s *Snapshot) ProjectIndexShard(project ProjectID, shard uint32) (*ProjectIndexShard, error) {
	return s.db.q.projectIndexShard.Fetch(s.s, ShardKey{Project: project, Shard: shard})
}

// ProjectIndexShards returns every shard of the project's index, by id.
func (s *Snapshot) ProjectIndexShards(project ProjectID) (ProjectIndexShards, error) {
	return s.db.q.projectIndexShards.Fetch(s.s, project)
}

// ProjectIndexes returns the project's merged index.
func (s *Snapshot) ProjectIndexes(project ProjectID) (*ProjectIndexes, error) {
	return s.db.q.projectIndexes.Fetch(s.s, project)
}

// ProjectSymbolCount returns the number of distinct symbol names in the project.
func (s *Snapshot) ProjectSymbolCount(project ProjectID) (int, error) {
	return s.db.q.projectSymbolCount.Fetch(s.s, project)
}
