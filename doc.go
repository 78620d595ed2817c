// Package novadb is an incremental, demand-driven query database for Java
// projects.
//
// Hosts write inputs (file contents, paths, dirty flags, project file
// lists) through a Database and read derived results through Snapshots.
// Derived queries are memoized, revalidated against the revisions of what
// they read, and cut off early when a recomputed value is unchanged, so a
// one-file edit only recomputes what actually depends on it.
//
// # Pipeline
//
// Per file: parse → parse_java → item_tree → symbol_summary / symbol_count,
// plus file_fingerprint and file_index_delta. Per project: files are split
// into ShardCount shards by a hash of their relative path; each shard folds
// its files' deltas, and project_indexes merges the shards into one index
// with a monotonically increasing generation.
//
// # Warm start
//
// NewWithPersistence loads a metadata record and shard artifacts from a
// per-project cache directory. Clean files whose on-disk size and
// modification time still match the record reuse their persisted delta
// instead of being parsed. PersistProjectIndexes writes the artifacts back,
// but only when no tracked file has unsaved edits.
//
// # Usage
//
//	db, err := novadb.NewWithPersistence(root, novadb.PersistenceConfig{Mode: novadb.PersistenceReadWrite})
//	if err != nil { ... }
//	defer db.Close()
//
//	p, err := db.OpenProject(1, root, config.Default().Index)
//	_, err = p.Sync(ctx)
//
//	snap := db.Snapshot()
//	defer snap.Release()
//	idx, err := snap.ProjectIndexes(p.ID())
//	syms := idx.Lookup("MyClass")
//
//	err = db.PersistProjectIndexes(p.ID())
//
// # Concurrency
//
// Any number of goroutines may read through snapshots while one writer sets
// inputs. A snapshot never observes later writes. RequestCancellation makes
// in-flight reads on older snapshots return ErrCancelled at their next
// checkpoint.
package novadb
