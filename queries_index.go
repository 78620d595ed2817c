package novadb

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/query"
)

// computeFingerprint hashes the file's content. A missing file hashes as
// empty content.
func (d *Database) computeFingerprint(c *query.Ctx, file FileID) (string, error) {
	if err := c.Checkpoint(); err != nil {
		return "", err
	}
	var text string
	if d.q.fileExists.Get(c, file) {
		text = d.q.fileContent.Get(c, file)
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

func (d *Database) computeFileIndexDelta(c *query.Ctx, file FileID) (*index.FileIndexDelta, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	rel := d.q.fileRelPath.Get(c, file)
	if !d.q.fileExists.Get(c, file) {
		return &index.FileIndexDelta{File: rel}, nil
	}
	tree, err := d.q.itemTree.Get(c, file)
	if err != nil {
		return nil, err
	}
	j, err := d.q.parseJava.Get(c, file)
	if err != nil {
		return nil, err
	}
	return index.BuildDelta(rel, tree, j.Position), nil
}

// computeShardFiles lists the project's existing files whose path hashes to
// the shard, in project order.
func (d *Database) computeShardFiles(c *query.Ctx, key ShardKey) ([]FileID, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	var out []FileID
	for i, f := range d.q.projectFiles.Get(c, key.Project) {
		if err := c.CheckpointEvery(i); err != nil {
			return nil, err
		}
		if !d.q.fileExists.Get(c, f) {
			continue
		}
		if index.ShardForPath(d.q.fileRelPath.Get(c, f)) == key.Shard {
			out = append(out, f)
		}
	}
	return out, nil
}

// computeProjectIndexShard folds the deltas of the shard's files. A clean
// file whose on-disk metadata matches the warm-start record reuses the
// persisted delta; every other file is indexed from its content.
func (d *Database) computeProjectIndexShard(c *query.Ctx, key ShardKey) (*index.ProjectIndexShard, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	files, err := d.q.shardFiles.Get(c, key)
	if err != nil {
		return nil, err
	}
	warm := d.warmFor(key.Project)

	deltas := make([]*index.FileIndexDelta, 0, len(files))
	for _, f := range files {
		// Edits must invalidate the shard even when the delta comes from disk.
		_ = d.q.fileContent.Get(c, f)
		dirty := d.q.fileIsDirty.Get(c, f)
		rel := d.q.fileRelPath.Get(c, f)

		if warm != nil {
			if delta, ok := d.cachedDelta(warm, rel, dirty); ok {
				d.stats.DiskHit(QueryFileIndexDelta)
				deltas = append(deltas, delta)
				if err := c.Checkpoint(); err != nil {
					return nil, err
				}
				continue
			}
			d.stats.DiskMiss(QueryFileIndexDelta)
		}

		if _, err := d.q.fingerprint.Get(c, f); err != nil {
			return nil, err
		}
		delta, err := d.q.fileIndexDelta.Get(c, f)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, delta)
		if err := c.Checkpoint(); err != nil {
			return nil, err
		}
	}
	return index.NewShard(key.Shard, deltas), nil
}

// computeProjectIndexShards computes every shard of the project in
// parallel.
func (d *Database) computeProjectIndexShards(c *query.Ctx, project ProjectID) (ProjectIndexShards, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	out := make(ProjectIndexShards, index.ShardCount)
	err := query.Parallel(c, index.ShardCount, 0, func(i int) error {
		s, err := d.q.projectIndexShard.Get(c, ShardKey{Project: project, Shard: uint32(i)})
		if err != nil {
			return err
		}
		out[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// computeProjectIndexes merges the shards. The generation carries on from
// the newest merge of the project at or before the frame's revision, or
// from the warm-start record.
func (d *Database) computeProjectIndexes(c *query.Ctx, project ProjectID) (*index.ProjectIndexes, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	shards, err := d.q.projectIndexShards.Get(c, project)
	if err != nil {
		return nil, err
	}
	merged := index.Merge(shards, d.previousStamp(project, c.Revision()))
	d.recordStamp(project, merged.Stamp(), c.Revision())
	return merged, nil
}

func (d *Database) computeProjectSymbolCount(c *query.Ctx, project ProjectID) (int, error) {
	if err := c.Checkpoint(); err != nil {
		return 0, err
	}
	idx, err := d.q.projectIndexes.Get(c, project)
	if err != nil {
		return 0, err
	}
	return idx.SymbolCount(), nil
}
