package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Layout names the files of one project's cache directory.
type Layout struct {
	Dir string
}

// ProjectLayout returns the layout of projectRoot's cache directory under
// cacheRoot. The directory name is derived from the absolute project path.
func ProjectLayout(cacheRoot, projectRoot string) (Layout, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return Layout{}, fmt.Errorf("store: resolve project root: %w", err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return Layout{Dir: filepath.Join(cacheRoot, hex.EncodeToString(sum[:])[:16])}, nil
}

// Paths within the cache directory.
func (l Layout) MetadataDB() string  { return filepath.Join(l.Dir, "metadata.db") }
func (l Layout) MetadataBin() string { return filepath.Join(l.Dir, "metadata.bin") }
func (l Layout) IndexesDir() string  { return filepath.Join(l.Dir, "indexes") }
func (l Layout) Manifest() string    { return filepath.Join(l.IndexesDir(), "manifest.json") }
func (l Layout) Project() string     { return filepath.Join(l.IndexesDir(), projectFile) }

// Shard returns the path of shard id's artifact.
func (l Layout) Shard(id uint32) string {
	return filepath.Join(l.IndexesDir(), ShardFile(id))
}

const projectFile = "project.idx"

// ShardFile is the artifact file name of shard id.
func ShardFile(id uint32) string {
	return fmt.Sprintf("shard-%02x.idx", id)
}

// Exists reports whether anything has been persisted for the project.
func (l Layout) Exists() bool {
	_, err := os.Stat(l.Dir)
	return err == nil
}

// Clear removes the project's cache directory.
func (l Layout) Clear() error {
	if err := os.RemoveAll(l.Dir); err != nil {
		return fmt.Errorf("store: clear %s: %w", l.Dir, err)
	}
	return nil
}
