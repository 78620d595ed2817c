package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jward/novadb/internal/archive"
)

// Manifest lists the shard artifacts of one persist.
type Manifest struct {
	SchemaVersion uint32          `json:"schema_version"`
	ToolVersion   string          `json:"tool_version"`
	Generation    uint64          `json:"generation"`
	Digest        uint64          `json:"digest"`
	Shards        []ManifestShard `json:"shards"`
	Project       string          `json:"project"`
}

// ManifestShard describes one shard artifact.
type ManifestShard struct {
	ID    uint32 `json:"id"`
	File  string `json:"file"`
	Files int    `json:"files"`
}

// Matches reports whether the manifest belongs to the persist that wrote r.
func (m *Manifest) Matches(r *Record) bool {
	return m.SchemaVersion == r.SchemaVersion &&
		m.ToolVersion == r.ToolVersion &&
		m.Generation == r.Generation &&
		m.Digest == r.Digest &&
		len(m.Shards) == r.ShardCount
}

// WriteManifest atomically writes m as indented JSON to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode manifest: %w", err)
	}
	return archive.WriteFileAtomic(path, append(data, '\n'))
}

// ReadManifest reads the manifest at path. Malformed content is reported as
// archive.ErrCorrupt.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", archive.ErrCorrupt, err)
	}
	return &m, nil
}
