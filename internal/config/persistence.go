package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override the configured persistence settings.
const (
	EnvPersistence = "NOVADB_PERSISTENCE"
	EnvCacheDir    = "NOVADB_CACHE_DIR"
)

// PersistenceMode controls whether the warm-start cache is read and written.
type PersistenceMode uint8

const (
	PersistenceDisabled PersistenceMode = iota
	PersistenceReadOnly
	PersistenceReadWrite
)

// ParsePersistenceMode parses a mode name or one of its aliases.
func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "0", "disabled", "false", "no":
		return PersistenceDisabled, nil
	case "ro", "read-only", "readonly":
		return PersistenceReadOnly, nil
	case "rw", "read-write", "readwrite", "on", "enabled", "true", "1":
		return PersistenceReadWrite, nil
	}
	return PersistenceDisabled, fmt.Errorf("config: unknown persistence mode %q", s)
}

// String returns the mode's canonical name.
func (m PersistenceMode) String() string {
	switch m {
	case PersistenceDisabled:
		return "disabled"
	case PersistenceReadOnly:
		return "read-only"
	case PersistenceReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// CanRead reports whether the mode allows loading the cache.
func (m PersistenceMode) CanRead() bool { return m != PersistenceDisabled }

// CanWrite reports whether the mode allows writing the cache.
func (m PersistenceMode) CanWrite() bool { return m == PersistenceReadWrite }

// MarshalText writes the mode's canonical name.
func (m PersistenceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts any alias ParsePersistenceMode does.
func (m *PersistenceMode) UnmarshalText(text []byte) error {
	parsed, err := ParsePersistenceMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Persistence configures the warm-start cache.
type Persistence struct {
	Mode PersistenceMode `toml:"mode"`

	// CacheDir is the cache root. Empty means DefaultCacheRoot.
	CacheDir string `toml:"cache_dir"`
}

// WithEnv returns p with NOVADB_PERSISTENCE and NOVADB_CACHE_DIR applied.
// An unparseable mode is an error.
func (p Persistence) WithEnv(lookup func(string) (string, bool)) (Persistence, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvPersistence); ok && strings.TrimSpace(v) != "" {
		mode, err := ParsePersistenceMode(v)
		if err != nil {
			return p, fmt.Errorf("%s: %w", EnvPersistence, err)
		}
		p.Mode = mode
	}
	if v, ok := lookup(EnvCacheDir); ok && strings.TrimSpace(v) != "" {
		p.CacheDir = v
	}
	return p, nil
}

// CacheRoot returns the configured cache root or the default one.
func (p Persistence) CacheRoot() (string, error) {
	if p.CacheDir != "" {
		return filepath.Abs(p.CacheDir)
	}
	return DefaultCacheRoot()
}

// DefaultCacheRoot is the novadb directory under the user cache directory.
func DefaultCacheRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user cache dir: %w", err)
	}
	return filepath.Join(dir, "novadb"), nil
}
