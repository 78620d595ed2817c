// Package config loads project settings from .novadb.toml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the project configuration file looked up in the project root.
const FileName = ".novadb.toml"

type Config struct {
	Persistence Persistence `toml:"persistence"`
	Index       Index       `toml:"index"`
	Log         Log         `toml:"log"`
	Watch       Watch       `toml:"watch"`
}

type Index struct {
	// Include and Exclude are doublestar patterns matched against
	// slash-separated paths relative to the project root.
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`

	// LanguageLevel is the Java release the project targets. Zero means the
	// latest supported release.
	LanguageLevel int `toml:"language_level"`
}

type Log struct {
	Level string `toml:"level"`
}

type Watch struct {
	Debounce Duration `toml:"debounce"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Persistence: Persistence{Mode: PersistenceReadWrite},
		Index: Index{
			Include: []string{"**/*.java"},
			Exclude: []string{"**/.git/**", "**/build/**", "**/target/**", "**/out/**"},
		},
		Log:   Log{Level: "info"},
		Watch: Watch{Debounce: Duration(200 * time.Millisecond)},
	}
}

// Load reads FileName from projectRoot over the defaults and applies the
// environment overrides. A missing file is not an error.
func Load(projectRoot string) (Config, error) {
	cfg := Default()
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Persistence, err = cfg.Persistence.WithEnv(nil)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// LogLevel parses the configured log level.
func (l Log) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}
