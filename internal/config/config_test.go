package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceMode_Aliases(t *testing.T) {
	t.Parallel()
	cases := map[PersistenceMode][]string{
		PersistenceDisabled:  {"off", "0", "disabled", "false", "no", " OFF "},
		PersistenceReadOnly:  {"ro", "read-only", "readonly"},
		PersistenceReadWrite: {"rw", "read-write", "readwrite", "on", "enabled", "true", "1"},
	}
	for want, aliases := range cases {
		for _, alias := range aliases {
			got, err := ParsePersistenceMode(alias)
			require.NoError(t, err, alias)
			assert.Equal(t, want, got, alias)
		}
	}
	_, err := ParsePersistenceMode("sometimes")
	assert.Error(t, err)
}

func TestPersistenceMode_Permissions(t *testing.T) {
	t.Parallel()
	assert.False(t, PersistenceDisabled.CanRead())
	assert.False(t, PersistenceDisabled.CanWrite())
	assert.True(t, PersistenceReadOnly.CanRead())
	assert.False(t, PersistenceReadOnly.CanWrite())
	assert.True(t, PersistenceReadWrite.CanRead())
	assert.True(t, PersistenceReadWrite.CanWrite())
}

func TestPersistence_WithEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{EnvPersistence: "ro", EnvCacheDir: "/tmp/nova-cache"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got, err := Persistence{Mode: PersistenceReadWrite}.WithEnv(lookup)
	require.NoError(t, err)
	assert.Equal(t, Persistence{Mode: PersistenceReadOnly, CacheDir: "/tmp/nova-cache"}, got)

	env[EnvPersistence] = "bogus"
	_, err = Persistence{}.WithEnv(lookup)
	assert.ErrorContains(t, err, EnvPersistence)

	none := func(string) (string, bool) { return "", false }
	got, err = Persistence{Mode: PersistenceReadOnly}.WithEnv(none)
	require.NoError(t, err)
	assert.Equal(t, PersistenceReadOnly, got.Mode)
}

func TestPersistence_CacheRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := Persistence{CacheDir: dir}.CacheRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvPersistence, "")
	t.Setenv(EnvCacheDir, "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileAndEnv(t *testing.T) {
	root := t.TempDir()
	src := `
[persistence]
mode = "read-only"
cache_dir = "/var/cache/nova"

[index]
include = ["src/**/*.java"]
language_level = 11

[log]
level = "debug"

[watch]
debounce = "1s"
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(src), 0o644))

	t.Setenv(EnvPersistence, "off")
	t.Setenv(EnvCacheDir, "")
	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, PersistenceDisabled, cfg.Persistence.Mode)
	assert.Equal(t, "/var/cache/nova", cfg.Persistence.CacheDir)
	assert.Equal(t, []string{"src/**/*.java"}, cfg.Index.Include)
	assert.Equal(t, Default().Index.Exclude, cfg.Index.Exclude)
	assert.Equal(t, 11, cfg.Index.LanguageLevel)
	assert.Equal(t, Duration(time.Second), cfg.Watch.Debounce)

	level, err := cfg.Log.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_BadFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("[persistence]\nmode = \"maybe\"\n"), 0o644))
	t.Setenv(EnvPersistence, "")
	_, err := Load(root)
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	data, err := Encode(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "read-write")
	assert.Contains(t, string(data), "200ms")

	var got Config
	require.NoError(t, toml.Unmarshal(data, &got))
	assert.Equal(t, Default(), got)
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, rel := range []string{
		"src/main/java/p/A.java",
		"src/main/java/p/B.java",
		"src/main/resources/app.properties",
		"build/generated/G.java",
		"Top.java",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("class X {}"), 0o644))
	}

	got, err := Default().Index.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Top.java", "src/main/java/p/A.java", "src/main/java/p/B.java"}, got)

	ix := Index{Include: []string{"src/**/*.java"}, Exclude: []string{"**/B.java"}}
	got, err = ix.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main/java/p/A.java"}, got)
}

func TestIndex_BadPattern(t *testing.T) {
	t.Parallel()
	_, err := Index{Include: []string{"[a-"}}.Matches("A.java")
	assert.Error(t, err)
}
