package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/novadb"
	"github.com/jward/novadb/internal/config"
	"github.com/jward/novadb/internal/stats"
)

// project is the id every CLI invocation indexes its tree under.
const project novadb.ProjectID = 1

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app holds the root command's persistent flags.
type app struct {
	format      string
	logLevel    string
	persistence string
	cacheDir    string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "novadb",
		Short:         "Incremental Java symbol index with warm-start caching",
		Long:          "novadb indexes Java sources with tree-sitter through an incremental query database and caches the results per project for fast warm starts.",
		Version:       novadb.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(a.format)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.format, "format", "text", "output format: json|text")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (default from config)")
	flags.StringVar(&a.persistence, "persistence", "", "persistence mode: off|ro|rw (overrides config and "+config.EnvPersistence+")")
	flags.StringVar(&a.cacheDir, "cache-dir", "", "cache root directory (overrides config and "+config.EnvCacheDir+")")

	root.AddCommand(
		newIndexCmd(a),
		newQueryCmd(a),
		newStatsCmd(a),
		newWatchCmd(a),
		newCacheCmd(a),
	)
	return root
}

// workspace is an opened project ready for queries.
type workspace struct {
	root    string
	cfg     config.Config
	logger  *slog.Logger
	stats   *stats.Collector
	db      *novadb.Database
	project *novadb.Project
}

// Close closes the workspace's database.
func (w *workspace) Close() error {
	return w.db.Close()
}

// loadConfig resolves the repository root for args and loads its
// configuration with environment and flag overrides applied.
func (a *app) loadConfig(args []string) (string, config.Config, error) {
	target, err := resolveTargetDir(args)
	if err != nil {
		return "", config.Config{}, err
	}
	root := findRepoRoot(target)

	cfg, err := config.Load(root)
	if err != nil {
		return "", config.Config{}, err
	}
	if a.persistence != "" {
		mode, err := config.ParsePersistenceMode(a.persistence)
		if err != nil {
			return "", config.Config{}, err
		}
		cfg.Persistence.Mode = mode
	}
	if a.cacheDir != "" {
		cfg.Persistence.CacheDir = a.cacheDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	return root, cfg, nil
}

// open loads the project at args and brings its inputs up to date.
func (a *app) open(cmd *cobra.Command, args []string) (*workspace, error) {
	root, cfg, err := a.loadConfig(args)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, err
	}

	collector := stats.NewCollector()
	db, err := novadb.NewWithPersistence(root, cfg.Persistence,
		novadb.WithLogger(logger), novadb.WithStats(collector))
	if err != nil {
		return nil, err
	}
	p, err := db.OpenProject(project, root, cfg.Index)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := p.Sync(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("syncing %s: %w", root, err)
	}
	return &workspace{root: root, cfg: cfg, logger: logger, stats: collector, db: db, project: p}, nil
}

// indexes computes the project's merged index under a fresh snapshot.
func (w *workspace) indexes() (*novadb.ProjectIndexes, error) {
	snap := w.db.Snapshot()
	defer snap.Release()
	idx, err := snap.ProjectIndexes(project)
	if errors.Is(err, novadb.ErrCancelled) {
		return nil, fmt.Errorf("indexing cancelled: %w", err)
	}
	return idx, err
}

func newLogger(w io.Writer, l config.Log) (*slog.Logger, error) {
	level, err := l.LogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}
