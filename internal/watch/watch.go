// Package watch reports batches of changed project files.
//
// Events from fsnotify are filtered through the project's include and
// exclude globs, collected until the tree has been quiet for the debounce
// interval, and delivered as one sorted batch of relative paths.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/novadb/internal/config"
)

// Watcher watches one project tree.
type Watcher struct {
	root     string
	index    config.Index
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher
}

// New starts watching every non-excluded directory under root.
func New(root string, idx config.Index, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{root: root, index: idx, debounce: debounce, logger: logger, fs: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers batches to fn until ctx is done or fn fails. A nil error is
// returned when ctx ends.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, rels []string) error) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if rel, ok := w.accept(ev); ok {
				pending[rel] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("error", err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for rel := range pending {
				batch = append(batch, rel)
			}
			clear(pending)
			slices.Sort(batch)
			if err := fn(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// accept maps an event to a tracked relative path. New directories are
// added to the watch as they appear.
func (w *Watcher) accept(ev fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch: cannot add directory",
					slog.String("path", ev.Name), slog.Any("error", err))
			}
			return "", false
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	ok, err := w.index.Matches(rel)
	if err != nil || !ok {
		return "", false
	}
	return rel, true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				return err
			}
			if skip, err := w.index.ExcludesDir(filepath.ToSlash(rel)); err != nil {
				return err
			} else if skip {
				return filepath.SkipDir
			}
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
