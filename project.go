package novadb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/novadb/internal/config"
)

// Project mirrors one on-disk project into a database's inputs. It assigns
// file ids, reads file contents and tracks which files have unsaved edits.
type Project struct {
	db    *Database
	id    ProjectID
	root  string
	index config.Index

	mu  sync.Mutex
	ids map[string]FileID
}

// SyncResult summarizes one Sync.
type SyncResult struct {
	Files   int
	Added   int
	Changed int
	Removed int
}

// OpenProject attaches a project rooted at root. Nothing is read until Sync.
// A project opened at the persistence root takes ownership of the
// warm-start cache unless another project already has it.
func (d *Database) OpenProject(id ProjectID, root string, idx config.Index) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("novadb: resolve project root: %w", err)
	}
	if d.persist != nil && abs == d.persist.projectRoot {
		d.bindCache(id)
	}
	d.SetProjectConfig(id, ProjectConfig{LanguageLevel: idx.LanguageLevel})
	return &Project{db: d, id: id, root: abs, index: idx, ids: make(map[string]FileID)}, nil
}

// ID returns the project's id.
func (p *Project) ID() ProjectID { return p.id }

// Root returns the project's absolute root directory.
func (p *Project) Root() string { return p.root }

// FileID returns the id assigned to rel.
func (p *Project) FileID(rel string) (FileID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids[rel]
	return id, ok
}

type fileRead struct {
	rel  string
	text string
}

// Sync discovers the project's files and brings the database's inputs up to
// date with the disk. Files are read in parallel; inputs are only written
// when a value actually changed. Files with unsaved edits keep their
// in-memory content.
func (p *Project) Sync(ctx context.Context) (SyncResult, error) {
	rels, err := p.index.Discover(p.root)
	if err != nil {
		return SyncResult{}, fmt.Errorf("novadb: discover %s: %w", p.root, err)
	}
	reads, err := p.readAll(ctx, rels)
	if err != nil {
		return SyncResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := SyncResult{Files: len(reads)}
	seen := make(map[string]bool, len(reads))
	files := make([]FileID, 0, len(reads))
	for _, r := range reads {
		seen[r.rel] = true
		id, added := p.ensure(r.rel)
		if added {
			res.Added++
		}
		if p.apply(id, r.text, true) && !added {
			res.Changed++
		}
		files = append(files, id)
	}
	for rel, id := range p.ids {
		if seen[rel] {
			continue
		}
		if p.db.q.fileExists.Current(p.db.rt, id) {
			p.db.SetFileExists(id, false)
			res.Removed++
		}
		files = append(files, id)
	}
	slices.Sort(files)
	if !slices.Equal(p.db.q.projectFiles.Current(p.db.rt, p.id), files) {
		p.db.SetProjectFiles(p.id, files)
	}

	p.db.logger.Debug("project synced",
		slog.String("root", p.root),
		slog.Int("files", res.Files),
		slog.Int("added", res.Added),
		slog.Int("changed", res.Changed),
		slog.Int("removed", res.Removed))
	return res, nil
}

// Refresh rereads the given files from disk. Paths that no longer exist are
// marked missing. Unknown paths that exist are added to the project.
func (p *Project) Refresh(ctx context.Context, rels []string) (int, error) {
	changed := 0
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		data, err := os.ReadFile(p.abs(rel))
		exists := err == nil
		if err != nil && !os.IsNotExist(err) {
			return changed, fmt.Errorf("novadb: read %s: %w", rel, err)
		}

		p.mu.Lock()
		if _, known := p.ids[rel]; !known && !exists {
			p.mu.Unlock()
			continue
		}
		id, added := p.ensure(rel)
		if added {
			files := append(slices.Clone(p.db.q.projectFiles.Current(p.db.rt, p.id)), id)
			p.db.SetProjectFiles(p.id, files)
		}
		if p.apply(id, string(data), exists) || added {
			changed++
		}
		p.mu.Unlock()
	}
	return changed, nil
}

// Edit replaces the in-memory content of rel and marks it dirty. The file
// must already be known.
func (p *Project) Edit(rel, text string) error {
	id, ok := p.FileID(rel)
	if !ok {
		return fmt.Errorf("novadb: unknown file %s", rel)
	}
	p.db.SetFileContent(id, text)
	if !p.db.q.fileIsDirty.Current(p.db.rt, id) {
		p.db.SetFileIsDirty(id, true)
	}
	return nil
}

// Save clears the dirty flag of rel after the host wrote it to disk.
func (p *Project) Save(ctx context.Context, rel string) error {
	id, ok := p.FileID(rel)
	if !ok {
		return fmt.Errorf("novadb: unknown file %s", rel)
	}
	p.db.SetFileIsDirty(id, false)
	_, err := p.Refresh(ctx, []string{rel})
	return err
}

// ensure returns rel's id, allocating one for a new path.
func (p *Project) ensure(rel string) (FileID, bool) {
	if id, ok := p.ids[rel]; ok {
		return id, false
	}
	id := FileID(p.db.nextFile.Add(1))
	p.ids[rel] = id
	p.db.SetFileRelPath(id, rel)
	p.db.SetFileProject(id, p.id)
	return id, true
}

// apply writes the file's inputs that differ from their current values and
// reports whether anything changed. Dirty files keep their content.
func (p *Project) apply(id FileID, text string, exists bool) bool {
	d := p.db
	changed := false
	if d.q.fileExists.Current(d.rt, id) != exists {
		d.SetFileExists(id, exists)
		changed = true
	}
	if exists && !d.q.fileIsDirty.Current(d.rt, id) && d.q.fileContent.Current(d.rt, id) != text {
		d.SetFileContent(id, text)
		changed = true
	}
	return changed
}

func (p *Project) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// readAll reads the files with a bounded worker pool, preserving order.
func (p *Project) readAll(ctx context.Context, rels []string) ([]fileRead, error) {
	out := make([]fileRead, len(rels))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for i, rel := range rels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p.abs(rel))
			if err != nil {
				return fmt.Errorf("novadb: read %s: %w", rel, err)
			}
			out[i] = fileRead{rel: rel, text: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
