package config

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Matches reports whether the slash-separated relative path rel is
// included and not excluded.
func (ix Index) Matches(rel string) (bool, error) {
	excluded, err := matchAny(ix.Exclude, rel)
	if err != nil || excluded {
		return false, err
	}
	return matchAny(ix.Include, rel)
}

func matchAny(patterns []string, rel string) (bool, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return false, fmt.Errorf("config: pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("config: pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ExcludesDir reports whether the directory rel is excluded as a whole, so
// nothing beneath it can match.
func (ix Index) ExcludesDir(rel string) (bool, error) {
	return matchAny(ix.Exclude, path.Join(rel, "x"))
}

// Discover walks root and returns the slash-separated relative paths of every
// matching regular file, sorted.
func (ix Index) Discover(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			skip, err := ix.ExcludesDir(rel)
			if err != nil {
				return err
			}
			if skip {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := ix.Matches(rel)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("config: discover %s: %w", root, err)
	}
	slices.Sort(out)
	return out, nil
}
