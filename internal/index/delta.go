// Package index builds the project-wide symbol index.
//
// Each file contributes a FileIndexDelta. Deltas are grouped into a fixed
// number of shards by hashing the file's relative path, each shard folds its
// deltas into one ProjectIndexShard, and Merge folds all shards into the
// ProjectIndexes. Every value is immutable once built.
package index

import (
	"cmp"
	"slices"

	"github.com/jward/novadb/internal/itemtree"
)

// Location is a zero-based position in a workspace-relative file.
type Location struct {
	File   string
	Line   uint32
	Column uint32
}

// Compare orders locations by file, line, then column.
func (l Location) Compare(o Location) int {
	return cmp.Or(
		cmp.Compare(l.File, o.File),
		cmp.Compare(l.Line, o.Line),
		cmp.Compare(l.Column, o.Column),
	)
}

// Symbol is one declared name.
type Symbol struct {
	Name      string
	Kind      string
	Container string
	Location  Location
}

func compareSymbols(a, b Symbol) int {
	return cmp.Or(
		a.Location.Compare(b.Location),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Container, b.Container),
		cmp.Compare(a.Name, b.Name),
	)
}

// Supertype records that Type directly extends or implements Super.
type Supertype struct {
	Type  string
	Super string
}

// AnnotationUse records an annotation applied to a declaration.
type AnnotationUse struct {
	Name     string
	Target   string
	Location Location
}

// Reference records a use of a type name.
type Reference struct {
	Name     string
	Location Location
}

// FileIndexDelta is one file's contribution to the project index.
type FileIndexDelta struct {
	File        string
	Symbols     []Symbol
	Supertypes  []Supertype
	Annotations []AnnotationUse
	References  []Reference
}

// PositionFunc maps a byte offset to a zero-based line and column.
type PositionFunc func(offset uint32) (line, col uint32)

// BuildDelta derives the index contribution of the file at relPath from its
// item tree.
func BuildDelta(relPath string, tree *itemtree.ItemTree, position PositionFunc) *FileIndexDelta {
	d := &FileIndexDelta{File: relPath}
	if tree == nil {
		return d
	}
	tree.Walk(func(it *itemtree.Item, container string) {
		if tree.Package != "" {
			if container == "" {
				container = tree.Package
			} else {
				container = tree.Package + "." + container
			}
		}
		line, col := position(it.NameRange.Start)
		loc := Location{File: relPath, Line: line, Column: col}
		d.Symbols = append(d.Symbols, Symbol{
			Name:      it.Name,
			Kind:      string(it.Kind),
			Container: container,
			Location:  loc,
		})
		for _, super := range it.Supertypes {
			d.Supertypes = append(d.Supertypes, Supertype{Type: it.Name, Super: super})
		}
		for _, a := range it.Annotations {
			d.Annotations = append(d.Annotations, AnnotationUse{Name: a, Target: it.Name, Location: loc})
		}
		for _, r := range it.TypeRefs {
			line, col := position(r.Range.Start)
			d.References = append(d.References, Reference{
				Name:     r.Name,
				Location: Location{File: relPath, Line: line, Column: col},
			})
		}
	})
	return d
}

// Equal reports whether two deltas are identical.
func (d *FileIndexDelta) Equal(o *FileIndexDelta) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil {
		return false
	}
	return d.File == o.File &&
		slices.Equal(d.Symbols, o.Symbols) &&
		slices.Equal(d.Supertypes, o.Supertypes) &&
		slices.Equal(d.Annotations, o.Annotations) &&
		slices.Equal(d.References, o.References)
}

// EstimatedBytes approximates the delta's heap footprint.
func (d *FileIndexDelta) EstimatedBytes() uint64 {
	if d == nil {
		return 0
	}
	total := 48 + uint64(len(d.File))
	for _, s := range d.Symbols {
		total += symbolBytes(s)
	}
	for _, s := range d.Supertypes {
		total += 32 + uint64(len(s.Type)+len(s.Super))
	}
	for _, a := range d.Annotations {
		total += 56 + uint64(len(a.Name)+len(a.Target)+len(a.Location.File))
	}
	for _, r := range d.References {
		total += 40 + uint64(len(r.Name)+len(r.Location.File))
	}
	return total
}

func symbolBytes(s Symbol) uint64 {
	return 72 + uint64(len(s.Name)+len(s.Kind)+len(s.Container)+len(s.Location.File))
}
