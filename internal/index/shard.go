package index

import (
	"cmp"
	"encoding/binary"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// ShardCount is the fixed number of shards every project index is split
// into.
const ShardCount = 16

// ShardForPath returns the shard a workspace-relative path belongs to. It
// depends on the path alone.
func ShardForPath(relPath string) uint32 {
	return uint32(xxhash.Sum64String(relPath) % ShardCount)
}

// Tables holds the merged lookup tables shared by shards and the project
// index.
type Tables struct {
	// Symbols maps a simple name to every declaration of it.
	Symbols map[string][]Symbol

	// Supertypes maps a type's simple name to its direct supertypes.
	Supertypes map[string][]string

	// Annotations maps an annotation name to the locations it is applied at.
	Annotations map[string][]Location

	// References maps a type's simple name to the locations it is used at.
	References map[string][]Location
}

func newTables() Tables {
	return Tables{
		Symbols:     make(map[string][]Symbol),
		Supertypes:  make(map[string][]string),
		Annotations: make(map[string][]Location),
		References:  make(map[string][]Location),
	}
}

func (t *Tables) addDelta(d *FileIndexDelta) {
	for _, s := range d.Symbols {
		t.Symbols[s.Name] = append(t.Symbols[s.Name], s)
	}
	for _, s := range d.Supertypes {
		t.Supertypes[s.Type] = append(t.Supertypes[s.Type], s.Super)
	}
	for _, a := range d.Annotations {
		t.Annotations[a.Name] = append(t.Annotations[a.Name], a.Location)
	}
	for _, r := range d.References {
		t.References[r.Name] = append(t.References[r.Name], r.Location)
	}
}

func (t *Tables) absorb(o *Tables) {
	for name, syms := range o.Symbols {
		t.Symbols[name] = append(t.Symbols[name], syms...)
	}
	for name, supers := range o.Supertypes {
		t.Supertypes[name] = append(t.Supertypes[name], supers...)
	}
	for name, locs := range o.Annotations {
		t.Annotations[name] = append(t.Annotations[name], locs...)
	}
	for name, locs := range o.References {
		t.References[name] = append(t.References[name], locs...)
	}
}

// normalize sorts every list so the tables do not depend on fold order.
func (t *Tables) normalize() {
	for _, syms := range t.Symbols {
		slices.SortFunc(syms, compareSymbols)
	}
	for name, supers := range t.Supertypes {
		slices.Sort(supers)
		t.Supertypes[name] = slices.Compact(supers)
	}
	for _, locs := range t.Annotations {
		slices.SortFunc(locs, Location.Compare)
	}
	for _, locs := range t.References {
		slices.SortFunc(locs, Location.Compare)
	}
}

// Equal reports whether two tables hold the same entries.
func (t *Tables) Equal(o *Tables) bool {
	return maps.EqualFunc(t.Symbols, o.Symbols, slices.Equal[[]Symbol]) &&
		maps.EqualFunc(t.Supertypes, o.Supertypes, slices.Equal[[]string]) &&
		maps.EqualFunc(t.Annotations, o.Annotations, slices.Equal[[]Location]) &&
		maps.EqualFunc(t.References, o.References, slices.Equal[[]Location])
}

// Lookup returns every declaration named name.
func (t *Tables) Lookup(name string) []Symbol {
	return t.Symbols[name]
}

// SupertypesOf returns the direct supertypes of the type named name.
func (t *Tables) SupertypesOf(name string) []string {
	return t.Supertypes[name]
}

// AnnotatedWith returns the locations annotated with name.
func (t *Tables) AnnotatedWith(name string) []Location {
	return t.Annotations[name]
}

// ReferencesTo returns the locations where the type named name is used.
func (t *Tables) ReferencesTo(name string) []Location {
	return t.References[name]
}

// SymbolCount returns the number of distinct symbol names.
func (t *Tables) SymbolCount() int {
	return len(t.Symbols)
}

// estimatedBytes approximates the tables' heap footprint.
func (t *Tables) estimatedBytes() uint64 {
	var total uint64 = 4 * 48
	for name, syms := range t.Symbols {
		total += 32 + uint64(len(name))
		for _, s := range syms {
			total += symbolBytes(s)
		}
	}
	for name, supers := range t.Supertypes {
		total += 32 + uint64(len(name))
		for _, s := range supers {
			total += 16 + uint64(len(s))
		}
	}
	for _, m := range []map[string][]Location{t.Annotations, t.References} {
		for name, locs := range m {
			total += 32 + uint64(len(name))
			for _, l := range locs {
				total += 24 + uint64(len(l.File))
			}
		}
	}
	return total
}

// digest hashes the tables in a canonical order.
func (t *Tables) digest(h *xxhash.Digest) {
	var buf [4]byte
	str := func(s string) {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(s)))
		h.Write(buf[:])
		h.WriteString(s)
	}
	num := func(n uint32) {
		binary.LittleEndian.PutUint32(buf[:], n)
		h.Write(buf[:])
	}
	loc := func(l Location) {
		str(l.File)
		num(l.Line)
		num(l.Column)
	}

	for _, name := range slices.Sorted(maps.Keys(t.Symbols)) {
		str(name)
		for _, s := range t.Symbols[name] {
			str(s.Kind)
			str(s.Container)
			loc(s.Location)
		}
	}
	h.WriteString("\x00supertypes")
	for _, name := range slices.Sorted(maps.Keys(t.Supertypes)) {
		str(name)
		for _, s := range t.Supertypes[name] {
			str(s)
		}
	}
	h.WriteString("\x00annotations")
	for _, name := range slices.Sorted(maps.Keys(t.Annotations)) {
		str(name)
		for _, l := range t.Annotations[name] {
			loc(l)
		}
	}
	h.WriteString("\x00references")
	for _, name := range slices.Sorted(maps.Keys(t.References)) {
		str(name)
		for _, l := range t.References[name] {
			loc(l)
		}
	}
}

// ProjectIndexShard merges the deltas of every file assigned to one shard.
type ProjectIndexShard struct {
	ID uint32
	Tables

	// Files keeps each contributing file's delta, keyed by relative path.
	Files map[string]*FileIndexDelta
}

// NewShard folds deltas into shard id.
func NewShard(id uint32, deltas []*FileIndexDelta) *ProjectIndexShard {
	s := &ProjectIndexShard{
		ID:     id,
		Tables: newTables(),
		Files:  make(map[string]*FileIndexDelta, len(deltas)),
	}
	sorted := slices.DeleteFunc(slices.Clone(deltas), func(d *FileIndexDelta) bool { return d == nil })
	slices.SortFunc(sorted, func(a, b *FileIndexDelta) int { return cmp.Compare(a.File, b.File) })
	for _, d := range sorted {
		s.Files[d.File] = d
		s.addDelta(d)
	}
	s.normalize()
	return s
}

// Equal reports whether two shards hold the same files and entries.
func (s *ProjectIndexShard) Equal(o *ProjectIndexShard) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	return s.ID == o.ID &&
		maps.EqualFunc(s.Files, o.Files, (*FileIndexDelta).Equal) &&
		s.Tables.Equal(&o.Tables)
}

// Paths returns the relative paths of the shard's files in sorted order.
func (s *ProjectIndexShard) Paths() []string {
	return slices.Sorted(maps.Keys(s.Files))
}

// EstimatedBytes approximates the shard's heap footprint.
func (s *ProjectIndexShard) EstimatedBytes() uint64 {
	if s == nil {
		return 0
	}
	total := 16 + s.Tables.estimatedBytes()
	for path, d := range s.Files {
		total += 16 + uint64(len(path)) + d.EstimatedBytes()
	}
	return total
}
