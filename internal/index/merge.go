package index

import (
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Stamp identifies a merged index by its content digest and generation.
type Stamp struct {
	Digest     uint64
	Generation uint64
}

// ProjectIndexes is the merge of every shard of a project.
type ProjectIndexes struct {
	Tables

	// Subtypes maps a type's simple name to its direct subtypes.
	Subtypes map[string][]string

	// Generation advances only when the merged content changes.
	Generation uint64
	Digest     uint64
}

// Merge folds shards into one ProjectIndexes. prev is the stamp of the
// previous merge for the same project, or nil if there was none: the
// generation is kept when the content is unchanged and advanced otherwise.
// A first merge has generation 1.
func Merge(shards []*ProjectIndexShard, prev *Stamp) *ProjectIndexes {
	out := &ProjectIndexes{
		Tables:   newTables(),
		Subtypes: make(map[string][]string),
	}
	for _, s := range shards {
		if s != nil {
			out.absorb(&s.Tables)
		}
	}
	out.normalize()

	for typ, supers := range out.Supertypes {
		for _, super := range supers {
			out.Subtypes[super] = append(out.Subtypes[super], typ)
		}
	}
	for _, subs := range out.Subtypes {
		slices.Sort(subs)
	}

	h := xxhash.New()
	out.digest(h)
	out.Digest = h.Sum64()

	switch {
	case prev == nil:
		out.Generation = 1
	case prev.Digest == out.Digest:
		out.Generation = prev.Generation
	default:
		out.Generation = prev.Generation + 1
	}
	return out
}

// Stamp returns the index's digest and generation.
func (p *ProjectIndexes) Stamp() Stamp {
	return Stamp{Digest: p.Digest, Generation: p.Generation}
}

// SameContent reports whether two indexes hold the same entries,
// regardless of generation.
func (p *ProjectIndexes) SameContent(o *ProjectIndexes) bool {
	return p.Digest == o.Digest && p.Tables.Equal(&o.Tables)
}

// Equal reports whether two indexes are identical, generation included.
func (p *ProjectIndexes) Equal(o *ProjectIndexes) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return p.Generation == o.Generation && p.SameContent(o)
}

// SubtypesOf returns the direct subtypes of the type named name.
func (p *ProjectIndexes) SubtypesOf(name string) []string {
	return p.Subtypes[name]
}

// EstimatedBytes approximates the index's heap footprint.
func (p *ProjectIndexes) EstimatedBytes() uint64 {
	if p == nil {
		return 0
	}
	total := 32 + p.Tables.estimatedBytes()
	for name, subs := range p.Subtypes {
		total += 32 + uint64(len(name))
		for _, s := range subs {
			total += 16 + uint64(len(s))
		}
	}
	return total
}
