// Package itemtree extracts the declaration structure of a Java file.
//
// An ItemTree records every type and member declaration with its source
// range. A SymbolSummary keeps only the declared names, so it is unchanged
// by edits that merely move code around.
package itemtree

import (
	"slices"
	"strings"

	"github.com/jward/novadb/internal/syntax"
)

// Kind classifies a declaration.
type Kind string

const (
	KindClass        Kind = "class"
	KindInterface    Kind = "interface"
	KindEnum         Kind = "enum"
	KindRecord       Kind = "record"
	KindAnnotation   Kind = "annotation"
	KindMethod       Kind = "method"
	KindConstructor  Kind = "constructor"
	KindField        Kind = "field"
	KindEnumConstant Kind = "enum_constant"
)

// IsType reports whether k declares a type.
func (k Kind) IsType() bool {
	switch k {
	case KindClass, KindInterface, KindEnum, KindRecord, KindAnnotation:
		return true
	}
	return false
}

// TypeRef is a use of a type name, reduced to its simple name.
type TypeRef struct {
	Name  string
	Range syntax.TextRange
}

// Item is one declaration.
type Item struct {
	Kind        Kind
	Name        string
	Range       syntax.TextRange
	NameRange   syntax.TextRange
	Supertypes  []string
	Annotations []string

	// TypeRefs are the type names used in the declaration's signature:
	// supertypes, field types, return types and parameter types.
	TypeRefs []TypeRef

	Children []Item
}

// Equal reports whether two items and their children are identical.
func (it *Item) Equal(o *Item) bool {
	if it.Kind != o.Kind || it.Name != o.Name || it.Range != o.Range || it.NameRange != o.NameRange ||
		!slices.Equal(it.Supertypes, o.Supertypes) || !slices.Equal(it.Annotations, o.Annotations) ||
		!slices.Equal(it.TypeRefs, o.TypeRefs) || len(it.Children) != len(o.Children) {
		return false
	}
	for i := range it.Children {
		if !it.Children[i].Equal(&o.Children[i]) {
			return false
		}
	}
	return true
}

// ItemTree is the range-sensitive declaration structure of one file.
type ItemTree struct {
	Package string
	Imports []string
	Items   []Item
}

// Equal reports whether two trees are identical, ranges included.
func (t *ItemTree) Equal(o *ItemTree) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.Package != o.Package || !slices.Equal(t.Imports, o.Imports) || len(t.Items) != len(o.Items) {
		return false
	}
	for i := range t.Items {
		if !t.Items[i].Equal(&o.Items[i]) {
			return false
		}
	}
	return true
}

// Walk visits every item in preorder with the name of its enclosing type
// ("" at top level).
func (t *ItemTree) Walk(fn func(it *Item, container string)) {
	var visit func(items []Item, container string)
	visit = func(items []Item, container string) {
		for i := range items {
			it := &items[i]
			fn(it, container)
			if len(it.Children) > 0 {
				visit(it.Children, qualify(container, it.Name))
			}
		}
	}
	visit(t.Items, "")
}

func qualify(container, name string) string {
	if container == "" {
		return name
	}
	return container + "." + name
}

// Count returns the number of declarations in the tree.
func (t *ItemTree) Count() int {
	n := 0
	t.Walk(func(*Item, string) { n++ })
	return n
}

// SymbolSummary lists the declared names of a file in preorder. It carries
// no ranges.
type SymbolSummary struct {
	Names []string
}

// Summarize reduces an ItemTree to its names.
func Summarize(t *ItemTree) *SymbolSummary {
	s := &SymbolSummary{}
	if t == nil {
		return s
	}
	t.Walk(func(it *Item, _ string) {
		s.Names = append(s.Names, it.Name)
	})
	return s
}

// Equal reports whether two summaries list the same names.
func (s *SymbolSummary) Equal(o *SymbolSummary) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.Names, o.Names)
}

// Len returns the number of names.
func (s *SymbolSummary) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Names)
}

// String joins the names for debugging output.
func (s *SymbolSummary) String() string {
	return strings.Join(s.Names, ",")
}
