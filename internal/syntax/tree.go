// Package syntax turns Java source text into a lossless syntax tree.
//
// Trees are built from the tree-sitter Java grammar. Every byte of the input
// belongs to exactly one leaf: tokens, comments and the whitespace between
// them, so concatenating the leaves reproduces the source. Nodes store widths
// rather than absolute offsets, which lets equal subtrees compare equal
// regardless of where they sit in the file.
package syntax

import (
	"slices"
	"strings"
)

// Kind names for leaves synthesized between grammar tokens.
const (
	KindWhitespace = "whitespace"
	KindError      = "ERROR"
	KindProgram    = "program"
)

// TextRange is a half-open byte range.
type TextRange struct {
	Start uint32
	End   uint32
}

// Len returns the range's width in bytes.
func (r TextRange) Len() uint32 {
	return r.End - r.Start
}

// Node is one node of a lossless syntax tree.
type Node struct {
	Kind string

	// Field is the grammar field name the node occupies in its parent, if any.
	Field string

	// Text is set on leaves only.
	Text     string
	Width    uint32
	Missing  bool
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Equal reports whether two trees are structurally identical.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	if n.Kind != o.Kind || n.Field != o.Field || n.Text != o.Text ||
		n.Width != o.Width || n.Missing != o.Missing || len(n.Children) != len(o.Children) {
		return false
	}
	for i, c := range n.Children {
		if !c.Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Render writes the source text covered by n.
func (n *Node) Render(b *strings.Builder) {
	if n.IsLeaf() {
		b.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.Render(b)
	}
}

// String returns the source text covered by n.
func (n *Node) String() string {
	var b strings.Builder
	n.Render(&b)
	return b.String()
}

// ChildByField returns the first child with the given field name.
func (n *Node) ChildByField(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child with the given field name.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// ChildOfKind returns the first child of the given kind.
func (n *Node) ChildOfKind(kind string) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants in source order with their start
// offsets. Returning false from fn skips the node's children.
func (n *Node) Walk(offset uint32, fn func(n *Node, start uint32) bool) {
	if !fn(n, offset) {
		return
	}
	for _, c := range n.Children {
		c.Walk(offset, fn)
		offset += c.Width
	}
}

// Diagnostic is a syntax or language-level problem at a source range.
type Diagnostic struct {
	Message string
	Range   TextRange
}

// ParseResult is a lossless tree plus the diagnostics found while parsing.
type ParseResult struct {
	Root        *Node
	Diagnostics []Diagnostic
}

// Equal reports whether both trees and diagnostics match.
func (p *ParseResult) Equal(o *ParseResult) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return p.Root.Equal(o.Root) && slices.Equal(p.Diagnostics, o.Diagnostics)
}

// Text reconstructs the parsed source.
func (p *ParseResult) Text() string {
	if p == nil || p.Root == nil {
		return ""
	}
	return p.Root.String()
}

// HasErrors reports whether parsing produced any diagnostic.
func (p *ParseResult) HasErrors() bool {
	return p != nil && len(p.Diagnostics) > 0
}

// EstimatedBytes approximates the tree's heap footprint.
func (p *ParseResult) EstimatedBytes() uint64 {
	if p == nil {
		return 0
	}
	var total uint64
	if p.Root != nil {
		p.Root.Walk(0, func(n *Node, _ uint32) bool {
			total += 64 + uint64(len(n.Text)) + 8*uint64(len(n.Children))
			return true
		})
	}
	for _, d := range p.Diagnostics {
		total += 32 + uint64(len(d.Message))
	}
	return total
}
