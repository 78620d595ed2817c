package itemtree

import (
	"strings"

	"github.com/jward/novadb/internal/syntax"
)

// declKinds maps grammar kinds to declaration kinds.
var declKinds = map[string]Kind{
	"class_declaration":                   KindClass,
	"interface_declaration":               KindInterface,
	"enum_declaration":                    KindEnum,
	"record_declaration":                  KindRecord,
	"annotation_type_declaration":         KindAnnotation,
	"method_declaration":                  KindMethod,
	"constructor_declaration":             KindConstructor,
	"compact_constructor_declaration":     KindConstructor,
	"annotation_type_element_declaration": KindMethod,
	"field_declaration":                   KindField,
	"constant_declaration":                KindField,
	"enum_constant":                       KindEnumConstant,
}

// containers are grammar kinds whose children may hold member declarations.
var containers = map[string]bool{
	"program":                true,
	"class_body":             true,
	"interface_body":         true,
	"enum_body":              true,
	"enum_body_declarations": true,
	"annotation_type_body":   true,
}

// Build extracts the item tree of a parsed Java file.
func Build(j *syntax.JavaParseResult) *ItemTree {
	t := &ItemTree{}
	if j == nil || j.Parse == nil || j.Parse.Root == nil {
		return t
	}
	t.Package = j.Package
	t.Imports = append([]string(nil), j.Imports...)
	t.Items = collect(j.Parse.Root, 0)
	return t
}

// collect gathers the declarations directly inside container n.
func collect(n *syntax.Node, offset uint32) []Item {
	var items []Item
	for _, c := range n.Children {
		start := offset
		offset += c.Width
		kind, ok := declKinds[c.Kind]
		switch {
		case ok && kind == KindField:
			items = append(items, fields(c, start)...)
		case ok:
			items = append(items, declaration(c, kind, start))
		case containers[c.Kind]:
			items = append(items, collect(c, start)...)
		}
	}
	return items
}

func declaration(n *syntax.Node, kind Kind, start uint32) Item {
	it := Item{
		Kind:  kind,
		Range: syntax.TextRange{Start: start, End: start + n.Width},
	}
	off := start
	for _, c := range n.Children {
		switch {
		case c.Field == "name":
			it.Name = c.String()
			it.NameRange = syntax.TextRange{Start: off, End: off + c.Width}
		case c.Kind == "modifiers":
			it.Annotations = annotations(c)
		case c.Field == "superclass", c.Field == "interfaces", c.Kind == "extends_interfaces":
			it.Supertypes = append(it.Supertypes, typeNames(c)...)
			it.TypeRefs = append(it.TypeRefs, typeRefs(c, off)...)
		case c.Field == "type" && !kind.IsType(), c.Field == "parameters":
			it.TypeRefs = append(it.TypeRefs, typeRefs(c, off)...)
		case c.Field == "body" && kind.IsType():
			it.Children = collect(c, off)
		}
		off += c.Width
	}
	return it
}

// fields expands a field declaration into one item per declarator.
func fields(n *syntax.Node, start uint32) []Item {
	var annots []string
	var refs []TypeRef
	var items []Item
	off := start
	for _, c := range n.Children {
		switch {
		case c.Kind == "modifiers":
			annots = annotations(c)
		case c.Field == "type":
			refs = typeRefs(c, off)
		case c.Field == "declarator":
			if name := c.ChildByField("name"); name != nil {
				nameOff := off
				for _, d := range c.Children {
					if d == name {
						break
					}
					nameOff += d.Width
				}
				items = append(items, Item{
					Kind:      KindField,
					Name:      name.String(),
					Range:     syntax.TextRange{Start: start, End: start + n.Width},
					NameRange: syntax.TextRange{Start: nameOff, End: nameOff + name.Width},
				})
			}
		}
		off += c.Width
	}
	for i := range items {
		items[i].Annotations = annots
	}
	// The type is written once for all declarators.
	if len(items) > 0 {
		items[0].TypeRefs = refs
	}
	return items
}

// annotations returns the names of the annotations in a modifiers node.
func annotations(mods *syntax.Node) []string {
	var out []string
	for _, c := range mods.Children {
		if c.Kind != "marker_annotation" && c.Kind != "annotation" {
			continue
		}
		if name := c.ChildByField("name"); name != nil {
			out = append(out, compact(name.String()))
		}
	}
	return out
}

// typeNames returns the raw type names under a superclass or interface
// clause, without type arguments.
func typeNames(n *syntax.Node) []string {
	var out []string
	n.Walk(0, func(c *syntax.Node, _ uint32) bool {
		switch c.Kind {
		case "type_identifier", "scoped_type_identifier":
			out = append(out, compact(c.String()))
			return false
		case "generic_type":
			if len(c.Children) > 0 {
				base := c.Children[0]
				out = append(out, compact(base.String()))
			}
			return false
		}
		return true
	})
	return out
}

// typeRefs returns every type name used under n, which starts at offset
// start. Qualified names keep their last segment; type arguments are
// included and primitive types are not.
func typeRefs(n *syntax.Node, start uint32) []TypeRef {
	var out []TypeRef
	n.Walk(start, func(c *syntax.Node, off uint32) bool {
		switch c.Kind {
		case "type_identifier":
			out = append(out, TypeRef{Name: c.String(), Range: syntax.TextRange{Start: off, End: off + c.Width}})
			return false
		case "scoped_type_identifier":
			var last *syntax.Node
			var lastOff uint32
			child := off
			for _, cc := range c.Children {
				if cc.Kind == "type_identifier" {
					last, lastOff = cc, child
				}
				child += cc.Width
			}
			if last != nil {
				out = append(out, TypeRef{Name: last.String(), Range: syntax.TextRange{Start: lastOff, End: lastOff + last.Width}})
			}
			return false
		}
		return true
	})
	return out
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
