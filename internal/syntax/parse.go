package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".java": "java",
}

var (
	javaGrammar *sitter.Language
	grammarOnce sync.Once
)

func grammar() *sitter.Language {
	grammarOnce.Do(func() {
		javaGrammar = java.GetLanguage()
	})
	return javaGrammar
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Parsers are not safe for concurrent use; each parse borrows one.
var parsers = sync.Pool{
	New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(grammar())
		return p
	},
}

// Parse parses Java source into a lossless tree. Syntax errors are reported
// as diagnostics; the returned error is non-nil only if the parser itself
// failed.
func Parse(ctx context.Context, src string) (*ParseResult, error) {
	parser := parsers.Get().(*sitter.Parser)
	defer parsers.Put(parser)

	content := []byte(src)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	b := &builder{src: src}
	root := tree.RootNode()
	program := &Node{Kind: root.Type(), Width: uint32(len(src))}
	program.Children = b.children(root, 0, uint32(len(src)))
	return &ParseResult{Root: program, Diagnostics: b.diags}, nil
}

type builder struct {
	src   string
	diags []Diagnostic
}

func (b *builder) report(msg string, start, end uint32) {
	b.diags = append(b.diags, Diagnostic{Message: msg, Range: TextRange{Start: start, End: end}})
}

// children converts the children of n, filling every gap in [start, end)
// that no child covers with a whitespace leaf.
func (b *builder) children(n *sitter.Node, start, end uint32) []*Node {
	var out []*Node
	pos := start
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		cs, ce := child.StartByte(), child.EndByte()
		if cs < pos {
			// Overlapping children only occur around recovered errors;
			// clamp so every byte is emitted once.
			cs = pos
		}
		ce = min(max(ce, cs), end)
		if cs > ce {
			cs = ce
		}
		if cs > pos {
			out = append(out, b.gap(pos, cs))
		}
		out = append(out, b.convert(child, n.FieldNameForChild(i), cs, ce))
		pos = ce
	}
	if end > pos {
		out = append(out, b.gap(pos, end))
	}
	return out
}

func (b *builder) gap(start, end uint32) *Node {
	return &Node{Kind: KindWhitespace, Text: b.src[start:end], Width: end - start}
}

func (b *builder) convert(n *sitter.Node, field string, start, end uint32) *Node {
	out := &Node{Kind: n.Type(), Field: field, Width: end - start}
	switch {
	case n.IsMissing():
		out.Missing = true
		b.report(fmt.Sprintf("missing %s", n.Type()), start, end)
		return out
	case n.Type() == KindError:
		b.report("unexpected syntax", start, end)
	}
	if n.ChildCount() == 0 {
		out.Text = b.src[start:end]
		return out
	}
	out.Children = b.children(n, start, end)
	return out
}
