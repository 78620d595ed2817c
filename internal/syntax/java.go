package syntax

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// LatestLanguageLevel is the Java release assumed when a project does not
// configure one.
const LatestLanguageLevel = 21

// featureLevels maps syntax kinds to the first Java release supporting them.
var featureLevels = map[string]struct {
	level int
	name  string
}{
	"record_declaration": {16, "records"},
	"permits":            {17, "sealed classes"},
	"sealed":             {17, "sealed classes"},
	"non-sealed":         {17, "sealed classes"},
}

// JavaParseResult augments a ParseResult with Java-specific facts.
type JavaParseResult struct {
	Parse         *ParseResult
	LanguageLevel int
	LineStarts    []uint32
	Package       string
	Imports       []string

	// Diagnostics holds the syntax diagnostics followed by language-level
	// diagnostics.
	Diagnostics []Diagnostic
}

// AnalyzeJava derives Java facts from a parsed tree of text. level is the
// configured language level; zero means LatestLanguageLevel.
func AnalyzeJava(p *ParseResult, text string, level int) *JavaParseResult {
	if level <= 0 {
		level = LatestLanguageLevel
	}
	out := &JavaParseResult{
		Parse:         p,
		LanguageLevel: level,
		LineStarts:    LineStarts(text),
	}
	if p == nil || p.Root == nil {
		return out
	}
	out.Diagnostics = append(out.Diagnostics, p.Diagnostics...)

	p.Root.Walk(0, func(n *Node, start uint32) bool {
		if f, ok := featureLevels[n.Kind]; ok && level < f.level {
			out.Diagnostics = append(out.Diagnostics, Diagnostic{
				Message: fmt.Sprintf("%s require Java %d (language level is %d)", f.name, f.level, level),
				Range:   TextRange{Start: start, End: start + n.Width},
			})
		}
		switch n.Kind {
		case "package_declaration":
			out.Package = qualifiedName(n)
			return false
		case "import_declaration":
			out.Imports = append(out.Imports, importName(n))
			return false
		}
		return true
	})
	return out
}

// Equal reports whether two results are identical.
func (j *JavaParseResult) Equal(o *JavaParseResult) bool {
	if j == o {
		return true
	}
	if j == nil || o == nil {
		return false
	}
	return j.LanguageLevel == o.LanguageLevel &&
		j.Package == o.Package &&
		slices.Equal(j.Imports, o.Imports) &&
		slices.Equal(j.LineStarts, o.LineStarts) &&
		slices.Equal(j.Diagnostics, o.Diagnostics) &&
		j.Parse.Equal(o.Parse)
}

// Position converts a byte offset into a zero-based line and column.
func (j *JavaParseResult) Position(offset uint32) (line, col uint32) {
	return Position(j.LineStarts, offset)
}

// EstimatedBytes approximates the result's heap footprint.
func (j *JavaParseResult) EstimatedBytes() uint64 {
	if j == nil {
		return 0
	}
	total := 4*uint64(len(j.LineStarts)) + uint64(len(j.Package))
	for _, imp := range j.Imports {
		total += 16 + uint64(len(imp))
	}
	return total + j.Parse.EstimatedBytes()
}

// LineStarts returns the byte offset at which each line of text begins.
func LineStarts(text string) []uint32 {
	starts := []uint32{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, uint32(i+1))
		}
	}
	return starts
}

// Position converts a byte offset into a zero-based line and column using a
// LineStarts table.
func Position(starts []uint32, offset uint32) (line, col uint32) {
	if len(starts) == 0 {
		return 0, offset
	}
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return uint32(i), offset - starts[i]
}

// qualifiedName returns the dotted name inside a package declaration.
func qualifiedName(n *Node) string {
	for _, c := range n.Children {
		switch c.Kind {
		case "scoped_identifier", "identifier":
			return compact(c.String())
		}
	}
	return ""
}

// importName returns the imported name, with ".*" for on-demand imports and
// a "static " prefix for static imports.
func importName(n *Node) string {
	var b strings.Builder
	for _, c := range n.Children {
		switch c.Kind {
		case "static":
			b.WriteString("static ")
		case "scoped_identifier", "identifier":
			b.WriteString(compact(c.String()))
		case "asterisk":
			b.WriteString(".*")
		}
	}
	return b.String()
}

// compact strips whitespace from a rendered name.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
