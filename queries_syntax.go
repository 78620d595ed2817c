package novadb

import (
	"context"

	"github.com/jward/novadb/internal/itemtree"
	"github.com/jward/novadb/internal/query"
	"github.com/jward/novadb/internal/syntax"
)

func (d *Database) computeParse(c *query.Ctx, file FileID) (*syntax.ParseResult, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	return syntax.Parse(context.Background(), d.q.fileContent.Get(c, file))
}

// computeParseJava analyzes the file at its project's language level. A file
// that does not exist is treated as an empty compilation unit.
func (d *Database) computeParseJava(c *query.Ctx, file FileID) (*syntax.JavaParseResult, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	level := d.q.projectConfig.Get(c, d.q.fileProject.Get(c, file)).LanguageLevel

	if !d.q.fileExists.Get(c, file) {
		p, err := syntax.Parse(context.Background(), "")
		if err != nil {
			return nil, err
		}
		return syntax.AnalyzeJava(p, "", level), nil
	}
	p, err := d.q.parse.Get(c, file)
	if err != nil {
		return nil, err
	}
	return syntax.AnalyzeJava(p, d.q.fileContent.Get(c, file), level), nil
}

func (d *Database) computeItemTree(c *query.Ctx, file FileID) (*itemtree.ItemTree, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	j, err := d.q.parseJava.Get(c, file)
	if err != nil {
		return nil, err
	}
	// Item ranges are offsets into the current content.
	_ = d.q.fileContent.Get(c, file)
	return itemtree.Build(j), nil
}

func (d *Database) computeSymbolSummary(c *query.Ctx, file FileID) (*itemtree.SymbolSummary, error) {
	if err := c.Checkpoint(); err != nil {
		return nil, err
	}
	t, err := d.q.itemTree.Get(c, file)
	if err != nil {
		return nil, err
	}
	return itemtree.Summarize(t), nil
}

func (d *Database) computeSymbolCount(c *query.Ctx, file FileID) (int, error) {
	if err := c.Checkpoint(); err != nil {
		return 0, err
	}
	s, err := d.q.symbolSummary.Get(c, file)
	if err != nil {
		return 0, err
	}
	return s.Len(), nil
}
