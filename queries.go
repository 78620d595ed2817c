package novadb

import (
	"slices"

	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/itemtree"
	"github.com/jward/novadb/internal/query"
	"github.com/jward/novadb/internal/syntax"
)

// Query names as reported in QueryStats.
const (
	QueryParse              = "parse"
	QueryParseJava          = "parse_java"
	QueryItemTree           = "item_tree"
	QuerySymbolSummary      = "symbol_summary"
	QuerySymbolCount        = "symbol_count"
	QueryFileFingerprint    = "file_fingerprint"
	QueryFileIndexDelta     = "file_index_delta"
	QueryProjectShardFiles  = "project_shard_files"
	QueryProjectIndexShard  = "project_index_shard"
	QueryProjectIndexShards = "project_index_shards"
	QueryProjectIndexes     = "project_indexes"
	QueryProjectSymbolCount = "project_symbol_count"
)

// ProjectIndexShards is the full set of a project's shards, indexed by
// shard id.
type ProjectIndexShards []*index.ProjectIndexShard

// Equal reports whether both sets hold equal shards.
func (s ProjectIndexShards) Equal(o ProjectIndexShards) bool {
	return slices.EqualFunc(s, o, (*index.ProjectIndexShard).Equal)
}

// EstimatedBytes sums the shards' estimates.
func (s ProjectIndexShards) EstimatedBytes() uint64 {
	total := uint64(24 + 8*len(s))
	for _, shard := range s {
		total += shard.EstimatedBytes()
	}
	return total
}

// queries holds one database's inputs and derived queries.
type queries struct {
	fileContent   *query.Input[FileID, string]
	fileExists    *query.Input[FileID, bool]
	fileRelPath   *query.Input[FileID, string]
	fileIsDirty   *query.Input[FileID, bool]
	fileProject   *query.Input[FileID, ProjectID]
	projectFiles  *query.Input[ProjectID, []FileID]
	projectConfig *query.Input[ProjectID, ProjectConfig]

	parse          *query.Derived[FileID, *syntax.ParseResult]
	parseJava      *query.Derived[FileID, *syntax.JavaParseResult]
	itemTree       *query.Derived[FileID, *itemtree.ItemTree]
	symbolSummary  *query.Derived[FileID, *itemtree.SymbolSummary]
	symbolCount    *query.Derived[FileID, int]
	fingerprint    *query.Derived[FileID, string]
	fileIndexDelta *query.Derived[FileID, *index.FileIndexDelta]

	shardFiles         *query.Derived[ShardKey, []FileID]
	projectIndexShard  *query.Derived[ShardKey, *index.ProjectIndexShard]
	projectIndexShards *query.Derived[ProjectID, ProjectIndexShards]
	projectIndexes     *query.Derived[ProjectID, *index.ProjectIndexes]
	projectSymbolCount *query.Derived[ProjectID, int]
}

func newQueries(d *Database) *queries {
	return &queries{
		fileContent:   query.NewInput[FileID, string]("file_content"),
		fileExists:    query.NewInput[FileID, bool]("file_exists"),
		fileRelPath:   query.NewInput[FileID, string]("file_rel_path"),
		fileIsDirty:   query.NewInput[FileID, bool]("file_is_dirty"),
		fileProject:   query.NewInput[FileID, ProjectID]("file_project"),
		projectFiles:  query.NewInput[ProjectID, []FileID]("project_files"),
		projectConfig: query.NewInput[ProjectID, ProjectConfig]("project_config"),

		parse:          query.NewDerived(QueryParse, d.computeParse, (*syntax.ParseResult).Equal),
		parseJava:      query.NewDerived(QueryParseJava, d.computeParseJava, (*syntax.JavaParseResult).Equal),
		itemTree:       query.NewDerived(QueryItemTree, d.computeItemTree, (*itemtree.ItemTree).Equal),
		symbolSummary:  query.NewDerived(QuerySymbolSummary, d.computeSymbolSummary, (*itemtree.SymbolSummary).Equal),
		symbolCount:    query.NewDerived(QuerySymbolCount, d.computeSymbolCount, query.Equal[int]),
		fingerprint:    query.NewDerived(QueryFileFingerprint, d.computeFingerprint, query.Equal[string]),
		fileIndexDelta: query.NewDerived(QueryFileIndexDelta, d.computeFileIndexDelta, (*index.FileIndexDelta).Equal),

		shardFiles:         query.NewDerived(QueryProjectShardFiles, d.computeShardFiles, slices.Equal[[]FileID]),
		projectIndexShard:  query.NewDerived(QueryProjectIndexShard, d.computeProjectIndexShard, (*index.ProjectIndexShard).Equal),
		projectIndexShards: query.NewDerived(QueryProjectIndexShards, d.computeProjectIndexShards, ProjectIndexShards.Equal),
		projectIndexes:     query.NewDerived(QueryProjectIndexes, d.computeProjectIndexes, (*index.ProjectIndexes).Equal),
		projectSymbolCount: query.NewDerived(QueryProjectSymbolCount, d.computeProjectSymbolCount, query.Equal[int]),
	}
}
