package novadb

import (
	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/itemtree"
	"github.com/jward/novadb/internal/memory"
	"github.com/jward/novadb/internal/query"
	"github.com/jward/novadb/internal/stats"
	"github.com/jward/novadb/internal/syntax"
)

// Public aliases for the internal types returned by queries. They are
// identical to the internal types; no conversion is needed.

type Revision = query.Revision

type ParseResult = syntax.ParseResult
type JavaParseResult = syntax.JavaParseResult
type ItemTree = itemtree.ItemTree
type SymbolSummary = itemtree.SymbolSummary

type Symbol = index.Symbol
type Location = index.Location
type FileIndexDelta = index.FileIndexDelta
type ProjectIndexShard = index.ProjectIndexShard
type ProjectIndexes = index.ProjectIndexes

type QueryStat = stats.QueryStat
type QueryStats = stats.QueryStats

type Pressure = memory.Pressure

const (
	PressureLow      = memory.PressureLow
	PressureMedium   = memory.PressureMedium
	PressureHigh     = memory.PressureHigh
	PressureCritical = memory.PressureCritical
)

var (
	// ErrCancelled is returned by reads whose snapshot was superseded by
	// RequestCancellation.
	ErrCancelled = query.ErrCancelled

	// ErrSnapshotReleased is returned by reads through a released snapshot.
	ErrSnapshotReleased = query.ErrSnapshotReleased
)
