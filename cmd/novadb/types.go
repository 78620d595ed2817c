package main

import "github.com/jward/novadb"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIIndexSummary reports one indexing run.
type CLIIndexSummary struct {
	Root        string                  `json:"root"`
	CacheDir    string                  `json:"cache_dir,omitempty"`
	Files       int                     `json:"files"`
	Symbols     int                     `json:"symbols"`
	Generation  uint64                  `json:"generation"`
	Reindexed   uint64                  `json:"reindexed"`
	DiskHits    uint64                  `json:"disk_hits"`
	DiskMisses  uint64                  `json:"disk_misses"`
	Persistence novadb.PersistenceStats `json:"persistence"`
	Duration    string                  `json:"duration"`
}

// CLISymbol is a JSON-friendly symbol. Lines and columns are 0-based.
type CLISymbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"`
	File      string `json:"file"`
	Line      uint32 `json:"line"`
	Col       uint32 `json:"col"`
}

// CLILocation is a JSON-friendly source position.
type CLILocation struct {
	File string `json:"file"`
	Line uint32 `json:"line"`
	Col  uint32 `json:"col"`
}

// CLIQueryStat is one row of the query statistics table.
type CLIQueryStat struct {
	Query             string  `json:"query"`
	Executions        uint64  `json:"executions"`
	ValidatedMemoized uint64  `json:"validated_memoized"`
	DiskHits          uint64  `json:"disk_hits"`
	DiskMisses        uint64  `json:"disk_misses"`
	CancelChecks      uint64  `json:"cancel_checks"`
	TotalMillis       float64 `json:"total_ms"`
	MaxMillis         float64 `json:"max_ms"`
	MemoBytes         uint64  `json:"memo_bytes"`
}

// CLICacheInfo describes a project's cache directory.
type CLICacheInfo struct {
	Dir         string `json:"dir"`
	Exists      bool   `json:"exists"`
	Mode        string `json:"mode"`
	ToolVersion string `json:"tool_version,omitempty"`
	Generation  uint64 `json:"generation,omitempty"`
	Files       int    `json:"files"`
	Shards      int    `json:"shards"`
	Error       string `json:"error,omitempty"`
}

func toCLISymbols(syms []novadb.Symbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, CLISymbol{
			Name:      s.Name,
			Kind:      s.Kind,
			Container: s.Container,
			File:      s.Location.File,
			Line:      s.Location.Line,
			Col:       s.Location.Column,
		})
	}
	return out
}

func toCLILocations(locs []novadb.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, CLILocation{File: l.File, Line: l.Line, Col: l.Column})
	}
	return out
}
