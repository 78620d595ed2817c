// Package stats collects per-query execution statistics.
//
// The Collector is shared by every thread that executes queries. Each query
// name owns an independent entry of atomic counters, so recording never
// contends with the query database's write lock or with other queries.
package stats

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// QueryStat is a point-in-time view of one query's counters.
type QueryStat struct {
	// Executions counts how many times the query body ran.
	Executions uint64

	// ValidatedMemoized counts reads served by re-validating an existing
	// memo without running the body.
	ValidatedMemoized uint64

	// DiskHits and DiskMisses count warm-start cache lookups made by the
	// query.
	DiskHits   uint64
	DiskMisses uint64

	// CancelChecks counts cancellation checkpoints reached in the body.
	CancelChecks uint64

	TotalTime time.Duration
	MaxTime   time.Duration
}

// QueryStats maps query names to their counters.
type QueryStats map[string]QueryStat

// Names returns the query names in sorted order.
func (s QueryStats) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Executions returns the execution count for name, or 0.
func (s QueryStats) Executions(name string) uint64 {
	return s[name].Executions
}

type entry struct {
	executions   atomic.Uint64
	validated    atomic.Uint64
	diskHits     atomic.Uint64
	diskMisses   atomic.Uint64
	cancelChecks atomic.Uint64
	totalNanos   atomic.Uint64
	maxNanos     atomic.Uint64
}

func (e *entry) snapshot() QueryStat {
	return QueryStat{
		Executions:        e.executions.Load(),
		ValidatedMemoized: e.validated.Load(),
		DiskHits:          e.diskHits.Load(),
		DiskMisses:        e.diskMisses.Load(),
		CancelChecks:      e.cancelChecks.Load(),
		TotalTime:         time.Duration(e.totalNanos.Load()),
		MaxTime:           time.Duration(e.maxNanos.Load()),
	}
}

// Collector accumulates QueryStats. The zero value is ready to use.
type Collector struct {
	entries sync.Map // string -> *entry
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) entry(name string) *entry {
	if e, ok := c.entries.Load(name); ok {
		return e.(*entry)
	}
	e, _ := c.entries.LoadOrStore(name, &entry{})
	return e.(*entry)
}

// QueryExecuted records one execution of name that took elapsed.
func (c *Collector) QueryExecuted(name string, elapsed time.Duration) {
	e := c.entry(name)
	e.executions.Add(1)
	nanos := uint64(max(elapsed, 0))
	e.totalNanos.Add(nanos)
	for {
		cur := e.maxNanos.Load()
		if nanos <= cur || e.maxNanos.CompareAndSwap(cur, nanos) {
			return
		}
	}
}

// QueryValidated records one memo re-validation for name.
func (c *Collector) QueryValidated(name string) {
	c.entry(name).validated.Add(1)
}

// CancellationChecked records one checkpoint reached inside name. Checks
// outside any query are not counted.
func (c *Collector) CancellationChecked(name string) {
	if name == "" {
		return
	}
	c.entry(name).cancelChecks.Add(1)
}

// DiskHit records a warm-start cache hit made by name.
func (c *Collector) DiskHit(name string) {
	c.entry(name).diskHits.Add(1)
}

// DiskMiss records a warm-start cache miss made by name.
func (c *Collector) DiskMiss(name string) {
	c.entry(name).diskMisses.Add(1)
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() QueryStats {
	out := make(QueryStats)
	c.entries.Range(func(k, v any) bool {
		out[k.(string)] = v.(*entry).snapshot()
		return true
	})
	return out
}

// Reset drops every entry.
func (c *Collector) Reset() {
	c.entries.Clear()
}
