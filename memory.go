package novadb

import (
	"log/slog"

	"github.com/jward/novadb/internal/memory"
)

// SalsaMemoBytes returns the estimated size of every memoized value.
func (d *Database) SalsaMemoBytes() uint64 {
	return d.rt.MemoBytes()
}

// SalsaMemoBytesByQuery breaks SalsaMemoBytes down by query name.
func (d *Database) SalsaMemoBytesByQuery() map[string]uint64 {
	return d.rt.MemoBytesByQuery()
}

// EvictSalsaMemos drops memoized values according to the pressure level
// and returns how many were dropped. Low pressure drops nothing. From
// Medium up every memo is dropped; inputs survive, so
// later reads recompute. At High and above the warm-start shards held in
// memory are dropped too.
func (d *Database) EvictSalsaMemos(p Pressure) int {
	if p <= memory.PressureLow {
		return 0
	}
	d.mu.Lock()
	n := d.rt.EvictMemos()
	d.mu.Unlock()

	if p >= memory.PressureHigh {
		if w := d.warm.Load(); w != nil {
			w.shards.Purge()
		}
	}
	d.logger.Debug("evicted memos",
		slog.String("pressure", p.String()),
		slog.Int("memos", n))
	return n
}

// RespondToPressure samples src and evicts accordingly.
func (d *Database) RespondToPressure(src memory.Source) (Pressure, int) {
	p := src.Pressure()
	return p, d.EvictSalsaMemos(p)
}
