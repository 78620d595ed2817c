package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/novadb"
	"github.com/jward/novadb/internal/memory"
)

func newStatsCmd(a *app) *cobra.Command {
	var pressure string
	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Index a project and print per-query statistics",
		Long:  "Computes the project index without writing the cache and prints how often each query ran, was re-validated or was served from the warm-start cache. --pressure evicts memos at the given level and computes the index again.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.open(cmd, args)
			if err != nil {
				return err
			}
			defer w.Close()

			if _, err := w.indexes(); err != nil {
				return err
			}
			if pressure != "" {
				level, err := memory.ParsePressure(pressure)
				if err != nil {
					return err
				}
				w.db.EvictSalsaMemos(level)
				if _, err := w.indexes(); err != nil {
					return err
				}
			}

			rows := statsRows(w.db)
			return a.outputList(cmd, "stats", rows, len(rows), func() { formatStatsText(cmd.OutOrStdout(), rows) })
		},
	}
	cmd.Flags().StringVar(&pressure, "pressure", "", "evict at this memory pressure (low|medium|high|critical) and recompute")
	return cmd
}

func statsRows(db *novadb.Database) []CLIQueryStat {
	qs := db.QueryStats()
	bytes := db.SalsaMemoBytesByQuery()
	rows := make([]CLIQueryStat, 0, len(qs))
	for _, name := range qs.Names() {
		s := qs[name]
		rows = append(rows, CLIQueryStat{
			Query:             name,
			Executions:        s.Executions,
			ValidatedMemoized: s.ValidatedMemoized,
			DiskHits:          s.DiskHits,
			DiskMisses:        s.DiskMisses,
			CancelChecks:      s.CancelChecks,
			TotalMillis:       float64(s.TotalTime.Microseconds()) / 1000,
			MaxMillis:         float64(s.MaxTime.Microseconds()) / 1000,
			MemoBytes:         bytes[name],
		})
	}
	return rows
}
