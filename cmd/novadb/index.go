package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/novadb"
)

func newIndexCmd(a *app) *cobra.Command {
	var noPersist bool
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a Java project and update its warm-start cache",
		Long:  "Discovers the project's Java files, computes the sharded symbol index (reusing cached results for unchanged files) and writes the cache back unless --no-persist is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			w, err := a.open(cmd, args)
			if err != nil {
				return err
			}
			defer w.Close()

			idx, err := w.indexes()
			if err != nil {
				return err
			}
			if !noPersist {
				if err := w.db.PersistProjectIndexes(project); err != nil {
					return err
				}
			}

			snap := w.db.Snapshot()
			files := len(snap.ProjectFiles(project))
			snap.Release()
			q := w.stats.Snapshot()[novadb.QueryFileIndexDelta]
			summary := CLIIndexSummary{
				Root:        w.root,
				CacheDir:    w.db.CacheDir(),
				Files:       files,
				Symbols:     idx.SymbolCount(),
				Generation:  idx.Generation,
				Reindexed:   q.Executions,
				DiskHits:    q.DiskHits,
				DiskMisses:  q.DiskMisses,
				Persistence: w.db.PersistenceStats(),
				Duration:    time.Since(start).Round(time.Millisecond).String(),
			}
			return a.output(cmd, "index", summary, func() { formatIndexText(cmd.OutOrStdout(), summary) })
		},
	}
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "do not write the warm-start cache")
	return cmd
}
