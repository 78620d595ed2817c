package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/novadb"
	"github.com/jward/novadb/internal/index"
	"github.com/jward/novadb/internal/store"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear a project's warm-start cache",
	}

	layout := func(args []string) (store.Layout, string, error) {
		root, cfg, err := a.loadConfig(args)
		if err != nil {
			return store.Layout{}, "", err
		}
		cacheRoot, err := cfg.Persistence.CacheRoot()
		if err != nil {
			return store.Layout{}, "", err
		}
		l, err := store.ProjectLayout(cacheRoot, root)
		return l, cfg.Persistence.Mode.String(), err
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show [path]",
			Short: "Describe the cached record of a project",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, mode, err := layout(args)
				if err != nil {
					return err
				}
				info := describeCache(l)
				info.Mode = mode
				return a.output(cmd, "cache show", info, func() { formatCacheText(cmd.OutOrStdout(), info) })
			},
		},
		&cobra.Command{
			Use:   "clear [path]",
			Short: "Delete the cached artifacts of a project",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, _, err := layout(args)
				if err != nil {
					return err
				}
				if err := l.Clear(); err != nil {
					return fmt.Errorf("clearing %s: %w", l.Dir, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Cleared cache: %s\n", l.Dir)
				return nil
			},
		},
	)
	return cmd
}

func describeCache(l store.Layout) CLICacheInfo {
	info := CLICacheInfo{Dir: l.Dir, Exists: l.Exists()}
	if !info.Exists {
		return info
	}
	c := store.NewCache(l, novadb.ToolVersion, nil)
	rec, err := c.LoadRecord()
	if err == nil {
		err = rec.Validate(novadb.ToolVersion, rec.ProjectRoot, index.ShardCount)
	}
	if err != nil {
		if errors.Is(err, store.ErrNoRecord) {
			info.Error = "no readable record"
		} else {
			info.Error = err.Error()
		}
		return info
	}
	info.ToolVersion = rec.ToolVersion
	info.Generation = rec.Generation
	info.Files = len(rec.Files)
	if m, err := c.ReadManifest(); err == nil {
		info.Shards = len(m.Shards)
	}
	return info
}
