package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func validateFormat(f string) error {
	switch f {
	case "json", "text":
		return nil
	}
	return fmt.Errorf("invalid --format %q: must be json or text", f)
}

// output writes results in the selected format. text renders the text form.
func (a *app) output(cmd *cobra.Command, command string, results any, text func()) error {
	if a.format == "text" {
		text()
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), CLIResult{Command: command, Results: results})
}

// outputList is output for slices, adding the total count to the envelope.
func (a *app) outputList(cmd *cobra.Command, command string, results any, n int, text func()) error {
	if a.format == "text" {
		text()
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), CLIResult{Command: command, Results: results, TotalCount: &n})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatIndexText(w io.Writer, s CLIIndexSummary) {
	fmt.Fprintf(w, "Indexed %d files, %d symbols (generation %d) in %s\n",
		s.Files, s.Symbols, s.Generation, s.Duration)
	fmt.Fprintf(w, "Reindexed: %d  Cache hits: %d  Cache misses: %d\n",
		s.Reindexed, s.DiskHits, s.DiskMisses)
	if s.CacheDir != "" {
		fmt.Fprintf(w, "Cache: %s\n", s.CacheDir)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCONTAINER\tFILE\tLINE\tCOL")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.Name, s.Kind, s.Container, s.File, s.Line, s.Col)
	}
	tw.Flush()
}

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, l := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", l.File, l.Line, l.Col)
	}
}

func formatNamesText(w io.Writer, names []string) {
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// formatStatsText formats CLIQueryStat rows as aligned columns.
func formatStatsText(w io.Writer, rows []CLIQueryStat) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "QUERY\tEXEC\tVALIDATED\tHITS\tMISSES\tCHECKS\tTOTAL ms\tMAX ms\tBYTES\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f\t%.1f\t%d\t\n",
			r.Query, r.Executions, r.ValidatedMemoized, r.DiskHits, r.DiskMisses,
			r.CancelChecks, r.TotalMillis, r.MaxMillis, r.MemoBytes)
	}
	tw.Flush()
}

func formatCacheText(w io.Writer, c CLICacheInfo) {
	fmt.Fprintf(w, "Cache: %s\n", c.Dir)
	fmt.Fprintf(w, "Mode: %s\n", c.Mode)
	if !c.Exists {
		fmt.Fprintln(w, "Status: empty")
		return
	}
	if c.Error != "" {
		fmt.Fprintf(w, "Status: unusable (%s)\n", c.Error)
		return
	}
	fmt.Fprintf(w, "Tool: %s\n", c.ToolVersion)
	fmt.Fprintf(w, "Generation: %d\n", c.Generation)
	fmt.Fprintf(w, "Files: %d\n", c.Files)
	fmt.Fprintf(w, "Shards: %d\n", c.Shards)
}
