package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/novadb"
)

func newQueryCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the project symbol index",
		Long:  "Look up declarations in the merged project index. All line and column numbers are 0-based.",
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "C", ".", "project directory")

	// lookup opens the project, computes its index and hands it to fn.
	lookup := func(fn func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			w, err := a.open(cmd, []string{dir})
			if err != nil {
				return err
			}
			defer w.Close()
			idx, err := w.indexes()
			if err != nil {
				return err
			}
			return fn(cmd, idx, args[0])
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "symbols <name>",
			Short: "List declarations with the given simple name",
			Args:  cobra.ExactArgs(1),
			RunE: lookup(func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error {
				syms := toCLISymbols(idx.Lookup(name))
				return a.outputList(cmd, "symbols", syms, len(syms), func() { formatSymbolsText(cmd.OutOrStdout(), syms) })
			}),
		},
		&cobra.Command{
			Use:   "supertypes <type>",
			Short: "List the direct supertypes of a type",
			Args:  cobra.ExactArgs(1),
			RunE: lookup(func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error {
				names := nonNil(idx.SupertypesOf(name))
				return a.outputList(cmd, "supertypes", names, len(names), func() { formatNamesText(cmd.OutOrStdout(), names) })
			}),
		},
		&cobra.Command{
			Use:   "subtypes <type>",
			Short: "List the direct subtypes of a type",
			Args:  cobra.ExactArgs(1),
			RunE: lookup(func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error {
				names := nonNil(idx.SubtypesOf(name))
				return a.outputList(cmd, "subtypes", names, len(names), func() { formatNamesText(cmd.OutOrStdout(), names) })
			}),
		},
		&cobra.Command{
			Use:   "annotated <annotation>",
			Short: "List declarations carrying an annotation",
			Args:  cobra.ExactArgs(1),
			RunE: lookup(func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error {
				locs := toCLILocations(idx.AnnotatedWith(name))
				return a.outputList(cmd, "annotated", locs, len(locs), func() { formatLocationsText(cmd.OutOrStdout(), locs) })
			}),
		},
		&cobra.Command{
			Use:   "references <type>",
			Short: "List the places a type is used in signatures and supertype clauses",
			Args:  cobra.ExactArgs(1),
			RunE: lookup(func(cmd *cobra.Command, idx *novadb.ProjectIndexes, name string) error {
				locs := toCLILocations(idx.ReferencesTo(name))
				return a.outputList(cmd, "references", locs, len(locs), func() { formatLocationsText(cmd.OutOrStdout(), locs) })
			}),
		},
	)
	return cmd
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
