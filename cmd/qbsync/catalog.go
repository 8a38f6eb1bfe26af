package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog subcommand, which loads the item
// snapshot once and prints the cache status
func NewCatalogCommand(root *RootOptions) *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Load the item catalog and print its status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, release, err := newCatalogCache(ctx, root.cfg, root.log)
			if err != nil {
				return err
			}
			defer release.Close(root.log)

			if _, err := cache.EnsureReady(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cache.Status(sample))
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 20, "number of item names to include")
	return cmd
}
