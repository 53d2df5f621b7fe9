package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jdziat/durable-training/pkg/catalog"
	"github.com/jdziat/durable-training/pkg/pipeline"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the run, dataset and template tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func (c *cli) seedTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-templates",
		Short: "Load the model template catalog into the store",
		Long: `Upsert every template of the catalog: templates_file when configured,
otherwise the built-in catalog. Templates without a registered trainer are
stored but fail closed when a run uses them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := c.app
			if err := app.Store.Migrate(cmd.Context()); err != nil {
				return err
			}
			defs, err := app.Templates()
			if err != nil {
				return err
			}
			if err := catalog.Seed(cmd.Context(), app.Store, defs); err != nil {
				return err
			}
			executable := pipeline.DefaultRegistry().Names()
			for _, d := range defs {
				note := ""
				if !slices.Contains(executable, d.Name) {
					note = " (no trainer registered)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s%s\n", d.Name, note)
			}
			return nil
		},
	}
}
