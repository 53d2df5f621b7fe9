package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
)

func (c *cli) datasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Register datasets for local use",
	}
	cmd.AddCommand(c.datasetsAddCmd())
	return cmd
}

func (c *cli) datasetsAddCmd() *cobra.Command {
	var (
		name      string
		features  []string
		targets   []string
		timestamp string
	)
	cmd := &cobra.Command{
		Use:   "add <id> <csv-file>",
		Short: "Register a CSV file with explicit column roles",
		Long: `Register a CSV file as a dataset. Column roles are given explicitly;
whether a column is numeric is read from the file. Columns not named by a
flag are stored without a role and ignored by training.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, path := args[0], args[1]
			if len(features) == 0 || len(targets) == 0 {
				return fmt.Errorf("at least one --feature and one --target are required")
			}
			tbl, err := dataset.Load(path)
			if err != nil {
				return err
			}

			roles := make(map[string]core.ColumnRole)
			for _, f := range features {
				roles[f] = core.RoleFeature
			}
			for _, t := range targets {
				roles[t] = core.RoleTarget
			}
			if timestamp != "" {
				roles[timestamp] = core.RoleTimestamp
			}
			for col := range roles {
				if !tbl.Has(col) {
					return fmt.Errorf("column %q not found in %s (columns: %s)", col, path, strings.Join(tbl.Columns(), ", "))
				}
			}

			meta := core.DatasetMeta{Rows: tbl.Len()}
			for _, col := range tbl.Columns() {
				_, numeric := tbl.Float(col)
				meta.Columns = append(meta.Columns, core.ColumnMeta{Name: col, Role: roles[col], Numeric: numeric})
			}
			if name == "" {
				name = filepath.Base(path)
			}
			err = c.app.Store.SaveDataset(cmd.Context(), &core.Dataset{
				ID:       id,
				Name:     name,
				FilePath: path,
				Format:   "csv",
				Meta:     datatypes.NewJSONType(meta),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered dataset %s: %d rows, %d columns\n", id, meta.Rows, len(meta.Columns))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")
	cmd.Flags().StringSliceVar(&features, "feature", nil, "feature column (repeatable)")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target column (repeatable; the first is trained on)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "timestamp column")
	return cmd
}
