package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jdziat/durable-training/pkg/core"
)

func (c *cli) submitCmd() *cobra.Command {
	var (
		datasetRef  string
		templateRef string
		hp          []string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a pending training run",
		Long: `Create a pending run for a registered dataset and template. Each --hp
overrides one template default; values are parsed as YAML scalars, so
epochs=20 is a number and optimizer=sgd a string.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := parseHyperparameters(hp)
			if err != nil {
				return err
			}
			run, err := c.app.Submit(cmd.Context(), datasetRef, templateRef, overrides)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), run.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&datasetRef, "dataset", "d", "", "dataset id")
	cmd.Flags().StringVarP(&templateRef, "template", "t", "", "model template name")
	cmd.Flags().StringArrayVar(&hp, "hp", nil, "hyperparameter override key=value (repeatable)")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

// parseHyperparameters turns key=value pairs into a hyperparameter map.
func parseHyperparameters(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid hyperparameter %q, want key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		switch v.(type) {
		case string, int, float64, bool:
		default:
			return nil, fmt.Errorf("hyperparameter %s must be a scalar", key)
		}
		out[key] = v
	}
	return out, nil
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Request a run to stop",
		Long: `Mark a pending, queued or running run as stopped. A running run stops
at its next cooperative checkpoint, at the latest after the current epoch;
its partial artifacts are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Store.Stop(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s stopped\n", args[0])
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			row := func(k string, v any) { fmt.Fprintf(w, "%s:\t%v\n", k, v) }
			row("id", run.ID)
			row("status", run.Status)
			row("dataset", run.DatasetRef)
			row("template", run.TemplateRef)
			row("progress", fmt.Sprintf("%d/%d", run.CurrentEpoch, run.TotalEpochs))
			if run.Device != "" {
				row("device", run.Device)
			}
			if run.ClaimedBy != "" {
				row("worker", run.ClaimedBy)
			}
			if run.BestMetricValue != nil {
				row(run.BestMetricName, *run.BestMetricValue)
			}
			metrics := run.Metrics()
			for _, k := range sortedKeys(metrics) {
				row(k, metrics[k])
			}
			if run.CheckpointPath != "" {
				row("checkpoint", run.CheckpointPath)
			}
			if run.LogPath != "" {
				row("log", run.LogPath)
			}
			if run.ErrorMessage != "" {
				row("error", run.ErrorMessage)
			}
			row("created", run.CreatedAt.Format(time.RFC3339))
			if run.StartedAt != nil {
				row("started", run.StartedAt.Format(time.RFC3339))
			}
			if run.FinishedAt != nil {
				row("finished", run.FinishedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.RunFilter{Status: core.RunStatus(status), Limit: limit}
			if status != "" && !filter.Status.IsValid() {
				return fmt.Errorf("unknown status %q", status)
			}
			runs, err := c.app.Store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTEMPLATE\tDATASET\tEPOCH\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					r.ID, r.Status, r.TemplateRef, r.DatasetRef, r.CurrentEpoch, r.TotalEpochs,
					r.CreatedAt.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to show")
	return cmd
}

func (c *cli) metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <run-id>",
		Short: "Print the per-epoch log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := c.app.EpochLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EPOCH\tTRAIN_LOSS\tVAL_LOSS\tLR")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%g\n", r.Epoch, r.TrainLoss, r.ValLoss, r.LR)
			}
			return w.Flush()
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
