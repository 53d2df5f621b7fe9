package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jdziat/durable-training/pkg/device"
	"github.com/jdziat/durable-training/pkg/worker"
)

func (c *cli) workerCmd() *cobra.Command {
	var (
		once        bool
		concurrency int
		id          string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and execute runs until interrupted",
		Long: `Start a worker. Each claim loop takes the oldest pending run, trains it
to a terminal state and claims again; when nothing is pending it sleeps
for worker.poll_interval. SIGINT or SIGTERM stops claiming; runs already
executing finish first.

With --once the worker drains the queue and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := c.app
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			info := device.Detect(ctx, app.Logger)
			app.Logger.Info("compute device", info.LogAttrs()...)

			var extra []worker.WorkerOption
			if concurrency > 0 {
				extra = append(extra, worker.Concurrency(concurrency))
			}
			if id != "" {
				extra = append(extra, worker.WorkerID(id))
			}
			w, err := app.Worker(app.Executor(nil), extra...)
			if err != nil {
				return err
			}

			if once {
				n := 0
				for ctx.Err() == nil && w.RunOnce(ctx) {
					n++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d runs\n", n)
				return nil
			}

			app.Logger.Info("worker started", "worker_id", w.ID())
			err = w.Start(ctx)
			if errors.Is(err, context.Canceled) {
				app.Logger.Info("worker stopped", "worker_id", w.ID())
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "drain pending runs and exit")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override worker.concurrency")
	cmd.Flags().StringVar(&id, "id", "", "override worker.id")
	return cmd
}
