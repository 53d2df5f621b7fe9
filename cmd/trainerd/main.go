// Command trainerd runs training workers against a shared run store and
// offers the operator commands around them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	training "github.com/jdziat/durable-training"
	"github.com/jdziat/durable-training/pkg/config"
)

// cli holds state shared by every command of one invocation.
type cli struct {
	configPath string
	app        *training.App
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "trainerd",
		Short: "trainerd - training run scheduler and worker",
		Long: `trainerd claims queued training runs from a shared database and
executes them: data preparation, model training with per-epoch progress,
best-checkpoint retention and test-set evaluation.

Any number of trainerd workers may share one database; PostgreSQL or
MySQL 8 is required for more than one process.

Examples:
  trainerd migrate                       # Create tables
  trainerd seed-templates                # Load the template catalog
  trainerd datasets add ds1 data/a.csv --feature x --target y
  trainerd submit --dataset ds1 --template TCN --hp epochs=20
  trainerd worker                        # Process runs until interrupted
  trainerd status <run-id>
  trainerd metrics <run-id>
  trainerd stop <run-id>`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (TOML, YAML or JSON)")

	root.AddCommand(
		c.workerCmd(),
		c.migrateCmd(),
		c.seedTemplatesCmd(),
		c.datasetsCmd(),
		c.submitCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.listCmd(),
		c.metricsCmd(),
	)
	return root
}

// open loads configuration and connects to the run store.
func (c *cli) open(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	app, err := training.NewApp(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	c.app = app
	return nil
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
		c.app = nil
	}
}

// run executes one command line. The store is closed whatever the outcome.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	defer c.close()

	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
