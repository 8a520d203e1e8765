package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process unread mail once and exit",
	Long: `Run a single pipeline tick: fetch unread mail from every configured
account, classify, route and commit it, then exit.

Examples:
  mailtriage run
  mailtriage run --config mailtriage.yaml`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := app.orch.RunTick(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d, new %d, committed %d, deduped %d, errored %d, abandoned %d\n",
		stats.Fetched, stats.New, stats.Committed, stats.Deduped, stats.Errored, stats.Abandoned)
	for category, n := range stats.ByCategory {
		fmt.Printf("  %s: %d\n", category, n)
	}
	return nil
}
