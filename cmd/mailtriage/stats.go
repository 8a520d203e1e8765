package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger aggregates",
	Long: `Summarize processed messages from the local ledger.

Examples:
  mailtriage stats
  mailtriage stats --days 30`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "window in days, 0 for all time")
}

func runStats(cmd *cobra.Command, _ []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	window := time.Duration(statsDays) * 24 * time.Hour
	stats, err := e.store.Stats(cmd.Context(), window)
	if err != nil {
		return fmt.Errorf("ledger stats: %w", err)
	}

	if statsDays > 0 {
		fmt.Printf("last %d day(s):\n", statsDays)
	} else {
		fmt.Println("all time:")
	}
	fmt.Printf("  processed: %d (synced %d, skipped %d)\n", stats.Total, stats.Synced, stats.Skipped)
	printCounts("by coarse label", stats.ByLabel)
	printCounts("by category", stats.ByCategory)
	return nil
}

func printCounts(title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("  %s:\n", title)
	for _, k := range keys {
		fmt.Printf("    %-10s %d\n", k, counts[k])
	}
}
