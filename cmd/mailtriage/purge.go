package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var purgeOlderThan int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old ledger entries",
	Long: `Delete ledger entries older than the retention window. Purged
identities will be reprocessed if their messages are still unread.

Examples:
  mailtriage purge
  mailtriage purge --older-than 30`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().IntVar(&purgeOlderThan, "older-than", 0, "age in days (defaults to ledger.retention_days)")
}

func runPurge(cmd *cobra.Command, _ []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	days := purgeOlderThan
	if days <= 0 {
		days = e.cfg.Ledger.RetentionDays
	}
	if days <= 0 {
		return fmt.Errorf("no retention window: set --older-than or ledger.retention_days")
	}

	removed, err := e.store.Purge(cmd.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("ledger purge: %w", err)
	}
	fmt.Printf("removed %d entries older than %d day(s)\n", removed, days)
	return nil
}
