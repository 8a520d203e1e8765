// Package main implements the mailtriage CLI: an incremental two-stage
// mail classification and routing pipeline.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Classify and route academic mailboxes",
	Long: `mailtriage polls IMAP mailboxes for unread mail, classifies each message
in two LLM stages (cheap batch labeling, then per-message deep analysis),
routes the result to Notion databases and records every processed identity
in a local ledger so nothing is ever handled twice.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(versionCmd)
}
