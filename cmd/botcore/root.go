package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "botcore",
	Short: "Botcore is the chat-bot event dispatch backend",
	Long: `Botcore consumes inbound chat events from a durable queue and drives
per-user conversation flows, with bounded concurrency, circuit breaking
against a failing broker, and per-event retry with operator alerting.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
