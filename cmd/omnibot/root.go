package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "omnibot",
	Short: "Omnibot - chat agent orchestration engine",
	Long: `Omnibot is a self-hosted chat agent built around an in-process message
bus, durable sessions, a persistent job scheduler, and a bounded
tool-calling executor.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
}
