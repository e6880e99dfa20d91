package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "coordnode",
		Short: "Leader election and consistent hashing playground",
		Long: `Coordnode exercises the go-coordination packages.
"elect" competes for leadership of a named election against a memory, PostgreSQL
or Redis lease store. "ring" builds a consistent hash ring and resolves keys,
including candidate servers from earlier ring configurations.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newElectCommand(), newRingCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
