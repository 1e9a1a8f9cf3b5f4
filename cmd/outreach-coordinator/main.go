package main

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:          "outreach-coordinator",
		Short:        "Task coordination service for outreach runners",
		Version:      Version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
