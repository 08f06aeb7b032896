package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "notification-service",
		Short:        "Stores appointment notifications and serves each user's inbox",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), healthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
