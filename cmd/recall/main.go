package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/recall/internal/cli"
	"github.com/cloo-solutions/recall/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Recall CLI - meeting memory for recurring meetings",
		Long: `Recall CLI sends bots into meetings and queries series memories through the recalld API.

Environment variables:
  RECALL_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.BotCmd())
	rootCmd.AddCommand(client.SyncCmd())
	rootCmd.AddCommand(client.ContextCmd())
	rootCmd.AddCommand(client.ItemsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
