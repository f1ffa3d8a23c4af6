package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/recall/internal/cli"
	"github.com/cloo-solutions/recall/internal/cli/daemon"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recalld",
		Short: "Recall daemon and CLI",
		Long:  "Recall daemon for running the meeting memory server and maintaining series memories",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(daemon.ServeCmd())
	rootCmd.AddCommand(daemon.SyncCmd())
	rootCmd.AddCommand(daemon.QueryCmd())
	rootCmd.AddCommand(daemon.ActionItemsCmd())
	rootCmd.AddCommand(daemon.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
