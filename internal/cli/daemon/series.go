package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/recall/internal/database"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/indexer"
)

// SyncCmd indexes a series' finished meetings without going through the API.
func SyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <recurring_meeting_id>",
		Short: "Index finished meetings of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ix, err := a.requireMemory(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := ix.Sync(ctx, force)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			fmt.Printf("Indexed %d of %d meetings for %s\n", result.Indexed, result.TotalSources, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-index meetings that are already indexed")

	return cmd
}

// QueryCmd searches a series memory and prints the formatted context.
func QueryCmd() *cobra.Command {
	var (
		topK      int
		threshold float64
		noSync    bool
	)

	cmd := &cobra.Command{
		Use:   "query <recurring_meeting_id> <text>",
		Short: "Search a series memory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ix, err := a.requireMemory(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := ix.Query(ctx, strings.Join(args[1:], " "), indexer.QueryOptions{
				TopK:      topK,
				Threshold: threshold,
				AutoSync:  !noSync,
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No relevant context found.")
				return nil
			}
			fmt.Print(indexer.FormatContext(results))
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default RECALL_TOP_K)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity (default RECALL_SIMILARITY_THRESHOLD)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Search without syncing the series first")

	return cmd
}

// ActionItemsCmd groups the action item commands.
func ActionItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "action-items",
		Aliases: []string{"items"},
		Short:   "Inspect and complete action items of a series",
	}
	cmd.AddCommand(listActionItemsCmd())
	cmd.AddCommand(completeActionItemCmd())
	return cmd
}

func listActionItemsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <recurring_meeting_id>",
		Short: "List action items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.ActionItemStatus
			if status != "" {
				parsed, err := domain.ParseActionItemStatus(status)
				if err != nil {
					return err
				}
				filter = parsed
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ix, err := a.requireMemory(ctx, args[0])
			if err != nil {
				return err
			}
			items := ix.ActionItemsByStatus(filter)
			if len(items) == 0 {
				fmt.Println("No action items.")
				return nil
			}
			for _, item := range items {
				printActionItem(item)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, surfaced, completed)")

	return cmd
}

func completeActionItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <recurring_meeting_id> <id>",
		Short: "Mark an action item completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ix, err := a.requireMemory(ctx, args[0])
			if err != nil {
				return err
			}
			item, err := ix.CompleteActionItem(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Completed: %s\n", item.Text)
			return nil
		},
	}
}

func printActionItem(item domain.ActionItem) {
	fmt.Printf("[%s] %s\n", item.Status, item.Text)
	if item.Assignee != "" {
		fmt.Printf("   Assignee: %s\n", item.Assignee)
	}
	fmt.Printf("   ID: %s  Created: %s\n", item.ID, item.CreatedAt.Format(time.RFC3339))
}

// MigrateCmd applies the embedded Postgres migrations.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(context.Background())
			if err != nil {
				return err
			}
			defer a.close()

			if !a.cfg.HasDatabase() {
				return fmt.Errorf("RECALL_DATABASE_URL is required")
			}
			return database.Migrate(a.cfg.DatabaseURL, a.log)
		},
	}
}
