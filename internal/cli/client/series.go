package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type SyncResponse struct {
	RecurringMeetingID string `json:"recurring_meeting_id"`
	Indexed            int    `json:"indexed"`
	TotalBots          int    `json:"total_bots"`
}

type ContextResult struct {
	Text         string  `json:"text"`
	MeetingTitle string  `json:"meeting_title"`
	MeetingDate  string  `json:"meeting_date"`
	Similarity   float64 `json:"similarity"`
}

type ContextResponse struct {
	Query              string          `json:"query"`
	RecurringMeetingID string          `json:"recurring_meeting_id"`
	Count              int             `json:"count"`
	Results            []ContextResult `json:"results"`
	Context            string          `json:"context"`
}

type ActionItem struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Assignee    string  `json:"assignee,omitempty"`
	Status      string  `json:"status"`
	SourceID    string  `json:"source_id"`
	Pattern     string  `json:"pattern,omitempty"`
	CreatedAt   string  `json:"created_at"`
	SurfacedAt  *string `json:"surfaced_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

type ActionItemPage struct {
	Items   []ActionItem `json:"items"`
	Cursor  string       `json:"cursor,omitempty"`
	HasMore bool         `json:"has_more"`
}

func seriesPath(seriesID, suffix string) string {
	return "/api/series/" + url.PathEscape(seriesID) + suffix
}

// SyncCmd asks the daemon to index a series' finished meetings.
func SyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <recurring_meeting_id>",
		Short: "Index finished meetings of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSync(NewAPIClientWithCmd(cmd), args[0], force, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-index meetings that are already indexed")

	return cmd
}

func runSync(api *APIClient, seriesID string, force, outputJSON bool) error {
	path := seriesPath(seriesID, "/sync")
	if force {
		path += "?force=true"
	}

	var resp SyncResponse
	if err := api.PostInto(path, nil, &resp); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if outputJSON {
		return printJSON(resp)
	}
	fmt.Printf("Indexed %d of %d meetings for %s\n", resp.Indexed, resp.TotalBots, resp.RecurringMeetingID)
	return nil
}

// ContextCmd searches a series memory through the daemon.
func ContextCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "context <recurring_meeting_id> <query>",
		Short: "Search what was said in earlier meetings of a series",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runContext(NewAPIClientWithCmd(cmd), args[0], strings.Join(args[1:], " "), !noSync, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Search without syncing the series first")

	return cmd
}

func runContext(api *APIClient, seriesID, query string, sync, outputJSON bool) error {
	params := url.Values{}
	params.Set("query", query)
	params.Set("sync", strconv.FormatBool(sync))

	var resp ContextResponse
	if err := api.GetInto(seriesPath(seriesID, "/context?"+params.Encode()), &resp); err != nil {
		return fmt.Errorf("context search failed: %w", err)
	}

	if outputJSON {
		return printJSON(resp)
	}
	if resp.Count == 0 {
		fmt.Println("No relevant context found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", resp.Count)
	for i, r := range resp.Results {
		fmt.Printf("%d. %s, %s (%.2f)\n", i+1, r.MeetingTitle, r.MeetingDate, r.Similarity)
		fmt.Printf("   %s\n", r.Text)
		if i < len(resp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}
	return nil
}

// ItemsCmd groups the action item commands.
func ItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List and complete action items of a series",
	}
	cmd.AddCommand(itemsListCmd())
	cmd.AddCommand(itemsCompleteCmd())
	return cmd
}

func itemsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list <recurring_meeting_id>",
		Short: "List action items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runItemsList(NewAPIClientWithCmd(cmd), args[0], status, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, surfaced, completed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of items")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runItemsList(api *APIClient, seriesID, status string, limit int, cursor string, outputJSON bool) error {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	path := seriesPath(seriesID, "/action-items")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page ActionItemPage
	if err := api.GetInto(path, &page); err != nil {
		return fmt.Errorf("failed to list action items: %w", err)
	}

	if outputJSON {
		return printJSON(page)
	}
	if len(page.Items) == 0 {
		fmt.Println("No action items.")
		return nil
	}

	for _, item := range page.Items {
		fmt.Printf("[%s] %s\n", item.Status, item.Text)
		if item.Assignee != "" {
			fmt.Printf("   Assignee: %s\n", item.Assignee)
		}
		fmt.Printf("   ID: %s\n", item.ID)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Printf("\n%s\n", strings.Repeat("-", 40))
		fmt.Printf("More items available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func itemsCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <recurring_meeting_id> <id>",
		Short: "Mark an action item completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := NewAPIClientWithCmd(cmd)
			var item ActionItem
			path := seriesPath(args[0], "/action-items/"+url.PathEscape(args[1])+"/complete")
			if err := api.PostInto(path, nil, &item); err != nil {
				return fmt.Errorf("failed to complete action item: %w", err)
			}
			fmt.Printf("Completed: %s\n", item.Text)
			return nil
		},
	}
}
