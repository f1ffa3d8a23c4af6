package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type CreateBotRequest struct {
	ProjectID          string `json:"project_id"`
	MeetingURL         string `json:"meeting_url"`
	BotName            string `json:"bot_name,omitempty"`
	RecurringMeetingID string `json:"recurring_meeting_id,omitempty"`
}

type CreateBotResponse struct {
	BotID              string `json:"bot_id"`
	MeetingURL         string `json:"meeting_url"`
	ProjectID          string `json:"project_id"`
	RecurringMeetingID string `json:"recurring_meeting_id,omitempty"`
	Status             string `json:"status"`
}

type Bot struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status"`
	ProjectID          string  `json:"project_id,omitempty"`
	RecurringMeetingID string  `json:"recurring_meeting_id,omitempty"`
	MeetingURL         string  `json:"meeting_url,omitempty"`
	CreatedAt          *string `json:"created_at"`
	HasTranscript      bool    `json:"has_transcript"`
}

// BotCmd groups the bot commands.
func BotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Send, inspect and remove meeting bots",
	}
	cmd.AddCommand(botCreateCmd())
	cmd.AddCommand(botStatusCmd())
	cmd.AddCommand(botLeaveCmd())
	return cmd
}

func botCreateCmd() *cobra.Command {
	var req CreateBotRequest

	cmd := &cobra.Command{
		Use:   "create <meeting_url>",
		Short: "Send a bot into a meeting",
		Long: `Send a bot into a meeting.

Examples:
  # One-off meeting, no memory
  recall bot create https://meet.google.com/abc-defg-hij --project demo

  # Meeting of a recurring series, with memory of earlier meetings
  recall bot create https://zoom.us/j/123 --project demo --series weekly-sync`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.MeetingURL = args[0]
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runBotCreate(NewAPIClientWithCmd(cmd), req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&req.ProjectID, "project", "", "Project id the bot belongs to")
	cmd.Flags().StringVar(&req.BotName, "name", "", "Display name of the bot")
	cmd.Flags().StringVar(&req.RecurringMeetingID, "series", "", "Recurring meeting id")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runBotCreate(api *APIClient, req CreateBotRequest, outputJSON bool) error {
	var resp CreateBotResponse
	if err := api.PostInto("/api/bot", req, &resp); err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	if outputJSON {
		return printJSON(resp)
	}
	fmt.Printf("Bot %s is %s\n", resp.BotID, resp.Status)
	if resp.RecurringMeetingID != "" {
		fmt.Printf("Series: %s\n", resp.RecurringMeetingID)
	}
	return nil
}

func botStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <bot_id>",
		Short: "Show a bot's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runBotStatus(NewAPIClientWithCmd(cmd), args[0], outputJSON)
		},
	}
}

func runBotStatus(api *APIClient, botID string, outputJSON bool) error {
	var bot Bot
	if err := api.GetInto("/api/bot/"+url.PathEscape(botID), &bot); err != nil {
		return fmt.Errorf("failed to get bot: %w", err)
	}

	if outputJSON {
		return printJSON(bot)
	}
	fmt.Printf("Bot:        %s\n", bot.ID)
	fmt.Printf("Status:     %s\n", bot.Status)
	if bot.ProjectID != "" {
		fmt.Printf("Project:    %s\n", bot.ProjectID)
	}
	if bot.RecurringMeetingID != "" {
		fmt.Printf("Series:     %s\n", bot.RecurringMeetingID)
	}
	if bot.MeetingURL != "" {
		fmt.Printf("Meeting:    %s\n", bot.MeetingURL)
	}
	if bot.CreatedAt != nil {
		fmt.Printf("Created:    %s\n", *bot.CreatedAt)
	}
	fmt.Printf("Transcript: %t\n", bot.HasTranscript)
	return nil
}

func botLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <bot_id>",
		Short: "Remove a bot from its meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := NewAPIClientWithCmd(cmd)
			if _, err := api.Post("/api/bot/"+url.PathEscape(args[0])+"/leave", nil); err != nil {
				return fmt.Errorf("failed to remove bot: %w", err)
			}
			fmt.Printf("Bot %s removed\n", args[0])
			return nil
		},
	}
}
