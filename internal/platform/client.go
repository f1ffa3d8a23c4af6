package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cloo-solutions/recall/internal/domain"
)

const (
	defaultControlTimeout  = 30 * time.Second
	defaultTransferTimeout = 60 * time.Second

	listPageSize = 100
)

// Automatic-leave timeouts sent with every bot, in seconds.
const (
	waitingRoomTimeout     = 600
	nooneJoinedTimeout     = 600
	everyoneLeftTimeout    = 3
	silenceTimeout         = 3600
	silenceActivationDelay = 300
)

// APIError is returned for any non-2xx platform response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (%d): %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a platform 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Config struct {
	BaseURL         string
	APIKey          string
	ControlTimeout  time.Duration
	TransferTimeout time.Duration
}

// Client talks to the meeting-bot platform. Control calls and transcript
// downloads use separate HTTP clients so that large downloads get a longer
// deadline.
type Client struct {
	baseURL  string
	apiKey   string
	control  *http.Client
	transfer *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = defaultControlTimeout
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = defaultTransferTimeout
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		control:  &http.Client{Timeout: cfg.ControlTimeout},
		transfer: &http.Client{Timeout: cfg.TransferTimeout},
	}
}

// CreateBotRequest describes a bot to send into a meeting.
type CreateBotRequest struct {
	MeetingURL     string
	ProjectID      string
	SeriesID       string
	BotName        string
	OutputMediaURL string
	WebhookURL     string
	JoinMessage    string
}

func (r CreateBotRequest) payload() map[string]any {
	metadata := map[string]string{"project_id": r.ProjectID}
	if r.SeriesID != "" {
		metadata["recurring_meeting_id"] = r.SeriesID
	}

	joinMessage := r.JoinMessage
	if joinMessage == "" {
		joinMessage = DefaultJoinMessage
	}

	recording := map[string]any{
		"transcript": map[string]any{
			"provider": map[string]any{
				"recallai_streaming": map[string]any{
					"mode":          "prioritize_low_latency",
					"language_code": "en",
				},
			},
			"diarization": map[string]any{
				"use_separate_streams_when_available": true,
			},
		},
	}
	if r.WebhookURL != "" {
		recording["realtime_endpoints"] = []map[string]any{{
			"type":   "webhook",
			"url":    r.WebhookURL,
			"events": []string{"transcript.data", "speaker.update"},
		}}
	}

	p := map[string]any{
		"meeting_url":      r.MeetingURL,
		"bot_name":         r.BotName,
		"metadata":         metadata,
		"recording_config": recording,
		"automatic_leave": map[string]any{
			"waiting_room_timeout":  waitingRoomTimeout,
			"noone_joined_timeout":  nooneJoinedTimeout,
			"everyone_left_timeout": everyoneLeftTimeout,
			"silence_detection": map[string]any{
				"timeout":        silenceTimeout,
				"activate_after": silenceActivationDelay,
			},
		},
		"chat": map[string]any{
			"on_bot_join": map[string]any{
				"message": joinMessage,
				"send_to": SendToEveryone,
			},
		},
	}
	if r.OutputMediaURL != "" {
		p["output_media"] = map[string]any{
			"camera": map[string]any{
				"kind":   "webpage",
				"config": map[string]any{"url": r.OutputMediaURL},
			},
		}
	}
	return p
}

func (c *Client) CreateBot(ctx context.Context, req CreateBotRequest) (*domain.Bot, error) {
	if req.MeetingURL == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "meeting_url is required")
	}
	if req.BotName == "" {
		req.BotName = "Recall"
	}

	var resp botResponse
	if err := c.doJSON(ctx, http.MethodPost, "/bot/", req.payload(), &resp); err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot := resp.toDomain()
	if bot.ProjectID == "" {
		bot.ProjectID = req.ProjectID
	}
	if bot.SeriesID == "" {
		bot.SeriesID = req.SeriesID
	}
	return &bot, nil
}

func (c *Client) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	var resp botResponse
	if err := c.doJSON(ctx, http.MethodGet, "/bot/"+url.PathEscape(id)+"/", nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "bot not found", err)
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	bot := resp.toDomain()
	return &bot, nil
}

// ListFilter narrows a bot listing by metadata.
type ListFilter struct {
	ProjectID string
	SeriesID  string
	Cursor    string
}

// BotPage is one page of a bot listing. Next is empty on the last page.
type BotPage struct {
	Bots []domain.Bot
	Next string
}

func (c *Client) ListBots(ctx context.Context, filter ListFilter) (*BotPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(listPageSize))
	if filter.ProjectID != "" {
		q.Set("metadata__project_id", filter.ProjectID)
	}
	if filter.SeriesID != "" {
		q.Set("metadata__recurring_meeting_id", filter.SeriesID)
	}
	if filter.Cursor != "" {
		q.Set("cursor", filter.Cursor)
	}

	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/bot/?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}

	page := &BotPage{Bots: make([]domain.Bot, 0, len(resp.Results))}
	for _, r := range resp.Results {
		page.Bots = append(page.Bots, r.toDomain())
	}
	if resp.Next != nil {
		page.Next = cursorFromNext(*resp.Next)
	}
	return page, nil
}

// cursorFromNext accepts either a bare cursor or a full next-page URL.
func cursorFromNext(next string) string {
	u, err := url.Parse(next)
	if err != nil || u.Scheme == "" {
		return next
	}
	return u.Query().Get("cursor")
}

// ListSeriesBots returns every bot recorded for the series across all pages.
func (c *Client) ListSeriesBots(ctx context.Context, seriesID string) ([]domain.Bot, error) {
	if seriesID == "" {
		return nil, domain.ErrSeriesRequired
	}
	return c.listAll(ctx, ListFilter{SeriesID: seriesID})
}

func (c *Client) ListProjectBots(ctx context.Context, projectID string) ([]domain.Bot, error) {
	return c.listAll(ctx, ListFilter{ProjectID: projectID})
}

func (c *Client) listAll(ctx context.Context, filter ListFilter) ([]domain.Bot, error) {
	var bots []domain.Bot
	seen := make(map[string]bool)
	for {
		page, err := c.ListBots(ctx, filter)
		if err != nil {
			return nil, err
		}
		bots = append(bots, page.Bots...)
		if page.Next == "" || seen[page.Next] {
			return bots, nil
		}
		seen[page.Next] = true
		filter.Cursor = page.Next
	}
}

func (c *Client) RemoveBot(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/bot/"+url.PathEscape(id)+"/leave_call/", nil, nil); err != nil {
		return fmt.Errorf("failed to remove bot: %w", err)
	}
	return nil
}

func (c *Client) SendChatMessage(ctx context.Context, id, message, to string) error {
	if to == "" {
		to = SendToEveryone
	}
	body := map[string]string{"message": message, "to": to}
	if err := c.doJSON(ctx, http.MethodPost, "/bot/"+url.PathEscape(id)+"/send_chat_message/", body, nil); err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}
	return nil
}

// FetchTranscript downloads a finished transcript from its download URL.
func (c *Client) FetchTranscript(ctx context.Context, downloadURL string) ([]domain.Utterance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var entries []transcriptEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return parseTranscript(entries), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.control.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
