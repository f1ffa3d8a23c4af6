package platform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cloo-solutions/recall/internal/domain"
)

// DefaultJoinMessage is posted to the meeting chat when the bot joins.
const DefaultJoinMessage = "Hi! I'm Recall, your project bot. I can recall information from " +
	"previous meetings in this series. Say 'Recall' to get my attention! " +
	"Type 'remove' in chat or say 'Recall, please leave' if you'd like me to go."

// Chat audiences
const (
	SendToEveryone = "everyone"
)

type botResponse struct {
	ID         string          `json:"id"`
	BotName    string          `json:"bot_name"`
	Status     string          `json:"status"`
	MeetingURL json.RawMessage `json:"meeting_url"`
	CreatedAt  string          `json:"created_at"`
	Metadata   struct {
		ProjectID          string `json:"project_id"`
		RecurringMeetingID string `json:"recurring_meeting_id"`
	} `json:"metadata"`
	Recording *struct {
		ID             string `json:"id"`
		MediaShortcuts *struct {
			Transcript *struct {
				DownloadURL string `json:"download_url"`
			} `json:"transcript"`
		} `json:"media_shortcuts"`
	} `json:"recording"`
}

type listResponse struct {
	Results []botResponse `json:"results"`
	Next    *string       `json:"next"`
}

func (b botResponse) toDomain() domain.Bot {
	bot := domain.Bot{
		ID:         b.ID,
		Name:       b.BotName,
		Status:     b.Status,
		ProjectID:  b.Metadata.ProjectID,
		SeriesID:   b.Metadata.RecurringMeetingID,
		MeetingURL: parseMeetingURL(b.MeetingURL),
	}
	if bot.Status == "" {
		bot.Status = "unknown"
	}
	if b.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, b.CreatedAt); err == nil {
			bot.CreatedAt = &t
		}
	}
	if b.Recording != nil && b.Recording.MediaShortcuts != nil && b.Recording.MediaShortcuts.Transcript != nil {
		bot.TranscriptURL = b.Recording.MediaShortcuts.Transcript.DownloadURL
	}
	return bot
}

// parseMeetingURL accepts either a plain string or an object with a url field.
func parseMeetingURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

type transcriptEntry struct {
	Participant *struct {
		ID   int     `json:"id"`
		Name *string `json:"name"`
	} `json:"participant"`
	Words []struct {
		Text           string `json:"text"`
		StartTimestamp *struct {
			Relative float64 `json:"relative"`
		} `json:"start_timestamp"`
		EndTimestamp *struct {
			Relative float64 `json:"relative"`
		} `json:"end_timestamp"`
	} `json:"words"`
}

// parseTranscript joins each entry's words into one utterance. Entries with
// no words or only blank text are skipped.
func parseTranscript(entries []transcriptEntry) []domain.Utterance {
	utterances := make([]domain.Utterance, 0, len(entries))
	for _, e := range entries {
		if len(e.Words) == 0 {
			continue
		}
		parts := make([]string, len(e.Words))
		for i, w := range e.Words {
			parts[i] = w.Text
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			continue
		}

		u := domain.Utterance{Text: text}
		if e.Participant != nil && e.Participant.Name != nil {
			u.Speaker = *e.Participant.Name
		}
		if first := e.Words[0].StartTimestamp; first != nil {
			u.StartTime = first.Relative
		}
		if last := e.Words[len(e.Words)-1].EndTimestamp; last != nil {
			u.EndTime = last.Relative
		}
		utterances = append(utterances, u)
	}
	return utterances
}

// Webhook payloads

// Event names delivered to the webhook endpoints.
const (
	EventStatusChange   = "bot.status_change"
	EventTranscriptDone = "transcript.done"
	EventChatMessage    = "participant_events.chat_message"
)

// StatusEvent is a bot lifecycle webhook.
type StatusEvent struct {
	Event string `json:"event"`
	Data  struct {
		BotID    string            `json:"bot_id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
}

// SeriesID returns the recurring meeting id from the bot metadata, if any.
func (e StatusEvent) SeriesID() string {
	return e.Data.Metadata["recurring_meeting_id"]
}

// Completed reports whether the event means the bot's recording is final.
func (e StatusEvent) Completed() bool {
	switch e.Event {
	case EventTranscriptDone:
		return true
	case EventStatusChange:
		return e.Data.Status == domain.BotStatusDone
	}
	return false
}

// TranscriptEvent is a realtime transcript webhook.
type TranscriptEvent struct {
	Event string `json:"event"`
	Data  struct {
		BotID      string            `json:"bot_id"`
		Metadata   map[string]string `json:"metadata"`
		Transcript struct {
			Speaker string `json:"speaker"`
			Words   []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"transcript"`
	} `json:"data"`
}

func (e TranscriptEvent) ProjectID() string {
	return e.Data.Metadata["project_id"]
}

// Speaker defaults to "Unknown" when the platform did not attribute the words.
func (e TranscriptEvent) Speaker() string {
	if e.Data.Transcript.Speaker == "" {
		return "Unknown"
	}
	return e.Data.Transcript.Speaker
}

// Text joins the event's words.
func (e TranscriptEvent) Text() string {
	parts := make([]string, 0, len(e.Data.Transcript.Words))
	for _, w := range e.Data.Transcript.Words {
		parts = append(parts, w.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// ChatEvent is a participant chat message webhook.
type ChatEvent struct {
	Event string `json:"event"`
	Data  struct {
		BotID string `json:"bot_id"`
		Data  struct {
			Message string `json:"message"`
		} `json:"data"`
		Participant struct {
			Name string `json:"name"`
		} `json:"participant"`
	} `json:"data"`
}

// Command returns the trimmed, lowercased chat message.
func (e ChatEvent) Command() string {
	return strings.ToLower(strings.TrimSpace(e.Data.Data.Message))
}

func (e ChatEvent) Sender() string {
	if e.Data.Participant.Name == "" {
		return "Unknown"
	}
	return e.Data.Participant.Name
}
