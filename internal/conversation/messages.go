package conversation

// Event types sent to the client.
const (
	EventAudio       = "audio"
	EventTranscript  = "transcript"
	EventContext     = "context"
	EventActionItems = "action_items"
	EventStatus      = "status"
	EventError       = "error"
	EventThinking    = "thinking"
)

// Message types received from the client.
const (
	MessageTranscript = "transcript"
	MessageQuery      = "query"
	MessageSetBotID   = "set_bot_id"
)

// Event is the envelope of every message sent to the client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientMessage is the union of the messages a client may send.
type ClientMessage struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`
	Query   string `json:"query,omitempty"`
	BotID   string `json:"bot_id,omitempty"`
}

type TranscriptData struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type AudioData struct {
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

type StatusData struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorData struct {
	Error string `json:"error"`
}

type ContextData struct {
	Context string `json:"context"`
}

type ThinkingData struct {
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// MemoryView is a search result as shown in thinking events.
type MemoryView struct {
	Text       string  `json:"text"`
	Meeting    string  `json:"meeting"`
	Date       string  `json:"date"`
	Similarity float64 `json:"similarity"`
}

type ActionItemsData struct {
	Items []ActionItemView `json:"items"`
}

type ActionItemView struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Assignee string `json:"assignee,omitempty"`
	Status   string `json:"status"`
}

func transcriptEvent(text string) Event {
	return Event{Type: EventTranscript, Data: TranscriptData{Speaker: assistantSpeaker, Text: text, IsFinal: true}}
}
