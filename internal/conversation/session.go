package conversation

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/indexer"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/telemetry"
)

const (
	DefaultResponseDelay = 2 * time.Second
	DefaultLeaveGrace    = 3 * time.Second

	utteranceWindow  = 10
	thinkingWindow   = 3
	retrievalWindow  = 5
	shortFollowUp    = 8
	maxQueryPreview  = 100
	acknowledgement  = "Yes?"
	assistantSpeaker = "assistant"
)

// Memory is the series memory a session reads from. *indexer.Indexer
// satisfies it.
type Memory interface {
	Sync(ctx context.Context, force bool) (indexer.SyncResult, error)
	Query(ctx context.Context, text string, opts indexer.QueryOptions) ([]domain.SearchResult, error)
	PendingActionItems() []domain.ActionItem
	MarkActionItemsSurfaced(ctx context.Context, ids []string) int
}

type BotRemover interface {
	RemoveBot(ctx context.Context, id string) error
}

// Directory resolves and records bot identities across sessions.
type Directory interface {
	BotForProject(projectID string) string
	BindBot(botID string, s *Session)
}

// Sink delivers events to the connected client.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

type Config struct {
	ProjectID     string
	SeriesID      string
	BotID         string
	ResponseDelay time.Duration
	LeaveGrace    time.Duration
	TopK          int
	Threshold     float64
}

type Deps struct {
	// Memory is nil for sessions outside a recurring series.
	Memory    Memory
	Responder *Responder
	Remover   BotRemover
	Directory Directory
	Log       *logger.Logger
}

// Session is one live meeting connection. Transcript handling never blocks
// on generation: replies, acknowledgements and the leave sequence run in
// background goroutines tracked by Wait.
type Session struct {
	id        string
	cfg       Config
	memory    Memory
	responder *Responder
	remover   BotRemover
	directory Directory
	log       *logger.Logger
	now       func() time.Time

	sendMu sync.Mutex
	sink   Sink

	mu            sync.Mutex
	fsm           Machine
	botID         string
	utterances    []string
	lastUtterance time.Time
	seq           uint64
	timer         *time.Timer
	synced        bool
	leaving       bool
	closed        bool
	baseCtx       context.Context

	wg sync.WaitGroup
}

func NewSession(cfg Config, sink Sink, deps Deps) *Session {
	if cfg.ResponseDelay <= 0 {
		cfg.ResponseDelay = DefaultResponseDelay
	}
	if cfg.LeaveGrace <= 0 {
		cfg.LeaveGrace = DefaultLeaveGrace
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	responder := deps.Responder
	if responder == nil {
		responder = NewResponder(nil, log)
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		cfg:       cfg,
		memory:    deps.Memory,
		responder: responder,
		remover:   deps.Remover,
		directory: deps.Directory,
		log:       log.With("session_id", id, "project_id", cfg.ProjectID, "series_id", cfg.SeriesID),
		now:       time.Now,
		sink:      sink,
		botID:     cfg.BotID,
		baseCtx:   context.Background(),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProjectID() string { return s.cfg.ProjectID }
func (s *Session) SeriesID() string  { return s.cfg.SeriesID }

func (s *Session) BotID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botID
}

// SetBotID binds the session to a bot once the platform confirms it.
func (s *Session) SetBotID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.botID = id
	s.mu.Unlock()
	if s.directory != nil {
		s.directory.BindBot(id, s)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.State()
}

// Start syncs the series memory, loads pending action items and greets the
// meeting.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	var pending []domain.ActionItem
	if s.memory != nil {
		s.ensureSynced(ctx)
		pending = s.memory.PendingActionItems()
		if len(pending) > 0 {
			s.responder.SetActionItems(actionitems.FormatForPrompt(pending))
		}
	}

	s.send(ctx, Event{Type: EventStatus, Data: StatusData{Status: "connected", Message: "Recall connected"}})

	greeting := s.responder.Greeting(ctx, len(pending) > 0)
	telemetry.ResponsesGenerated.WithLabelValues("greeting").Inc()
	s.say(ctx, greeting)

	if len(pending) > 0 {
		s.send(ctx, Event{Type: EventActionItems, Data: ActionItemsData{Items: toActionItemViews(pending)}})
		if !greeting.Fallback {
			ids := make([]string, len(pending))
			for i, item := range pending {
				ids[i] = item.ID
			}
			s.memory.MarkActionItemsSurfaced(ctx, ids)
		}
	}
}

func (s *Session) ensureSynced(ctx context.Context) {
	s.mu.Lock()
	done := s.synced
	s.synced = true
	s.mu.Unlock()
	if done {
		return
	}
	if _, err := s.memory.Sync(ctx, false); err != nil {
		s.log.Warn("series sync failed", "error", err)
	}
}

// HandleMessage routes one client message.
func (s *Session) HandleMessage(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case MessageTranscript:
		speaker := msg.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		s.HandleTranscript(ctx, speaker, msg.Text, msg.IsFinal)
	case MessageQuery:
		s.handleQuery(ctx, msg.Query)
	case MessageSetBotID:
		s.SetBotID(msg.BotID)
	default:
		s.log.Debug("ignoring client message", "type", msg.Type)
	}
}

func (s *Session) handleQuery(ctx context.Context, query string) {
	if s.memory == nil || strings.TrimSpace(query) == "" {
		return
	}
	results, err := s.memory.Query(ctx, query, indexer.QueryOptions{TopK: s.cfg.TopK, Threshold: s.cfg.Threshold})
	if err != nil {
		s.log.Warn("ad-hoc query failed", "error", err)
		s.send(ctx, Event{Type: EventError, Data: ErrorData{Error: "query failed"}})
		return
	}
	s.send(ctx, Event{Type: EventContext, Data: ContextData{Context: indexer.FormatContext(results)}})
}

// HandleTranscript processes one utterance. Only final utterances affect the
// conversation.
func (s *Session) HandleTranscript(ctx context.Context, speaker, text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if text == "" || !isFinal {
		return
	}

	s.mu.Lock()
	if s.closed || s.leaving {
		s.mu.Unlock()
		return
	}
	s.utterances = append(s.utterances, text)
	if len(s.utterances) > utteranceWindow {
		s.utterances = s.utterances[len(s.utterances)-utteranceWindow:]
	}
	s.lastUtterance = s.now()

	action := s.fsm.Observe(text)
	switch action {
	case ActionSchedule:
		s.scheduleLocked()
	case ActionLeave:
		s.leaving = true
		s.stopTimerLocked()
	}
	state := s.fsm.State()
	s.mu.Unlock()

	s.responder.AddUserMessage(speaker, text)
	s.log.Debug("utterance", "speaker", speaker, "action", action.String(), "state", state.String())

	switch action {
	case ActionLeave:
		s.log.Info("leave requested", "speaker", speaker)
		s.goBackground(func(ctx context.Context) { s.leave(ctx, speaker) })
	case ActionAcknowledge:
		s.goBackground(s.acknowledge)
	}
}

// scheduleLocked arms the debounce timer, replacing any earlier one. Only
// the most recent timer can fire a reply.
func (s *Session) scheduleLocked() {
	s.stopTimerLocked()
	s.seq++
	token := s.seq
	s.timer = time.AfterFunc(s.cfg.ResponseDelay, func() { s.onQuiet(token) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) onQuiet(token uint64) {
	s.mu.Lock()
	if token != s.seq || s.closed || !s.fsm.Fire() {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	quiet := s.now().Sub(s.lastUtterance)
	s.mu.Unlock()

	s.log.Debug("speaker quiet, responding", "quiet_for", quiet)
	s.goBackground(s.respond)
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *Session) acknowledge(ctx context.Context) {
	s.send(ctx, transcriptEvent(acknowledgement))
	if audio := s.responder.Speak(ctx, acknowledgement); audio != nil {
		s.sendAudio(ctx, audio)
	}
	telemetry.ResponsesGenerated.WithLabelValues("acknowledge").Inc()
}

func (s *Session) respond(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		if s.fsm.Done() && !s.closed {
			s.scheduleLocked()
		}
		s.mu.Unlock()
	}()

	s.mu.Lock()
	window := append([]string(nil), s.utterances...)
	s.mu.Unlock()

	query := strings.Join(lastN(window, thinkingWindow), " ")
	s.thinking(ctx, "processing", "Processing your question...", map[string]any{"query": preview(query)})

	if s.memory == nil {
		s.thinking(ctx, "context", "Memory disabled for this meeting", nil)
	} else {
		results := s.retrieve(ctx, window)
		if len(results) > 0 {
			s.thinking(ctx, "context", fmt.Sprintf("Found %d relevant memories", len(results)), map[string]any{
				"query":   query,
				"results": toMemoryViews(results),
			})
		} else {
			s.thinking(ctx, "context", "No matching memories found", map[string]any{
				"query":   query,
				"results": []MemoryView{},
			})
		}
	}

	s.thinking(ctx, "generating", "Generating response...", nil)
	reply := s.responder.Respond(ctx, true)
	telemetry.ResponsesGenerated.WithLabelValues("reply").Inc()
	s.thinking(ctx, "complete", "Response ready", nil)

	s.say(ctx, reply)
}

// retrieve searches the series memory with the recent utterances. Short
// follow-ups are prefixed with recent conversation turns.
func (s *Session) retrieve(ctx context.Context, window []string) []domain.SearchResult {
	s.ensureSynced(ctx)

	recent := lastN(window, retrievalWindow)
	query := strings.Join(recent, " ")
	if len(recent) > 0 && len(strings.Fields(recent[len(recent)-1])) < shortFollowUp {
		if conv := s.responder.RecentContext(); conv != "" {
			query = conv + " " + query
		}
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}

	results, err := s.memory.Query(ctx, query, indexer.QueryOptions{TopK: s.cfg.TopK, Threshold: s.cfg.Threshold})
	if err != nil {
		s.log.Warn("memory query failed", "error", err)
		return nil
	}
	if len(results) > 0 {
		s.responder.SetContext(indexer.FormatContext(results))
	}
	return results
}

func (s *Session) leave(ctx context.Context, speaker string) {
	farewell := fmt.Sprintf("Goodbye everyone! %s asked me to leave. Feel free to invite me back anytime.", speaker)
	telemetry.AddBreadcrumb(ctx, "session", "leave requested by "+speaker)
	s.send(ctx, transcriptEvent(farewell))
	telemetry.ResponsesGenerated.WithLabelValues("farewell").Inc()

	if audio := s.responder.Speak(ctx, farewell); audio != nil {
		s.sendAudio(ctx, audio)
		select {
		case <-time.After(s.cfg.LeaveGrace):
		case <-ctx.Done():
		}
	}

	if !s.removeBot(ctx) {
		// The bot is still in the meeting, so keep serving it.
		s.mu.Lock()
		s.leaving = false
		s.mu.Unlock()
	}
}

// removeBot asks the platform to remove the session's bot and reports
// whether it did.
func (s *Session) removeBot(ctx context.Context) bool {
	botID := s.BotID()
	if botID == "" && s.directory != nil {
		botID = s.directory.BotForProject(s.cfg.ProjectID)
		if botID != "" {
			s.log.Info("bot id resolved from registry", "bot_id", botID)
		}
	}
	if botID == "" {
		s.log.Error("cannot leave meeting without a bot id", "error", domain.ErrNoIdentity)
		return false
	}
	if s.remover == nil {
		return false
	}
	if err := s.remover.RemoveBot(ctx, botID); err != nil {
		s.log.Error("failed to remove bot", "bot_id", botID, "error", err)
		return false
	}
	s.log.Info("bot removed from meeting", "bot_id", botID)
	return true
}

func (s *Session) say(ctx context.Context, reply Reply) {
	s.send(ctx, transcriptEvent(reply.Text))
	if reply.Audio != nil {
		s.sendAudio(ctx, reply.Audio)
	}
}

func (s *Session) sendAudio(ctx context.Context, audio []byte) {
	s.send(ctx, Event{Type: EventAudio, Data: AudioData{
		Audio:  base64.StdEncoding.EncodeToString(audio),
		Format: "mp3",
	}})
}

func (s *Session) thinking(ctx context.Context, step, message string, data map[string]any) {
	ev := ThinkingData{Step: step, Message: message}
	if len(data) > 0 {
		ev.Data = data
	}
	s.send(ctx, Event{Type: EventThinking, Data: ev})
}

// send delivers ev unless the session was closed. Delivery errors are logged
// and dropped.
func (s *Session) send(ctx context.Context, ev Event) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sink == nil {
		return
	}
	if err := s.sink.Send(ctx, ev); err != nil {
		s.log.Debug("dropping event", "type", ev.Type, "error", err)
	}
}

// Close detaches the client. Work already in flight finishes but its events
// are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.sendMu.Lock()
	s.sink = nil
	s.sendMu.Unlock()
}

// Wait blocks until background work started by the session has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func preview(query string) string {
	if len([]rune(query)) <= maxQueryPreview {
		return query
	}
	return string([]rune(query)[:maxQueryPreview]) + "..."
}

func toMemoryViews(results []domain.SearchResult) []MemoryView {
	views := make([]MemoryView, len(results))
	for i, r := range results {
		views[i] = MemoryView{
			Text:       r.Text,
			Meeting:    r.Title,
			Date:       r.Timestamp.Format("Jan 02, 2006"),
			Similarity: math.Round(r.Similarity*100) / 100,
		}
	}
	return views
}

func toActionItemViews(items []domain.ActionItem) []ActionItemView {
	views := make([]ActionItemView, len(items))
	for i, item := range items {
		views[i] = ActionItemView{
			ID:       item.ID,
			Text:     item.Text,
			Assignee: item.Assignee,
			Status:   string(item.Status),
		}
	}
	return views
}
