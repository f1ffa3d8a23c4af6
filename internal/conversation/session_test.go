package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/indexer"
)

const (
	testDelay = 40 * time.Millisecond
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) ofType(typ string) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// said returns the texts the assistant spoke, in order.
func (r *recordingSink) said() []string {
	var out []string
	for _, ev := range r.ofType(EventTranscript) {
		out = append(out, ev.Data.(TranscriptData).Text)
	}
	return out
}

func (r *recordingSink) thinking() []ThinkingData {
	var out []ThinkingData
	for _, ev := range r.ofType(EventThinking) {
		out = append(out, ev.Data.(ThinkingData))
	}
	return out
}

type fakeMemory struct {
	mu       sync.Mutex
	results  []domain.SearchResult
	queryErr error
	pending  []domain.ActionItem
	queries  []string
	surfaced []string
	syncs    int
}

func (f *fakeMemory) Sync(context.Context, bool) (indexer.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return indexer.SyncResult{}, nil
}

func (f *fakeMemory) Query(_ context.Context, text string, _ indexer.QueryOptions) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	return f.results, f.queryErr
}

func (f *fakeMemory) PendingActionItems() []domain.ActionItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeMemory) MarkActionItemsSurfaced(_ context.Context, ids []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surfaced = append(f.surfaced, ids...)
	return len(ids)
}

func (f *fakeMemory) snapshot() (queries, surfaced []string, syncs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...), append([]string(nil), f.surfaced...), f.syncs
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeRemover) RemoveBot(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.err
}

func (f *fakeRemover) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

type fakeDirectory struct {
	mu       sync.Mutex
	projects map[string]string
	bound    map[string]*Session
}

func (f *fakeDirectory) BotForProject(projectID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects[projectID]
}

func (f *fakeDirectory) BindBot(botID string, s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound == nil {
		f.bound = make(map[string]*Session)
	}
	f.bound[botID] = s
}

type harness struct {
	session   *Session
	sink      *recordingSink
	gen       *fakeGenerator
	memory    *fakeMemory
	remover   *fakeRemover
	directory *fakeDirectory
}

func newHarness(t *testing.T, cfg Config, gen *fakeGenerator, memory *fakeMemory) *harness {
	t.Helper()
	if cfg.ProjectID == "" {
		cfg.ProjectID = "proj-1"
	}
	cfg.ResponseDelay = testDelay
	cfg.LeaveGrace = 10 * time.Millisecond

	h := &harness{
		sink:      &recordingSink{},
		gen:       gen,
		memory:    memory,
		remover:   &fakeRemover{},
		directory: &fakeDirectory{projects: map[string]string{}},
	}
	deps := Deps{
		Responder: NewResponder(nil, nil),
		Remover:   h.remover,
		Directory: h.directory,
	}
	if gen != nil {
		deps.Responder = NewResponder(gen, nil)
	}
	if memory != nil {
		deps.Memory = memory
	}
	h.session = NewSession(cfg, h.sink, deps)
	t.Cleanup(func() {
		h.session.Close()
		h.session.Wait()
	})
	return h
}

func (h *harness) say(speaker, text string) {
	h.session.HandleTranscript(context.Background(), speaker, text, true)
}

func TestSession_WakeWithQuestionReplies(t *testing.T) {
	h := newHarness(t, Config{}, &fakeGenerator{reply: "We settled on tiered pricing."}, nil)

	h.say("Alice", "Recall, what did we decide about pricing?")
	assert.Equal(t, StatePendingResponse, h.session.State())

	require.Eventually(t, func() bool {
		return len(h.sink.said()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"We settled on tiered pricing."}, h.sink.said())
	assert.Len(t, h.sink.ofType(EventAudio), 1)

	require.Eventually(t, func() bool { return h.session.State() == StateIdle }, waitFor, tick)
}

func TestSession_BurstIsCoalescedIntoOneReply(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "Recall, what was the budget")
	time.Sleep(testDelay / 2)
	h.say("Alice", "and the timeline for launch")
	time.Sleep(testDelay / 2)
	last := time.Now()
	h.say("Bob", "also the hiring plan")

	require.Eventually(t, func() bool { return len(gen.calls()) == 1 }, waitFor, tick)
	time.Sleep(3 * testDelay)

	calls := gen.calls()
	require.Len(t, calls, 1)
	// System prompt plus the three utterances.
	assert.Len(t, calls[0].messages, 4)
	assert.GreaterOrEqual(t, calls[0].at.Sub(last), testDelay)
}

func TestSession_BareWakeWordAcknowledges(t *testing.T) {
	gen := &fakeGenerator{reply: "Here you go."}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "Hey Recall")
	require.Eventually(t, func() bool {
		said := h.sink.said()
		return len(said) == 1 && said[0] == "Yes?"
	}, waitFor, tick)
	assert.Equal(t, StateAwaitingFollowUp, h.session.State())
	assert.Empty(t, gen.calls())

	h.say("Alice", "what did we discuss last week")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 2 }, waitFor, tick)
	assert.Equal(t, "Here you go.", h.sink.said()[1])
}

func TestSession_OrdinarySpeechIsIgnored(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "let's look at the roadmap")
	time.Sleep(3 * testDelay)

	assert.Empty(t, gen.calls())
	assert.Empty(t, h.sink.all())
	assert.Equal(t, StateIdle, h.session.State())
}

func TestSession_NonFinalTranscriptsAreIgnored(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, nil)

	h.session.HandleTranscript(context.Background(), "Alice", "Recall, what was the budget", false)
	h.session.HandleTranscript(context.Background(), "Alice", "   ", true)
	time.Sleep(3 * testDelay)

	assert.Equal(t, StateIdle, h.session.State())
	assert.Empty(t, gen.calls())
	assert.Empty(t, h.session.responder.History())
}

func TestSession_LeaveRemovesBot(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{BotID: "bot-1"}, gen, nil)

	h.say("Alice", "Recall, please leave")
	require.Eventually(t, func() bool { return len(h.remover.ids()) == 1 }, waitFor, tick)

	assert.Equal(t, []string{"bot-1"}, h.remover.ids())
	said := h.sink.said()
	require.Len(t, said, 1)
	assert.Equal(t, "Goodbye everyone! Alice asked me to leave. Feel free to invite me back anytime.", said[0])
	assert.Len(t, h.sink.ofType(EventAudio), 1)

	h.say("Alice", "Recall, what was the budget")
	time.Sleep(3 * testDelay)
	assert.Empty(t, gen.calls())
}

func TestSession_LeaveAfterBareWakeWord(t *testing.T) {
	h := newHarness(t, Config{BotID: "bot-1"}, &fakeGenerator{}, nil)

	h.say("Alice", "Recall")
	h.say("Alice", "you can go away now")

	require.Eventually(t, func() bool { return len(h.remover.ids()) == 1 }, waitFor, tick)
}

func TestSession_LeaveWithoutWakeWordIsIgnored(t *testing.T) {
	h := newHarness(t, Config{BotID: "bot-1"}, &fakeGenerator{}, nil)

	h.say("Alice", "ok, goodbye everyone")
	time.Sleep(3 * testDelay)
	h.session.Wait()

	assert.Empty(t, h.remover.ids())
}

func TestSession_LeaveResolvesBotFromDirectory(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)
	h.directory.projects["proj-1"] = "bot-9"

	h.say("Alice", "Recall leave the meeting")
	require.Eventually(t, func() bool { return len(h.remover.ids()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"bot-9"}, h.remover.ids())
}

func TestSession_LeaveWithoutIdentity(t *testing.T) {
	gen := &fakeGenerator{reply: "We chose tiered pricing."}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "Recall leave the meeting")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)
	h.session.Wait()
	assert.Empty(t, h.remover.ids())

	// The bot is still in the meeting and keeps answering.
	h.say("Alice", "Recall what did we decide about pricing last week")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 2 }, waitFor, tick)
	assert.Equal(t, "We chose tiered pricing.", h.sink.said()[1])
}

func TestSession_LeaveFailureKeepsServing(t *testing.T) {
	gen := &fakeGenerator{reply: "Budget is 50k."}
	h := newHarness(t, Config{BotID: "bot-1"}, gen, nil)
	h.remover.err = errors.New("platform unavailable")

	h.say("Alice", "Recall, please leave")
	require.Eventually(t, func() bool { return len(h.remover.ids()) == 1 }, waitFor, tick)
	h.session.Wait()

	h.say("Alice", "Recall, what was the budget")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 2 }, waitFor, tick)
	assert.Equal(t, "Budget is 50k.", h.sink.said()[1])
}

func TestSession_MemoryDisabled(t *testing.T) {
	h := newHarness(t, Config{}, &fakeGenerator{}, nil)

	h.say("Alice", "Recall, what was the budget")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)

	steps := h.sink.thinking()
	require.Len(t, steps, 4)
	assert.Equal(t, "processing", steps[0].Step)
	assert.Equal(t, "Recall, what was the budget", steps[0].Data["query"])
	assert.Equal(t, ThinkingData{Step: "context", Message: "Memory disabled for this meeting"}, steps[1])
	assert.Equal(t, "generating", steps[2].Step)
	assert.Nil(t, steps[2].Data)
	assert.Equal(t, "complete", steps[3].Step)
}

func TestSession_RetrievedContextReachesPrompt(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	memory := &fakeMemory{results: []domain.SearchResult{
		{Text: "Budget is 50k.", Title: "Planning", Timestamp: ts, Similarity: 0.8731},
	}}
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, memory)

	h.say("Alice", "Recall, what was the budget for the new marketing campaign")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].messages[0].Content, "From 'Planning' on January 02, 2024:\n\"Budget is 50k.\"")

	steps := h.sink.thinking()
	require.Len(t, steps, 4)
	assert.Equal(t, "Found 1 relevant memories", steps[1].Message)
	views, ok := steps[1].Data["results"].([]MemoryView)
	require.True(t, ok)
	assert.Equal(t, []MemoryView{{Text: "Budget is 50k.", Meeting: "Planning", Date: "Jan 02, 2024", Similarity: 0.87}}, views)

	queries, _, syncs := memory.snapshot()
	assert.Equal(t, []string{"Recall, what was the budget for the new marketing campaign"}, queries)
	assert.Equal(t, 1, syncs)
}

func TestSession_ShortFollowUpIsExpanded(t *testing.T) {
	memory := &fakeMemory{}
	h := newHarness(t, Config{}, &fakeGenerator{}, memory)

	h.say("Alice", "Recall, and the budget?")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)

	queries, _, _ := memory.snapshot()
	require.Len(t, queries, 1)
	assert.Equal(t, "[Alice]: Recall, and the budget? Recall, and the budget?", queries[0])

	steps := h.sink.thinking()
	assert.Equal(t, "No matching memories found", steps[1].Message)
}

func TestSession_QueryFailureStillReplies(t *testing.T) {
	memory := &fakeMemory{queryErr: errors.New("embedding failed")}
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, memory)

	h.say("Alice", "Recall, what was the budget")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].messages[0].Content, systemPromptNoContext))
}

func TestSession_TriggerDuringReplyIsDeferred(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{gate: gate}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "Recall, what was the budget")
	require.Eventually(t, func() bool { return len(gen.calls()) == 1 }, waitFor, tick)
	assert.Equal(t, StateProcessing, h.session.State())

	h.say("Bob", "Recall, and the timeline?")
	time.Sleep(3 * testDelay)
	assert.Equal(t, StateProcessing, h.session.State())
	assert.Len(t, gen.calls(), 1)

	close(gate)
	require.Eventually(t, func() bool { return len(h.sink.said()) == 2 }, waitFor, tick)
	assert.Len(t, gen.calls(), 2)
}

func TestSession_Start(t *testing.T) {
	memory := &fakeMemory{pending: []domain.ActionItem{
		{ID: "ai-1", Text: "send the deck", Assignee: "Bob", Status: domain.ActionItemStatusPending},
	}}
	gen := &fakeGenerator{reply: "Hi, I'm Recall."}
	h := newHarness(t, Config{}, gen, memory)

	h.session.Start(context.Background())

	events := h.sink.all()
	require.Len(t, events, 4)
	assert.Equal(t, Event{Type: EventStatus, Data: StatusData{Status: "connected", Message: "Recall connected"}}, events[0])
	assert.Equal(t, "Hi, I'm Recall.", events[1].Data.(TranscriptData).Text)
	assert.Equal(t, EventAudio, events[2].Type)
	assert.Equal(t, Event{Type: EventActionItems, Data: ActionItemsData{Items: []ActionItemView{
		{ID: "ai-1", Text: "send the deck", Assignee: "Bob", Status: "pending"},
	}}}, events[3])

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].messages[0].Content, "pending action items")

	_, surfaced, syncs := memory.snapshot()
	assert.Equal(t, []string{"ai-1"}, surfaced)
	assert.Equal(t, 1, syncs)

	h.say("Alice", "Recall, what was the budget")
	require.Eventually(t, func() bool { return len(h.sink.said()) == 2 }, waitFor, tick)
	_, _, syncs = memory.snapshot()
	assert.Equal(t, 1, syncs)

	calls = gen.calls()
	assert.Contains(t, calls[1].messages[0].Content, "\n\nPending action items from previous meetings:\n1. send the deck (assigned to Bob)")
}

func TestSession_FallbackGreetingDoesNotSurfaceItems(t *testing.T) {
	memory := &fakeMemory{pending: []domain.ActionItem{
		{ID: "ai-1", Text: "send the deck", Status: domain.ActionItemStatusPending},
	}}
	h := newHarness(t, Config{}, &fakeGenerator{err: errors.New("down")}, memory)

	h.session.Start(context.Background())

	assert.Equal(t, []string{fallbackGreeting}, h.sink.said())
	assert.Len(t, h.sink.ofType(EventActionItems), 1)
	_, surfaced, _ := memory.snapshot()
	assert.Empty(t, surfaced)
}

func TestSession_HandleMessage(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	memory := &fakeMemory{results: []domain.SearchResult{{Text: "Budget is 50k.", Title: "Planning", Timestamp: ts}}}
	h := newHarness(t, Config{}, &fakeGenerator{}, memory)
	ctx := context.Background()

	h.session.HandleMessage(ctx, ClientMessage{Type: MessageSetBotID, BotID: "bot-7"})
	assert.Equal(t, "bot-7", h.session.BotID())
	assert.Same(t, h.session, h.directory.bound["bot-7"])

	h.session.HandleMessage(ctx, ClientMessage{Type: MessageQuery, Query: "budget"})
	assert.Equal(t, []Event{{Type: EventContext, Data: ContextData{
		Context: "Relevant context from previous meetings:\n\nFrom 'Planning' on January 02, 2024:\n\"Budget is 50k.\"\n",
	}}}, h.sink.all())

	h.session.HandleMessage(ctx, ClientMessage{Type: MessageTranscript, Text: "Recall", IsFinal: true})
	require.Eventually(t, func() bool { return len(h.sink.said()) == 1 }, waitFor, tick)
	history := h.session.responder.History()
	require.NotEmpty(t, history)
	assert.Equal(t, "[Unknown]: Recall", history[0].Content)
}

func TestSession_QueryMessageFailure(t *testing.T) {
	memory := &fakeMemory{queryErr: errors.New("boom")}
	h := newHarness(t, Config{}, nil, memory)

	h.session.HandleMessage(context.Background(), ClientMessage{Type: MessageQuery, Query: "budget"})
	assert.Equal(t, []Event{{Type: EventError, Data: ErrorData{Error: "query failed"}}}, h.sink.all())
}

func TestSession_CloseDropsEvents(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{}, gen, nil)

	h.say("Alice", "Recall, what was the budget")
	h.session.Close()
	time.Sleep(3 * testDelay)
	h.session.Wait()

	assert.Empty(t, gen.calls())
	assert.Empty(t, h.sink.all())

	h.say("Alice", "Recall, are you there")
	assert.Equal(t, StatePendingResponse, h.session.State())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("a", 120)
	assert.Equal(t, strings.Repeat("a", 100)+"...", preview(long))
}
