package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/recall/internal/actionitems"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/telemetry"
	"github.com/cloo-solutions/recall/internal/vectorstore"
)

// SourceLister lists the bot sessions of a series and downloads their
// transcripts.
type SourceLister interface {
	ListSeriesBots(ctx context.Context, seriesID string) ([]domain.Bot, error)
	FetchTranscript(ctx context.Context, downloadURL string) ([]domain.Utterance, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SyncResult reports how many sources a sync indexed out of all sources the
// platform knows for the series.
type SyncResult struct {
	Indexed      int `json:"indexed"`
	TotalSources int `json:"total_bots"`
}

type QueryOptions struct {
	TopK      int
	Threshold float64
	AutoSync  bool
}

type Options struct {
	ChunkSize int
	TopK      int
	Threshold float64
	Now       func() time.Time
}

// Indexer owns the vector store and action items of one series and keeps
// them in step with the platform's finished meetings.
type Indexer struct {
	seriesID  string
	sources   SourceLister
	embedder  Embedder
	vectors   *vectorstore.Store
	items     *actionitems.Store
	extractor *actionitems.Extractor
	log       *logger.Logger
	opts      Options

	// syncMu serializes Sync so webhook and scheduled syncs cannot index the
	// same source twice.
	syncMu sync.Mutex
}

func New(
	seriesID string,
	sources SourceLister,
	embedder Embedder,
	vectors *vectorstore.Store,
	items *actionitems.Store,
	log *logger.Logger,
	opts Options,
) *Indexer {
	if log == nil {
		log = logger.Nop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Indexer{
		seriesID:  seriesID,
		sources:   sources,
		embedder:  embedder,
		vectors:   vectors,
		items:     items,
		extractor: actionitems.NewExtractor(actionitems.WithClock(opts.Now)),
		log:       log.With("series_id", seriesID),
		opts:      opts,
	}
}

func (ix *Indexer) SeriesID() string {
	return ix.seriesID
}

func (ix *Indexer) Vectors() *vectorstore.Store {
	return ix.vectors
}

func (ix *Indexer) ActionItems() *actionitems.Store {
	return ix.items
}

// Sync indexes every finished source of the series that has a transcript and
// has not been indexed yet, or every finished source when force is set. A
// source that fails is logged, left unmarked and retried on the next sync.
func (ix *Indexer) Sync(ctx context.Context, force bool) (SyncResult, error) {
	ix.syncMu.Lock()
	defer ix.syncMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "indexer.sync", telemetry.SpanAttributes{
		SeriesID:  ix.seriesID,
		Operation: "sync",
	})
	defer span.End()

	bots, err := ix.sources.ListSeriesBots(ctx, ix.seriesID)
	if err != nil {
		span.SetError(err)
		telemetry.SyncRuns.WithLabelValues(telemetry.OutcomeError).Inc()
		return SyncResult{}, fmt.Errorf("failed to list series bots: %w", err)
	}

	var pending []domain.Bot
	for _, b := range bots {
		if !b.Indexable() {
			continue
		}
		if !force && ix.vectors.IsIndexed(b.ID) {
			continue
		}
		pending = append(pending, b)
	}

	result := SyncResult{TotalSources: len(bots)}
	if len(pending) == 0 {
		telemetry.SyncRuns.WithLabelValues(telemetry.OutcomeOK).Inc()
		return result, nil
	}

	for _, b := range pending {
		if err := ix.indexBot(ctx, b); err != nil {
			ix.log.Error("failed to index bot", "bot_id", b.ID, "error", err)
			telemetry.SourceFailures.Inc()
			telemetry.CaptureError(ctx, fmt.Errorf("index bot %s: %w", b.ID, err))
			continue
		}
		result.Indexed++
	}
	telemetry.SourcesIndexed.Add(float64(result.Indexed))
	telemetry.SyncRuns.WithLabelValues(telemetry.OutcomeOK).Inc()

	if err := ix.vectors.Save(ctx); err != nil {
		ix.log.Error("failed to persist vector store", "error", err)
	}

	ix.log.Info("series sync complete", "indexed", result.Indexed, "total_bots", result.TotalSources)
	return result, nil
}

func (ix *Indexer) indexBot(ctx context.Context, bot domain.Bot) error {
	utterances, err := ix.sources.FetchTranscript(ctx, bot.TranscriptURL)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}
	if len(utterances) == 0 {
		ix.vectors.MarkIndexed(bot.ID)
		return nil
	}

	fullText := transcriptText(utterances)
	texts := ChunkText(fullText, ix.opts.ChunkSize)
	if len(texts) == 0 {
		ix.vectors.MarkIndexed(bot.ID)
		return nil
	}

	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("embed chunks: got %d embeddings for %d chunks", len(embeddings), len(texts))
	}

	title := MeetingTitle(bot)
	ts := ix.opts.Now()
	if bot.CreatedAt != nil {
		ts = *bot.CreatedAt
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.NewChunk(bot.ID, text, embeddings[i], ix.seriesID, title, ts)
	}
	if err := ix.vectors.ReplaceSource(bot.ID, chunks); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}
	ix.vectors.MarkIndexed(bot.ID)

	if ix.items != nil {
		detected := ix.extractor.Detect(fullText, ix.seriesID, bot.ID, "")
		if added := ix.items.AddMany(detected); added > 0 {
			ix.log.Info("detected action items", "bot_id", bot.ID, "count", added)
		}
		if err := ix.items.Save(ctx); err != nil {
			ix.log.Error("failed to persist action items", "bot_id", bot.ID, "error", err)
		}
	}
	return nil
}

func transcriptText(utterances []domain.Utterance) string {
	lines := make([]string, len(utterances))
	for i, u := range utterances {
		speaker := u.Speaker
		if speaker == "" {
			speaker = "Speaker"
		}
		lines[i] = speaker + ": " + u.Text
	}
	return strings.Join(lines, "\n")
}

// MeetingTitle labels a source for citations, from its meeting URL when the
// platform is recognised and from the bot name otherwise.
func MeetingTitle(bot domain.Bot) string {
	date := "Unknown"
	if bot.CreatedAt != nil {
		date = bot.CreatedAt.Format("Jan 02")
	}

	u := strings.ToLower(bot.MeetingURL)
	switch {
	case strings.Contains(u, "zoom"):
		return fmt.Sprintf("Zoom Meeting (%s)", date)
	case strings.Contains(u, "meet.google"):
		return fmt.Sprintf("Google Meet (%s)", date)
	case strings.Contains(u, "teams"):
		return fmt.Sprintf("Teams Meeting (%s)", date)
	}
	if bot.Name != "" {
		return bot.Name
	}
	return "Meeting"
}

// Query optionally syncs, then returns the chunks most similar to text.
// Zero TopK and Threshold fall back to the indexer defaults.
func (ix *Indexer) Query(ctx context.Context, text string, opts QueryOptions) ([]domain.SearchResult, error) {
	if opts.AutoSync {
		if _, err := ix.Sync(ctx, false); err != nil {
			ix.log.Warn("sync before query failed", "error", err)
		}
	}
	if opts.TopK <= 0 {
		opts.TopK = ix.opts.TopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = ix.opts.Threshold
	}

	start := time.Now()
	defer func() { telemetry.SearchDuration.Observe(time.Since(start).Seconds()) }()

	embedding, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return ix.vectors.Search(embedding, opts.TopK, opts.Threshold)
}

// FormatContext renders search results as prompt context. No results render
// as an empty string.
func FormatContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	lines := make([]string, 0, 1+2*len(results))
	lines = append(lines, "Relevant context from previous meetings:\n")
	for _, r := range results {
		lines = append(lines,
			fmt.Sprintf("From '%s' on %s:", r.Title, r.Timestamp.Format("January 02, 2006")),
			`"`+r.Text+`"`+"\n",
		)
	}
	return strings.Join(lines, "\n")
}

// PendingActionItems returns the series' pending items.
func (ix *Indexer) PendingActionItems() []domain.ActionItem {
	if ix.items == nil {
		return nil
	}
	return ix.items.Pending()
}

// MarkActionItemsSurfaced records that the assistant mentioned the items and
// persists the change.
func (ix *Indexer) MarkActionItemsSurfaced(ctx context.Context, ids []string) int {
	if ix.items == nil || len(ids) == 0 {
		return 0
	}
	n := ix.items.MarkSurfaced(ids)
	if n > 0 {
		if err := ix.items.Save(ctx); err != nil {
			ix.log.Error("failed to persist action items", "error", err)
		}
	}
	return n
}

// ActionItemsContext renders the pending items for the responder prompt.
func (ix *Indexer) ActionItemsContext() string {
	return actionitems.FormatForPrompt(ix.PendingActionItems())
}

// ActionItemsByStatus returns the series' items with the given status, or
// every item for an empty status, ordered by creation time then id.
func (ix *Indexer) ActionItemsByStatus(status domain.ActionItemStatus) []domain.ActionItem {
	if ix.items == nil {
		return nil
	}
	var items []domain.ActionItem
	if status == "" {
		items = ix.items.All()
	} else {
		items = ix.items.ByStatus(status)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// CompleteActionItem marks an item completed and persists the change.
func (ix *Indexer) CompleteActionItem(ctx context.Context, id string) (domain.ActionItem, error) {
	if ix.items == nil {
		return domain.ActionItem{}, domain.ErrActionItemNotFound
	}
	item, err := ix.items.Complete(id)
	if err != nil {
		return item, err
	}
	if err := ix.items.Save(ctx); err != nil {
		return item, err
	}
	return item, nil
}
