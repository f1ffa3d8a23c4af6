package actionitems

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cloo-solutions/recall/internal/domain"
)

const (
	minPhraseLength = 5
	assigneeWindow  = 50
)

var (
	politeAssigneeRe = regexp.MustCompile(`([A-Z][a-z]+)[,:]?\s*(?:can you|please|could you)`)
	forAssigneeRe    = regexp.MustCompile(`(?:for|with)\s+([A-Z][a-z]+)`)
)

// Extractor turns transcript text into pending action items.
type Extractor struct {
	matchers []Matcher
	now      func() time.Time
	newID    func() string
}

type ExtractorOption func(*Extractor)

// WithMatchers replaces the default matchers.
func WithMatchers(m ...Matcher) ExtractorOption {
	return func(e *Extractor) {
		e.matchers = m
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		matchers: DefaultMatchers(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Detect runs every matcher over text in order. Phrases shorter than five
// characters, or repeated within this call (case-insensitively), are dropped.
// The assignee is inferred from the text around the match and falls back to
// speaker.
func (e *Extractor) Detect(text, seriesID, sourceID, speaker string) []domain.ActionItem {
	seen := make(map[string]struct{})
	var items []domain.ActionItem

	for _, m := range e.matchers {
		for _, match := range m.FindAll(text) {
			if utf8.RuneCountInString(match.Text) < minPhraseLength {
				continue
			}
			key := strings.ToLower(match.Text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			assignee := inferAssignee(text, match.Start)
			if assignee == "" {
				assignee = speaker
			}

			items = append(items, domain.ActionItem{
				ID:          e.newID(),
				SeriesID:    seriesID,
				SourceID:    sourceID,
				Text:        match.Text,
				PatternName: m.Name(),
				Assignee:    assignee,
				Status:      domain.ActionItemStatusPending,
				CreatedAt:   e.now(),
			})
		}
	}
	return items
}

func inferAssignee(text string, pos int) string {
	start := max(0, pos-assigneeWindow)
	end := min(len(text), pos+assigneeWindow)
	window := text[start:end]

	if m := politeAssigneeRe.FindStringSubmatch(window); m != nil {
		return m[1]
	}
	if m := forAssigneeRe.FindStringSubmatch(window); m != nil {
		return m[1]
	}
	return ""
}

// FormatForPrompt renders items as a numbered list for the responder.
func FormatForPrompt(items []domain.ActionItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Pending action items from previous meetings:")
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item.Text)
		if item.Assignee != "" {
			b.WriteString(" (assigned to ")
			b.WriteString(item.Assignee)
			b.WriteString(")")
		}
	}
	return b.String()
}
