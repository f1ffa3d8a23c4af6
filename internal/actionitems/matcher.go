package actionitems

import (
	"regexp"
	"strings"
)

// Match is one phrase captured by a Matcher. Start is the byte offset of the
// whole match in the scanned text.
type Match struct {
	Text  string
	Start int
}

// Matcher detects one kind of action phrase.
type Matcher interface {
	Name() string
	FindAll(text string) []Match
}

// PatternMatcher is a Matcher backed by a regular expression whose first
// capture group is the action phrase.
type PatternMatcher struct {
	name string
	re   *regexp.Regexp
}

// NewPatternMatcher compiles pattern case-insensitively with line anchors, so
// a phrase ends at a period or at the end of the speaker's line.
func NewPatternMatcher(name, pattern string) *PatternMatcher {
	return &PatternMatcher{
		name: name,
		re:   regexp.MustCompile(`(?im)` + pattern),
	}
}

func (p *PatternMatcher) Name() string {
	return p.name
}

func (p *PatternMatcher) FindAll(text string) []Match {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		if len(loc) < 4 || loc[2] < 0 {
			continue
		}
		matches = append(matches, Match{
			Text:  strings.TrimSpace(text[loc[2]:loc[3]]),
			Start: loc[0],
		})
	}
	return matches
}

// DefaultMatchers returns the built-in phrase matchers in evaluation order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		NewPatternMatcher("remind me", `remind me (?:to|about) (.+?)(?:\.|$)`),
		NewPatternMatcher("circle back", `circle back (?:on|to) (.+?)(?:\.|$)`),
		NewPatternMatcher("follow up", `follow up (?:on|with) (.+?)(?:\.|$)`),
		NewPatternMatcher("action item", `action item[:\s]+(.+?)(?:\.|$)`),
		NewPatternMatcher("don't forget", `don'?t forget (?:to )?(.+?)(?:\.|$)`),
		NewPatternMatcher("revisit", `let'?s revisit (.+?)(?:\.|$)`),
		NewPatternMatcher("todo", `todo[:\s]+(.+?)(?:\.|$)`),
	}
}
