package conversation

import (
	"strings"
	"unicode/utf8"
)

// AssistantName is the name the assistant answers to.
const AssistantName = "Recall"

// WakeWords are the transcriptions the speech recognizer commonly produces
// for the assistant's name. Order matters when stripping: longer variants
// containing "recall" are reduced by the earlier entries first.
var WakeWords = []string{
	"recall", "recal", "rico", "regal", "re call", "recall,",
	"hey recall", "ok recall", "okay recall",
}

// LeaveKeywords ask the assistant to leave when combined with a wake word.
var LeaveKeywords = []string{"leave", "go away", "exit", "bye", "goodbye", "go now", "depart"}

// ChatRemoveCommands are exact chat messages that remove the bot.
var ChatRemoveCommands = map[string]struct{}{
	"remove": {},
	"leave":  {},
	"exit":   {},
	"bye":    {},
}

var fillers = []string{",", ".", "hey", "ok", "okay", "um", "uh"}

const (
	// minQuestionLength is the shortest remainder after stripping wake words
	// and fillers that still counts as a question.
	minQuestionLength = 5
	// minFollowUpLength is the shortest utterance accepted as a follow-up
	// after a bare wake word.
	minFollowUpLength = 4
)

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// HasWakeWord reports whether text mentions the assistant.
func HasWakeWord(text string) bool {
	return containsAny(normalize(text), WakeWords)
}

func HasLeaveKeyword(text string) bool {
	return containsAny(normalize(text), LeaveKeywords)
}

// IsChatRemoveCommand reports whether a chat message asks the bot to leave.
func IsChatRemoveCommand(message string) bool {
	_, ok := ChatRemoveCommands[normalize(message)]
	return ok
}

// isBareWakeWord reports whether text is only a wake word plus filler.
func isBareWakeWord(text string) bool {
	rest := normalize(text)
	for _, w := range WakeWords {
		rest = strings.TrimSpace(strings.ReplaceAll(rest, w, ""))
	}
	for _, f := range fillers {
		rest = strings.TrimSpace(strings.ReplaceAll(rest, f, ""))
	}
	return utf8.RuneCountInString(rest) < minQuestionLength
}
