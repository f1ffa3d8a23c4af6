package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the character budget of one chunk.
const DefaultChunkSize = 500

// ChunkText splits text into sentence-aligned chunks of at most size
// characters, except where a single sentence is longer than size. Each chunk
// after the first starts with the last sentence of the previous one.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	sentences := splitSentences(strings.ReplaceAll(text, "\n", " "))
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]string, 0, 4)
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		if currentLen+n > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			last := current[len(current)-1]
			current = []string{last}
			currentLen = utf8.RuneCountInString(last)
		}
		current = append(current, sentence)
		currentLen += n
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// splitSentences breaks text at whitespace that follows '.', '!' or '?'.
// Pieces are trimmed and empty pieces dropped.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || !isTerminal(runes[i-1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:i])); s != "" {
			sentences = append(sentences, s)
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start = i
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
