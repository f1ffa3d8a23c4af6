package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("  First one. Second!   Third?Fourth.  Last  ")
	assert.Equal(t, []string{"First one.", "Second!", "Third?Fourth.", "Last"}, got)

	assert.Nil(t, splitSentences("   "))
	assert.Equal(t, []string{"No terminal punctuation"}, splitSentences("No terminal punctuation"))
}

func TestChunkText_Empty(t *testing.T) {
	assert.Empty(t, ChunkText("", 100))
	assert.Empty(t, ChunkText(" \n ", 100))
}

func TestChunkText_FitsInOneChunk(t *testing.T) {
	got := ChunkText("A: Hello there.\nB: Hi.", 100)
	assert.Equal(t, []string{"A: Hello there. B: Hi."}, got)
}

func TestChunkText_OneSentenceOverlap(t *testing.T) {
	text := "Aaaa aaaa. Bbbb bbbb. Cccc cccc. Dddd dddd."
	got := ChunkText(text, 20)

	assert.Equal(t, []string{
		"Aaaa aaaa. Bbbb bbbb.",
		"Bbbb bbbb. Cccc cccc.",
		"Cccc cccc. Dddd dddd.",
	}, got)
}

func TestChunkText_LongSentenceOverflowsBudget(t *testing.T) {
	long := strings.Repeat("x", 50) + "."
	got := ChunkText("Short. "+long+" Tail.", 20)

	assert.Equal(t, []string{
		"Short.",
		"Short. " + long,
		long + " Tail.",
	}, got)
}

func TestChunkText_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps. Over the lazy dog! Really? ", 40)
	first := ChunkText(text, 120)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ChunkText(text, 120))
	}
}

func TestChunkText_ConsecutiveChunksShareASentence(t *testing.T) {
	text := strings.Repeat("One sentence here. Another sentence there. ", 30)
	chunks := ChunkText(text, 100)
	assert.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev := splitSentences(chunks[i-1])
		next := splitSentences(chunks[i])
		assert.Equal(t, prev[len(prev)-1], next[0])
	}
}

func TestChunkText_DefaultSize(t *testing.T) {
	text := strings.Repeat("Sentence number one. ", 100)
	chunks := ChunkText(text, 0)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		total := 0
		for _, s := range splitSentences(c) {
			total += len(s)
		}
		assert.LessOrEqual(t, total, DefaultChunkSize)
	}
}
