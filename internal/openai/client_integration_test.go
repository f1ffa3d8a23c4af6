//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Embed_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	embedding, err := client.Embed(context.Background(), "What did we decide about the launch date?")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Complete_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	text, err := client.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "Reply with the single word: ready"},
	}, 10, 0)

	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
