package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel      = string(openai.SmallEmbedding3)
	DefaultEmbeddingDimensions = 1536
	DefaultChatModel           = openai.GPT4oMini
	DefaultSpeechModel         = string(openai.TTSModel1)
	DefaultSpeechVoice         = string(openai.VoiceAlloy)

	defaultCacheSize  = 256
	defaultMaxRetries = 3
	maxBatchSize      = 100
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoChoices is returned when a completion has no choices
	ErrNoChoices = errors.New("no completion choices returned")
)

// Message roles
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// API is the subset of the OpenAI API the client uses.
type API interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	CreateChatCompletion(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error)
	CreateSpeech(ctx context.Context, text string) ([]byte, error)
}

type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
	speechModel    openai.SpeechModel
	voice          openai.SpeechVoice
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	cfg = cfg.withDefaults()
	return &OpenAIAdapter{
		client:         openai.NewClient(cfg.APIKey),
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		chatModel:      cfg.ChatModel,
		speechModel:    openai.SpeechModel(cfg.SpeechModel),
		voice:          openai.SpeechVoice(cfg.SpeechVoice),
	}
}

// CreateEmbeddings returns one embedding per input, in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.chatModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateSpeech synthesizes mp3 audio for text.
func (a *OpenAIAdapter) CreateSpeech(ctx context.Context, text string) ([]byte, error) {
	resp, err := a.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          a.speechModel,
		Input:          text,
		Voice:          a.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

type Config struct {
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	SpeechModel         string
	SpeechVoice         string
	// CacheSize bounds the query embedding cache. Zero uses the default.
	CacheSize  int
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.SpeechVoice == "" {
		c.SpeechVoice = DefaultSpeechVoice
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// Client is the generation collaborator: embeddings, chat completions and
// speech synthesis with retries on transient failures.
type Client struct {
	api        API
	dimensions int
	maxRetries uint64
	cache      *lru.Cache[string, []float32]
	newBackOff func() backoff.BackOff
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return newClient(NewOpenAIAdapter(cfg), cfg)
}

func newClient(api API, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		api:        api,
		dimensions: cfg.EmbeddingDimensions,
		maxRetries: uint64(cfg.MaxRetries),
		cache:      newEmbeddingCache(cfg.CacheSize),
		newBackOff: defaultBackOff,
	}
}

// newEmbeddingCache returns nil when no cache can be built; Embed then goes
// to the API every time.
func newEmbeddingCache(size int) *lru.Cache[string, []float32] {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil
	}
	return cache
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 1.5
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// isRetryable reports whether err is a rate limit, server error or network
// failure.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, ErrEmptyText) && !errors.Is(err, ErrWrongDimensions)
}

// Embed returns the embedding of a single text. Results are cached by text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if c.cache != nil {
		if emb, ok := c.cache.Get(text); ok {
			return emb, nil
		}
	}

	embs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(text, embs[0])
	}
	return embs[0], nil
}

// EmbedBatch returns one embedding per text, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		embs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, embs...)
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var embs [][]float32
	err := c.retry(ctx, func() error {
		var err error
		embs, err = c.api.CreateEmbeddings(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	for _, e := range embs {
		if len(e) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(e), c.dimensions)
		}
	}
	return embs, nil
}

// Complete runs a chat completion over messages.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error) {
	var text string
	err := c.retry(ctx, func() error {
		var err error
		text, err = c.api.CreateChatCompletion(ctx, messages, maxTokens, temperature)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	return text, nil
}

// SynthesizeSpeech returns mp3 audio for text.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	var audio []byte
	err := c.retry(ctx, func() error {
		var err error
		audio, err = c.api.CreateSpeech(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	return audio, nil
}
