package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/cloo-solutions/recall/internal/logger"
	"github.com/cloo-solutions/recall/internal/openai"
)

const systemPromptWithContext = `You are "Recall", a friendly project bot that recalls information from past meetings.

CRITICAL RULES:
1. ONLY use information from the "MEETING CONTEXT" section below
2. NEVER invent or fabricate meeting details, dates, names, or discussions
3. If context doesn't contain relevant info, say "I don't have information about that in my meeting records"
4. Always cite the meeting title and date when referencing information
5. Keep responses to 1-2 sentences - you're speaking in a live meeting

Your name is Recall. Speak in a friendly, helpful tone.`

const systemPromptNoContext = `You are "Recall", a friendly project bot that recalls information from past meetings.

CRITICAL RULES:
1. You have NO relevant context from past meetings for this query
2. NEVER invent or fabricate meeting details, dates, names, or discussions
3. Say something like: "I don't have any relevant information from past meetings about that topic"
4. Keep responses to 1 sentence

Your name is Recall. Speak in a friendly, helpful tone.`

const greetingPrompt = `You are "Recall", a friendly project bot.
Introduce yourself in ONE short sentence. Mention that people can get your attention by saying "Recall".
Do NOT mention any specific meetings or dates.`

const (
	fallbackReply    = "I'm sorry, I encountered an error."
	fallbackGreeting = "Hello, I'm Recall, your meeting memory assistant."

	maxHistory          = 20
	recentContextWindow = 4

	replyMaxTokens    = 150
	greetingMaxTokens = 60
	temperature       = 0.3
)

// Generator produces text and speech. *openai.Client satisfies it.
type Generator interface {
	Complete(ctx context.Context, messages []openai.Message, maxTokens int, temperature float32) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Reply is one assistant turn. Audio is nil when speech synthesis failed or
// was not requested. Fallback marks a canned text used after a generation
// failure.
type Reply struct {
	Text     string
	Audio    []byte
	Fallback bool
}

// Responder keeps the rolling conversation of one session and turns it into
// assistant replies. A nil generator always yields the fallback texts.
type Responder struct {
	gen Generator
	log *logger.Logger

	mu          sync.Mutex
	history     []openai.Message
	context     string
	actionItems string
}

func NewResponder(gen Generator, log *logger.Logger) *Responder {
	if log == nil {
		log = logger.Nop()
	}
	return &Responder{gen: gen, log: log}
}

// SetContext sets the retrieved meeting context for the next reply only.
func (r *Responder) SetContext(ctx string) {
	r.mu.Lock()
	r.context = ctx
	r.mu.Unlock()
}

// SetActionItems sets the pending action items block appended to every
// system prompt.
func (r *Responder) SetActionItems(items string) {
	r.mu.Lock()
	r.actionItems = items
	r.mu.Unlock()
}

func (r *Responder) AddUserMessage(speaker, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(openai.Message{Role: openai.RoleUser, Content: "[" + speaker + "]: " + text})
}

func (r *Responder) appendLocked(m openai.Message) {
	r.history = append(r.history, m)
	if len(r.history) > maxHistory {
		r.history = append([]openai.Message(nil), r.history[len(r.history)-maxHistory:]...)
	}
}

// RecentContext joins the last few conversation turns for query expansion.
func (r *Responder) RecentContext() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := len(r.history) - recentContextWindow
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, recentContextWindow)
	for _, m := range r.history[start:] {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

// History returns a copy of the conversation.
func (r *Responder) History() []openai.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]openai.Message(nil), r.history...)
}

func (r *Responder) systemPromptLocked() string {
	var b strings.Builder
	if r.context != "" {
		b.WriteString(systemPromptWithContext)
		b.WriteString("\n\n=== MEETING CONTEXT ===\n")
		b.WriteString(r.context)
		b.WriteString("\n=== END CONTEXT ===")
	} else {
		b.WriteString(systemPromptNoContext)
	}
	if r.actionItems != "" {
		b.WriteString("\n\n")
		b.WriteString(r.actionItems)
	}
	return b.String()
}

// Respond answers the conversation so far. The retrieved context is consumed
// by the call. Generation failures return the fallback text without audio.
func (r *Responder) Respond(ctx context.Context, withAudio bool) Reply {
	r.mu.Lock()
	messages := make([]openai.Message, 0, len(r.history)+1)
	messages = append(messages, openai.Message{Role: openai.RoleSystem, Content: r.systemPromptLocked()})
	messages = append(messages, r.history...)
	r.mu.Unlock()

	if r.gen == nil {
		return Reply{Text: fallbackReply, Fallback: true}
	}

	text, err := r.gen.Complete(ctx, messages, replyMaxTokens, temperature)
	if err != nil {
		r.log.Error("response generation failed", "error", err)
		return Reply{Text: fallbackReply, Fallback: true}
	}

	r.mu.Lock()
	r.appendLocked(openai.Message{Role: openai.RoleAssistant, Content: text})
	r.context = ""
	r.mu.Unlock()

	reply := Reply{Text: text}
	if withAudio {
		reply.Audio = r.Speak(ctx, text)
	}
	return reply
}

// Greeting introduces the assistant, mentioning pending action items when
// there are any.
func (r *Responder) Greeting(ctx context.Context, hasActionItems bool) Reply {
	if r.gen == nil {
		return Reply{Text: fallbackGreeting, Fallback: true}
	}

	system := greetingPrompt
	if hasActionItems {
		system += "\nMention that you have some pending action items to share."
	}
	messages := []openai.Message{
		{Role: openai.RoleSystem, Content: system},
		{Role: openai.RoleUser, Content: "Please introduce yourself."},
	}

	text, err := r.gen.Complete(ctx, messages, greetingMaxTokens, temperature)
	if err != nil {
		r.log.Error("greeting generation failed", "error", err)
		return Reply{Text: fallbackGreeting, Fallback: true}
	}

	r.mu.Lock()
	r.appendLocked(openai.Message{Role: openai.RoleAssistant, Content: text})
	r.mu.Unlock()

	return Reply{Text: text, Audio: r.Speak(ctx, text)}
}

// Speak synthesizes text, returning nil on failure.
func (r *Responder) Speak(ctx context.Context, text string) []byte {
	if r.gen == nil || text == "" {
		return nil
	}
	audio, err := r.gen.SynthesizeSpeech(ctx, text)
	if err != nil {
		r.log.Error("speech synthesis failed", "error", err)
		return nil
	}
	return audio
}
