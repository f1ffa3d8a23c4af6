package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/recall/internal/conversation"
)

func newSession(projectID, botID string) *conversation.Session {
	return conversation.NewSession(conversation.Config{ProjectID: projectID, BotID: botID}, nil, conversation.Deps{})
}

func TestRegistry_ProjectBots(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.BotForProject("proj-1"))

	r.SetProjectBot("proj-1", "bot-1")
	r.SetProjectBot("proj-1", "bot-2")
	r.SetProjectBot("", "bot-3")

	assert.Equal(t, "bot-2", r.BotForProject("proj-1"))
	assert.Equal(t, "", r.BotForProject(""))
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := New()
	withBot := newSession("proj-1", "bot-1")
	withoutBot := newSession("proj-2", "")

	r.Register(withBot)
	r.Register(withoutBot)
	assert.Equal(t, 2, r.Len())

	assert.Same(t, withBot, r.SessionForBot("bot-1"))
	assert.Same(t, withBot, r.Resolve("bot-1", ""))
	assert.Same(t, withoutBot, r.Resolve("bot-unknown", "proj-2"))
	assert.Nil(t, r.Resolve("bot-unknown", ""))
	assert.Nil(t, r.Resolve("", "proj-3"))

	r.BindBot("bot-2", withoutBot)
	assert.Same(t, withoutBot, r.Resolve("bot-2", "proj-1"))
}

func TestRegistry_UnregisterKeepsNewerSession(t *testing.T) {
	r := New()
	old := newSession("proj-1", "bot-1")
	newer := newSession("proj-1", "bot-2")

	r.Register(old)
	r.Register(newer)
	assert.Equal(t, 1, r.Len())

	r.Unregister(old)
	assert.Same(t, newer, r.SessionForProject("proj-1"))
	assert.Nil(t, r.SessionForBot("bot-1"))
	assert.Same(t, newer, r.SessionForBot("bot-2"))

	r.Unregister(newer)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.SessionForBot("bot-2"))
}

func TestRegistry_SessionBindsThroughDirectory(t *testing.T) {
	r := New()
	s := conversation.NewSession(conversation.Config{ProjectID: "proj-1"}, nil, conversation.Deps{Directory: r})
	r.Register(s)

	s.SetBotID("bot-9")
	assert.Same(t, s, r.SessionForBot("bot-9"))
}
