package registry

import (
	"sync"

	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/telemetry"
)

// Registry tracks which bot serves which project and which live session is
// attached to which bot or project. It replaces process-wide maps with one
// explicitly shared service.
type Registry struct {
	mu                sync.RWMutex
	botsByProject     map[string]string
	sessionsByBot     map[string]*conversation.Session
	sessionsByProject map[string]*conversation.Session
}

func New() *Registry {
	return &Registry{
		botsByProject:     make(map[string]string),
		sessionsByBot:     make(map[string]*conversation.Session),
		sessionsByProject: make(map[string]*conversation.Session),
	}
}

// SetProjectBot records the bot most recently created for a project.
func (r *Registry) SetProjectBot(projectID, botID string) {
	if projectID == "" || botID == "" {
		return
	}
	r.mu.Lock()
	r.botsByProject[projectID] = botID
	r.mu.Unlock()
}

func (r *Registry) BotForProject(projectID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.botsByProject[projectID]
}

// Register attaches a newly connected session. A session for the same
// project replaces the previous one.
func (r *Registry) Register(s *conversation.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessionsByProject[s.ProjectID()]; !ok {
		telemetry.ActiveSessions.Inc()
	}
	r.sessionsByProject[s.ProjectID()] = s
	if botID := s.BotID(); botID != "" {
		r.sessionsByBot[botID] = s
	}
}

// Unregister detaches s. Entries already taken over by a newer session are
// left alone.
func (r *Registry) Unregister(s *conversation.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionsByProject[s.ProjectID()] == s {
		delete(r.sessionsByProject, s.ProjectID())
		telemetry.ActiveSessions.Dec()
	}
	for botID, bound := range r.sessionsByBot {
		if bound == s {
			delete(r.sessionsByBot, botID)
		}
	}
}

// BindBot attaches s to a bot identity learned after connection.
func (r *Registry) BindBot(botID string, s *conversation.Session) {
	if botID == "" || s == nil {
		return
	}
	r.mu.Lock()
	r.sessionsByBot[botID] = s
	r.mu.Unlock()
}

func (r *Registry) SessionForBot(botID string) *conversation.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionsByBot[botID]
}

func (r *Registry) SessionForProject(projectID string) *conversation.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionsByProject[projectID]
}

// Resolve finds the live session for an inbound platform event, trying the
// bot identity first and the project second.
func (r *Registry) Resolve(botID, projectID string) *conversation.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessionsByBot[botID]; ok && botID != "" {
		return s
	}
	if projectID == "" {
		return nil
	}
	return r.sessionsByProject[projectID]
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessionsByProject)
}
