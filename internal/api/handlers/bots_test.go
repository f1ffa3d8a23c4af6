package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/recall/internal/conversation"
	"github.com/cloo-solutions/recall/internal/domain"
	"github.com/cloo-solutions/recall/internal/platform"
	"github.com/cloo-solutions/recall/internal/registry"
)

type MockBotPlatform struct {
	mock.Mock
}

func (m *MockBotPlatform) CreateBot(ctx context.Context, req platform.CreateBotRequest) (*domain.Bot, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bot), args.Error(1)
}

func (m *MockBotPlatform) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bot), args.Error(1)
}

func (m *MockBotPlatform) ListProjectBots(ctx context.Context, projectID string) ([]domain.Bot, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Bot), args.Error(1)
}

func (m *MockBotPlatform) RemoveBot(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBotPlatform) SendChatMessage(ctx context.Context, id, message, to string) error {
	return m.Called(ctx, id, message, to).Error(0)
}

// withURLParams attaches chi route parameters to a request.
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func newBotHandler(p BotPlatform, sessions BotSessions) *BotHandler {
	return NewBotHandler(p, sessions, BotHandlerConfig{
		ClientURL: "https://client.example.com",
		ServerURL: "https://api.example.com",
	}, nil)
}

func TestBotHandler_Create(t *testing.T) {
	p := new(MockBotPlatform)
	reg := registry.New()
	handler := newBotHandler(p, reg)

	p.On("CreateBot", mock.Anything, mock.MatchedBy(func(req platform.CreateBotRequest) bool {
		media, err := url.Parse(req.OutputMediaURL)
		if err != nil {
			return false
		}
		q := media.Query()
		return req.MeetingURL == "https://meet.google.com/abc" &&
			req.ProjectID == "proj-1" &&
			req.SeriesID == "weekly" &&
			media.Host == "client.example.com" &&
			q.Get("project_id") == "proj-1" &&
			q.Get("ws_host") == "api.example.com" &&
			q.Get("recurring_meeting_id") == "weekly" &&
			req.WebhookURL == "https://api.example.com/webhooks/recall/transcript" &&
			req.JoinMessage == platform.DefaultJoinMessage
	})).Return(&domain.Bot{ID: "bot-1", Status: "joining_call"}, nil)

	body := `{"project_id":"proj-1","meeting_url":"https://meet.google.com/abc","recurring_meeting_id":"weekly"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bot", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "bot-1", data["bot_id"])
	assert.Equal(t, "joining_call", data["status"])
	assert.Equal(t, "weekly", data["recurring_meeting_id"])
	assert.Equal(t, "bot-1", reg.BotForProject("proj-1"))
	p.AssertExpectations(t)
}

func TestBotHandler_Create_BindsConnectedSession(t *testing.T) {
	p := new(MockBotPlatform)
	reg := registry.New()
	handler := newBotHandler(p, reg)

	session := conversation.NewSession(conversation.Config{ProjectID: "proj-1"}, nil, conversation.Deps{Directory: reg})
	reg.Register(session)

	p.On("CreateBot", mock.Anything, mock.Anything).Return(&domain.Bot{ID: "bot-2", Status: "ready"}, nil)

	body := `{"project_id":"proj-1","meeting_url":"https://zoom.us/j/1"}`
	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/bot", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "bot-2", session.BotID())
	assert.Same(t, session, reg.SessionForBot("bot-2"))
}

func TestBotHandler_Create_Validation(t *testing.T) {
	handler := newBotHandler(new(MockBotPlatform), registry.New())

	for name, body := range map[string]string{
		"invalid json":    `{`,
		"missing project": `{"meeting_url":"https://zoom.us/j/1"}`,
		"missing url":     `{"project_id":"proj-1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/bot", bytes.NewBufferString(body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBotHandler_Create_PlatformFailure(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	p.On("CreateBot", mock.Anything, mock.Anything).Return(nil, &platform.APIError{StatusCode: 429, Body: "slow down"})

	body := `{"project_id":"proj-1","meeting_url":"https://zoom.us/j/1"}`
	w := httptest.NewRecorder()
	handler.Create(w, httptest.NewRequest(http.MethodPost, "/api/bot", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "failed to create bot")
}

func TestBotHandler_Get(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	created := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	p.On("GetBot", mock.Anything, "bot-1").Return(&domain.Bot{
		ID: "bot-1", Status: "done", ProjectID: "proj-1", SeriesID: "weekly",
		MeetingURL: "https://zoom.us/j/1", TranscriptURL: "https://dl", CreatedAt: &created,
	}, nil)

	w := httptest.NewRecorder()
	handler.Get(w, withURLParams(httptest.NewRequest(http.MethodGet, "/api/bot/bot-1", nil), map[string]string{"id": "bot-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "done", data["status"])
	assert.Equal(t, "weekly", data["recurring_meeting_id"])
	assert.Equal(t, true, data["has_transcript"])
	assert.Equal(t, "2024-01-02T15:00:00Z", data["created_at"])
}

func TestBotHandler_Get_NotFound(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	p.On("GetBot", mock.Anything, "missing").Return(nil,
		domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "bot not found", &platform.APIError{StatusCode: 404}))

	w := httptest.NewRecorder()
	handler.Get(w, withURLParams(httptest.NewRequest(http.MethodGet, "/api/bot/missing", nil), map[string]string{"id": "missing"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBotHandler_Chat(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	p.On("SendChatMessage", mock.Anything, "bot-1", "hello", "").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bot/bot-1/chat", bytes.NewBufferString(`{"message":"hello"}`))
	w := httptest.NewRecorder()
	handler.Chat(w, withURLParams(req, map[string]string{"id": "bot-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sent", decodeData(t, w)["status"])

	w = httptest.NewRecorder()
	empty := httptest.NewRequest(http.MethodPost, "/api/bot/bot-1/chat", bytes.NewBufferString(`{"message":"  "}`))
	handler.Chat(w, withURLParams(empty, map[string]string{"id": "bot-1"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	p.AssertExpectations(t)
}

func TestBotHandler_Leave(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	p.On("RemoveBot", mock.Anything, "bot-1").Return(nil)

	w := httptest.NewRecorder()
	handler.Leave(w, withURLParams(httptest.NewRequest(http.MethodPost, "/api/bot/bot-1/leave", nil), map[string]string{"id": "bot-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "removed", data["status"])
	assert.Equal(t, "bot-1", data["bot_id"])
}

func TestBotHandler_ListProject(t *testing.T) {
	p := new(MockBotPlatform)
	handler := newBotHandler(p, registry.New())
	p.On("ListProjectBots", mock.Anything, "proj-1").Return([]domain.Bot{
		{ID: "bot-1", Status: "done"},
		{ID: "bot-2", Status: "in_call_recording"},
	}, nil)

	w := httptest.NewRecorder()
	handler.ListProject(w, withURLParams(httptest.NewRequest(http.MethodGet, "/api/projects/proj-1/bots", nil), map[string]string{"project": "proj-1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["count"])
	bots := data["bots"].([]interface{})
	require.Len(t, bots, 2)
	assert.Nil(t, bots[0].(map[string]interface{})["created_at"])
}
