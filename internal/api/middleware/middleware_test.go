package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cloo-solutions/recall/internal/logger"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestRequestID_KeepsIncomingHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", seen)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	handler := RequestID(AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/bot", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "http request", entries[0].Message)
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/api/bot", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, len("short and stout"), fields["bytes"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "203.0.113.9", fields["remote_addr"])
}

func TestAccessLog_DefaultStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	handler := AccessLog(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, logs.All(), 1)
	assert.EqualValues(t, http.StatusOK, logs.All()[0].ContextMap()["status"])
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, small)
	assert.Equal(t, http.StatusNoContent, w.Code)

	large := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too large for the limit"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, large)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHTTPStatusToSpanStatus(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusOK, httpStatusToSpanStatus(http.StatusOK))
	assert.Equal(t, sentry.SpanStatusNotFound, httpStatusToSpanStatus(http.StatusNotFound))
	assert.Equal(t, sentry.SpanStatusInternalError, httpStatusToSpanStatus(http.StatusBadGateway))
}

func TestRouteTags(t *testing.T) {
	assert.Equal(t, "bot_id", routeTags("/api/bot/{id}/leave")["id"])
	assert.NotContains(t, routeTags("/api/series/{series}/action-items/{id}/complete"), "id")
	assert.Equal(t, "series_id", routeTags("/api/series/{series}/sync")["series"])
}
