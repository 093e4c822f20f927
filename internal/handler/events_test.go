package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/companion-server-go/internal/sse"
)

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 404 for unknown session", func(t *testing.T) {
		handler := NewEventsHandler(sse.NewBroker(nil), fakeSessions{})

		req := httptest.NewRequest(http.MethodGet, "/v1/events?sessionId=missing", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 400 without session", func(t *testing.T) {
		handler := NewEventsHandler(sse.NewBroker(nil), fakeSessions{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("streams chat events for the session", func(t *testing.T) {
		broker := sse.NewBroker(nil)
		defer broker.Close()

		server := httptest.NewServer(NewEventsHandler(broker, fakeSessions{"s1": true}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?sessionId=s1", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "event: connected\n", line)

		require.Eventually(t, func() bool { return broker.ClientCount("s1") == 1 }, time.Second, 10*time.Millisecond)
		require.NoError(t, broker.Emit(ctx, "s1", sse.EventCrisis, map[string]any{"companion": "Sarah"}))

		for {
			line, err = reader.ReadString('\n')
			require.NoError(t, err)
			if line == "event: crisis\n" {
				break
			}
		}
		data, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, data, `"companion":"Sarah"`)
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: "message",
		Data: json.RawMessage(`{"text": "hello"}`),
	})

	assert.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "event: message\n")
	assert.Contains(t, body, `data: {"text": "hello"}`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestSSEEventFormat(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      map[string]any
		wantEvent string
	}{
		{
			name:      "connected event",
			eventType: "connected",
			data:      map[string]any{"sessionId": "s1"},
			wantEvent: "event: connected\n",
		},
		{
			name:      "message event",
			eventType: sse.EventMessage,
			data:      map[string]any{"id": "msg-1", "text": "Hello"},
			wantEvent: "event: message\n",
		},
		{
			name:      "progress event",
			eventType: sse.EventProgress,
			data:      map[string]any{"isOnboarding": false},
			wantEvent: "event: progress\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := &EventsHandler{}
			rec := httptest.NewRecorder()

			err := handler.sendEvent(rec, rec, tc.eventType, tc.data)

			assert.NoError(t, err)
			body := rec.Body.String()
			assert.Contains(t, body, tc.wantEvent)
			assert.Contains(t, body, "data: ")
		})
	}
}
