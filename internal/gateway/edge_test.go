package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeGateway_RunOnboardingTurn(t *testing.T) {
	t.Run("sends history with bearer token", func(t *testing.T) {
		var got onboardingRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/functions/v1/chat-onboarding", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "anon", r.Header.Get("apikey"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Tell me more.  "}}],"phase":"onboarding_problemfokus","userMessageCount":5}`))
		}))
		defer server.Close()

		g := NewEdgeGateway(server.URL+"/", "anon", time.Second)
		history := []ChatMessage{{Role: RoleAssistant, Content: "Q"}, {Role: RoleUser, Content: "A"}}

		reply, err := g.RunOnboardingTurn(context.Background(), "tok", "Sarah", history)
		require.NoError(t, err)

		assert.Equal(t, "Tell me more.", reply.Text)
		assert.Equal(t, "onboarding_problemfokus", reply.Phase)
		assert.Equal(t, 5, reply.UserMessageCount)
		assert.Equal(t, "Sarah", got.TherapistName)
		assert.Equal(t, history, got.Messages)
	})

	t.Run("empty content falls back", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[],"phase":"onboarding_paywall"}`))
		}))
		defer server.Close()

		g := NewEdgeGateway(server.URL, "", time.Second)
		reply, err := g.RunOnboardingTurn(context.Background(), "tok", "Sarah", nil)
		require.NoError(t, err)
		assert.Equal(t, FallbackText, reply.Text)
	})

	t.Run("missing token fails before calling", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		g := NewEdgeGateway(server.URL, "", time.Second)
		_, err := g.RunOnboardingTurn(context.Background(), "", "Sarah", nil)

		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.False(t, called)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		g := NewEdgeGateway(server.URL, "", time.Second)
		_, err := g.RunOnboardingTurn(context.Background(), "tok", "Sarah", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("timeout is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		g := NewEdgeGateway(server.URL, "", 20*time.Millisecond)
		_, err := g.RunOnboardingTurn(context.Background(), "tok", "Sarah", nil)
		assert.Error(t, err)
	})
}

func TestEdgeGateway_RunTherapyTurn(t *testing.T) {
	var got therapyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/therapy-router", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Let's look at that."}}],"phase":"skill_phase2","safety":"crisis","topic":"work stress","hasMemory":true}`))
	}))
	defer server.Close()

	g := NewEdgeGateway(server.URL, "", time.Second)
	reply, err := g.RunTherapyTurn(context.Background(), "tok", "Liam", []ChatMessage{{Role: RoleUser, Content: "hi"}}, "skill_phase1", true)
	require.NoError(t, err)

	assert.Equal(t, "skill_phase1", got.CurrentPhase)
	assert.True(t, got.IsPro)
	assert.Equal(t, "Liam", got.TherapistName)

	assert.Equal(t, "Let's look at that.", reply.Text)
	assert.Equal(t, "skill_phase2", reply.Phase)
	assert.Equal(t, "crisis", reply.Safety)
	assert.Equal(t, "work stress", reply.Topic)
	assert.True(t, reply.HasMemory)
}
