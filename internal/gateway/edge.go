package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	onboardingFunction = "chat-onboarding"
	therapyFunction    = "therapy-router"

	maxErrorBody = 4 << 10
)

// EdgeGateway calls the hosted edge functions that hold the prompts and
// model keys. The user's access token authenticates every call.
type EdgeGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewEdgeGateway(baseURL, apiKey string, timeout time.Duration) *EdgeGateway {
	return &EdgeGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type onboardingRequest struct {
	TherapistName string        `json:"therapistName"`
	Messages      []ChatMessage `json:"messages"`
}

type therapyRequest struct {
	TherapistName string        `json:"therapistName"`
	Messages      []ChatMessage `json:"messages"`
	CurrentPhase  string        `json:"currentPhase"`
	IsPro         bool          `json:"isPro"`
}

type edgeResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model            string `json:"model"`
	Phase            string `json:"phase"`
	UserMessageCount int    `json:"userMessageCount"`
	Safety           string `json:"safety"`
	Topic            string `json:"topic"`
	HasMemory        bool   `json:"hasMemory"`
	ReminderCreated  bool   `json:"reminderCreated"`
}

func (r *edgeResponse) content() string {
	if len(r.Choices) == 0 {
		return FallbackText
	}
	return textOrFallback(r.Choices[0].Message.Content)
}

func (g *EdgeGateway) RunOnboardingTurn(ctx context.Context, token, companion string, history []ChatMessage) (*OnboardingReply, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var resp edgeResponse
	err := g.invoke(ctx, token, onboardingFunction, onboardingRequest{
		TherapistName: companion,
		Messages:      history,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &OnboardingReply{
		Text:             resp.content(),
		Model:            resp.Model,
		Phase:            resp.Phase,
		UserMessageCount: resp.UserMessageCount,
	}, nil
}

func (g *EdgeGateway) RunTherapyTurn(ctx context.Context, token, companion string, history []ChatMessage, currentPhase string, isPro bool) (*TherapyReply, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var resp edgeResponse
	err := g.invoke(ctx, token, therapyFunction, therapyRequest{
		TherapistName: companion,
		Messages:      history,
		CurrentPhase:  currentPhase,
		IsPro:         isPro,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &TherapyReply{
		Text:            resp.content(),
		Model:           resp.Model,
		Phase:           resp.Phase,
		Safety:          resp.Safety,
		Topic:           resp.Topic,
		HasMemory:       resp.HasMemory,
		ReminderCreated: resp.ReminderCreated,
	}, nil
}

func (g *EdgeGateway) invoke(ctx context.Context, token, function string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := g.baseURL + "/functions/v1/" + function
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().
			Err(err).
			Str("function", function).
			Dur("elapsed", elapsed).
			Msg("edge function request failed")
		return fmt.Errorf("%s request failed: %w", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Error().
			Str("function", function).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Dur("elapsed", elapsed).
			Msg("edge function returned error status")
		return fmt.Errorf("%s failed with status %d", function, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", function, err)
	}

	log.Debug().
		Str("function", function).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("edge function call succeeded")

	return nil
}
