package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/companion"
	"github.com/openclaw/companion-server-go/internal/phase"
)

// routingWindow bounds how much of the conversation the therapy classifier sees.
const routingWindow = 10

// chatCompleter is the part of the OpenAI client the gateway uses.
type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIGateway runs the companion prompts directly against an OpenAI
// compatible API instead of the hosted edge functions.
type OpenAIGateway struct {
	chat    chatCompleter
	model   string
	locale  string
	timeout time.Duration
}

func NewOpenAIGateway(apiKey, model, locale string, timeout time.Duration) *OpenAIGateway {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return newOpenAIGateway(&client.Chat.Completions, model, locale, timeout)
}

func newOpenAIGateway(chat chatCompleter, model, locale string, timeout time.Duration) *OpenAIGateway {
	return &OpenAIGateway{
		chat:    chat,
		model:   model,
		locale:  locale,
		timeout: timeout,
	}
}

// OnboardingPhaseFor maps the number of user messages seen so far to the
// onboarding phase that answers the latest one.
func OnboardingPhaseFor(userMessages int) string {
	switch {
	case userMessages <= phase.LocalQuestionCount:
		return phase.TagEinstellungs
	case userMessages <= 8:
		return phase.TagProblemfokus
	case userMessages <= 13:
		return phase.TagProblemstellung
	case userMessages <= 18:
		return phase.TagLoesungsfokus
	case userMessages <= 21:
		return phase.TagPaywall
	default:
		return phase.TagSales
	}
}

func (g *OpenAIGateway) RunOnboardingTurn(ctx context.Context, token, companionName string, history []ChatMessage) (*OnboardingReply, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	count := countUserTurns(history)
	tag := OnboardingPhaseFor(count)

	text, err := g.complete(ctx, g.systemPrompt(companionName, onboardingInstructions[tag]), history)
	if err != nil {
		return nil, fmt.Errorf("onboarding completion: %w", err)
	}

	return &OnboardingReply{
		Text:             text,
		Model:            g.model,
		Phase:            tag,
		UserMessageCount: count,
	}, nil
}

type routingDecision struct {
	Phase  string `json:"phase"`
	Safety string `json:"safety"`
	Topic  string `json:"topic"`
}

func (g *OpenAIGateway) RunTherapyTurn(ctx context.Context, token, companionName string, history []ChatMessage, currentPhase string, isPro bool) (*TherapyReply, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	route := g.route(ctx, history, phase.TherapyPhaseOrDefault(currentPhase))

	prompt := g.systemPrompt(companionName, therapySkills[route.Phase])
	if route.Safety != "" {
		prompt += "\n\n" + safetyInstruction
	}
	if !isPro {
		prompt += "\n\n" + freeTierInstruction
	}

	text, err := g.complete(ctx, prompt, history)
	if err != nil {
		return nil, fmt.Errorf("therapy completion: %w", err)
	}

	return &TherapyReply{
		Text:   text,
		Model:  g.model,
		Phase:  route.Phase,
		Safety: route.Safety,
		Topic:  route.Topic,
	}, nil
}

// route classifies the next therapy skill. A failed or unusable
// classification keeps the current phase.
func (g *OpenAIGateway) route(ctx context.Context, history []ChatMessage, currentPhase string) routingDecision {
	fallback := routingDecision{Phase: currentPhase}

	window := history
	if len(window) > routingWindow {
		window = window[len(window)-routingWindow:]
	}

	var transcript strings.Builder
	for _, m := range window {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	raw, err := g.complete(ctx, routingPrompt(currentPhase), []ChatMessage{{Role: RoleUser, Content: transcript.String()}})
	if err != nil {
		log.Warn().Err(err).Msg("therapy routing failed, keeping current phase")
		return fallback
	}

	var decision routingDecision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decision); err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("therapy routing returned invalid JSON")
		return fallback
	}
	if _, ok := therapySkills[decision.Phase]; !ok {
		decision.Phase = currentPhase
	}
	if decision.Safety == "none" || decision.Safety == "null" {
		decision.Safety = ""
	}
	return decision
}

func (g *OpenAIGateway) complete(ctx context.Context, system string, history []ChatMessage) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(system))
	for _, m := range history {
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := g.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return FallbackText, nil
	}
	return textOrFallback(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGateway) systemPrompt(companionName, instruction string) string {
	c, ok := companion.Lookup(companionName)
	if !ok {
		c = companion.Companion{Name: companionName}
	}

	language := "German (informal du)"
	if g.locale == phase.LocaleEN {
		language = "English"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a mental health companion built by psychologists. You are not a therapist.\n", c.Name)
	if c.Philosophy != "" {
		fmt.Fprintf(&b, "Your guiding belief: %s\n", c.Philosophy)
	}
	if c.Approach != "" {
		fmt.Fprintf(&b, "Your method: %s.\n", c.Approach)
	}
	fmt.Fprintf(&b, "Always answer in %s. Keep replies short and warm.\n\n", language)
	b.WriteString(instruction)
	return b.String()
}

// extractJSON trims code fences and prose around a JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
