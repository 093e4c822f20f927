package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/companion-server-go/internal/database"
	"github.com/openclaw/companion-server-go/internal/gateway"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
	"github.com/openclaw/companion-server-go/internal/repository"
	"github.com/openclaw/companion-server-go/internal/service"
)

type scriptedGateway struct{}

func (scriptedGateway) RunOnboardingTurn(_ context.Context, _, _ string, _ []gateway.ChatMessage) (*gateway.OnboardingReply, error) {
	return &gateway.OnboardingReply{Text: "What weighs on you most?", Phase: phase.TagProblemfokus}, nil
}

func (scriptedGateway) RunTherapyTurn(_ context.Context, _, _ string, history []gateway.ChatMessage, currentPhase string, _ bool) (*gateway.TherapyReply, error) {
	return &gateway.TherapyReply{Text: "heard: " + history[len(history)-1].Content, Phase: currentPhase}, nil
}

func newTestChat(t *testing.T, tc model.TurnContext) (*chat, *bytes.Buffer) {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(context.Background()))
	t.Cleanup(func() { db.Close() })

	engine := service.NewConversationEngine(
		service.EngineConfig{Locale: phase.LocaleEN, MaxMessageLength: 500, GatewayTimeout: time.Second, TherapyHistoryTurns: 20},
		service.NewSessionStore(repository.NewChatMessageRepository(db.DB)),
		scriptedGateway{},
		phase.NewResolver(phase.DefaultOnboardingThreshold),
		service.NewSendLimiter(service.NewMemoryRateLimiter(), 0),
		nil,
	)

	var out bytes.Buffer
	return &chat{
		engine:  engine,
		pending: service.NewPendingService(db, repository.NewPendingCompanionRepository(db.DB), 10*time.Minute),
		ui:      &display{out: &out},
		tc:      tc,
	}, &out
}

func TestChat_AnonymousOnboarding(t *testing.T) {
	c, out := newTestChat(t, model.TurnContext{SessionID: "s1", Companion: "Sarah"})

	input := strings.Join([]string{"hi", "2", "2", "3", "1", "I feel stuck", "/quit"}, "\n")
	require.NoError(t, c.run(context.Background(), strings.NewReader(input)))

	text := out.String()
	assert.Contains(t, text, "Hi, I'm Sarah!")
	assert.Contains(t, text, "how would you like me to talk to you?")
	assert.Contains(t, text, "1. Mostly good")
	assert.Contains(t, text, "Sign in to keep talking with Sarah")

	p, err := c.pending.Consume(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Sarah", p.Companion)
	require.NotNil(t, p.PendingMessage)
	assert.Equal(t, "I feel stuck", *p.PendingMessage)
}

func TestChat_ResumesPendingAfterSignIn(t *testing.T) {
	tc := model.TurnContext{SessionID: "s2", Companion: "Marcus", UserID: "u1", AuthToken: "tok", Entitlement: model.Entitlement{Pro: true}}
	c, out := newTestChat(t, tc)

	message := "I can't sleep"
	_, err := c.pending.Remember(context.Background(), "s2", "liam", &message)
	require.NoError(t, err)

	require.NoError(t, c.run(context.Background(), strings.NewReader("/quit\n")))

	assert.Equal(t, "Liam", c.tc.Companion)
	assert.Contains(t, out.String(), "heard: I can't sleep")
}

func TestChat_Commands(t *testing.T) {
	tc := model.TurnContext{SessionID: "s3", Companion: "Emily", UserID: "u1", AuthToken: "tok"}
	c, out := newTestChat(t, tc)

	input := strings.Join([]string{"/companions", "/switch nobody", "/switch marcus", "/upgrade", "hello", "/nope", "/quit"}, "\n")
	require.NoError(t, c.run(context.Background(), strings.NewReader(input)))

	text := out.String()
	assert.Contains(t, text, "Liam: Small changes")
	assert.Contains(t, text, `No companion named "nobody"`)
	assert.Contains(t, text, "Hi, I'm Marcus!")
	assert.Contains(t, text, "heard: hello")
	assert.Contains(t, text, "Unknown command /nope")
	assert.True(t, c.tc.Entitlement.Pro)
}

func TestChat_OpenFinishesPendingTurn(t *testing.T) {
	tc := model.TurnContext{SessionID: "s4", Companion: "Marcus", UserID: "u1", AuthToken: "tok"}
	c, out := newTestChat(t, tc)
	ctx := context.Background()

	var res *service.TurnResult
	for i := 0; i <= phase.LocalQuestionCount; i++ {
		var err error
		res, err = c.engine.Send(ctx, tc, "answer")
		require.NoError(t, err)
	}
	require.Equal(t, model.TurnStatusAwaitingAck, res.Status)

	require.NoError(t, c.open(ctx))

	text := out.String()
	assert.Contains(t, text, "Setting up Marcus for you...")
	assert.Contains(t, text, "What weighs on you most?")
}

func TestMessageMarkdown(t *testing.T) {
	t.Run("quick replies are numbered", func(t *testing.T) {
		md := messageMarkdown(model.Message{
			Companion:   "Marcus",
			Text:        "How are you?",
			Affordances: &model.Affordances{QuickReplies: []string{"Good", "Bad"}},
		})
		assert.Contains(t, md, "**Marcus**")
		assert.Contains(t, md, "1. Good\n2. Bad\n")
	})

	t.Run("challenges show title and description", func(t *testing.T) {
		md := messageMarkdown(model.Message{
			Companion: "Sarah",
			Affordances: &model.Affordances{ChallengeOptions: []model.ChallengeOption{
				{Title: "Sleep", Description: "falling asleep late", FullText: "Sleep: falling asleep late"},
			}},
		})
		assert.Contains(t, md, "1. **Sleep**: falling asleep late")
	})

	t.Run("paywall summary becomes sections", func(t *testing.T) {
		md := messageMarkdown(model.Message{
			Companion: "Liam",
			Affordances: &model.Affordances{PaywallSummary: &model.PaywallSummary{
				Intro:    "Here is what we found.",
				Sections: []model.PaywallSection{{Heading: "Your goals:", Bullets: []string{"Rest", "Focus"}}},
			}},
		})
		assert.Contains(t, md, "Here is what we found.")
		assert.Contains(t, md, "### Your goals\n")
		assert.Contains(t, md, "- Rest\n- Focus\n")
	})

	t.Run("upgrade button adds a hint", func(t *testing.T) {
		md := messageMarkdown(model.Message{Companion: "Emily", Text: "Ready?", Affordances: &model.Affordances{UpgradeButton: true}})
		assert.Contains(t, md, "/upgrade")
	})
}

func TestDisplay_Choose(t *testing.T) {
	d := &display{out: &bytes.Buffer{}}
	d.Message(model.Message{
		Sender:    model.SenderCompanion,
		Companion: "Sarah",
		Affordances: &model.Affordances{ChallengeOptions: []model.ChallengeOption{
			{Title: "Work", Description: "too much", FullText: "Work: too much"},
		}},
	})

	assert.Equal(t, "Work: too much", d.Choose("1"))
	assert.Equal(t, "2", d.Choose("2"))
	assert.Equal(t, "hello", d.Choose("hello"))

	d.Message(model.Message{Sender: model.SenderCompanion, Companion: "Sarah", Text: "plain"})
	assert.Equal(t, "1", d.Choose("1"))
}
