package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
)

type fakeChat struct {
	replies []string
	err     error
	calls   []openai.ChatCompletionNewParams
}

func (f *fakeChat) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.calls = append(f.calls, body)
	if f.err != nil {
		return nil, f.err
	}
	content := ""
	if len(f.replies) > 0 {
		content = f.replies[0]
		f.replies = f.replies[1:]
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func userTurns(n int) []ChatMessage {
	out := make([]ChatMessage, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, ChatMessage{Role: RoleUser, Content: "u"}, ChatMessage{Role: RoleAssistant, Content: "a"})
	}
	return out
}

func TestOnboardingPhaseFor(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{4, phase.TagEinstellungs},
		{5, phase.TagProblemfokus},
		{8, phase.TagProblemfokus},
		{9, phase.TagProblemstellung},
		{14, phase.TagLoesungsfokus},
		{19, phase.TagPaywall},
		{21, phase.TagPaywall},
		{22, phase.TagSales},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OnboardingPhaseFor(tt.count), "count %d", tt.count)
	}
}

func TestOpenAIGateway_RunOnboardingTurn(t *testing.T) {
	chat := &fakeChat{replies: []string{"What weighs on you most?\n*Work*\n*Family*"}}
	g := newOpenAIGateway(chat, "gpt-4o-mini", phase.LocaleEN, time.Second)

	reply, err := g.RunOnboardingTurn(context.Background(), "tok", "Marcus", userTurns(6))
	require.NoError(t, err)

	assert.Equal(t, phase.TagProblemfokus, reply.Phase)
	assert.Equal(t, 6, reply.UserMessageCount)
	assert.Equal(t, "What weighs on you most?\n*Work*\n*Family*", reply.Text)

	require.Len(t, chat.calls, 1)
	assert.Equal(t, openai.ChatModel("gpt-4o-mini"), chat.calls[0].Model)
	assert.Len(t, chat.calls[0].Messages, 13)
}

func TestOpenAIGateway_RunTherapyTurn(t *testing.T) {
	t.Run("uses routed phase and safety", func(t *testing.T) {
		chat := &fakeChat{replies: []string{
			"```json\n{\"phase\":\"skill_phase3\",\"safety\":null,\"topic\":\"sleep\"}\n```",
			"Let's plan one step.",
		}}
		g := newOpenAIGateway(chat, "m", phase.LocaleDE, time.Second)

		reply, err := g.RunTherapyTurn(context.Background(), "tok", "Liam", userTurns(2), "skill_phase1", true)
		require.NoError(t, err)

		assert.Equal(t, "skill_phase3", reply.Phase)
		assert.Equal(t, "", reply.Safety)
		assert.Equal(t, "sleep", reply.Topic)
		assert.Equal(t, "Let's plan one step.", reply.Text)
		assert.Len(t, chat.calls, 2)
	})

	t.Run("unknown routed phase keeps current", func(t *testing.T) {
		chat := &fakeChat{replies: []string{`{"phase":"skill_made_up","safety":"crisis"}`, "ok"}}
		g := newOpenAIGateway(chat, "m", phase.LocaleDE, time.Second)

		reply, err := g.RunTherapyTurn(context.Background(), "tok", "Liam", userTurns(1), "skill_phase2", false)
		require.NoError(t, err)

		assert.Equal(t, "skill_phase2", reply.Phase)
		assert.Equal(t, "crisis", reply.Safety)
	})

	t.Run("non therapy current phase starts at phase one", func(t *testing.T) {
		chat := &fakeChat{replies: []string{"not json", "ok"}}
		g := newOpenAIGateway(chat, "m", phase.LocaleDE, time.Second)

		reply, err := g.RunTherapyTurn(context.Background(), "tok", "Liam", userTurns(1), phase.TagSales, false)
		require.NoError(t, err)
		assert.Equal(t, phase.DefaultTherapyPhase, reply.Phase)
	})

	t.Run("completion error surfaces", func(t *testing.T) {
		chat := &fakeChat{err: errors.New("upstream down")}
		g := newOpenAIGateway(chat, "m", phase.LocaleDE, time.Second)

		_, err := g.RunTherapyTurn(context.Background(), "tok", "Liam", userTurns(1), "skill_phase1", false)
		assert.Error(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		chat := &fakeChat{}
		g := newOpenAIGateway(chat, "m", phase.LocaleDE, time.Second)

		_, err := g.RunTherapyTurn(context.Background(), "", "Liam", nil, "", false)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Empty(t, chat.calls)
	})
}

func TestBuildHistory(t *testing.T) {
	msgs := []model.Message{
		{Sender: model.SenderCompanion, Text: "Hi"},
		{Sender: model.SenderUser, Text: "Hello"},
		{Sender: model.SenderCompanion, Text: "", RawText: "Summary:\n- a"},
		{Sender: model.SenderCompanion, Text: ""},
	}

	full := BuildHistory(msgs, 0)
	assert.Equal(t, []ChatMessage{
		{Role: RoleAssistant, Content: "Hi"},
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Summary:\n- a"},
	}, full)

	last := BuildHistory(msgs, 2)
	assert.Equal(t, []ChatMessage{{Role: RoleAssistant, Content: "Summary:\n- a"}}, last)
}
