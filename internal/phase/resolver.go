// Package phase decides how each conversation turn is routed and re-derives
// onboarding progress from a stored transcript.
package phase

import (
	"strings"

	"github.com/openclaw/companion-server-go/internal/model"
)

// DefaultOnboardingThreshold is the user-message count after which a resumed
// conversation is treated as past onboarding.
const DefaultOnboardingThreshold = 23

// Input is the live progress of a loaded conversation. The onboarding
// threshold is not applied here; Derive folds it into IsOnboarding at load.
type Input struct {
	IsOnboarding       bool
	LocalQuestionIndex int
	IsProEntitled      bool
}

type Decision struct {
	Route model.Route
	// QuestionIndex is set for RouteLocalQuestion only.
	QuestionIndex int
}

type Resolver struct {
	threshold int
}

func NewResolver(threshold int) *Resolver {
	if threshold <= 0 {
		threshold = DefaultOnboardingThreshold
	}
	return &Resolver{threshold: threshold}
}

func (r *Resolver) Threshold() int {
	return r.threshold
}

func (r *Resolver) Resolve(in Input) Decision {
	if in.IsProEntitled || !in.IsOnboarding {
		return Decision{Route: model.RouteGatewayTherapy}
	}
	if in.LocalQuestionIndex < LocalQuestionCount {
		return Decision{Route: model.RouteLocalQuestion, QuestionIndex: in.LocalQuestionIndex}
	}
	return Decision{Route: model.RouteGatewayOnboarding}
}

// Derive recomputes progress from a transcript. It is called when a
// conversation is loaded, never per turn.
func (r *Resolver) Derive(messages []model.Message, pro bool) model.Progress {
	count := CountUserMessages(messages)

	progress := model.Progress{
		UserMessageCount:   count,
		IsOnboarding:       !pro && count <= r.threshold,
		LocalQuestionIndex: min(count, LocalQuestionCount),
		Phase:              LastGatewayPhase(messages),
	}
	if !progress.IsOnboarding {
		progress.Phase = TherapyPhaseOrDefault(progress.Phase)
	} else if progress.Phase == "" {
		progress.Phase = TagEinstellungs
	}
	return progress
}

func CountUserMessages(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		if m.IsUser() {
			n++
		}
	}
	return n
}

// LastGatewayPhase returns the phase tag of the most recent gateway-produced
// companion message, or "" when the gateway has not answered yet.
func LastGatewayPhase(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if !m.IsUser() && IsGatewayPhase(m.PhaseTag) {
			return m.PhaseTag
		}
	}
	return ""
}

var retryPhrases = []string{
	"anderer ansatz",
	"anderen ansatz",
	"different approach",
}

var solutionProposalReplies = map[string][]string{
	LocaleDE: {"Ja", "Nein, anderer Ansatz"},
	LocaleEN: {"Yes", "No, different approach"},
}

// SolutionProposalReplies is the fixed yes/no pair offered on a solution
// proposal.
func SolutionProposalReplies(locale string) []string {
	replies, ok := solutionProposalReplies[locale]
	if !ok {
		replies = solutionProposalReplies[LocaleDE]
	}
	return append([]string(nil), replies...)
}

// IsRetryRequest reports whether the user asked for a different approach.
func IsRetryRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range retryPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// NeedsSolutionProposal decides whether the yes/no override applies to a
// gateway reply tagged newPhase. It fires on the first solution-focus turn and
// on later turns of that phase where the user asked for another approach.
func NeedsSolutionProposal(previousPhase, newPhase, userText string) bool {
	if newPhase != TagLoesungsfokus {
		return false
	}
	return previousPhase != TagLoesungsfokus || IsRetryRequest(userText)
}
