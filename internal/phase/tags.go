package phase

import "strings"

const (
	TagGreeting        = "Greeting"
	TagEinstellungs    = "onboarding_einstellungs"
	TagProblemfokus    = "onboarding_problemfokus"
	TagProblemstellung = "onboarding_problemstellung"
	TagLoesungsfokus   = "onboarding_loesungsfokus"
	TagPaywall         = "onboarding_paywall"
	TagSales           = "onboarding_sales"

	TherapyPrefix       = "skill_"
	DefaultTherapyPhase = "skill_phase1"
)

// OnboardingTags lists the gateway-driven onboarding phases in order.
var OnboardingTags = []string{
	TagProblemfokus,
	TagProblemstellung,
	TagLoesungsfokus,
	TagPaywall,
	TagSales,
}

func IsTherapyPhase(tag string) bool {
	return strings.HasPrefix(tag, TherapyPrefix) && len(tag) > len(TherapyPrefix)
}

func IsOnboardingGatewayPhase(tag string) bool {
	for _, t := range OnboardingTags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsGatewayPhase reports whether tag can only have come from the AI gateway.
func IsGatewayPhase(tag string) bool {
	return IsTherapyPhase(tag) || IsOnboardingGatewayPhase(tag)
}

// IsCompletionPhase marks the end of gateway onboarding. The conversation
// stays there until the paywall is passed externally.
func IsCompletionPhase(tag string) bool {
	return tag == TagPaywall || tag == TagSales
}

// TherapyPhaseOrDefault returns tag when it is a therapy phase, otherwise the
// phase every therapy conversation starts in.
func TherapyPhaseOrDefault(tag string) string {
	if IsTherapyPhase(tag) {
		return tag
	}
	return DefaultTherapyPhase
}
