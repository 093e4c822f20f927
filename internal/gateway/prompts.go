package gateway

import (
	"fmt"
	"strings"

	"github.com/openclaw/companion-server-go/internal/phase"
)

const quickReplyMarkup = "When it helps the user answer, end with two to four short answer options, each alone on its own line wrapped in single asterisks, like *Option*."

var onboardingInstructions = map[string]string{
	phase.TagEinstellungs: "Get to know the user's preferences for the conversation. " + quickReplyMarkup,
	phase.TagProblemfokus: "Explore what is bothering the user. Ask one open question at a time and reflect what you heard. " + quickReplyMarkup,
	phase.TagProblemstellung: "Summarise the user's situation and offer two to four possible core challenges. " +
		"Write each challenge alone on its own line as *Title: one sentence description*. Do not use other asterisk lines.",
	phase.TagLoesungsfokus: "Propose one concrete, small approach that fits the chosen challenge and ask whether the user wants to try it. " +
		"If the user asks for a different approach, propose another one.",
	phase.TagPaywall: "Summarise the onboarding. Start with one encouraging sentence, then sections. " +
		"Each section heading is its own line ending with a colon, followed by lines starting with \"- \". " +
		"Use the sections \"What we achieved:\" and \"Next steps:\".",
	phase.TagSales: "Onboarding is complete. Answer briefly and explain that continuing the sessions requires the Pro subscription.",
}

var therapySkills = map[string]string{
	"skill_phase1": "Check in with the user and explore what is on their mind today. " + quickReplyMarkup,
	"skill_phase2": "Work on the thoughts behind the user's feelings. Help them question and reframe one thought. " + quickReplyMarkup,
	"skill_phase3": "Plan one small, concrete behavioural step for the coming days together with the user. " + quickReplyMarkup,
	"skill_phase4": "Reflect on progress and what the user has learned. Reinforce what worked. " + quickReplyMarkup,
}

const safetyInstruction = "The user may be at risk. Respond with care, take their feelings seriously, " +
	"and encourage them to contact local emergency services or a crisis line such as the Telefonseelsorge (0800 111 0 111) right away."

const freeTierInstruction = "The user is on the free tier. Do not mention pricing unless asked."

func routingPrompt(currentPhase string) string {
	skills := make([]string, 0, len(therapySkills))
	for _, tag := range []string{"skill_phase1", "skill_phase2", "skill_phase3", "skill_phase4"} {
		skills = append(skills, fmt.Sprintf("- %s: %s", tag, strings.SplitN(therapySkills[tag], ".", 2)[0]))
	}

	return "You route a therapy conversation. Pick the skill that should answer the last user message.\n" +
		strings.Join(skills, "\n") + "\n" +
		fmt.Sprintf("The current skill is %s. Stay there unless the conversation clearly moved on.\n", currentPhase) +
		"Set safety to \"crisis\" if the user mentions self-harm or suicide, otherwise null.\n" +
		"Reply with JSON only: {\"phase\": \"skill_...\", \"safety\": null, \"topic\": \"two or three words\"}"
}
