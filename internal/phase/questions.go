package phase

import "fmt"

// LocalQuestionCount is the number of fixed questions asked before the
// gateway takes over onboarding.
const LocalQuestionCount = 4

const (
	LocaleDE = "de"
	LocaleEN = "en"
)

type Question struct {
	Text    string
	Options []string
}

var questionBank = map[string][LocalQuestionCount]Question{
	LocaleDE: {
		{
			Text:    "Bevor wir loslegen: Wie soll ich mit dir sprechen?",
			Options: []string{"Locker und direkt", "Ruhig und behutsam", "Sachlich und strukturiert"},
		},
		{
			Text:    "Wie geht es dir gerade, ganz ehrlich?",
			Options: []string{"Eher gut", "Gemischt", "Eher schlecht"},
		},
		{
			Text:    "Hast du schon einmal mit jemandem über das gesprochen, was dich beschäftigt?",
			Options: []string{"Ja, mit Fachleuten", "Ja, mit Freunden oder Familie", "Nein, noch nie"},
		},
		{
			Text:    "Was wünschst du dir von unseren Gesprächen?",
			Options: []string{"Verstehen, was in mir vorgeht", "Konkrete Werkzeuge für den Alltag", "Einfach jemanden zum Reden"},
		},
	},
	LocaleEN: {
		{
			Text:    "Before we start: how would you like me to talk to you?",
			Options: []string{"Casual and direct", "Calm and gentle", "Factual and structured"},
		},
		{
			Text:    "How are you feeling right now, honestly?",
			Options: []string{"Mostly good", "Mixed", "Mostly bad"},
		},
		{
			Text:    "Have you ever talked to someone about what is on your mind?",
			Options: []string{"Yes, with a professional", "Yes, with friends or family", "No, never"},
		},
		{
			Text:    "What do you hope to get out of our conversations?",
			Options: []string{"Understand what is going on inside me", "Practical tools for everyday life", "Just someone to talk to"},
		},
	},
}

// SupportedLocale reports whether a question bank exists for locale.
func SupportedLocale(locale string) bool {
	_, ok := questionBank[locale]
	return ok
}

// LocalQuestion returns the fixed question at index. The options slice is a
// copy and may be modified by the caller.
func LocalQuestion(locale string, index int) (Question, error) {
	bank, ok := questionBank[locale]
	if !ok {
		return Question{}, fmt.Errorf("no question bank for locale %q", locale)
	}
	if index < 0 || index >= LocalQuestionCount {
		return Question{}, fmt.Errorf("local question index %d out of range", index)
	}
	q := bank[index]
	return Question{Text: q.Text, Options: append([]string(nil), q.Options...)}, nil
}
