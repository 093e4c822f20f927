// Package companion holds the fixed catalog of AI personas.
package companion

import (
	"strings"
)

type Companion struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Philosophy string `json:"philosophy"`
	// Approach describes the psychological method the persona draws on. It
	// feeds the self-hosted gateway prompts.
	Approach string `json:"approach"`

	intro   string
	privacy string
}

const (
	freeLine   = "The first session with me is currently free. If it helps you, I'd be happy about your support."
	freeCTA    = "Do you want to start your onboarding?"
	proCTA     = "What's on your mind?"
	notTherapy = "I'm not a therapist, but I was built by psychologists as your mental health companion."
)

var catalog = []Companion{
	{
		ID:         "1",
		Name:       "Marcus",
		Philosophy: "Your thoughts shape your reality. Let's reshape them together.",
		Approach:   "cognitive behavioural therapy: spotting and reframing unhelpful thoughts",
		intro:      "Your thoughts shape your reality, and I'm here to help you reshape them.",
		privacy:    "Your trust matters to me: everything you share here stays private & secure.",
	},
	{
		ID:         "2",
		Name:       "Sarah",
		Philosophy: "Healing begins when someone truly sees you.",
		Approach:   "person-centred therapy: empathic listening and unconditional acceptance",
		intro:      "Healing begins when someone truly sees you, and that's what I'm here for.",
		privacy:    "Everything you share here is private & secure.",
	},
	{
		ID:         "3",
		Name:       "Liam",
		Philosophy: "Small changes in behavior create big shifts in how you feel.",
		Approach:   "behavioural activation: small concrete steps that change how you feel",
		intro:      "Small changes in behavior create big shifts in how you feel, and I'm here to help you find them.",
		privacy:    "Everything you share here stays private & secure.",
	},
	{
		ID:         "4",
		Name:       "Emily",
		Philosophy: "The answers you're looking for are already within you.",
		Approach:   "solution-focused coaching: uncovering the resources the user already has",
		intro:      "The answers you're looking for are already within you. I'm here to help you find them.",
		privacy:    "Everything you share here remains private & secure.",
	},
}

func All() []Companion {
	out := make([]Companion, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a companion by name, ignoring case.
func Lookup(name string) (Companion, bool) {
	for _, c := range catalog {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Companion{}, false
}

// Greeting is the first message of a fresh conversation. Pro users are not
// offered the free session or the onboarding.
func (c Companion) Greeting(pro bool) string {
	var b strings.Builder
	b.WriteString("Hi, I'm ")
	b.WriteString(c.Name)
	b.WriteString("!\n\n")
	b.WriteString(c.intro)
	b.WriteString(" ")
	b.WriteString(notTherapy)
	if !pro {
		b.WriteString(" ")
		b.WriteString(freeLine)
	}
	b.WriteString(" ")
	b.WriteString(c.privacy)
	b.WriteString("\n\n")
	if pro {
		b.WriteString(proCTA)
	} else {
		b.WriteString(freeCTA)
	}
	return b.String()
}
