// Package reply extracts structured affordances from companion response text.
//
// The parsers are pure and never fail: anything that does not match the
// expected markup stays in the display text untouched. Text without markup
// comes back byte-for-byte unchanged with no affordances.
package reply

import (
	"regexp"
	"strings"

	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
)

var (
	// A line holding a single *option*, surrounding whitespace allowed.
	optionLine = regexp.MustCompile(`^\s*\*([^*\n]+)\*\s*$`)
	blankRun   = regexp.MustCompile(`(\n[ \t]*){3,}`)
)

type Mode int

const (
	ModeQuickReplies Mode = iota
	ModeChallenges
	ModePaywallSummary
)

func (m Mode) String() string {
	switch m {
	case ModeChallenges:
		return "challenges"
	case ModePaywallSummary:
		return "paywall_summary"
	}
	return "quick_replies"
}

// ModeForPhase picks the single parser that runs for a phase tag.
func ModeForPhase(phaseTag string) Mode {
	switch phaseTag {
	case phase.TagProblemstellung:
		return ModeChallenges
	case phase.TagPaywall:
		return ModePaywallSummary
	}
	return ModeQuickReplies
}

type Result struct {
	Text        string
	Affordances *model.Affordances
}

// Parse runs the parser selected by the phase tag.
func Parse(phaseTag, text string) Result {
	switch ModeForPhase(phaseTag) {
	case ModePaywallSummary:
		if summary, ok := ParsePaywallSummary(text); ok {
			return Result{Affordances: &model.Affordances{PaywallSummary: summary}}
		}
		return Result{Text: text}

	case ModeChallenges:
		clean, options := ParseChallenges(text)
		if len(options) == 0 {
			return Result{Text: clean}
		}
		return Result{Text: clean, Affordances: &model.Affordances{ChallengeOptions: options}}

	default:
		clean, options := ParseQuickReplies(text)
		if len(options) == 0 {
			return Result{Text: clean}
		}
		return Result{Text: clean, Affordances: &model.Affordances{QuickReplies: options}}
	}
}

// ParseQuickReplies pulls every *option* line out of text, in order.
func ParseQuickReplies(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	var options []string

	for _, line := range lines {
		if m := optionLine.FindStringSubmatch(line); m != nil {
			if option := strings.TrimSpace(m[1]); option != "" {
				options = append(options, option)
				continue
			}
		}
		kept = append(kept, line)
	}

	if len(options) == 0 {
		return text, nil
	}
	return tidy(strings.Join(kept, "\n")), options
}

// ParseChallenges pulls *Title: description* lines out of text. Option lines
// without a colon are not challenges and stay in the text. FullText is the
// content between the asterisks exactly as the gateway wrote it.
func ParseChallenges(text string) (string, []model.ChallengeOption) {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	var options []model.ChallengeOption

	for _, line := range lines {
		if m := optionLine.FindStringSubmatch(line); m != nil {
			content := m[1]
			if idx := strings.Index(content, ":"); idx >= 0 {
				title := strings.TrimSpace(content[:idx])
				if title != "" {
					options = append(options, model.ChallengeOption{
						Title:       title,
						Description: strings.TrimSpace(content[idx+1:]),
						FullText:    content,
					})
					continue
				}
			}
		}
		kept = append(kept, line)
	}

	if len(options) == 0 {
		return text, nil
	}
	return tidy(strings.Join(kept, "\n")), options
}

// ParsePaywallSummary reads a heading/bullet summary. It reports false when no
// section heading is found, in which case the text should be shown as is.
func ParsePaywallSummary(text string) (*model.PaywallSummary, bool) {
	var intro []string
	var sections []model.PaywallSection

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		bullet, isBullet := stripBullet(line)
		switch {
		case !isBullet && strings.HasSuffix(line, ":"):
			sections = append(sections, model.PaywallSection{Heading: line, Bullets: []string{}})
		case len(sections) == 0:
			intro = append(intro, line)
		case isBullet:
			current := &sections[len(sections)-1]
			current.Bullets = append(current.Bullets, bullet)
		}
		// Plain lines after the first heading belong to no section and are dropped.
	}

	if len(sections) == 0 {
		return nil, false
	}
	return &model.PaywallSummary{
		Intro:    strings.Join(intro, "\n"),
		Sections: sections,
	}, true
}

func stripBullet(line string) (string, bool) {
	for _, marker := range []string{"-", "•"} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return line, false
}

func tidy(text string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(text, "\n\n"))
}
