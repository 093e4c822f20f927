package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/openclaw/companion-server-go/internal/model"
)

const defaultWrapWidth = 80

// display writes the conversation to the terminal. Without a TTY, or with
// -plain, markdown goes out unrendered.
type display struct {
	out     io.Writer
	md      *glamour.TermRenderer
	choices []string
}

func newDisplay(out *os.File, plain bool) *display {
	d := &display{out: out}
	fd := int(out.Fd())
	if plain || !term.IsTerminal(fd) {
		return d
	}

	width := defaultWrapWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 20 {
		width = w - 4
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		d.md = md
	}
	return d
}

func (d *display) render(markdown string) {
	if d.md != nil {
		if out, err := d.md.Render(markdown); err == nil {
			fmt.Fprint(d.out, out)
			return
		}
	}
	fmt.Fprintln(d.out, strings.TrimRight(markdown, "\n"))
	fmt.Fprintln(d.out)
}

// Message prints one transcript entry and remembers its numbered choices.
func (d *display) Message(msg model.Message) {
	if msg.Sender == model.SenderUser {
		fmt.Fprintf(d.out, "you: %s\n\n", msg.Text)
		return
	}
	d.render(messageMarkdown(msg))
	d.choices = choicesFor(msg.Affordances)
}

func (d *display) Transcript(companionName string, messages []model.Message) {
	d.Info("Talking to %s. Type /help for commands.", companionName)
	for _, msg := range messages {
		d.Message(msg)
	}
}

// Choose maps "2" to the second offered option. Anything else is sent as typed.
func (d *display) Choose(line string) string {
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(d.choices) {
		return line
	}
	return d.choices[n-1]
}

func (d *display) Info(format string, args ...any) {
	fmt.Fprintf(d.out, "-- "+format+"\n", args...)
}

func (d *display) Warn(format string, args ...any) {
	fmt.Fprintf(d.out, "!! "+format+"\n", args...)
}

func (d *display) Prompt() {
	fmt.Fprint(d.out, "> ")
}

func messageMarkdown(msg model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", msg.Companion)
	if msg.Text != "" {
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}

	aff := msg.Affordances
	if aff == nil {
		return b.String()
	}

	if s := aff.PaywallSummary; s != nil {
		if s.Intro != "" {
			b.WriteString(s.Intro)
			b.WriteString("\n")
		}
		for _, section := range s.Sections {
			fmt.Fprintf(&b, "\n### %s\n\n", strings.TrimSuffix(section.Heading, ":"))
			for _, bullet := range section.Bullets {
				fmt.Fprintf(&b, "- %s\n", bullet)
			}
		}
	}

	if len(aff.QuickReplies) > 0 {
		b.WriteString("\n")
		for i, option := range aff.QuickReplies {
			fmt.Fprintf(&b, "%d. %s\n", i+1, option)
		}
	}

	if len(aff.ChallengeOptions) > 0 {
		b.WriteString("\n")
		for i, option := range aff.ChallengeOptions {
			fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, option.Title, option.Description)
		}
	}

	if aff.UpgradeButton {
		b.WriteString("\n> Upgrade to Pro to keep going. Type /upgrade once you have.\n")
	}
	return b.String()
}

func choicesFor(aff *model.Affordances) []string {
	if aff == nil {
		return nil
	}
	if len(aff.ChallengeOptions) > 0 {
		out := make([]string, len(aff.ChallengeOptions))
		for i, option := range aff.ChallengeOptions {
			out[i] = option.FullText
		}
		return out
	}
	return aff.QuickReplies
}
