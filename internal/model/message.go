package model

import (
	"strings"
	"time"
)

type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"sessionId"`
	Companion   string       `json:"companion"`
	UserID      string       `json:"userId,omitempty"`
	Sender      Sender       `json:"sender"`
	Text        string       `json:"text"`
	RawText     string       `json:"-"`
	PhaseTag    string       `json:"phaseTag,omitempty"`
	Safety      string       `json:"safety,omitempty"`
	HasMemory   bool         `json:"hasMemory,omitempty"`
	Affordances *Affordances `json:"affordances,omitempty"`
	CreatedAt   time.Time    `json:"timestamp"`
}

func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// HistoryText is what the AI gateway sees for this message. Structured cards
// clear the display text, so the original response is sent instead.
func (m Message) HistoryText() string {
	if m.RawText != "" {
		return m.RawText
	}
	return m.Text
}

// DiagnosticTag renders the phase tag with safety and memory indicators.
func (m Message) DiagnosticTag() string {
	if m.PhaseTag == "" {
		return ""
	}
	parts := []string{m.PhaseTag}
	if m.Safety != "" {
		parts = append(parts, "safety:"+m.Safety)
	}
	if m.HasMemory {
		parts = append(parts, "memory")
	}
	return strings.Join(parts, " · ")
}

type ChallengeOption struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FullText    string `json:"fullText"`
}

type PaywallSection struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets"`
}

type PaywallSummary struct {
	Intro    string           `json:"intro"`
	Sections []PaywallSection `json:"sections"`
}

// Affordances holds the structured payload of a companion message. At most one
// kind is rendered; Normalize enforces that.
type Affordances struct {
	QuickReplies     []string          `json:"quickReplies,omitempty"`
	ChallengeOptions []ChallengeOption `json:"challengeOptions,omitempty"`
	PaywallSummary   *PaywallSummary   `json:"paywallSummary,omitempty"`
	UpgradeButton    bool              `json:"upgradeButton,omitempty"`
}

func (a *Affordances) Kind() AffordanceKind {
	switch {
	case a == nil:
		return AffordanceNone
	case a.PaywallSummary != nil:
		return AffordancePaywallSummary
	case len(a.ChallengeOptions) > 0:
		return AffordanceChallengeOptions
	case len(a.QuickReplies) > 0:
		return AffordanceQuickReplies
	case a.UpgradeButton:
		return AffordanceUpgradeButton
	}
	return AffordanceNone
}

// Normalize keeps only the winning kind and returns nil when nothing is set.
func (a *Affordances) Normalize() *Affordances {
	switch a.Kind() {
	case AffordancePaywallSummary:
		return &Affordances{PaywallSummary: a.PaywallSummary}
	case AffordanceChallengeOptions:
		return &Affordances{ChallengeOptions: a.ChallengeOptions}
	case AffordanceQuickReplies:
		return &Affordances{QuickReplies: a.QuickReplies}
	case AffordanceUpgradeButton:
		return &Affordances{UpgradeButton: true}
	}
	return nil
}
