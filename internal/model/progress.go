package model

// Progress is the derived onboarding position of one conversation.
type Progress struct {
	LocalQuestionIndex int    `json:"localQuestionIndex"`
	IsOnboarding       bool   `json:"isOnboarding"`
	Phase              string `json:"phase"`
	UserMessageCount   int    `json:"userMessageCount"`
}
