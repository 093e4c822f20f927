package model

type Sender string

const (
	SenderUser      Sender = "user"
	SenderCompanion Sender = "companion"
)

// Role is the persisted form of Sender.
type Role string

const (
	RoleHuman     Role = "human"
	RoleCompanion Role = "companion"
)

func (s Sender) Role() Role {
	if s == SenderUser {
		return RoleHuman
	}
	return RoleCompanion
}

func (r Role) Sender() Sender {
	if r == RoleHuman {
		return SenderUser
	}
	return SenderCompanion
}

type AffordanceKind string

const (
	AffordanceNone             AffordanceKind = "none"
	AffordanceQuickReplies     AffordanceKind = "quick_replies"
	AffordanceChallengeOptions AffordanceKind = "challenge_options"
	AffordancePaywallSummary   AffordanceKind = "paywall_summary"
	AffordanceUpgradeButton    AffordanceKind = "upgrade_button"
)

// Route is the Phase Resolver's decision for a single turn.
type Route string

const (
	RouteLocalQuestion     Route = "local_question"
	RouteGatewayOnboarding Route = "gateway_onboarding"
	RouteGatewayTherapy    Route = "gateway_therapy"
)

type TurnStatus string

const (
	TurnStatusCompleted     TurnStatus = "completed"
	TurnStatusAwaitingAck   TurnStatus = "awaiting_ack"
	TurnStatusGatewayFailed TurnStatus = "gateway_failed"
	TurnStatusDiscarded     TurnStatus = "discarded"
)
