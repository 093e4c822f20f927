package model

import (
	"time"
)

// DeviceSession maps a device to the session identifier it reuses across restarts.
type DeviceSession struct {
	ID         string    `db:"id" json:"sessionId"`
	DeviceID   string    `db:"device_id" json:"deviceId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	LastSeenAt time.Time `db:"last_seen_at" json:"lastSeenAt"`
}

// PendingCompanion remembers which companion a user picked, and the message
// they typed, while they are sent through login.
type PendingCompanion struct {
	SessionID      string    `db:"session_id" json:"sessionId"`
	Companion      string    `db:"companion" json:"companion"`
	PendingMessage *string   `db:"pending_message" json:"pendingMessage,omitempty"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type SavePendingParams struct {
	SessionID      string
	Companion      string
	PendingMessage *string
	ExpiresAt      time.Time
}

type Entitlement struct {
	Pro bool `json:"pro"`
}

// ConversationKey scopes a transcript: one session talks to several companions.
type ConversationKey struct {
	SessionID string
	Companion string
}

func (k ConversationKey) String() string {
	return k.SessionID + "/" + k.Companion
}

// TurnContext carries the caller's identity explicitly on every engine call.
type TurnContext struct {
	AuthToken   string
	UserID      string
	SessionID   string
	Companion   string
	Entitlement Entitlement
}

func (tc TurnContext) Authenticated() bool {
	return tc.AuthToken != ""
}

func (tc TurnContext) Key() ConversationKey {
	return ConversationKey{SessionID: tc.SessionID, Companion: tc.Companion}
}
