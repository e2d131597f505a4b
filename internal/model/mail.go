package model

import "time"

// Mail type constants
const (
	MailEventCompleted    = "eventCompleted"
	MailEventChallenged   = "eventChallenged"
	MailChallengeAccepted = "challengeAccepted"
	MailChallengeRejected = "challengeRejected"
)

// Mail is an append-only in-app notification record. TransitionID groups the
// rows written for one state transition.
type Mail struct {
	ID           int64     `json:"id"`
	TransitionID string    `json:"transition_id"`
	RecipientID  int64     `json:"recipient_id"`
	UserID       *int64    `json:"user_id"`
	Type         string    `json:"type"`
	ChallengeID  *int64    `json:"challenge_id"`
	EventID      int64     `json:"event_id"`
	GameID       int64     `json:"game_id"`
	CreatedAt    time.Time `json:"created_at"`
}
