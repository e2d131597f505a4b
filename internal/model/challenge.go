package model

import "time"

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "Pending"
	ChallengeAccepted ChallengeStatus = "Accepted"
	ChallengeRejected ChallengeStatus = "Rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeAccepted || s == ChallengeRejected
}

type Challenge struct {
	ID             int64           `json:"id"`
	EventID        int64           `json:"event_id"`
	GameID         int64           `json:"game_id"`
	CommissionerID int64           `json:"commissioner_id"`
	UserID         int64           `json:"user_id"`
	Description    string          `json:"description"`
	Status         ChallengeStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
