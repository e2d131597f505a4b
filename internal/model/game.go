package model

import "time"

type Game struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CommissionerID *int64    `json:"commissioner_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Player is a game roster entry: the user joined with its game_players row.
type Player struct {
	UserID             int64  `json:"user_id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	DeviceToken        string `json:"device_token,omitempty"`
	Badge              int    `json:"badge"`
	EventNotifications bool   `json:"event_notifications"`
	Confirmed          bool   `json:"confirmed"`
}

type Task struct {
	ID        int64     `json:"id"`
	GameID    int64     `json:"game_id"`
	Name      string    `json:"name"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}
