package model

import "time"

type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	DeviceToken      string    `json:"device_token,omitempty"`
	Badge            int       `json:"badge"`
	LifetimeCurrency int       `json:"lifetime_currency"`
	Invited          bool      `json:"invited"`
	HasPassword      bool      `json:"has_password"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Joined reports whether the user has registered. Users without a password
// were invited to a game but never signed up.
func (u *User) Joined() bool {
	return u.HasPassword
}
