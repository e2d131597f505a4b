package model

import "time"

// Event records one completed chore. Only Rejected changes after creation.
type Event struct {
	ID            int64     `json:"id"`
	GameID        int64     `json:"game_id"`
	TaskID        int64     `json:"task_id"`
	CompletedByID int64     `json:"completed_by_id"`
	BeforePic     string    `json:"before_pic"`
	AfterPic      string    `json:"after_pic"`
	Rejected      bool      `json:"rejected"`
	CreatedAt     time.Time `json:"created_at"`
}
