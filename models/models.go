package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Memory is one journal entry. Date is kept as the client sent it
// (YYYY-MM-DD by convention, not validated).
type Memory struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Date      string    `json:"date"`
	Content   string    `json:"content"`
	ImagePath string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	TokenHash string
	UserID    int64
	Username  string
	ExpiresAt time.Time
}
