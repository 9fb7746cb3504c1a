package models

import "time"

// Session mirrors one issued auth token; the primary key is the token's
// jti claim so logout can revoke exactly the cookie it was issued with.
type Session struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"index;not null" json:"user_id"`
	Platform string `json:"platform,omitempty"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	Timestamps
}
