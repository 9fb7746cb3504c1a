package models

// Bonus is a settled reward ledger entry. Value is a base-unit decimal
// string (10^18 per whole token); TxHash is set once the transfer has
// been submitted on-chain. Rows without a tx hash are pending and are
// excluded from history totals.
type Bonus struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string  `gorm:"index;not null" json:"user_id"`
	MissionID string  `gorm:"index" json:"mission_id,omitempty"`
	Type      string  `gorm:"not null" json:"type"` // e.g. "mission", "referral"
	Value     string  `gorm:"not null" json:"value"`
	TxHash    *string `json:"tx_hash,omitempty"`

	Timestamps
}
