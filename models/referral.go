package models

// Referral is one entry in a user's referral ledger: UserID is the
// referrer, ReferredID the account they brought in. The flags are
// synced in by the referral pipeline and drive the implicit
// inviteFriend / refereeTokenSale mission evaluators.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"index;not null" json:"user_id"`
	ReferredID string `gorm:"index;not null" json:"referred_id"`

	IsEmailVerified bool `json:"is_email_verified" gorm:"default:false"`
	IsICO           bool `json:"is_ico" gorm:"default:false"` // referred user completed a paid action

	Timestamps
}
