package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the platform account record. The primary key is the
// user-chosen handle (normalized at registration), matching the
// document-store layout this service replaced.
type User struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `json:"display_name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Avatar      string `gorm:"type:text" json:"avatar,omitempty"`
	AvatarHash  string `json:"avatar_hash,omitempty"`
	Locale      string `json:"locale,omitempty"`

	Email              string `gorm:"index" json:"email,omitempty"`
	NormalizedEmail    string `gorm:"index" json:"normalized_email,omitempty"`
	IsEmailVerified    bool   `json:"is_email_verified" gorm:"default:false"`
	IsEmailEnabled     bool   `json:"is_email_enabled" gorm:"default:true"`
	IsEmailBlacklisted *bool  `json:"is_email_blacklisted,omitempty"`
	IsEmailDuplicated  *bool  `json:"is_email_duplicated,omitempty"`
	VerificationUUID   string `json:"-"`

	Phone           string `json:"phone,omitempty"`
	IsPhoneVerified bool   `json:"is_phone_verified" gorm:"default:false"`

	// Referrer is the handle of the user who referred this one;
	// empty when the user signed up organically.
	Referrer string `gorm:"index" json:"referrer,omitempty"`

	// Auth platform bindings. A user has at least one of these.
	// column named explicitly: the default naming splits EVM into e_vm
	EVMWallet      string `gorm:"column:evm_wallet;index" json:"evm_wallet,omitempty"`
	CosmosWallet   string `gorm:"index" json:"cosmos_wallet,omitempty"`
	LikeWallet     string `gorm:"index" json:"like_wallet,omitempty"`
	AuthCoreUserID string `gorm:"index" json:"authcore_user_id,omitempty"`
	MagicUserID    string `json:"magic_user_id,omitempty"`

	IsLocked bool `json:"is_locked" gorm:"default:false"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
