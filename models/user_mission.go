package models

// UserMission is one user's progress against one catalog mission.
// Rows are created lazily on the first evaluator, step, seen or hide
// write and are never deleted here (append-only ledger).
type UserMission struct {
	UserID    string `gorm:"primaryKey" json:"user_id"`
	MissionID string `gorm:"primaryKey" json:"mission_id"`

	Done bool `json:"done" gorm:"default:false"`

	// BonusID is set at most once. The "none" sentinel means the
	// completion carries no claimable reward; any other non-empty
	// value is a claimable reward identifier written by the claim flow.
	BonusID *string `json:"bonus_id,omitempty"`

	Seen bool `json:"seen" gorm:"default:false"`
	Hide bool `json:"hide" gorm:"default:false"`

	// Tasks holds sub-task completion flags for multi-step missions.
	Tasks map[string]bool `gorm:"type:jsonb;serializer:json" json:"tasks,omitempty"`

	Timestamps
}

// HasBonus reports whether any bonus id (including "none") has been
// assigned yet.
func (um *UserMission) HasBonus() bool {
	return um.BonusID != nil && *um.BonusID != ""
}
