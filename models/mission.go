package models

// Mission is a catalog definition. Rows are created and edited by
// administrative tooling; this service treats them as read-only and
// serves them to users through the mission list builder.
type Mission struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Priority    int    `gorm:"index;not null" json:"priority"` // evaluation/display order, ascending
	Title       string `json:"title"`
	Description string `gorm:"type:text" json:"description"`
	IconURL     string `gorm:"type:text" json:"icon_url"`

	// Require lists prerequisite mission IDs that must all be in the
	// user's done-set before this mission is offered.
	Require []string `gorm:"type:jsonb;serializer:json" json:"require"`

	// Epoch milliseconds. Mission is upcoming before StartTs and
	// expired once EndTs has passed.
	StartTs *int64 `json:"start_ts,omitempty"`
	EndTs   *int64 `json:"end_ts,omitempty"`

	IsRefereeOnly      bool `json:"is_referee_only" gorm:"default:false"` // only users with a referrer see it
	IsProxy            bool `json:"is_proxy" gorm:"default:false"`        // always re-evaluated, bypasses visibility rules
	IsHidable          bool `json:"is_hidable" gorm:"default:false"`
	IsHidableAfterDone bool `json:"is_hidable_after_done" gorm:"default:false"`
	Staying            bool `json:"staying" gorm:"default:false"` // stays listed after completion

	// Reward identifier; nil means the mission is purely informational
	// and completion carries no claimable bonus.
	Reward *string `json:"reward,omitempty"`

	Timestamps
}
