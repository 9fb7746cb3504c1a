package models

// AppMeta is the per-user mobile app metadata document. IsNew is only
// true when the app first opened within the new-user window after
// registration; the app referral endpoint requires it.
type AppMeta struct {
	UserID      string `gorm:"primaryKey" json:"user_id"`
	IsNew       bool   `json:"is_new" gorm:"default:false"`
	Referrer    string `json:"referrer,omitempty"`
	FirstOpenTs *int64 `json:"first_open_ts,omitempty"` // epoch ms

	Timestamps
}

// AppMetaView is what the client sees; referrer assignment internals
// stay server-side.
type AppMetaView struct {
	IsNew       bool   `json:"isNew"`
	Referrer    string `json:"referrer,omitempty"`
	FirstOpenTs *int64 `json:"firstOpenTs,omitempty"`
}

func (m *AppMeta) View() AppMetaView {
	return AppMetaView{IsNew: m.IsNew, Referrer: m.Referrer, FirstOpenTs: m.FirstOpenTs}
}
