// services/mission_service.go
package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"engagement-api/models"
	"engagement-api/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BonusNone marks a completion that carries no claimable reward.
const BonusNone = "none"

// GettingStartMissionID is the only multi-step mission; its checklist
// is a fixed set and /mission/step rejects anything else.
const GettingStartMissionID = "gettingStart"

var GettingStartedTasks = []string{
	"taskSocial",
	"taskOnepager",
	"taskVideo",
	"taskPaymentPage",
}

// rewardDecimals: bonus ledger values are stored in base units,
// 10^18 per whole token.
const rewardDecimals = 18

type MissionService struct {
	DB     *gorm.DB
	Events *EventPublisher

	// Now is swappable so expiry tests can pin the clock.
	Now func() time.Time
}

func NewMissionService(db *gorm.DB, events *EventPublisher) *MissionService {
	return &MissionService{DB: db, Events: events, Now: time.Now}
}

// MissionView is the user-facing projection of a mission merged with
// the user's own progress. Administrative metadata (priority, require
// chain, gating flags) never leaves the service. Everything is
// omitempty so absent fields stay absent, like the document store the
// clients were written against.
type MissionView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	IconURL     string          `json:"iconUrl,omitempty"`
	Reward      *string         `json:"reward,omitempty"`
	Staying     bool            `json:"staying,omitempty"`
	IsProxy     bool            `json:"isProxy,omitempty"`
	Upcoming    *int64          `json:"upcoming,omitempty"`
	EndTs       *int64          `json:"endTs,omitempty"`
	Done        bool            `json:"done,omitempty"`
	Seen        bool            `json:"seen,omitempty"`
	Hide        bool            `json:"hide,omitempty"`
	BonusID     string          `json:"bonusId,omitempty"`
	Tasks       map[string]bool `json:"tasks,omitempty"`
}

// missionEntry pairs a catalog definition with the user's record while
// the list is being assembled. Either side may be missing: a stored
// record whose mission left the catalog has no def, a fresh offer has
// no rec.
type missionEntry struct {
	id       string
	def      *models.Mission
	rec      *models.UserMission
	upcoming *int64
}

func (e *missionEntry) view() MissionView {
	v := MissionView{ID: e.id, Upcoming: e.upcoming}
	if e.def != nil {
		v.Title = e.def.Title
		v.Description = e.def.Description
		v.IconURL = e.def.IconURL
		v.Reward = e.def.Reward
		v.Staying = e.def.Staying
		v.IsProxy = e.def.IsProxy
		v.EndTs = e.def.EndTs
	}
	// stored user fields win over definition fields
	if e.rec != nil {
		v.Done = e.rec.Done
		v.Seen = e.rec.Seen
		v.Hide = e.rec.Hide
		if e.rec.BonusID != nil {
			v.BonusID = *e.rec.BonusID
		}
		if len(e.rec.Tasks) > 0 {
			v.Tasks = e.rec.Tasks
		}
	}
	return v
}

// missionEvaluator decides whether an implicit mission is already
// satisfied for a user. applicable=false means the mission can never
// resolve implicitly for this user (or is not an implicit mission at
// all) and nothing is written.
type missionEvaluator func(s *MissionService, u *models.User) (satisfied bool, applicable bool, err error)

// missionEvaluators is the closed registry of implicit completions.
// Adding a new implicit mission means adding an entry here, nothing
// else.
var missionEvaluators = map[string]missionEvaluator{
	"verifyEmail": func(s *MissionService, u *models.User) (bool, bool, error) {
		return u.IsEmailVerified, true, nil
	},
	"inviteFriend": func(s *MissionService, u *models.User) (bool, bool, error) {
		var n int64
		err := s.DB.Model(&models.Referral{}).
			Where("user_id = ? AND is_email_verified = ?", u.ID, true).
			Count(&n).Error
		if err != nil {
			return false, false, err
		}
		return n > 0, true, nil
	},
	"refereeTokenSale": func(s *MissionService, u *models.User) (bool, bool, error) {
		if u.Referrer == "" {
			return false, false, nil
		}
		var n int64
		err := s.DB.Model(&models.Referral{}).
			Where("user_id = ? AND is_ico = ?", u.ID, true).
			Count(&n).Error
		if err != nil {
			return false, false, err
		}
		return n > 0, true, nil
	},
}

// checkAlreadyDone runs the implicit evaluator for m, if one exists.
// On satisfaction it merge-writes the completion and adds m to the
// running done-set so prerequisites later in the same pass see it.
// Returns true only when the mission is fully resolved (done with no
// reward left pending) and must not be offered.
func (s *MissionService) checkAlreadyDone(m *models.Mission, user *models.User, doneSet map[string]bool) (bool, error) {
	eval, ok := missionEvaluators[m.ID]
	if !ok {
		return false, nil
	}
	satisfied, applicable, err := eval(s, user)
	if err != nil {
		return false, err
	}
	if !applicable || !satisfied {
		return false, nil
	}

	doneSet[m.ID] = true
	rec := models.UserMission{UserID: user.ID, MissionID: m.ID, Done: true}
	cols := []string{"done"}
	if m.Reward == nil || m.Staying {
		none := BonusNone
		rec.BonusID = &none
		cols = append(cols, "bonus_id")
	}
	if err := s.mergeUserMission(&rec, cols); err != nil {
		return false, err
	}
	return !m.Staying && m.Reward == nil, nil
}

// mergeUserMission is a field-granular merge write: only the named
// columns are applied when the row already exists, so concurrent
// writers never clobber each other's unrelated fields. Last writer
// wins per field; there is deliberately no compare-and-swap.
func (s *MissionService) mergeUserMission(rec *models.UserMission, cols []string) error {
	cols = append(cols, "updated_at")
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(rec).Error
}

// BuildList assembles the user-facing mission list: stored progress
// merged into catalog definitions, newly satisfied implicit missions
// written back, expired-and-undone missions dropped, staying missions
// kept. The pass runs in priority order and the done-set is mutated as
// it goes, so an implicit completion unlocks only missions evaluated
// after it in the same pass.
func (s *MissionService) BuildList(userID string) ([]MissionView, error) {
	var (
		missions    []models.Mission
		user        models.User
		missionsErr error
		userErr     error
	)

	// catalog scan and user doc are independent; fetch them together
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		missionsErr = s.DB.Order("priority").Find(&missions).Error
	}()
	go func() {
		defer wg.Done()
		userErr = s.DB.First(&user, "id = ?", userID).Error
	}()
	wg.Wait()
	if userErr != nil {
		if errors.Is(userErr, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("USER_NOT_EXIST")
		}
		return nil, userErr
	}
	if missionsErr != nil {
		return nil, missionsErr
	}

	var records []models.UserMission
	if err := s.DB.Where("user_id = ?", userID).Order("mission_id").Find(&records).Error; err != nil {
		return nil, err
	}

	now := s.Now().UnixMilli()

	proxy := make(map[string]bool)
	for i := range missions {
		if missions[i].IsProxy {
			proxy[missions[i].ID] = true
		}
	}

	recByID := make(map[string]*models.UserMission, len(records))
	doneSet := make(map[string]bool)
	for i := range records {
		r := &records[i]
		recByID[r.MissionID] = r
		if r.Done {
			doneSet[r.MissionID] = true
		}
	}

	// start from tracked records that still have something pending;
	// proxy missions re-enter regardless of their bonus state
	var result []*missionEntry
	for i := range records {
		r := &records[i]
		if !r.HasBonus() || proxy[r.MissionID] {
			result = append(result, &missionEntry{id: r.MissionID, rec: r})
		}
	}

	for i := range missions {
		m := &missions[i]

		var upcoming *int64
		if m.StartTs != nil && now < *m.StartTs {
			upcoming = m.StartTs
		}
		notExpired := m.EndTs == nil || now < *m.EndTs

		if _, tracked := recByID[m.ID]; !tracked {
			fulfilled := true
			for _, req := range m.Require {
				if !doneSet[req] {
					fulfilled = false
					break
				}
			}
			if !fulfilled || !notExpired {
				continue
			}
			if m.IsRefereeOnly && user.Referrer == "" {
				continue
			}
			resolved, err := s.checkAlreadyDone(m, &user, doneSet)
			if err != nil {
				return nil, err
			}
			if resolved {
				continue
			}
			// freshly offered, or satisfied with a reward still pending;
			// pick up the record the evaluator may have just written
			var rec *models.UserMission
			if doneSet[m.ID] {
				var fresh models.UserMission
				if err := s.DB.Where("user_id = ? AND mission_id = ?", userID, m.ID).First(&fresh).Error; err == nil {
					rec = &fresh
				}
			}
			result = append(result, &missionEntry{id: m.ID, def: m, rec: rec, upcoming: upcoming})
		} else {
			idx := -1
			for j, e := range result {
				if e.id == m.ID {
					idx = j
					break
				}
			}
			if idx >= 0 {
				if !notExpired && !doneSet[m.ID] && !m.IsProxy {
					result = append(result[:idx], result[idx+1:]...)
				} else {
					result[idx].def = m
					result[idx].upcoming = upcoming
				}
			} else if notExpired && m.Staying {
				result = append(result, &missionEntry{id: m.ID, def: m, upcoming: upcoming})
			}
		}
	}

	views := make([]MissionView, 0, len(result))
	for _, e := range result {
		views = append(views, e.view())
	}
	return views, nil
}

// RecordSeen flags a mission as seen, creating the record if needed.
func (s *MissionService) RecordSeen(userID, missionID string) error {
	return s.mergeUserMission(
		&models.UserMission{UserID: userID, MissionID: missionID, Seen: true},
		[]string{"seen"},
	)
}

// HideMission hides a mission for a user if the catalog allows it:
// hidable outright, or hidable-after-done once the user finished it.
func (s *MissionService) HideMission(userID, missionID string) error {
	var m models.Mission
	if err := s.DB.First(&m, "id = ?", missionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("MISSION_UNKNOWN")
		}
		return err
	}

	done := false
	var rec models.UserMission
	err := s.DB.Where("user_id = ? AND mission_id = ?", userID, missionID).First(&rec).Error
	if err == nil {
		done = rec.Done
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if !m.IsHidable && !(m.IsHidableAfterDone && done) {
		return utils.NewValidationError("MISSION_NOT_HIDABLE")
	}
	return s.mergeUserMission(
		&models.UserMission{UserID: userID, MissionID: missionID, Hide: true},
		[]string{"hide"},
	)
}

// StepResult echoes exactly what a step write stored.
type StepResult struct {
	TaskID string
	Done   bool
	Tasks  map[string]bool
}

// RecordStep records one checklist task for the multi-step mission.
// The stored task set is unioned with the new task; when it covers the
// whole required set the same write also marks the mission done.
func (s *MissionService) RecordStep(userID, missionID, taskID string) (*StepResult, error) {
	if missionID != GettingStartMissionID {
		return nil, utils.NewValidationError("MISSION_UNKNOWN")
	}
	known := false
	for _, t := range GettingStartedTasks {
		if t == taskID {
			known = true
			break
		}
	}
	if !known {
		return nil, utils.NewValidationError("TASK_UNKNOWN")
	}

	var rec models.UserMission
	err := s.DB.Where("user_id = ? AND mission_id = ?", userID, missionID).First(&rec).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tasks := make(map[string]bool, len(rec.Tasks)+1)
	for k, v := range rec.Tasks {
		if v {
			tasks[k] = true
		}
	}
	tasks[taskID] = true

	done := true
	for _, t := range GettingStartedTasks {
		if !tasks[t] {
			done = false
			break
		}
	}

	write := models.UserMission{UserID: userID, MissionID: missionID, Tasks: tasks}
	cols := []string{"tasks"}
	if done {
		write.Done = true
		cols = append(cols, "done")
	}
	if err := s.mergeUserMission(&write, cols); err != nil {
		return nil, err
	}
	return &StepResult{TaskID: taskID, Done: done, Tasks: tasks}, nil
}

// ListHistory returns the user's completed missions, catalog fields
// merged under the stored record.
func (s *MissionService) ListHistory(userID string) ([]MissionView, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("USER_NOT_EXIST")
		}
		return nil, err
	}

	var (
		records     []models.UserMission
		missions    []models.Mission
		recordsErr  error
		missionsErr error
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		recordsErr = s.DB.Where("user_id = ? AND done = ?", userID, true).
			Order("mission_id").Find(&records).Error
	}()
	go func() {
		defer wg.Done()
		missionsErr = s.DB.Order("priority").Find(&missions).Error
	}()
	wg.Wait()
	if recordsErr != nil {
		return nil, recordsErr
	}
	if missionsErr != nil {
		return nil, missionsErr
	}

	byID := make(map[string]*models.Mission, len(missions))
	for i := range missions {
		byID[missions[i].ID] = &missions[i]
	}

	views := make([]MissionView, 0, len(records))
	for i := range records {
		r := &records[i]
		e := missionEntry{id: r.MissionID, def: byID[r.MissionID], rec: r}
		views = append(views, e.view())
	}
	return views, nil
}

// BonusHistory sums the user's settled bonus ledger per reward type.
// Values are base-unit strings; output is whole tokens fixed to four
// decimal places. Entries without a tx hash are pending and skipped.
func (s *MissionService) BonusHistory(userID string) (map[string]string, error) {
	var rows []models.Bonus
	if err := s.DB.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, b := range rows {
		if b.TxHash == nil || *b.TxHash == "" || b.Value == "" {
			continue
		}
		v, err := decimal.NewFromString(b.Value)
		if err != nil {
			log.Printf("⚠️ skipping malformed bonus value %q for %s", b.Value, userID)
			continue
		}
		totals[b.Type] = totals[b.Type].Add(v)
	}

	out := make(map[string]string, len(totals))
	for typ, sum := range totals {
		out[typ] = sum.Shift(-rewardDecimals).StringFixed(4)
	}
	return out, nil
}

// BlockerResolution explains why a mission is not yet claimable for a
// user. Require holds at most one id: the nearest prerequisite already
// offered to the user.
type BlockerResolution struct {
	MissionView
	IsExpired         bool     `json:"isExpired"`
	IsClaimed         bool     `json:"isClaimed"`
	IsMissionRequired bool     `json:"isMissionRequired"`
	Require           []string `json:"require"`
}

// ResolveBlocker walks the require chain depth-first, first branch
// only, until it hits a prerequisite that is in the caller-supplied
// offered set. Returns (nil, nil) when the mission id is not in the
// catalog at all.
func (s *MissionService) ResolveBlocker(missionID, userID string, offered []string) (*BlockerResolution, error) {
	var missions []models.Mission
	if err := s.DB.Find(&missions).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Mission, len(missions))
	for i := range missions {
		byID[missions[i].ID] = &missions[i]
	}

	m, ok := byID[missionID]
	if !ok {
		return nil, nil
	}

	var userRec *models.UserMission
	var rec models.UserMission
	err := s.DB.Where("user_id = ? AND mission_id = ?", userID, missionID).First(&rec).Error
	if err == nil {
		userRec = &rec
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.Now().UnixMilli()
	e := missionEntry{id: missionID, def: m, rec: userRec}
	res := &BlockerResolution{
		MissionView:       e.view(),
		IsExpired:         m.EndTs != nil && now >= *m.EndTs,
		IsMissionRequired: userRec == nil,
		Require:           []string{},
	}
	if userRec != nil {
		res.IsClaimed = userRec.Done && userRec.HasBonus()
	}

	if res.IsMissionRequired {
		offeredSet := make(map[string]bool, len(offered))
		for _, id := range offered {
			offeredSet[id] = true
		}
		reqs := m.Require
		for len(reqs) > 0 {
			blocker := ""
			for _, id := range reqs {
				if offeredSet[id] {
					blocker = id
					break
				}
			}
			if blocker != "" {
				res.Require = append(res.Require, blocker)
				break
			}
			next, ok := byID[reqs[0]]
			if !ok {
				break
			}
			reqs = next.Require
		}
	}
	return res, nil
}
