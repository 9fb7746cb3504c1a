package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engagement-api/middleware"
	"engagement-api/models"
	"engagement-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newMissionTestApp(t *testing.T) (*fiber.App, *services.MissionService) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Mission{},
		&models.UserMission{},
		&models.Referral{},
		&models.Bonus{},
	))

	svc := &services.MissionService{
		DB:  db,
		Now: func() time.Time { return time.UnixMilli(1_000_000) },
	}
	app := fiber.New()
	SetupMissionRoutes(app, svc)
	return app, svc
}

func authedReq(t *testing.T, app *fiber.App, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func writeToken(t *testing.T, user string) string {
	t.Helper()
	token, _, _, err := middleware.SignToken(user, "write")
	require.NoError(t, err)
	return token
}

func TestMissionListRejectsOtherUsersToken(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.User{ID: "alice"}).Error)

	resp := authedReq(t, app, "GET", "/mission/list/alice", nil, writeToken(t, "mallory"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "LOGIN_NEEDED", string(body))
}

func TestMissionListHappyPath(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.User{ID: "alice"}).Error)
	require.NoError(t, svc.DB.Create(&models.Mission{ID: "gettingStart", Priority: 1, Title: "Getting started"}).Error)

	resp := authedReq(t, app, "GET", "/mission/list/alice", nil, writeToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var views []services.MissionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "gettingStart", views[0].ID)
}

func TestMissionSeenRequiresMatchingBodyUser(t *testing.T) {
	app, svc := newMissionTestApp(t)

	resp := authedReq(t, app, "POST", "/mission/seen/gettingStart",
		map[string]string{"user": "alice"}, writeToken(t, "mallory"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var n int64
	require.NoError(t, svc.DB.Model(&models.UserMission{}).Count(&n).Error)
	assert.Zero(t, n, "rejected request writes nothing")

	resp = authedReq(t, app, "POST", "/mission/seen/gettingStart",
		map[string]string{"user": "alice"}, writeToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec models.UserMission
	require.NoError(t, svc.DB.Where("user_id = ? AND mission_id = ?", "alice", "gettingStart").First(&rec).Error)
	assert.True(t, rec.Seen)
}

func TestMissionSeenRejectsReadScope(t *testing.T) {
	app, _ := newMissionTestApp(t)
	token, _, _, err := middleware.SignToken("alice", "read")
	require.NoError(t, err)

	resp := authedReq(t, app, "POST", "/mission/seen/gettingStart",
		map[string]string{"user": "alice"}, token)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMissionStepEchoesTask(t *testing.T) {
	app, _ := newMissionTestApp(t)
	token := writeToken(t, "alice")

	resp := authedReq(t, app, "POST", "/mission/step/gettingStart",
		map[string]string{"user": "alice", "taskId": "taskSocial"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, map[string]bool{"taskSocial": true}, out)

	for _, task := range []string{"taskOnepager", "taskVideo", "taskPaymentPage"} {
		resp = authedReq(t, app, "POST", "/mission/step/gettingStart",
			map[string]string{"user": "alice", "taskId": task}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["done"], "final task flips the done flag")
	assert.True(t, out["taskPaymentPage"])
}

func TestMissionStepUnknownTask(t *testing.T) {
	app, _ := newMissionTestApp(t)

	resp := authedReq(t, app, "POST", "/mission/step/gettingStart",
		map[string]string{"user": "alice", "taskId": "taskBogus"}, writeToken(t, "alice"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "TASK_UNKNOWN", out["error"])
}

func TestMissionBlockerUnknownMission(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.User{ID: "alice"}).Error)

	resp := authedReq(t, app, "GET", "/mission/ghost/user/alice", nil, writeToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["isExpired"])
}

func TestMissionBlockerWalksRequireChain(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.User{ID: "alice"}).Error)
	require.NoError(t, svc.DB.Create(&models.Mission{ID: "a", Priority: 1}).Error)
	require.NoError(t, svc.DB.Create(&models.Mission{ID: "b", Priority: 2, Require: []string{"a"}}).Error)

	resp := authedReq(t, app, "GET", "/mission/b/user/alice?userMissionList=a,x", nil, writeToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out services.BlockerResolution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.IsMissionRequired)
	assert.Equal(t, []string{"a"}, out.Require)
}

func TestMissionHideNotHidable(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.Mission{ID: "sticky", Priority: 1}).Error)

	resp := authedReq(t, app, "POST", "/mission/hide/sticky",
		map[string]string{"user": "alice"}, writeToken(t, "alice"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "MISSION_NOT_HIDABLE", out["error"])
}

func TestMissionBonusHistoryEndpoint(t *testing.T) {
	app, svc := newMissionTestApp(t)
	require.NoError(t, svc.DB.Create(&models.User{ID: "alice"}).Error)
	tx := "0xaa"
	require.NoError(t, svc.DB.Create(&models.Bonus{
		ID: "b1", UserID: "alice", Type: "LIKE", Value: "2500000000000000000", TxHash: &tx,
	}).Error)

	resp := authedReq(t, app, "GET", "/mission/list/history/alice/bonus", nil, writeToken(t, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "2.5000", out["LIKE"])
}
