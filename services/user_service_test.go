package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"engagement-api/middleware"
	"engagement-api/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	evmWallet string
}

func (v stubVerifier) VerifyEVM(p EVMSignPayload) (string, error) {
	return v.evmWallet, nil
}

func (v stubVerifier) VerifyCosmos(p CosmosSignPayload) (*CosmosWallets, error) {
	return &CosmosWallets{CosmosWallet: "cosmos1stub", LikeWallet: "like1stub"}, nil
}

func newTestUserApp(t *testing.T) (*fiber.App, *UserService) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	svc := &UserService{
		DB:       newTestDB(t),
		Verifier: stubVerifier{evmWallet: "0xAbC123"},
	}
	app := fiber.New()
	app.Post("/users/new", svc.Register)
	app.Post("/users/login", svc.Login)
	app.Post("/users/logout", middleware.JWTAuth("read"), svc.Logout)
	app.Post("/users/update", middleware.JWTAuth("write"), svc.Update)
	app.Get("/app/meta", middleware.JWTAuth("read"), svc.GetAppMeta)
	app.Post("/app/meta/referral", middleware.JWTAuth("write"), svc.SetAppReferrer)
	return app, svc
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRegisterEVMWallet(t *testing.T) {
	app, svc := newTestUserApp(t)

	resp := postJSON(t, app, "/users/new", map[string]interface{}{
		"platform": "evmWallet",
		"user":     "Alice Bob",
		"email":    "alice@example.com",
		"from":     "0xAbC123",
		"payload":  "challenge",
		"sign":     "0xsig",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user models.User
	require.NoError(t, svc.DB.First(&user, "id = ?", "alice-bob").Error)
	assert.Equal(t, "0xAbC123", user.EVMWallet)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)
	assert.NotEmpty(t, user.NormalizedEmail)

	var sessions int64
	require.NoError(t, svc.DB.Model(&models.Session{}).Where("user_id = ?", "alice-bob").Count(&sessions).Error)
	assert.EqualValues(t, 1, sessions)

	// session cookie issued
	found := false
	for _, c := range resp.Cookies() {
		if c.Name == middleware.AuthCookieName && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice", NormalizedEmail: "alice@example.com", EVMWallet: "0xOther"})

	resp := postJSON(t, app, "/users/new", map[string]interface{}{
		"platform": "evmWallet",
		"user":     "ALICE", // normalizes to the taken handle
		"from":     "0xAbC123",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "USER_ALREADY_EXIST", out["error"])

	resp = postJSON(t, app, "/users/new", map[string]interface{}{
		"platform": "evmWallet",
		"user":     "someone-else",
		"email":    "Alice@Example.com",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "EMAIL_ALREADY_USED", out["error"])

	// wallet column lookup: the stub verifier returns 0xAbC123, which
	// another account already claimed
	seedUser(t, svc.DB, models.User{ID: "carol", EVMWallet: "0xAbC123"})
	resp = postJSON(t, app, "/users/new", map[string]interface{}{
		"platform": "evmWallet",
		"user":     "carol-two",
		"from":     "0xAbC123",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "WALLET_ALREADY_USED", out["error"])
}

func TestLoginEVMWallet(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice", EVMWallet: "0xAbC123"})

	resp := postJSON(t, app, "/users/login", map[string]interface{}{
		"platform": "evmWallet",
		"from":     "0xAbC123",
		"payload":  "challenge",
		"sign":     "0xsig",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginUnknownWalletIs404(t *testing.T) {
	app, svc := newTestUserApp(t)
	_ = svc

	resp := postJSON(t, app, "/users/login", map[string]interface{}{
		"platform": "evmWallet",
		"from":     "0xAbC123",
		"payload":  "challenge",
		"sign":     "0xsig",
	}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginLockedUser(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice", EVMWallet: "0xAbC123", IsLocked: true})

	resp := postJSON(t, app, "/users/login", map[string]interface{}{
		"platform": "evmWallet",
		"from":     "0xAbC123",
		"payload":  "challenge",
		"sign":     "0xsig",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "USER_LOCKED", out["error"])
}

func TestLogoutRevokesSession(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice"})

	token, jti, expiresAt, err := middleware.SignToken("alice", "read")
	require.NoError(t, err)
	require.NoError(t, svc.DB.Create(&models.Session{ID: jti, UserID: "alice", ExpiresAt: expiresAt}).Error)

	resp := postJSON(t, app, "/users/logout", map[string]interface{}{}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var n int64
	require.NoError(t, svc.DB.Model(&models.Session{}).Where("id = ?", jti).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateEmailResetsVerification(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{
		ID: "alice", Email: "old@example.com", NormalizedEmail: "old@example.com", IsEmailVerified: true,
	})
	token, _, _, err := middleware.SignToken("alice", "write")
	require.NoError(t, err)

	resp := postJSON(t, app, "/users/update", map[string]interface{}{
		"email": "new@example.com",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user models.User
	require.NoError(t, svc.DB.First(&user, "id = ?", "alice").Error)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.IsEmailVerified)
	assert.NotEmpty(t, user.VerificationUUID)
}

func TestUpdateAuthCoreEmailIsImmutable(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{
		ID: "alice", Email: "managed@example.com", AuthCoreUserID: "ac-1",
	})
	token, _, _, err := middleware.SignToken("alice", "write")
	require.NoError(t, err)

	resp := postJSON(t, app, "/users/update", map[string]interface{}{
		"email": "new@example.com",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "EMAIL_CANNOT_BE_CHANGED", out["error"])
}

func TestAppMetaFirstOpenAndReferrer(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice"})
	seedUser(t, svc.DB, models.User{ID: "bob"})
	token, _, _, err := middleware.SignToken("alice", "write")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/app/meta", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta models.AppMetaView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.True(t, meta.IsNew, "freshly registered account opens as new")
	require.NotNil(t, meta.FirstOpenTs)

	resp = postJSON(t, app, "/app/meta/referral", map[string]interface{}{
		"referrer": "bob",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user models.User
	require.NoError(t, svc.DB.First(&user, "id = ?", "alice").Error)
	assert.Equal(t, "bob", user.Referrer)
	var referral models.Referral
	require.NoError(t, svc.DB.First(&referral, "user_id = ? AND referred_id = ?", "bob", "alice").Error)

	// second attempt is rejected
	resp = postJSON(t, app, "/app/meta/referral", map[string]interface{}{
		"referrer": "bob",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "REFERRER_ALREADY_SET", out["error"])
}

func TestSetAppReferrerUnknownReferrer(t *testing.T) {
	app, svc := newTestUserApp(t)
	seedUser(t, svc.DB, models.User{ID: "alice"})
	token, _, _, err := middleware.SignToken("alice", "write")
	require.NoError(t, err)

	// first open creates the meta row
	req := httptest.NewRequest("GET", "/app/meta", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, err = app.Test(req, -1)
	require.NoError(t, err)

	resp := postJSON(t, app, "/app/meta/referral", map[string]interface{}{
		"referrer": "ghost",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "REFERRER_NOT_EXISTS", out["error"])
	_ = svc
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail("  Alice.Smith+promo@GMAIL.com ")
	require.NoError(t, err)
	assert.Equal(t, "alicesmith@gmail.com", got)

	got, err = normalizeEmail("alice@googlemail.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@gmail.com", got)

	// non-gmail providers keep dots and tags
	got, err = normalizeEmail("Alice.Smith+promo@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice.smith+promo@example.com", got)

	_, err = normalizeEmail("not-an-email")
	require.Error(t, err)

	_, err = normalizeEmail("alice@mailinator.com")
	require.Error(t, err)
}
