// services/user_service.go
package services

import (
	"errors"
	"log"
	"net/mail"
	"strings"

	"engagement-api/middleware"
	"engagement-api/models"
	"engagement-api/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Disposable domains rejected at registration/update. The real list
// lives with the ops config; these are the perennial offenders.
var blacklistedEmailDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.dev":      true,
}

type UserService struct {
	DB       *gorm.DB
	Events   *EventPublisher
	Mailer   *Mailer
	AuthCore *AuthCoreClient
	Magic    *MagicClient
	Verifier SignatureVerifier
}

func NewUserService(db *gorm.DB, events *EventPublisher, mailer *Mailer, authCore *AuthCoreClient, magic *MagicClient, verifier SignatureVerifier) *UserService {
	return &UserService{
		DB:       db,
		Events:   events,
		Mailer:   mailer,
		AuthCore: authCore,
		Magic:    magic,
		Verifier: verifier,
	}
}

type registerRequest struct {
	Platform    string `json:"platform"`
	User        string `json:"user"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Locale      string `json:"locale"`
	AppReferrer string `json:"appReferrer"`

	// evmWallet
	From          string `json:"from"`
	Payload       string `json:"payload"`
	Sign          string `json:"sign"`
	MagicDIDToken string `json:"magicDIDToken"`

	// authcore
	IDToken      string `json:"idToken"`
	AccessToken  string `json:"accessToken"`
	CosmosWallet string `json:"cosmosWallet"`
	LikeWallet   string `json:"likeWallet"`

	// likeWallet
	Signature  string `json:"signature"`
	PublicKey  string `json:"publicKey"`
	Message    string `json:"message"`
	SignMethod string `json:"signMethod"`
}

// Register creates an account from one of the supported auth
// platforms: evmWallet (signature proof, optional Magic email
// pre-verification), authcore (federated tokens plus custodial wallet
// creation) or likeWallet (cosmos signature proof).
func (s *UserService) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}

	user := models.User{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Locale:      req.Locale,
		Email:       req.Email,
	}
	if user.DisplayName == "" {
		user.DisplayName = req.User
	}

	var err error
	switch req.Platform {
	case "evmWallet":
		err = s.registerEVM(&req, &user)
	case "authcore":
		err = s.registerAuthCore(&req, &user)
	case "likeWallet":
		err = s.registerLikeWallet(&req, &user)
	default:
		err = utils.NewValidationError("INVALID_PLATFORM")
	}
	if err == nil {
		err = s.createUser(&req, &user)
	}
	if err != nil {
		s.Events.Publish("eventRegisterError", map[string]interface{}{
			"platform": req.Platform,
			"user":     req.User,
			"email":    req.Email,
			"error":    err.Error(),
		})
		return respondUserError(c, err)
	}

	if err := s.issueSession(c, user.ID, req.Platform); err != nil {
		return respondUserError(c, err)
	}
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	s.Events.Publish("eventUserRegister", map[string]interface{}{
		"user":        user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"wallet":      user.LikeWallet,
		"referrer":    user.Referrer,
		"locale":      user.Locale,
		"platform":    req.Platform,
	})
	if user.Email != "" && !user.IsEmailVerified {
		if err := s.Mailer.SendVerificationEmail(&user, "register"); err != nil {
			log.Printf("⚠️ verification email to %s failed: %v", user.ID, err)
		}
	}
	if req.AppReferrer != "" {
		if err := s.recordAppReferrer(user.ID, req.AppReferrer); err != nil {
			log.Printf("⚠️ app referrer for %s not recorded: %v", user.ID, err)
		}
	}
	return nil
}

func (s *UserService) registerEVM(req *registerRequest, user *models.User) error {
	wallet, err := s.Verifier.VerifyEVM(EVMSignPayload{
		Wallet:    req.From,
		Message:   req.Payload,
		Signature: req.Sign,
		Action:    "register",
	})
	if err != nil {
		return err
	}
	user.EVMWallet = wallet
	if req.MagicDIDToken != "" {
		meta, err := s.Magic.GetUserMetadataByDIDToken(req.MagicDIDToken)
		if err != nil {
			return err
		}
		if !VerifyEmailByMetadata(req.Email, meta) {
			return utils.NewValidationError("MAGIC_EMAIL_MISMATCH")
		}
		user.MagicUserID = meta.Issuer
		user.IsEmailVerified = true
	}
	return nil
}

func (s *UserService) registerAuthCore(req *registerRequest, user *models.User) error {
	if req.IDToken == "" {
		return utils.NewValidationError("ID_TOKEN_MISSING")
	}
	if req.AccessToken == "" {
		return utils.NewValidationError("ACCESS_TOKEN_MISSING")
	}
	acUser, err := s.AuthCore.VerifyIDToken(req.IDToken)
	if err != nil {
		return utils.NewValidationError("ID_TOKEN_INVALID")
	}
	user.AuthCoreUserID = acUser.Sub
	user.Email = acUser.Email
	user.IsEmailVerified = acUser.EmailVerified
	if acUser.Phone != "" {
		user.Phone = acUser.Phone
		user.IsPhoneVerified = acUser.PhoneVerified
	}
	user.CosmosWallet = req.CosmosWallet
	user.LikeWallet = req.LikeWallet
	if user.CosmosWallet == "" {
		wallets, err := s.AuthCore.CreateCosmosWallet(req.AccessToken)
		if err != nil {
			log.Printf("❌ custodial wallet creation failed: %v", err)
			return utils.NewValidationError("COSMOS_WALLET_PENDING")
		}
		user.CosmosWallet = wallets.CosmosWallet
		user.LikeWallet = wallets.LikeWallet
	}
	return nil
}

func (s *UserService) registerLikeWallet(req *registerRequest, user *models.User) error {
	if req.From == "" || req.Signature == "" || req.PublicKey == "" || req.Message == "" {
		return utils.NewValidationError("INVALID_PAYLOAD")
	}
	wallets, err := s.Verifier.VerifyCosmos(CosmosSignPayload{
		Wallet:     req.From,
		Message:    req.Message,
		Signature:  req.Signature,
		PublicKey:  req.PublicKey,
		SignMethod: req.SignMethod,
	})
	if err != nil {
		return err
	}
	user.CosmosWallet = wallets.CosmosWallet
	user.LikeWallet = wallets.LikeWallet
	return nil
}

// createUser normalizes the handle and email, checks for collisions
// and inserts the account row.
func (s *UserService) createUser(req *registerRequest, user *models.User) error {
	handle := slug.Make(req.User)
	if handle == "" {
		return utils.NewValidationError("INVALID_USER_NAME")
	}
	user.ID = handle

	var count int64
	if err := s.DB.Model(&models.User{}).Where("id = ?", handle).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewValidationError("USER_ALREADY_EXIST")
	}

	if user.Email != "" {
		normalized, err := normalizeEmail(user.Email)
		if err != nil {
			return utils.NewValidationError("EMAIL_FORMAT_INCORRECT")
		}
		if err := s.DB.Model(&models.User{}).Where("normalized_email = ?", normalized).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("EMAIL_ALREADY_USED")
		}
		user.NormalizedEmail = normalized
		user.VerificationUUID = uuid.NewString()
	}

	for field, wallet := range map[string]string{
		"evm_wallet":  user.EVMWallet,
		"like_wallet": user.LikeWallet,
	} {
		if wallet == "" {
			continue
		}
		if err := s.DB.Model(&models.User{}).Where(field+" = ?", wallet).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("WALLET_ALREADY_USED")
		}
	}

	return s.DB.Create(user).Error
}

type loginRequest struct {
	Platform  string `json:"platform"`
	SourceURL string `json:"sourceURL"`
	UTMSource string `json:"utmSource"`

	From        string `json:"from"`
	Payload     string `json:"payload"`
	Sign        string `json:"sign"`
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
	Signature   string `json:"signature"`
	PublicKey   string `json:"publicKey"`
	Message     string `json:"message"`
	SignMethod  string `json:"signMethod"`
}

// Login authenticates against one of the registered platform bindings
// and issues a fresh session. Unknown binding → 404 so the client can
// fall through to registration.
func (s *UserService) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}

	var user models.User
	var lookupErr error
	switch req.Platform {
	case "evmWallet":
		wallet, err := s.Verifier.VerifyEVM(EVMSignPayload{
			Wallet: req.From, Message: req.Payload, Signature: req.Sign, Action: "login",
		})
		if err != nil {
			return respondUserError(c, err)
		}
		lookupErr = s.DB.First(&user, "evm_wallet = ?", wallet).Error
	case "likeWallet":
		if req.From == "" || req.Signature == "" || req.PublicKey == "" || req.Message == "" {
			return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
		}
		wallets, err := s.Verifier.VerifyCosmos(CosmosSignPayload{
			Wallet: req.From, Message: req.Message, Signature: req.Signature,
			PublicKey: req.PublicKey, SignMethod: req.SignMethod,
		})
		if err != nil {
			return respondUserError(c, err)
		}
		lookupErr = s.DB.First(&user, "like_wallet = ?", wallets.LikeWallet).Error
	case "authcore":
		if req.IDToken == "" {
			return respondUserError(c, utils.NewValidationError("ID_TOKEN_MISSING"))
		}
		acUser, err := s.AuthCore.VerifyIDToken(req.IDToken)
		if err != nil {
			return respondUserError(c, utils.NewValidationError("ID_TOKEN_INVALID"))
		}
		lookupErr = s.DB.First(&user, "auth_core_user_id = ?", acUser.Sub).Error
	default:
		return respondUserError(c, utils.NewValidationError("INVALID_PLATFORM"))
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return respondUserError(c, lookupErr)
	}
	if user.IsLocked {
		log.Printf("🔒 locked user attempted login: %s", user.ID)
		return respondUserError(c, utils.NewValidationError("USER_LOCKED"))
	}

	if err := s.issueSession(c, user.ID, req.Platform); err != nil {
		return respondUserError(c, err)
	}
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	// lazy custodial wallet backfill for older authcore accounts
	if req.Platform == "authcore" && req.AccessToken != "" && user.CosmosWallet == "" {
		if wallets, err := s.AuthCore.CreateCosmosWallet(req.AccessToken); err == nil {
			s.DB.Model(&user).Updates(map[string]interface{}{
				"cosmos_wallet": wallets.CosmosWallet,
				"like_wallet":   wallets.LikeWallet,
			})
		} else {
			log.Printf("⚠️ wallet backfill for %s failed: %v", user.ID, err)
		}
	}

	s.Events.Publish("eventUserLogin", map[string]interface{}{
		"user":         user.ID,
		"email":        user.Email,
		"displayName":  user.DisplayName,
		"wallet":       user.LikeWallet,
		"referrer":     user.Referrer,
		"locale":       user.Locale,
		"platform":     req.Platform,
		"sourceURL":    req.SourceURL,
		"utmSource":    req.UTMSource,
		"registerTime": user.CreatedAt.UnixMilli(),
	})
	return nil
}

// Logout clears the cookie, revokes the session row and reports the
// event. The response is sent before the revocation; a failed delete
// only logs.
func (s *UserService) Logout(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)
	jti := middleware.AuthedJTI(c)

	middleware.ClearAuthCookies(c)
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	if jti != "" {
		if err := s.DB.Delete(&models.Session{}, "id = ?", jti).Error; err != nil {
			log.Printf("⚠️ session %s not revoked: %v", jti, err)
		}
	}
	s.Events.Publish("eventUserLogout", map[string]interface{}{"user": userID})
	return nil
}

type updateRequest struct {
	Email          string      `json:"email"`
	DisplayName    string      `json:"displayName"`
	Description    string      `json:"description"`
	Locale         string      `json:"locale"`
	IsEmailEnabled interface{} `json:"isEmailEnabled"` // bool, or the string a form post sends
}

// Update edits profile fields. Changing email resets verification and
// re-sends the confirmation mail; authcore-managed emails cannot be
// changed here.
func (s *UserService) Update(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondUserError(c, utils.NewValidationError("USER_NOT_EXIST"))
		}
		return respondUserError(c, err)
	}

	updates := map[string]interface{}{}
	if req.DisplayName != "" {
		updates["display_name"] = req.DisplayName
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Locale != "" {
		updates["locale"] = req.Locale
	}
	switch v := req.IsEmailEnabled.(type) {
	case bool:
		updates["is_email_enabled"] = v
	case string:
		updates["is_email_enabled"] = v != "false"
	}

	emailChanged := false
	if req.Email != "" && req.Email != user.Email {
		if user.AuthCoreUserID != "" && user.Email != "" {
			return respondUserError(c, utils.NewValidationError("EMAIL_CANNOT_BE_CHANGED"))
		}
		normalized, err := normalizeEmail(req.Email)
		if err != nil {
			return respondUserError(c, utils.NewValidationError("EMAIL_FORMAT_INCORRECT"))
		}
		var count int64
		if err := s.DB.Model(&models.User{}).
			Where("normalized_email = ? AND id <> ?", normalized, userID).
			Count(&count).Error; err != nil {
			return respondUserError(c, err)
		}
		dup := count > 0
		updates["email"] = req.Email
		updates["normalized_email"] = normalized
		updates["is_email_verified"] = false
		updates["is_email_duplicated"] = dup
		updates["verification_uuid"] = uuid.NewString()
		emailChanged = true
	}

	if len(updates) == 0 {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}
	if err := s.DB.Model(&user).Updates(updates).Error; err != nil {
		return respondUserError(c, err)
	}
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	if emailChanged {
		fresh := user
		fresh.Email = req.Email
		if v, ok := updates["verification_uuid"].(string); ok {
			fresh.VerificationUUID = v
		}
		if err := s.Mailer.SendVerificationEmail(&fresh, "update"); err != nil {
			log.Printf("⚠️ verification email to %s failed: %v", userID, err)
		}
	}
	s.Events.Publish("eventUserUpdate", map[string]interface{}{
		"user":        userID,
		"email":       req.Email,
		"displayName": req.DisplayName,
		"locale":      req.Locale,
	})
	return nil
}

// UpdateAvatar stores a new avatar image and saves its URL. The
// optional avatarSHA256 form field guards against corrupted uploads.
func (s *UserService) UpdateAvatar(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)
	fileHeader, err := c.FormFile("avatarFile")
	if err != nil {
		return respondUserError(c, utils.NewValidationError("MISSING_AVATAR_FILE"))
	}
	if fileHeader.Size > 5*1024*1024 {
		return respondUserError(c, utils.NewValidationError("INVALID_AVATAR"))
	}

	url, hash, err := utils.UploadAvatarToR2(fileHeader, userID, c.FormValue("avatarSHA256"))
	if err != nil {
		log.Printf("❌ avatar upload for %s failed: %v", userID, err)
		return respondUserError(c, utils.NewValidationError("INVALID_AVATAR"))
	}

	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"avatar":      url,
		"avatar_hash": hash,
	}).Error; err != nil {
		return respondUserError(c, err)
	}
	if err := c.JSON(fiber.Map{"avatar": url}); err != nil {
		return err
	}

	s.Events.Publish("eventUserAvatarUpdate", map[string]interface{}{
		"user":   userID,
		"avatar": url,
	})
	return nil
}

// SyncAuthCore pulls the provider profile into the local user row.
func (s *UserService) SyncAuthCore(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)
	var req struct {
		AuthCoreAccessToken string `json:"authCoreAccessToken"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}

	acUser, err := s.AuthCore.GetUser(req.AuthCoreAccessToken)
	if err != nil {
		return respondUserError(c, err)
	}

	updates := map[string]interface{}{
		"display_name":      acUser.DisplayName,
		"is_email_verified": acUser.EmailVerified,
		"phone":             acUser.Phone,
		"is_phone_verified": acUser.PhoneVerified,
	}
	if acUser.Email != "" {
		if normalized, err := normalizeEmail(acUser.Email); err == nil {
			updates["email"] = acUser.Email
			updates["normalized_email"] = normalized
		}
	}
	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return respondUserError(c, err)
	}
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	s.Events.Publish("eventUserSync", map[string]interface{}{
		"type": "authcore",
		"user": userID,
	})
	return nil
}

// issueSession writes the session row for the cookie it just set.
func (s *UserService) issueSession(c *fiber.Ctx, userID, platform string) error {
	jti, expiresAt, err := middleware.SetAuthCookies(c, userID)
	if err != nil {
		return err
	}
	return s.DB.Create(&models.Session{
		ID:        jti,
		UserID:    userID,
		Platform:  platform,
		ExpiresAt: expiresAt,
	}).Error
}

// normalizeEmail lowercases, validates and canonicalizes an address.
// Gmail dots and plus-tags are folded so duplicates can't re-register.
func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", err
	}
	lowered := strings.ToLower(addr.Address)
	at := strings.LastIndex(lowered, "@")
	local, domain := lowered[:at], lowered[at+1:]
	if blacklistedEmailDomains[domain] {
		return "", errors.New("blacklisted email domain")
	}
	if domain == "gmail.com" || domain == "googlemail.com" {
		if plus := strings.Index(local, "+"); plus >= 0 {
			local = local[:plus]
		}
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}
	return local + "@" + domain, nil
}

// respondUserError mirrors the mission handlers' error mapping.
func respondUserError(c *fiber.Ctx, err error) error {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Code})
	}
	log.Printf("❌ unexpected error on %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
