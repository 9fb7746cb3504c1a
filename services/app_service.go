// services/app_service.go
package services

import (
	"errors"
	"log"
	"time"

	"engagement-api/middleware"
	"engagement-api/models"
	"engagement-api/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Accounts older than this can no longer claim an app referrer.
const newAppUserWindow = 7 * 24 * time.Hour

// GetAppMeta returns the per-user app metadata, creating the row on
// first open. IsNew is decided once, from account age at that moment.
func (s *UserService) GetAppMeta(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)

	var meta models.AppMeta
	err := s.DB.First(&meta, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var user models.User
		if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return respondUserError(c, utils.NewValidationError("USER_NOT_EXIST"))
			}
			return respondUserError(c, err)
		}
		now := time.Now().UnixMilli()
		meta = models.AppMeta{
			UserID:      userID,
			IsNew:       time.Since(user.CreatedAt) < newAppUserWindow,
			FirstOpenTs: &now,
		}
		// two app opens can race here; the first insert wins
		if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&meta).Error; err != nil {
			return respondUserError(c, err)
		}
		s.Events.Publish("eventAppFirstOpen", map[string]interface{}{
			"user":  userID,
			"isNew": meta.IsNew,
		})
	} else if err != nil {
		return respondUserError(c, err)
	}

	return c.JSON(meta.View())
}

// SetAppReferrer assigns the app referrer. Only allowed once, and only
// while the app-meta row is still flagged new.
func (s *UserService) SetAppReferrer(c *fiber.Ctx) error {
	userID := middleware.AuthedUser(c)
	var req struct {
		Referrer string `json:"referrer"`
	}
	if err := c.BodyParser(&req); err != nil || req.Referrer == "" {
		return respondUserError(c, utils.NewValidationError("INVALID_PAYLOAD"))
	}

	var meta models.AppMeta
	if err := s.DB.First(&meta, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondUserError(c, utils.NewValidationError("NOT_NEW_APP_USER"))
		}
		return respondUserError(c, err)
	}
	if !meta.IsNew {
		return respondUserError(c, utils.NewValidationError("NOT_NEW_APP_USER"))
	}
	if meta.Referrer != "" {
		return respondUserError(c, utils.NewValidationError("REFERRER_ALREADY_SET"))
	}

	if err := s.recordAppReferrer(userID, req.Referrer); err != nil {
		return respondUserError(c, err)
	}
	if err := s.DB.Model(&meta).Update("referrer", req.Referrer).Error; err != nil {
		return respondUserError(c, err)
	}
	if err := c.SendStatus(fiber.StatusOK); err != nil {
		return err
	}

	s.Events.Publish("eventAppReferrerSet", map[string]interface{}{
		"user":     userID,
		"referrer": req.Referrer,
	})
	return nil
}

// recordAppReferrer validates the referrer handle, backfills the
// account-level referrer field when it is still empty and appends the
// referral ledger entry the mission evaluators read.
func (s *UserService) recordAppReferrer(userID, referrerID string) error {
	if referrerID == userID {
		return utils.NewValidationError("REFERRER_NOT_EXISTS")
	}
	var referrer models.User
	if err := s.DB.First(&referrer, "id = ?", referrerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("REFERRER_NOT_EXISTS")
		}
		return err
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	if user.Referrer == "" {
		if err := s.DB.Model(&user).Update("referrer", referrerID).Error; err != nil {
			return err
		}
	}

	var count int64
	if err := s.DB.Model(&models.Referral{}).
		Where("user_id = ? AND referred_id = ?", referrerID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := s.DB.Create(&models.Referral{
		ID:              uuid.NewString(),
		UserID:          referrerID,
		ReferredID:      userID,
		IsEmailVerified: user.IsEmailVerified,
	}).Error; err != nil {
		return err
	}
	log.Printf("🤝 referral recorded: %s -> %s", referrerID, userID)
	return nil
}
