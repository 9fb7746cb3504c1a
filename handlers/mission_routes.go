// handlers/mission_routes.go
package handlers

import (
	"errors"
	"log"
	"strings"

	"engagement-api/middleware"
	"engagement-api/models"
	"engagement-api/services"
	"engagement-api/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupMissionRoutes(app *fiber.App, missionService *services.MissionService) {
	mission := app.Group("/mission")

	mission.Get("/list/:id", middleware.JWTAuth("read"), func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if middleware.AuthedUser(c) != userID {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		views, err := missionService.BuildList(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(views)
	})

	mission.Post("/seen/:id", middleware.JWTAuth("write"), func(c *fiber.Ctx) error {
		missionID := c.Params("id")
		var body struct {
			User string `json:"user"`
		}
		if err := c.BodyParser(&body); err != nil {
			return respondError(c, utils.NewValidationError("INVALID_PAYLOAD"))
		}
		if middleware.AuthedUser(c) != body.User {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		if err := missionService.RecordSeen(body.User, missionID); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	mission.Post("/hide/:id", middleware.JWTAuth("write"), func(c *fiber.Ctx) error {
		missionID := c.Params("id")
		var body struct {
			User string `json:"user"`
		}
		if err := c.BodyParser(&body); err != nil {
			return respondError(c, utils.NewValidationError("INVALID_PAYLOAD"))
		}
		if middleware.AuthedUser(c) != body.User {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		if err := missionService.HideMission(body.User, missionID); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	mission.Post("/step/:id", middleware.JWTAuth("write"), func(c *fiber.Ctx) error {
		missionID := c.Params("id")
		var body struct {
			User   string `json:"user"`
			TaskID string `json:"taskId"`
		}
		if err := c.BodyParser(&body); err != nil {
			return respondError(c, utils.NewValidationError("INVALID_PAYLOAD"))
		}
		if middleware.AuthedUser(c) != body.User {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		res, err := missionService.RecordStep(body.User, missionID, body.TaskID)
		if err != nil {
			return respondError(c, err)
		}

		payload := fiber.Map{res.TaskID: true}
		if res.Done {
			payload["done"] = true
		}
		if err := c.JSON(payload); err != nil {
			return err
		}

		// analytics after the response; never blocks or fails the request
		go func(userID, missionID string, res *services.StepResult) {
			var user models.User
			if err := missionService.DB.First(&user, "id = ?", userID).Error; err != nil {
				return
			}
			missionService.Events.Publish("eventMissionStep", map[string]interface{}{
				"user":         user.ID,
				"email":        user.Email,
				"displayName":  user.DisplayName,
				"wallet":       user.LikeWallet,
				"referrer":     user.Referrer,
				"locale":       user.Locale,
				"missionId":    missionID,
				"taskId":       res.TaskID,
				"missionDone":  res.Done,
				"registerTime": user.CreatedAt.UnixMilli(),
			})
		}(body.User, missionID, res)
		return nil
	})

	mission.Get("/list/history/:id", middleware.JWTAuth("read"), func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if middleware.AuthedUser(c) != userID {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		views, err := missionService.ListHistory(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(views)
	})

	mission.Get("/list/history/:id/bonus", middleware.JWTAuth("read"), func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if middleware.AuthedUser(c) != userID {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}
		totals, err := missionService.BonusHistory(userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(totals)
	})

	mission.Get("/:missionId/user/:userId", middleware.JWTAuth("read"), func(c *fiber.Ctx) error {
		missionID := c.Params("missionId")
		userID := c.Params("userId")
		if middleware.AuthedUser(c) != userID {
			return c.Status(fiber.StatusUnauthorized).SendString("LOGIN_NEEDED")
		}

		// accepted both repeated and comma-separated
		var offered []string
		for _, raw := range c.Context().QueryArgs().PeekMulti("userMissionList") {
			for _, id := range strings.Split(string(raw), ",") {
				if id = strings.TrimSpace(id); id != "" {
					offered = append(offered, id)
				}
			}
		}

		res, err := missionService.ResolveBlocker(missionID, userID, offered)
		if err != nil {
			return respondError(c, err)
		}
		if res == nil {
			return c.JSON(fiber.Map{"isExpired": true})
		}
		return c.JSON(res)
	})
}

// respondError maps validation failures to 400s and logs everything
// else through the generic 500 path.
func respondError(c *fiber.Ctx, err error) error {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Code})
	}
	log.Printf("❌ unexpected error on %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
