// handlers/app_routes.go
package handlers

import (
	"engagement-api/middleware"
	"engagement-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAppRoutes(app *fiber.App, userService *services.UserService) {
	meta := app.Group("/app")

	meta.Get("/meta", middleware.JWTAuth("read"), userService.GetAppMeta)
	meta.Post("/meta/referral", middleware.JWTAuth("write"), userService.SetAppReferrer)
}
