// handlers/user_routes.go
package handlers

import (
	"time"

	"engagement-api/middleware"
	"engagement-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	users := app.Group("/users")

	// registration is the abuse magnet, throttle it per source IP
	newUserLimiter := limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			userService.Events.Publish("eventAPILimitReached", map[string]interface{}{
				"path": c.Path(),
				"ip":   c.IP(),
			})
			return c.SendStatus(fiber.StatusTooManyRequests)
		},
	})

	users.Post("/new", newUserLimiter, userService.Register)
	users.Post("/login", userService.Login)
	users.Post("/logout", middleware.JWTAuth("read"), userService.Logout)
	users.Post("/update", middleware.JWTAuth("write"), userService.Update)
	users.Post("/update/avatar", middleware.JWTAuth("write"), userService.UpdateAvatar)
	users.Post("/sync/authcore", middleware.JWTAuth("write"), userService.SyncAuthCore)
}
