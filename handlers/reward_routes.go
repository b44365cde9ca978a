// handlers/reward_routes.go
package handlers

import (
	"lumiere-backend/middleware"
	"lumiere-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupRewardRoutes(app *fiber.App, rewards *services.RewardService, logger *zap.Logger) {
	userCtx := middleware.UserContextMiddleware(logger)

	app.Get("/recompensas", userCtx, func(c *fiber.Ctx) error {
		listing, err := rewards.ListRewards(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(listing)
	})

	app.Post("/recompensas/resgatar/:id", userCtx, func(c *fiber.Ctx) error {
		res, err := rewards.Redeem(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	})
}
