// handlers/points_routes.go
package handlers

import (
	"strconv"

	"lumiere-backend/middleware"
	"lumiere-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupPointsRoutes registers the member routes of the points program.
// Gateway routes carry the caller in X-User-ID; the SSE stream authenticates
// with query params through sseAuth instead.
func SetupPointsRoutes(app *fiber.App, points *services.PointsService, rewards *services.RewardService, sseAuth fiber.Handler, logger *zap.Logger) {
	userCtx := middleware.UserContextMiddleware(logger)

	app.Get("/programa/progresso", userCtx, func(c *fiber.Ctx) error {
		view, err := rewards.GetProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(view)
	})

	app.Get("/pontos/historico", userCtx, func(c *fiber.Ctx) error {
		var cursor uint64
		if raw := c.Query("cursor"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return badRequest(c, "invalid cursor", err)
			}
			cursor = v
		}
		limit := c.QueryInt("limit", 20)

		page, err := points.History(c.UserContext(), middleware.UserID(c), cursor, limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(page)
	})

	app.Get("/pontos/niveis", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"niveis": points.Tiers.All()})
	})

	if sseAuth != nil {
		app.Get("/pontos/stream", sseAuth, func(c *fiber.Ctx) error {
			return points.StreamTierChangesSSE(c, middleware.UserID(c))
		})
	}
}
