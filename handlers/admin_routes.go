// handlers/admin_routes.go
package handlers

import (
	"lumiere-backend/middleware"
	"lumiere-backend/models"
	"lumiere-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type creditBody struct {
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

type accountBody struct {
	UserID string `json:"user_id"`
	Name   string `json:"nome"`
}

type purchaseBody struct {
	UserID  string          `json:"user_id"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type reconcileBody struct {
	UserID string `json:"user_id"`
	Batch  int    `json:"batch"`
}

// SetupAdminRoutes registers back-office routes under /s/admin. Callers need
// the admin role.
func SetupAdminRoutes(app *fiber.App, points *services.PointsService, rewards *services.RewardService, logger *zap.Logger) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(logger), middleware.RequireRole("admin"))

	admin.Post("/points/credit", func(c *fiber.Ctx) error {
		var body creditBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		acc, err := points.Credit(c.UserContext(), services.CreditRequest{
			UserID:   body.UserID,
			Amount:   body.Amount,
			Kind:     models.KindCredit,
			SourceID: body.SourceID,
			Reason:   body.Reason,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(acc)
	})

	admin.Post("/points/debit", func(c *fiber.Ctx) error {
		var body creditBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		acc, err := points.Debit(c.UserContext(), services.DebitRequest{
			UserID: body.UserID,
			Amount: body.Amount,
			Kind:   models.KindDebit,
			Reason: body.Reason,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(acc)
	})

	admin.Post("/accounts", func(c *fiber.Ctx) error {
		var body accountBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		acc, created, err := points.OpenAccount(c.UserContext(), body.UserID, body.Name)
		if err != nil {
			return writeServiceError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"account": acc, "created": created})
	})

	admin.Post("/purchases", func(c *fiber.Ctx) error {
		var body purchaseBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		acc, err := points.CreditPurchase(c.UserContext(), body.UserID, body.OrderID, body.Amount)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(acc)
	})

	admin.Post("/tiers/reconcile", func(c *fiber.Ctx) error {
		var body reconcileBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return badRequest(c, "invalid request body", err)
			}
		}
		if body.UserID != "" {
			acc, err := points.ReconcileTier(c.UserContext(), body.UserID)
			if err != nil {
				return writeServiceError(c, err)
			}
			return c.JSON(acc)
		}
		fixed, err := points.ReconcileAll(c.UserContext(), body.Batch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"fixed": fixed})
	})

	admin.Get("/rewards", func(c *fiber.Ctx) error {
		list, err := rewards.ListAllRewards(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(list)
	})

	admin.Post("/rewards", func(c *fiber.Ctx) error {
		var in services.RewardInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		reward, err := rewards.CreateReward(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(reward)
	})

	admin.Patch("/rewards/:id", func(c *fiber.Ctx) error {
		var patch services.RewardPatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "invalid request body", err)
		}
		reward, err := rewards.UpdateReward(c.UserContext(), c.Params("id"), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(reward)
	})

	admin.Delete("/rewards/:id", func(c *fiber.Ctx) error {
		if err := rewards.DeleteReward(c.UserContext(), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Post("/rewards/:id/image", func(c *fiber.Ctx) error {
		file, err := c.FormFile("image")
		if err != nil {
			return badRequest(c, "image file is required", err)
		}
		reward, err := rewards.AttachRewardImage(c.UserContext(), c.Params("id"), file)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(reward)
	})
}
