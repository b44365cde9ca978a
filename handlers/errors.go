// handlers/errors.go
package handlers

import (
	"errors"

	"lumiere-backend/services"

	"github.com/gofiber/fiber/v2"
)

var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{services.ErrInvalidAmount, fiber.StatusBadRequest, "invalid amount"},
	{services.ErrInvalidUserID, fiber.StatusBadRequest, "invalid user id"},
	{services.ErrInvalidReward, fiber.StatusBadRequest, "invalid reward"},
	{services.ErrInsufficientPoints, fiber.StatusBadRequest, "insufficient points"},
	{services.ErrUserNotFound, fiber.StatusNotFound, "user not found"},
	{services.ErrRewardNotFound, fiber.StatusNotFound, "reward not found"},
	{services.ErrTierTooLow, fiber.StatusForbidden, "tier too low"},
	{services.ErrDuplicateSource, fiber.StatusConflict, "already credited"},
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return c.Status(e.status).JSON(fiber.Map{
				"error": e.message,
				"cause": err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
