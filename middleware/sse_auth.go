// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"lumiere-backend/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator checks a member access token for a device.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware validates `token` and `device_id` from the query string.
// EventSource clients cannot send headers, so streams authenticate here
// instead of through the gateway headers.
func SSEAuthMiddleware(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			logger.Warn("[SSEAuth] ❌ missing query params",
				zap.Int("token_len", len(accessToken)), zap.String("device_id", deviceID))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			logger.Warn("[SSEAuth] ❌ validation failed",
				zap.String("token_prefix", prefix(accessToken, 10)), zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalUserRoles, resp.Roles)

		logger.Info("[SSEAuth] ✅ authenticated", zap.String("user_id", resp.UserID), zap.String("device_id", resp.DeviceID))
		return c.Next()
	}
}
