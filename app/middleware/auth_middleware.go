// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware guards the admin API with operator JWTs
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// AdminAuthenticate validates the bearer token and stores the operator username in locals
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateAdminToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}

		c.Locals(utils.AdminKey, claims.Username)
		c.Locals("token_id", claims.TokenID)
		c.Locals("token_claims", claims)

		return c.Next()
	}
}

// GetAdminFromContext returns the authenticated operator username
func GetAdminFromContext(c fiber.Ctx) (string, bool) {
	username, ok := c.Locals(utils.AdminKey).(string)
	return username, ok && username != ""
}
