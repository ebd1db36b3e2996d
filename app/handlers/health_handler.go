package handlers

import (
	"context"
	"time"

	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthHandler reports whether the database and, when configured, redis are reachable
type HealthHandler struct {
	baseHandler
	db         *gorm.DB
	redis      *redis.Client
	deployment config.DeploymentConfig
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, deployment config.DeploymentConfig) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(),
		db:          db,
		redis:       redisClient,
		deployment:  deployment,
	}
}

// Check pings the dependencies
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /health [get]
func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if h.db != nil {
		checks["database"] = "ok"
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}

	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	data := fiber.Map{
		"status":      "ok",
		"timestamp":   utils.UTCNow().Unix(),
		"version":     h.deployment.Version,
		"commit":      h.deployment.CommitHash,
		"environment": h.deployment.Environment,
		"service":     "esim-fulfillment",
		"checks":      checks,
	}
	if !healthy {
		data["status"] = "degraded"
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Service is degraded", "UNHEALTHY", data)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Service is healthy", data)
}
