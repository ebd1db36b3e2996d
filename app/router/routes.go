// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/handlers"
	"github.com/amirphl/esim-fulfillment/app/middleware"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(timeout time.Duration) error
	GetApp() *fiber.App
}

// Handlers groups everything the router mounts
type Handlers struct {
	Webhook  handlers.WebhookHandlerInterface
	Delivery *handlers.DeliveryHandler
	Admin    handlers.AdminHandlerInterface
	Health   *handlers.HealthHandler
	Auth     *middleware.AuthMiddleware
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.ProductionConfig
	handlers Handlers
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers) Router {
	fiberCfg := fiber.Config{
		AppName:      "eSIM Fulfillment API",
		ServerHeader: "esim-fulfillment",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	}
	if fiberCfg.BodyLimit <= 0 {
		fiberCfg.BodyLimit = 4 * 1024 * 1024
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		fiberCfg.TrustProxy = true
		fiberCfg.TrustProxyConfig = fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies}
		fiberCfg.ProxyHeader = cfg.Server.ProxyHeader
	}

	return &FiberRouter{
		app:      fiber.New(fiberCfg),
		cfg:      cfg,
		handlers: h,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	// Probes stay outside the rate limiter
	r.app.Get("/health", r.handlers.Health.Check)
	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.handlers.Health.Check)

	api.Use(newRateLimiter(r.cfg.Security.GlobalRateLimit, r.cfg.Security.RateLimitWindow, func(c fiber.Ctx) bool {
		return c.Path() == "/api/v1/health"
	}))

	// Storefront callbacks
	api.Post("/webhooks/digiseller", r.handlers.Webhook.DigisellerNotification)
	api.Get("/digiseller/deliver", r.handlers.Delivery.Deliver)

	admin := api.Group("/admin")
	admin.Use(newRateLimiter(r.cfg.Security.AdminRateLimit, r.cfg.Security.RateLimitWindow, nil))
	admin.Post("/login", r.handlers.Admin.Login)

	protected := admin.Group("", r.handlers.Auth.AdminAuthenticate())
	// export is registered before :id so it is not captured as an order id
	protected.Get("/orders", r.handlers.Admin.ListOrders)
	protected.Get("/orders/export", r.handlers.Admin.ExportOrders)
	protected.Get("/orders/:id", r.handlers.Admin.GetOrder)
	protected.Post("/orders/:id/retry", r.handlers.Admin.RetryOrder)
	protected.Post("/orders/:id/confirm", r.handlers.Admin.ConfirmDelivery)
	protected.Get("/failures", r.handlers.Admin.ListFailures)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        nonEmpty(r.cfg.Security.XContentTypeOptions, "nosniff"),
		XFrameOptions:             nonEmpty(r.cfg.Security.XFrameOptions, "DENY"),
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:            nonEmpty(r.cfg.Security.ReferrerPolicy, "strict-origin-when-cross-origin"),
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	maxAge := r.cfg.Security.CORSMaxAge
	if maxAge <= 0 {
		maxAge = utils.CORSMaxAge
	}
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-Export-Rows", "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           maxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// spreadsheets are already zipped
				return strings.HasSuffix(c.Path(), "/orders/export")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/api/v1/health" || c.Path() == r.cfg.Metrics.Path
			},
		}))
	}

	r.app.Use(middleware.Metrics())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

func newRateLimiter(limit int, window time.Duration, next func(c fiber.Ctx) bool) fiber.Handler {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: next,
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(timeout time.Duration) error {
	if err := r.app.ShutdownWithTimeout(timeout); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", utils.UTCNow().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
