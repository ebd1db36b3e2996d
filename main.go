// Package main provides the main entry point for the eSIM fulfillment service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/esim-fulfillment/app/handlers"
	"github.com/amirphl/esim-fulfillment/app/middleware"
	"github.com/amirphl/esim-fulfillment/app/router"
	"github.com/amirphl/esim-fulfillment/app/scheduler"
	"github.com/amirphl/esim-fulfillment/app/services"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
	closers   []io.Closer
}

func main() {
	log.Println("Starting eSIM fulfillment service...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logWriter := utils.NewLogWriter(utils.LogOutput{
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	log.SetOutput(logWriter)

	app, err := initializeApplication(cfg, logWriter)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received %s, shutting down gracefully...", sig)
	case err := <-serverErr:
		log.Printf("Server stopped unexpectedly: %v", err)
	}

	// Stop accepting webhooks before the workers go away
	if err := app.router.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			log.Printf("Error closing resource: %v", err)
		}
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, w io.Writer) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormLogger := logger.New(utils.NewLogger(w, "gorm"), logger.Config{
		SlowThreshold:             cfg.SlowQueryTime,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Println("Database schema migrated")
	}

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity issues in the logs.
// The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeTokenCache wires the bearer token cache and both provider clients.
// Tokens are shared through redis when it is available, otherwise through the provider_tokens table.
func initializeTokenCache(
	cfg *config.ProductionConfig,
	db *gorm.DB,
	rc *redis.Client,
	w io.Writer,
) (*services.DigisellerClient, *services.AiraloClient) {
	var store services.TokenStore
	if rc != nil {
		store = services.NewRedisTokenStore(rc, cfg.Cache.RedisPrefix)
	} else {
		store = services.NewDBTokenStore(repository.NewProviderTokenRepository(db))
	}

	tokens := services.NewTokenCache(store, utils.NewLogger(w, "tokens"),
		services.ProviderStorefront, services.ProviderProvisioner)

	storefront := services.NewDigisellerClient(
		cfg.Storefront.BaseURL,
		cfg.Storefront.SellerID,
		cfg.Storefront.APIKey,
		cfg.Storefront.Timeout,
		tokens,
	)
	provisioner := services.NewAiraloClient(
		cfg.Provisioner.BaseURL,
		cfg.Provisioner.ClientID,
		cfg.Provisioner.ClientSecret,
		cfg.Provisioner.Timeout,
		tokens,
	)
	provisioner.BrandSettingsName = cfg.Provisioner.BrandSettingsName
	provisioner.SharingOptions = cfg.Provisioner.SharingOptions
	provisioner.CopyAddresses = cfg.Provisioner.CopyAddresses

	tokens.Register(services.ProviderStorefront, storefront)
	tokens.Register(services.ProviderProvisioner, provisioner)

	return storefront, provisioner
}

func initializeQueue(cfg config.WorkerConfig, rc *redis.Client, prefix string) (scheduler.ProvisioningQueue, error) {
	switch cfg.Queue {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis queue requested but redis is not configured")
		}
		log.Println("Provisioning queue: redis")
		return scheduler.NewRedisQueue(rc, prefix), nil
	default:
		log.Printf("Provisioning queue: memory (size=%d)", cfg.QueueSize)
		return scheduler.NewMemoryQueue(cfg.QueueSize), nil
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, w io.Writer) (*Application, error) {
	app := &Application{config: cfg}

	db, err := initializeDatabase(cfg.Database, w)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))
		app.closers = append(app.closers, rc)
	}

	// Repositories
	productRepo := repository.NewStorefrontProductRepository(db)
	variantRepo := repository.NewVariantMappingRepository(db)
	orderRepo := repository.NewLocalOrderRepository(db)
	provOrderRepo := repository.NewProvisionerOrderRepository(db)
	unitRepo := repository.NewProvisionedUnitRepository(db)
	failureRepo := repository.NewFailureRecordRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	tx := repository.NewTransactor(db)

	// Services
	storefront, provisioner := initializeTokenCache(cfg, db, rc, w)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Flows
	deliveryFlow := businessflow.NewDeliveryFlow(
		storefront,
		orderRepo,
		auditRepo,
		failureRepo,
		utils.NewLogger(w, "delivery"),
	)

	provisioningFlow := businessflow.NewProvisioningFlow(
		orderRepo,
		provOrderRepo,
		unitRepo,
		provisioner,
		deliveryFlow,
		tx,
		auditRepo,
		failureRepo,
		cfg.Provisioner.CopyAddresses,
		utils.NewLogger(w, "provisioning"),
	)

	queue, err := initializeQueue(cfg.Worker, rc, cfg.Cache.RedisPrefix)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, queue)

	worker := scheduler.NewProvisioningWorker(queue, provisioningFlow, cfg.Worker, utils.NewLogger(w, "worker"))

	intakeFlow := businessflow.NewWebhookIntakeFlow(
		productRepo,
		orderRepo,
		businessflow.NewVariantResolver(variantRepo),
		storefront,
		worker,
		auditRepo,
		failureRepo,
		cfg.Storefront,
		utils.NewLogger(w, "intake"),
	)

	adminOrderFlow := businessflow.NewAdminOrderFlow(
		orderRepo,
		deliveryFlow,
		worker,
		auditRepo,
		failureRepo,
		utils.NewLogger(w, "admin"),
	)
	adminAuthFlow := businessflow.NewAdminAuthFlow(cfg.Admin, tokenService, auditRepo, utils.NewLogger(w, "admin-auth"))

	// Background processing
	if cfg.Worker.Enabled {
		app.stopFuncs = append(app.stopFuncs, worker.Start(context.Background()))

		sweep := scheduler.NewRecoverySweep(orderRepo, worker, deliveryFlow, cfg.Worker, utils.NewLogger(w, "sweep"))
		stopSweep, err := sweep.Start(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to start recovery sweep: %w", err)
		}
		app.stopFuncs = append(app.stopFuncs, stopSweep)
	} else {
		log.Println("Provisioning worker disabled; orders are enqueued but not executed by this instance")
	}

	app.router = router.NewFiberRouter(cfg, router.Handlers{
		Webhook:  handlers.NewWebhookHandler(intakeFlow),
		Delivery: handlers.NewDeliveryHandler(businessflow.NewBuyerDeliveryFlow(orderRepo)),
		Admin:    handlers.NewAdminHandler(adminAuthFlow, adminOrderFlow),
		Health:   handlers.NewHealthHandler(db, rc, cfg.Deployment),
		Auth:     middleware.NewAuthMiddleware(tokenService),
	})

	return app, nil
}
