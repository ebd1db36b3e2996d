// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Security    SecurityConfig    `json:"security"`
	JWT         JWTConfig         `json:"jwt"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Deployment  DeploymentConfig  `json:"deployment"`
	Admin       AdminConfig       `json:"admin"`
	Storefront  StorefrontConfig  `json:"storefront"`
	Provisioner ProvisionerConfig `json:"provisioner"`
	Worker      WorkerConfig      `json:"worker"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	BodyLimit         int           `json:"body_limit"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	AdminRateLimit  int           `json:"admin_rate_limit"`  // requests per minute
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Content Security
	XFrameOptions       string `json:"x_frame_options"`
	XContentTypeOptions string `json:"x_content_type_options"`
	ReferrerPolicy      string `json:"referrer_policy"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	EnableAccessLog bool `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// AdminConfig holds the single operator account guarding the admin API
type AdminConfig struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt hash
}

// StorefrontConfig holds Digiseller credentials and webhook policy
type StorefrontConfig struct {
	BaseURL  string        `json:"base_url"`
	SellerID int64         `json:"seller_id"`
	APIKey   string        `json:"-"`
	Timeout  time.Duration `json:"timeout"`

	// NotifySecret enables signature verification of inbound notifications when non-empty
	NotifySecret string `json:"-"`

	RequirePaidState bool  `json:"require_paid_state"`
	AcceptedStates   []int `json:"accepted_states"`
}

// ProvisionerConfig holds Airalo credentials and order defaults
type ProvisionerConfig struct {
	BaseURL           string        `json:"base_url"`
	ClientID          string        `json:"client_id"`
	ClientSecret      string        `json:"-"`
	Timeout           time.Duration `json:"timeout"`
	BrandSettingsName string        `json:"brand_settings_name"`
	SharingOptions    []string      `json:"sharing_options"`
	CopyAddresses     []string      `json:"copy_addresses"`
}

// WorkerConfig controls the provisioning worker pool and its recovery sweeps
type WorkerConfig struct {
	Enabled            bool          `json:"enabled"`
	Queue              string        `json:"queue"` // memory, redis
	Concurrency        int           `json:"concurrency"`
	QueueSize          int           `json:"queue_size"`
	MaxAttempts        int           `json:"max_attempts"`
	RetryDelay         time.Duration `json:"retry_delay"`
	JobTimeout         time.Duration `json:"job_timeout"`
	SweepInterval      time.Duration `json:"sweep_interval"`
	StaleReceivedAfter time.Duration `json:"stale_received_after"`
	SweepBatchSize     int           `json:"sweep_batch_size"`
	MaxConfirmAttempts int           `json:"max_confirm_attempts"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "esim"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:    getEnvDuration("SERVER_REQUEST_TIMEOUT", 25*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:      getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://admin.esim.local"}),
			AllowedMethods:      getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:      getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			AllowCredentials:    getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:          getEnvInt("CORS_MAX_AGE", 86400),
			AdminRateLimit:      getEnvInt("ADMIN_RATE_LIMIT", 60),
			GlobalRateLimit:     getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			XFrameOptions:       getEnvString("X_FRAME_OPTIONS", "DENY"),
			XContentTypeOptions: getEnvString("X_CONTENT_TYPE_OPTIONS", "nosniff"),
			ReferrerPolicy:      getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 12*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "esim-fulfillment"),
			Audience:       getEnvString("JWT_AUDIENCE", "esim-fulfillment-admin"),
		},
		Logging: LoggingConfig{
			Level:           getEnvString("LOG_LEVEL", "info"),
			Output:          getEnvString("LOG_OUTPUT", "both"),
			FilePath:        getEnvString("LOG_FILE_PATH", "/var/log/esim/app.log"),
			MaxSize:         getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:          getEnvInt("LOG_MAX_AGE", 30),
			Compress:        getEnvBool("LOG_COMPRESS", true),
			EnableAccessLog: getEnvBool("LOG_ENABLE_ACCESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "esim:"),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 1*time.Minute),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		Admin: AdminConfig{
			Username:     getEnvString("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
		},
		Storefront: StorefrontConfig{
			BaseURL:          getEnvString("DIGISELLER_BASE_URL", "https://api.digiseller.ru"),
			SellerID:         getEnvInt64("DIGISELLER_SELLER_ID", 0),
			APIKey:           getEnvString("DIGISELLER_API_KEY", ""),
			Timeout:          getEnvDuration("DIGISELLER_TIMEOUT", 10*time.Second),
			NotifySecret:     getEnvString("DIGISELLER_NOTIFY_SECRET", ""),
			RequirePaidState: getEnvBool("DIGISELLER_REQUIRE_PAID_STATE", false),
			AcceptedStates:   getEnvIntSlice("DIGISELLER_ACCEPTED_STATES", []int{3, 4}),
		},
		Provisioner: ProvisionerConfig{
			BaseURL:           getEnvString("AIRALO_BASE_URL", "https://sandbox-partners-api.airalo.com"),
			ClientID:          getEnvString("AIRALO_CLIENT_ID", ""),
			ClientSecret:      getEnvString("AIRALO_CLIENT_SECRET", ""),
			Timeout:           getEnvDuration("AIRALO_TIMEOUT", 15*time.Second),
			BrandSettingsName: getEnvString("AIRALO_BRAND_SETTINGS_NAME", ""),
			SharingOptions:    getEnvStringSlice("AIRALO_SHARING_OPTIONS", []string{"pdf"}),
			CopyAddresses:     getEnvStringSlice("AIRALO_COPY_ADDRESSES", []string{}),
		},
		Worker: WorkerConfig{
			Enabled:            getEnvBool("WORKER_ENABLED", true),
			Queue:              getEnvString("WORKER_QUEUE", "memory"),
			Concurrency:        getEnvInt("WORKER_CONCURRENCY", 4),
			QueueSize:          getEnvInt("WORKER_QUEUE_SIZE", 256),
			MaxAttempts:        getEnvInt("WORKER_MAX_ATTEMPTS", 3),
			RetryDelay:         getEnvDuration("WORKER_RETRY_DELAY", 30*time.Second),
			JobTimeout:         getEnvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
			SweepInterval:      getEnvDuration("WORKER_SWEEP_INTERVAL", 1*time.Minute),
			StaleReceivedAfter: getEnvDuration("WORKER_STALE_RECEIVED_AFTER", 10*time.Minute),
			SweepBatchSize:     getEnvInt("WORKER_SWEEP_BATCH_SIZE", 50),
			MaxConfirmAttempts: getEnvInt("WORKER_MAX_CONFIRM_ATTEMPTS", 5),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`))) {
			value = value[1 : len(value)-1]
		}

		// Real environment wins over the file
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getEnvIntSlice(key string, defaultValue []int) []int {
	items := getEnvStringSlice(key, nil)
	if len(items) == 0 {
		return defaultValue
	}
	result := make([]int, 0, len(items))
	for _, item := range items {
		parsed, err := strconv.Atoi(item)
		if err != nil {
			return defaultValue
		}
		result = append(result, parsed)
	}
	return result
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate provider credentials
	if cfg.Storefront.SellerID <= 0 {
		errors = append(errors, "DIGISELLER_SELLER_ID is required")
	}
	if cfg.Storefront.APIKey == "" {
		errors = append(errors, "DIGISELLER_API_KEY is required")
	}
	if cfg.Storefront.Timeout <= 0 || cfg.Storefront.Timeout > time.Minute {
		errors = append(errors, "DIGISELLER_TIMEOUT must be positive and at most 1m")
	}
	if cfg.Provisioner.ClientID == "" {
		errors = append(errors, "AIRALO_CLIENT_ID is required")
	}
	if cfg.Provisioner.ClientSecret == "" {
		errors = append(errors, "AIRALO_CLIENT_SECRET is required")
	}
	if cfg.Provisioner.Timeout <= 0 || cfg.Provisioner.Timeout > time.Minute {
		errors = append(errors, "AIRALO_TIMEOUT must be positive and at most 1m")
	}

	// Validate worker configuration
	if cfg.Worker.Concurrency <= 0 {
		errors = append(errors, "WORKER_CONCURRENCY must be positive")
	}
	if cfg.Worker.MaxAttempts <= 0 {
		errors = append(errors, "WORKER_MAX_ATTEMPTS must be positive")
	}
	if cfg.Worker.RetryDelay < 0 {
		errors = append(errors, "WORKER_RETRY_DELAY must not be negative")
	}
	if cfg.Worker.MaxConfirmAttempts <= 0 {
		errors = append(errors, "WORKER_MAX_CONFIRM_ATTEMPTS must be positive")
	}
	if cfg.Worker.Queue != "memory" && cfg.Worker.Queue != "redis" {
		errors = append(errors, "WORKER_QUEUE must be one of: memory, redis")
	}
	if cfg.Worker.Queue == "redis" && (!cfg.Cache.Enabled || cfg.Cache.Provider != "redis") {
		errors = append(errors, "WORKER_QUEUE=redis requires CACHE_ENABLED with CACHE_PROVIDER=redis")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when LOG_OUTPUT writes to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
