// Package testing provides test utilities and database setup for the fulfillment pipeline
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/amirphl/esim-fulfillment/repository"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables
func GetTestDBConfig() *TestDBConfig {
	return &TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
}

// DBTestsEnabled reports whether a postgres server was configured for integration tests
func DBTestsEnabled() bool {
	return os.Getenv("TEST_DB_HOST") != ""
}

// TestDB represents a test database instance
type TestDB struct {
	DB     *gorm.DB
	Name   string
	config *TestDBConfig
}

func (c *TestDBConfig) dsn(dbName string) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.SSLMode)
	if dbName != "" {
		dsn += " dbname=" + dbName
	}
	return dsn
}

// SetupTestDB creates a database with a unique name and migrates every model into it
func SetupTestDB() (*TestDB, error) {
	config := GetTestDBConfig()

	dbName := fmt.Sprintf("esim_test_%d_%d", time.Now().Unix(), rand.Intn(10000))

	if err := execAdmin(config, "CREATE DATABASE "+dbName); err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	testDB, err := gorm.Open(postgres.Open(config.dsn(dbName)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = execAdmin(config, "DROP DATABASE IF EXISTS "+dbName)
		return nil, fmt.Errorf("failed to connect to test database %s: %w", dbName, err)
	}

	if err := repository.AutoMigrate(testDB); err != nil {
		if sqlDB, e := testDB.DB(); e == nil {
			sqlDB.Close()
		}
		_ = execAdmin(config, "DROP DATABASE IF EXISTS "+dbName)
		return nil, fmt.Errorf("failed to migrate test database %s: %w", dbName, err)
	}

	return &TestDB{
		DB:     testDB,
		Name:   dbName,
		config: config,
	}, nil
}

// TeardownTestDB drops the test database and closes connections
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}

	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}

	// Force disconnect all connections to the test database
	terminate := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()",
		tdb.Name)
	if err := execAdmin(tdb.config, terminate); err != nil {
		log.Printf("Warning: failed to terminate connections to test database %s: %v", tdb.Name, err)
	}

	if err := execAdmin(tdb.config, "DROP DATABASE IF EXISTS "+tdb.Name); err != nil {
		log.Printf("Warning: failed to drop test database %s: %v", tdb.Name, err)
		return err
	}
	return nil
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	// Order matters due to foreign key constraints
	tables := []string{
		"audit_log",
		"failure_records",
		"provider_tokens",
		"local_orders",
		"provisioned_units",
		"provisioner_orders",
		"storefront_variants",
		"provisioning_packages",
		"storefront_products",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// execAdmin runs a statement against the server's maintenance database.
// CREATE/DROP DATABASE cannot run inside a transaction, so it goes through database/sql directly.
func execAdmin(config *TestDBConfig, statement string) error {
	db, err := sql.Open("postgres", config.dsn("postgres"))
	if err != nil {
		return fmt.Errorf("failed to open admin connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, statement); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// TestWithDB sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
