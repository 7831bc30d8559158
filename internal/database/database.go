package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/easyisp/backend/internal/config"
)

// Conns bundles the persistent connections the server is constructed with
type Conns struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// Connect opens PostgreSQL and Redis connections
func Connect(cfg *config.Config) (*Conns, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	var db *gorm.DB
	var err error
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Pool sized for datagram-per-goroutine handler traffic. Connections are
	// recycled to avoid stale sockets behind NAT/firewall timeouts.
	sqlDB.SetMaxIdleConns(50)
	sqlDB.SetMaxOpenConns(500)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Conns{DB: db, Redis: rdb}, nil
}

// Close releases both connections
func (c *Conns) Close() {
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
}

// EnsureIndexes creates performance indexes on frequently queried columns.
// Call after AutoMigrate.
func (c *Conns) EnsureIndexes() {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_subscribers_tenant_status ON subscribers(tenant_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(nas_id, username) WHERE stop_time IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_sessions_tenant_start ON sessions(tenant_id, start_time)",
		"CREATE INDEX IF NOT EXISTS idx_nas_devices_vpn_ip ON nas_devices(vpn_ip_address)",
	}

	for _, indexSQL := range indexes {
		// Errors are ignored; the index may already exist
		c.DB.Exec(indexSQL)
	}
}
