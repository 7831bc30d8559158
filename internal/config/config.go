package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Database
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`

	// Redis
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`

	// RADIUS
	RadiusAuthPort int `yaml:"radius_port"`
	RadiusAcctPort int `yaml:"radius_acct_port"`
	RadiusCoAPort  int `yaml:"radius_coa_port"` // outbound default when a NAS has none configured

	// RequireMessageAuth drops, with no reply, Access-Requests that carry no
	// Message-Authenticator attribute (RFC 5080 strict mode)
	RequireMessageAuth bool `yaml:"require_message_auth"`

	// Admin surface
	AdminPort      int    `yaml:"admin_port"`   // 0 disables the admin HTTP server
	MetricsPort    int    `yaml:"metrics_port"` // 0 disables the Prometheus endpoint
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpireHours int    `yaml:"jwt_expire_hours"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
	LogPath   string `yaml:"log_path"`   // empty = stdout only
}

// Load builds the configuration from an optional YAML file (CONFIG_FILE)
// overridden by environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DBHost:         "localhost",
		DBPort:         5432,
		DBUser:         "easyisp",
		DBName:         "easyisp",
		RedisHost:      "localhost",
		RedisPort:      6379,
		RadiusAuthPort: 1812,
		RadiusAcctPort: 1813,
		RadiusCoAPort:  3799,
		JWTExpireHours: 168,
		LogLevel:       "info",
		LogFormat:      "console",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnvInt("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnvInt("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)

	cfg.RadiusAuthPort = getEnvInt("RADIUS_PORT", cfg.RadiusAuthPort)
	cfg.RadiusAcctPort = getEnvInt("RADIUS_ACCT_PORT", cfg.RadiusAcctPort)
	cfg.RadiusCoAPort = getEnvInt("RADIUS_COA_PORT", cfg.RadiusCoAPort)
	cfg.RequireMessageAuth = getEnvBool("REQUIRE_MESSAGE_AUTH", cfg.RequireMessageAuth)

	cfg.AdminPort = getEnvInt("ADMIN_PORT", cfg.AdminPort)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpireHours = getEnvInt("JWT_EXPIRE_HOURS", cfg.JWTExpireHours)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogPath = getEnv("LOG_PATH", cfg.LogPath)

	if cfg.AdminPort != 0 && cfg.JWTSecret == "" {
		// Sessions will not persist across restarts, but the admin surface
		// must never run unauthenticated.
		cfg.JWTSecret = generateSecureSecret(32)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, port := range map[string]int{
		"RADIUS_PORT":      c.RadiusAuthPort,
		"RADIUS_ACCT_PORT": c.RadiusAcctPort,
		"RADIUS_COA_PORT":  c.RadiusCoAPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.RadiusAuthPort == c.RadiusAcctPort {
		return fmt.Errorf("auth and accounting ports collide: %d", c.RadiusAuthPort)
	}
	return nil
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
