// Package config provides configuration management for the relay standalone
// server. It loads settings from environment variables with sensible
// defaults, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Relay     RelayConfig
	Transport TransportConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "relay_")
}

// RelayConfig holds queue and endpoint tuning.
type RelayConfig struct {
	Endpoints           []string // upstream addresses, comma-separated in env
	QueueCapacity       int
	MaxRetries          int
	SendTimeout         time.Duration
	HealthCheckInterval time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTimeout    time.Duration
	EnableNotifications bool
}

// TransportConfig selects and tunes the wire transport.
type TransportConfig struct {
	Kind          string // websocket, kafka
	KafkaOutbound string
	KafkaInbound  string
	KafkaGroupID  string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "relay"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "relay"),
			Prefix:   getEnv("DB_PREFIX", "relay_"),
		},
		Relay: RelayConfig{
			Endpoints:           splitList(getEnv("RELAY_ENDPOINTS", "")),
			QueueCapacity:       getEnvInt("RELAY_QUEUE_CAPACITY", 10000),
			MaxRetries:          getEnvInt("RELAY_MAX_RETRIES", 5),
			SendTimeout:         getEnvDuration("RELAY_SEND_TIMEOUT", 10*time.Second),
			HealthCheckInterval: getEnvDuration("RELAY_HEALTH_INTERVAL", 10*time.Second),
			HeartbeatInterval:   getEnvDuration("RELAY_HEARTBEAT_INTERVAL", 15*time.Second),
			HeartbeatTimeout:    getEnvDuration("RELAY_HEARTBEAT_TIMEOUT", 45*time.Second),
			EnableNotifications: getEnvBool("RELAY_ENABLE_NOTIFICATIONS", true),
		},
		Transport: TransportConfig{
			Kind:          getEnv("RELAY_TRANSPORT", "websocket"),
			KafkaOutbound: getEnv("KAFKA_OUTBOUND_TOPIC", "relay.outbound"),
			KafkaInbound:  getEnv("KAFKA_INBOUND_TOPIC", "relay.inbound"),
			KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "msgrelay"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Validate required fields
	if len(cfg.Relay.Endpoints) == 0 {
		return nil, fmt.Errorf("RELAY_ENDPOINTS environment variable is required")
	}
	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	switch cfg.Transport.Kind {
	case "websocket", "kafka":
	default:
		return nil, fmt.Errorf("unsupported RELAY_TRANSPORT %q (websocket, kafka)", cfg.Transport.Kind)
	}

	return cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// splitList splits a comma-separated env value into trimmed entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves environment variable as duration or returns default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
