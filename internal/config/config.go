// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the rendezvous server. All values come from
// environment variables (cmd/server loads a .env file via godotenv/autoload);
// zero-config startup works with the defaults below.
type Config struct {
	// BindHost is the address the rendezvous TCP listener binds to.
	BindHost string
	// BindPort is the rendezvous TCP port.
	BindPort int
	// HTTPPort is the port for the read-only status surface and the
	// WebSocket transport.
	HTTPPort int

	// RoomTTL is the maximum host silence before a room is reaped.
	RoomTTL time.Duration
	// SweepInterval is the reaper period.
	SweepInterval time.Duration
	// GracePeriod is the minimum room age before it is eligible for reaping.
	GracePeriod time.Duration

	// SendQueueMax caps the per-connection outbound frame queue. A peer that
	// falls further behind is treated as stuck and torn down.
	SendQueueMax int
	// RoomIDLength is the number of decimal digits in generated room ids.
	RoomIDLength int

	// AdminKey guards the HTTP admin endpoints. Empty disables them.
	AdminKey string
	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string
}

// Load reads the configuration from the environment, applying defaults for
// anything unset or unparsable.
func Load() Config {
	return Config{
		BindHost:      getEnv("RENDEZVOUS_HOST", "0.0.0.0"),
		BindPort:      getEnvInt("RENDEZVOUS_PORT", 5001),
		HTTPPort:      getEnvInt("STATUS_HTTP_PORT", 8080),
		RoomTTL:       getEnvDuration("ROOM_TTL", 60*time.Second),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Second),
		GracePeriod:   getEnvDuration("GRACE_PERIOD", 10*time.Second),
		SendQueueMax:  getEnvInt("SEND_QUEUE_MAX", 256),
		RoomIDLength:  getEnvInt("ROOM_ID_LENGTH", 4),
		AdminKey:      getEnv("ADMIN_KEY", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable with time.ParseDuration
// ("60s", "2m"), else returns the default.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}
