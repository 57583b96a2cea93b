package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the
// synchronization server.
type Config struct {
	HTTPPort      int
	SQLiteDSN     string
	SessionTTL    time.Duration
	QueryTimeout  time.Duration
	MergeTimeout  time.Duration
	AdminPassword string
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults; values that are present but
// unparsable are reported as errors rather than silently ignored.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8051,
		SQLiteDSN:     "file:rapla.db",
		SessionTTL:    24 * time.Hour,
		QueryTimeout:  50 * time.Second,
		MergeTimeout:  20 * time.Second,
		AdminPassword: "admin",
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("RAPLA_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "RAPLA_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("RAPLA_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("RAPLA_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "RAPLA_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if value := strings.TrimSpace(os.Getenv("RAPLA_QUERY_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "RAPLA_QUERY_TIMEOUT")
		} else {
			cfg.QueryTimeout = timeout
		}
	}

	if value := strings.TrimSpace(os.Getenv("RAPLA_MERGE_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "RAPLA_MERGE_TIMEOUT")
		} else {
			cfg.MergeTimeout = timeout
		}
	}

	if password := os.Getenv("RAPLA_ADMIN_PASSWORD"); password != "" {
		cfg.AdminPassword = password
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
