package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Framing modes accepted by FRAMING.
const (
	FramingBrace  = "brace"
	FramingStream = "stream"
)

type Config struct {
	BackendURL        string
	ReconnectAttempts int
	ReconnectInterval time.Duration
	HeartbeatInterval time.Duration
	PongWait          time.Duration
	DialTimeout       time.Duration
	Framing           string
	OtelEnabled       bool
	OtelEndpoint      string
	LogLevel          string
}

// Load reads .env if present and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Error loading .env file", "error", err)
	}

	return &Config{
		BackendURL:        GetEnv("BACKEND_URL", "http://localhost:9090"),
		ReconnectAttempts: GetEnvAsInt("RECONNECT_ATTEMPTS", 10),
		ReconnectInterval: GetEnvAsDuration("RECONNECT_INTERVAL_MS", 3000*time.Millisecond),
		HeartbeatInterval: GetEnvAsDuration("HEARTBEAT_INTERVAL_MS", 45000*time.Millisecond),
		PongWait:          GetEnvAsDuration("PONG_WAIT_MS", 60000*time.Millisecond),
		DialTimeout:       GetEnvAsDuration("DIAL_TIMEOUT_MS", 10000*time.Millisecond),
		Framing:           strings.ToLower(GetEnv("FRAMING", FramingBrace)),
		OtelEnabled:       GetEnvAsBool("OTEL_ENABLED", false),
		OtelEndpoint:      GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect attempts must not be negative, got %d", c.ReconnectAttempts))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"reconnect interval", c.ReconnectInterval},
		{"heartbeat interval", c.HeartbeatInterval},
		{"pong wait", c.PongWait},
		{"dial timeout", c.DialTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}
	if c.Framing != FramingBrace && c.Framing != FramingStream {
		errs = append(errs, fmt.Errorf("unknown framing %q", c.Framing))
	}
	if _, err := WebSocketURL(c.BackendURL); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsDuration reads a whole number of milliseconds.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if ms, err := strconv.Atoi(valueStr); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// WebSocketURL derives the game endpoint from the backend base URL:
// http becomes ws, https becomes wss and the path is /ws.
func WebSocketURL(backend string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(backend))
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", backend)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
