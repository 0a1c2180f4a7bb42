package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

type AppConfig struct {
	HTTPAddr string
	// WSAddr empty disables the WebSocket listener.
	WSAddr string

	Broker   string
	RedisURL string

	AllowedOrigins []string

	SSEKeepalive time.Duration
	StreamBuffer int
	WriteTimeout time.Duration

	MatchIdleTTL     time.Duration
	MatchFinishedTTL time.Duration
	SweepInterval    time.Duration

	MessagesDir string
}

// Load reads .env from the working directory when present, then the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		WSAddr:         ":8081",
		Broker:         BrokerMemory,
		AllowedOrigins: []string{"*"},
		SSEKeepalive:   15 * time.Second,
		StreamBuffer:   16,
		WriteTimeout:   5 * time.Second,
		SweepInterval:  time.Minute,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v, ok := os.LookupEnv("WS_ADDR"); ok {
		cfg.WSAddr = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("BROKER")); v != "" {
		cfg.Broker = strings.ToLower(v)
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	var err error
	if cfg.StreamBuffer, err = intEnv("STREAM_BUFFER", cfg.StreamBuffer); err != nil {
		return nil, err
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SSE_KEEPALIVE", &cfg.SSEKeepalive},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"MATCH_IDLE_TTL", &cfg.MatchIdleTTL},
		{"MATCH_FINISHED_TTL", &cfg.MatchFinishedTTL},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, *d.dst); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	switch c.Broker {
	case BrokerMemory:
	case BrokerRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when BROKER=redis")
		}
	default:
		return fmt.Errorf("unknown BROKER %q (want memory or redis)", c.Broker)
	}
	if c.StreamBuffer <= 0 {
		return errors.New("STREAM_BUFFER must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}
	if c.SSEKeepalive <= 0 {
		return errors.New("SSE_KEEPALIVE must be positive")
	}
	if c.MatchIdleTTL < 0 || c.MatchFinishedTTL < 0 {
		return errors.New("durations must not be negative")
	}
	if (c.MatchIdleTTL > 0 || c.MatchFinishedTTL > 0) && c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive when match expiry is enabled")
	}
	return nil
}

// ExpiryEnabled reports whether any match TTL is set.
func (c *AppConfig) ExpiryEnabled() bool { return c.MatchIdleTTL > 0 || c.MatchFinishedTTL > 0 }

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// durationEnv accepts Go durations ("90s", "5m") or a bare number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
