package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay server settings. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	Addr           string
	DatabaseURL    string
	BoltPath       string
	RedisAddr      string
	JWTSecret      string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	MDNSAdvertise  bool
	InstanceID     string
	SaveInterval   time.Duration
}

var ErrMissingSecret = errors.New("config: JWT_SECRET is required")

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	c := Config{
		Addr:          getenv("ADDR", ":8081"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		BoltPath:      getenv("BOLT_PATH", "boards.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "console"),
		InstanceID:    os.Getenv("INSTANCE_ID"),
		SaveInterval:  5 * time.Second,
		MDNSAdvertise: false,
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("MDNS_ADVERTISE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MDNS_ADVERTISE: %w", err)
		}
		c.MDNSAdvertise = b
	}
	if v := os.Getenv("SAVE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SAVE_INTERVAL: %w", err)
		}
		c.SaveInterval = d
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("config: SAVE_INTERVAL must be positive, got %s", c.SaveInterval)
	}
	return nil
}

// Port returns the numeric port of Addr, or 0 when it cannot be parsed.
func (c Config) Port() int {
	i := strings.LastIndex(c.Addr, ":")
	if i < 0 {
		return 0
	}
	p, err := strconv.Atoi(c.Addr[i+1:])
	if err != nil {
		return 0
	}
	return p
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
