package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL        string
	HTTPTimeout       time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration
	NotificationLimit int
	SessionFile       string
	RedisAddr         string
	RedisPassword     string
	PushAddr          string
	PushAuthToken     string
}

func Load() Config {
	return Config{
		APIBaseURL:        getenv("PORTAL_API_BASE_URL", "http://localhost:5000/api"),
		HTTPTimeout:       getenvDuration("PORTAL_HTTP_TIMEOUT", 10*time.Second),
		PollInterval:      getenvDuration("PORTAL_POLL_INTERVAL", 30*time.Second),
		PollTimeout:       getenvDuration("PORTAL_POLL_TIMEOUT", 8*time.Second),
		NotificationLimit: getenvInt("PORTAL_NOTIFICATION_LIMIT", 50),
		SessionFile:       getenv("PORTAL_SESSION_FILE", defaultSessionFile()),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		PushAddr:          getenv("PUSH_ADDR", ":8750"),
		PushAuthToken:     getenv("PUSH_AUTH_TOKEN", ""),
	}
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "elevate-session.json"
	}
	return filepath.Join(home, ".elevate", "session.json")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
