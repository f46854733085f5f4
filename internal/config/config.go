package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config holds runtime configuration loaded from the environment.
type Config struct {
	TelegramToken string
	DatabaseURL   string // Postgres; when empty a local SQLite file is used
	SQLitePath    string
	RedisURL      string // optional seen-ID cache
	MLServiceURL  string
	HTTPAddr      string
	SearchText    string // hh.ru query override; empty keeps the default
	MaxPages      int    // hh.ru listing page cap
	SyncInterval  int    // hours between background store refreshes
}

// FromEnv loads configuration from environment variables. TELEGRAM_TOKEN is
// required; everything else has a sensible default.
func FromEnv() (*Config, error) {
	c := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		RedisURL:      os.Getenv("REDIS_URL"),
		MLServiceURL:  os.Getenv("ML_SERVICE_URL"),
		HTTPAddr:      os.Getenv("HTTP_ADDR"),
		SearchText:    os.Getenv("HH_SEARCH_TEXT"),
	}
	if c.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_TOKEN is not set")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "bot.db"
	}
	if c.MLServiceURL == "" {
		c.MLServiceURL = "http://localhost:8000"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8081"
	}

	var err error
	c.MaxPages, err = intEnv("HH_MAX_PAGES", 3)
	if err != nil {
		return nil, err
	}
	c.SyncInterval, err = intEnv("SYNC_INTERVAL_HOURS", 6)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}
