// Package config loads server configuration from flags and environment
// variables, with a .env file as an optional local override.
//
// Precedence: flags > environment > .env file > defaults.
//
// Variables:
//
//	PORT       HTTP server port (default: 8080)
//	DB_PATH    SQLite database path (default: fees.db, ":memory:" works)
//	LOG_LEVEL  debug, info, warn, error (default: info)
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the resolved server configuration.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string
}

// Load resolves configuration. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:     envInt("PORT", 8080),
		DBPath:   envString("DB_PATH", "fees.db"),
		LogLevel: envString("LOG_LEVEL", "info"),
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
