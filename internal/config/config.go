// Package config holds the engine constants and the environment-driven
// settings for the client binaries and the local stub server.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Client configures the terminal client, the admin CLI and the Telegram bridge.
type Client struct {
	APIURL      string        `env:"UNIQ_API_URL" envDefault:"http://localhost:8080"`
	WSURL       string        `env:"UNIQ_WS_URL" envDefault:"ws://localhost:8080"`
	HTTPTimeout time.Duration `env:"UNIQ_HTTP_TIMEOUT" envDefault:"10s"`
	// RedisAddr selects the Redis credential store; empty keeps tokens in memory.
	RedisAddr     string `env:"UNIQ_REDIS_ADDR"`
	RedisPassword string `env:"UNIQ_REDIS_PASSWORD"`
	RedisDB       int    `env:"UNIQ_REDIS_DB" envDefault:"0"`
	Profile       string `env:"UNIQ_PROFILE" envDefault:"default"`
	Language      string `env:"UNIQ_LANG" envDefault:"en"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

// Server configures cmd/devserver.
type Server struct {
	Addr          string        `env:"DEVSERVER_ADDR" envDefault:":8080"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisURL      string        `env:"REDIS_URL"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
}

// loadDotEnv reads .env if present. A missing file is not an error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
}

// LoadClient reads client settings from .env and the process environment.
func LoadClient() (Client, error) {
	loadDotEnv()

	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse client env: %w", err)
	}
	return cfg, nil
}

// LoadServer reads stub server settings from .env and the process environment.
func LoadServer() (Server, error) {
	loadDotEnv()

	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse server env: %w", err)
	}
	return cfg, nil
}
