package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Env holds settings sourced from the process environment.
// Set values override the config file.
type Env struct {
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	WaitTime       int    `env:"WAIT_TIME"` // minutes between cycles
	LogLevel       string `env:"LOG_LEVEL"`
	SentPhotosFile string `env:"SENT_PHOTOS_FILE"`
}

// LoadEnv loads .env files (missing files are ignored) and parses the environment.
func LoadEnv(files ...string) (Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("load .env: %w", err)
	}
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, e.validate()
}

// ParseEnv parses a fixed variable set instead of the process environment.
func ParseEnv(vars map[string]string) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, e.validate()
}

func (e Env) validate() error {
	if e.WaitTime < 0 {
		return fmt.Errorf("WAIT_TIME must be >= 0 (minutes)")
	}
	return nil
}

// Overlay copies the set environment values onto cfg.
func (e Env) Overlay(cfg *Config) {
	if cfg == nil {
		return
	}
	if s := strings.TrimSpace(e.TelegramToken); s != "" {
		cfg.Telegram.Token = s
	}
	if e.WaitTime > 0 {
		cfg.Scheduler.Schedule = fmt.Sprintf("every:%dm", e.WaitTime)
	}
	if s := strings.TrimSpace(e.LogLevel); s != "" {
		cfg.Logging.Level = s
	}
	if s := strings.TrimSpace(e.SentPhotosFile); s != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "file"}
		}
		cfg.Storage.Path = s
	}
}
