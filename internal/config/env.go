package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognised by ApplyEnv.
const (
	EnvPracticumToken    = "PRACTICUM_TOKEN"
	EnvTelegramToken     = "TELEGRAM_TOKEN"
	EnvTelegramChatID    = "TELEGRAM_CHAT_ID"
	EnvRetryPeriod       = "RETRY_PERIOD"
	EnvPracticumEndpoint = "PRACTICUM_ENDPOINT"
	EnvLogLevel          = "HWBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error
// unless required is true.
func LoadDotEnv(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg. Empty variables are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvPracticumToken); v != "" {
		cfg.Practicum.Token = v
	}
	if v := get(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := get(EnvTelegramChatID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvTelegramChatID, v)
		}
		cfg.Telegram.ChatID = id
	}
	if v := get(EnvRetryPeriod); v != "" {
		cfg.Poller.Schedule = retryPeriodSchedule(v)
	}
	if v := get(EnvPracticumEndpoint); v != "" {
		cfg.Practicum.Endpoint = v
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// retryPeriodSchedule accepts plain seconds ("600") as well as any schedule string.
func retryPeriodSchedule(v string) string {
	if n, err := strconv.Atoi(v); err == nil {
		return strconv.Itoa(n) + "s"
	}
	return v
}

// EnvOverlay returns a ConfigManager overlay reading the process environment.
func EnvOverlay() func(cfg *Config) error {
	return func(cfg *Config) error { return ApplyEnv(cfg, os.Getenv) }
}
