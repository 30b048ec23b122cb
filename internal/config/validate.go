package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"hwbot/internal/schedule"
	"hwbot/internal/storage"
	"hwbot/pkg/logx"
)

// ErrMissingRequired is returned when a required secret or id is not configured.
var ErrMissingRequired = errors.New("missing required configuration")

// Validate checks cfg after the environment overlay. Missing required values
// are reported together in one ErrMissingRequired error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var missing []string
	if strings.TrimSpace(cfg.Practicum.Token) == "" {
		missing = append(missing, EnvPracticumToken)
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, EnvTelegramToken)
	}
	if cfg.Telegram.ChatID == 0 {
		missing = append(missing, EnvTelegramChatID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	dur("practicum.timeout", cfg.Practicum.Timeout)
	dur("poller.cycle_timeout", cfg.Poller.CycleTimeout)
	dur("notifier.retry_base", cfg.Notifier.RetryBase)
	dur("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay)
	dur("notifier.send_timeout", cfg.Notifier.SendTimeout)
	dur("notifier.dedup_window", cfg.Notifier.DedupWindow)
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)
	dur("http.idle_timeout", cfg.HTTP.IdleTimeout)

	if ep := strings.TrimSpace(cfg.Practicum.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(fmt.Errorf("practicum.endpoint: invalid url %q", ep))
		}
	}

	if api := strings.TrimSpace(cfg.Telegram.APIURL); api != "" {
		u, err := url.Parse(api)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(fmt.Errorf("telegram.api_url: invalid url %q", api))
		}
	}

	if sched := strings.TrimSpace(cfg.Poller.Schedule); sched != "" {
		if _, err := schedule.Build(sched, cfg.Poller.Timezone); err != nil {
			add(fmt.Errorf("poller.schedule: %w", err))
		}
	} else if _, err := schedule.LoadLocation(cfg.Poller.Timezone); err != nil {
		add(fmt.Errorf("poller.timezone: %w", err))
	}
	if cfg.Poller.FromDate < 0 {
		add(errors.New("poller.from_date must be >= 0"))
	}

	if cfg.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	if cfg.Notifier.RetryMax != nil && *cfg.Notifier.RetryMax < 0 {
		add(errors.New("notifier.retry_max must be >= 0"))
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if lvl := strings.TrimSpace(cfg.Logging.Telegram.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", lvl))
	}

	if !storage.ValidDriver(cfg.Storage.Driver) {
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", cfg.Storage.Driver))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			add(errors.New("storage.redis_addr is required for driver \"redis\""))
		}
	}

	if cfg.HTTP.Enabled {
		addr := strings.TrimSpace(cfg.HTTP.Addr)
		if addr == "" {
			addr = DefaultHTTPAddr
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fmt.Errorf("http.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

// DefaultHTTPAddr is used when http.enabled is set without an address.
const DefaultHTTPAddr = "127.0.0.1:8080"

// Validator adapts Validate to ConfigManager.SetValidator.
func Validator(ctx context.Context, cfg *Config) error {
	_ = ctx
	return Validate(cfg)
}
