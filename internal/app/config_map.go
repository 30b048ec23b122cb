package app

import (
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/observability/httpserver"
	"hwbot/internal/storage"
	"hwbot/internal/transport"
	"hwbot/internal/transport/telegram"
	"hwbot/internal/watcher"
	"hwbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:        strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:          strings.TrimSpace(sc.Path),
		BusyTimeout:   busy,
		RedisAddr:     strings.TrimSpace(sc.RedisAddr),
		RedisPassword: sc.RedisPassword,
		RedisDB:       sc.RedisDB,
		RedisPrefix:   sc.RedisPrefix,
		JournalMax:    sc.JournalMax,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// logTarget is where log lines go when Telegram logging is enabled:
// the configured chat, in its own thread if one is set.
func logTarget(cfg *config.Config) transport.ChatTarget {
	thread := cfg.Logging.Telegram.ThreadID
	if thread == 0 {
		thread = cfg.Telegram.ThreadID
	}
	return transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: thread}
}

func chatTarget(cfg *config.Config) transport.ChatTarget {
	return transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
}

func mapClientConfig(cfg *config.Config) (homework.ClientConfig, error) {
	p := cfg.Practicum
	timeout, err := config.ParseDurationOrDefault("practicum.timeout", p.Timeout, homework.DefaultTimeout)
	if err != nil {
		return homework.ClientConfig{}, err
	}
	return homework.ClientConfig{
		Endpoint:   strings.TrimSpace(p.Endpoint),
		Token:      strings.TrimSpace(p.Token),
		AuthScheme: strings.TrimSpace(p.AuthScheme),
		Timeout:    timeout,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	t := cfg.Telegram
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(t.Token),
		PollTimeout: poll,
		Commands:    t.Commands,
		ChatID:      t.ChatID,
		APIURL:      t.APIURL,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         !n.Disabled,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMaxOrDefault(),
		RetryBase:       base,
		RetryMaxDelay:   maxDelay,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapWatcherConfig(cfg *config.Config) (watcher.Config, error) {
	p := cfg.Poller
	cycle, err := config.ParseDurationField("poller.cycle_timeout", p.CycleTimeout)
	if err != nil {
		return watcher.Config{}, err
	}
	return watcher.Config{
		Schedule:     strings.TrimSpace(p.Schedule),
		Timezone:     strings.TrimSpace(p.Timezone),
		RunOnStart:   p.RunOnStartEnabled(),
		ReportErrors: p.ReportErrorsEnabled(),
		CycleTimeout: cycle,
		FromDate:     p.FromDate,
		Target:       chatTarget(cfg),
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	addr := strings.TrimSpace(h.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpserver.Config{
		Enabled:       h.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(h.Token),
		Pprof:         h.Pprof,
		AllowInsecure: h.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
