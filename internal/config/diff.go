package config

import (
	"reflect"
	"sort"
	"strings"

	"hwbot/pkg/logx"
)

// RestartSections are applied at startup only; a change is logged but not hot-applied.
var RestartSections = map[string]bool{
	"telegram":  true,
	"practicum": true,
	"storage":   true,
}

// SummarizeConfigChange returns (1) a compact sorted list of changed sections
// and (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) || ot.Commands != nt.Commands ||
		strings.TrimSpace(ot.APIURL) != strings.TrimSpace(nt.APIURL) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Bool("telegram.commands", nt.Commands),
		)
	}

	// Practicum (never log token)
	op, np := oldCfg.Practicum, newCfg.Practicum
	if op.Token != np.Token || strings.TrimSpace(op.Endpoint) != strings.TrimSpace(np.Endpoint) ||
		op.AuthScheme != np.AuthScheme || strings.TrimSpace(op.Timeout) != strings.TrimSpace(np.Timeout) {
		changed = append(changed, "practicum")
		attrs = append(attrs,
			logx.Bool("practicum.token_changed", op.Token != np.Token),
			logx.String("practicum.endpoint", strings.TrimSpace(np.Endpoint)),
			logx.String("practicum.timeout", strings.TrimSpace(np.Timeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Poller, newCfg.Poller) {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.String("poller.schedule", strings.TrimSpace(newCfg.Poller.Schedule)),
			logx.String("poller.timezone", strings.TrimSpace(newCfg.Poller.Timezone)),
			logx.Bool("poller.report_errors", newCfg.Poller.ReportErrorsEnabled()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", !newCfg.Notifier.Disabled),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMaxOrDefault()),
			logx.String("notifier.dedup_window", strings.TrimSpace(newCfg.Notifier.DedupWindow)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.ConsoleEnabled()),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage (never log redis password)
	ost, nst := oldCfg.Storage, newCfg.Storage
	ost.RedisPassword, nst.RedisPassword = "", ""
	if !reflect.DeepEqual(ost, nst) || oldCfg.Storage.RedisPassword != newCfg.Storage.RedisPassword {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.Bool("storage.redis_set", strings.TrimSpace(nst.RedisAddr) != ""),
		)
	}

	// HTTP (never log token)
	oh, nh := oldCfg.HTTP, newCfg.HTTP
	oh.Token, nh.Token = "", ""
	if !reflect.DeepEqual(oh, nh) || oldCfg.HTTP.Token != newCfg.HTTP.Token {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", strings.TrimSpace(nh.Addr)),
			logx.Bool("http.pprof", nh.Pprof),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRestart returns the changed sections that are not hot-applied.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if RestartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
