package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "telegram": {"chat_id": 42, "commands": true},
  "practicum": {"timeout": "15s"},
  "poller": {"schedule": "*/10 * * * *", "timezone": "UTC", "run_on_start": false},
  "notifier": {"rate_per_sec": 2, "retry_max": 1, "dedup_window": "1m"},
  "logging": {"level": "debug", "file": {"enabled": true, "path": "logs/hwbot.log"}},
  "storage": {"driver": "sqlite", "path": "data/hwbot.sqlite"},
  "http": {"enabled": true, "addr": "127.0.0.1:9090", "pprof": true}
}`

const sampleYAML = `
telegram:
  chat_id: 42
  commands: true
practicum:
  timeout: 15s
poller:
  schedule: "*/10 * * * *"
  timezone: UTC
  run_on_start: false
notifier:
  rate_per_sec: 2
  retry_max: 1
  dedup_window: 1m
logging:
  level: debug
  file:
    enabled: true
    path: logs/hwbot.log
storage:
  driver: sqlite
  path: data/hwbot.sqlite
http:
  enabled: true
  addr: 127.0.0.1:9090
  pprof: true
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestYAMLAndJSONDecodeAlike(t *testing.T) {
	t.Parallel()
	j, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)
	y, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, j, y)

	assert.EqualValues(t, 42, j.Telegram.ChatID)
	assert.False(t, j.Poller.RunOnStartEnabled())
	assert.True(t, j.Poller.ReportErrorsEnabled())
	assert.Equal(t, 1, j.Notifier.RetryMaxOrDefault())
	assert.True(t, j.Logging.ConsoleEnabled())
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"telegram": {"chat": 1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = Decode("c.yaml", []byte("poller:\n  interval: 5m\n"))
	require.Error(t, err)

	_, err = Decode("c.json", []byte(`{} {}`))
	require.Error(t, err)

	cfg, err := Decode("c.yml", []byte(""))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.json", []byte(`{"telegram": {"token": "file-token", "chat_id": 1}, "poller": {"schedule": "1h"}}`))
	require.NoError(t, err)

	require.NoError(t, ApplyEnv(cfg, envOf(map[string]string{
		EnvPracticumToken: "p-token",
		EnvTelegramToken:  "env-token",
		EnvTelegramChatID: "-100123",
		EnvRetryPeriod:    "600",
		EnvLogLevel:       "warn",
	})))
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.EqualValues(t, -100123, cfg.Telegram.ChatID)
	assert.Equal(t, "p-token", cfg.Practicum.Token)
	assert.Equal(t, "600s", cfg.Poller.Schedule)
	assert.Equal(t, "warn", cfg.Logging.Level)
	require.NoError(t, Validate(cfg))

	require.NoError(t, ApplyEnv(cfg, envOf(map[string]string{EnvRetryPeriod: "cron:0 * * * *"})))
	assert.Equal(t, "cron:0 * * * *", cfg.Poller.Schedule)

	assert.Error(t, ApplyEnv(cfg, envOf(map[string]string{EnvTelegramChatID: "@channel"})))
}

func TestValidateListsAllMissing(t *testing.T) {
	t.Parallel()
	err := Validate(&Config{})
	require.True(t, errors.Is(err, ErrMissingRequired))
	for _, name := range []string{EnvPracticumToken, EnvTelegramToken, EnvTelegramChatID} {
		assert.Contains(t, err.Error(), name)
	}

	err = Validate(&Config{Practicum: PracticumConfig{Token: "x"}, Telegram: TelegramConfig{Token: "y"}})
	require.ErrorIs(t, err, ErrMissingRequired)
	assert.Contains(t, err.Error(), EnvTelegramChatID)
	assert.NotContains(t, err.Error(), EnvTelegramToken)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Practicum: PracticumConfig{Token: "p"},
			Telegram:  TelegramConfig{Token: "t", ChatID: 1},
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "schedule", mutate: func(c *Config) { c.Poller.Schedule = "whenever" }, want: "poller.schedule"},
		{name: "cron never fires", mutate: func(c *Config) { c.Poller.Schedule = "0 0 30 2 *" }, want: "poller.schedule"},
		{name: "timezone", mutate: func(c *Config) { c.Poller.Timezone = "Nowhere/City" }, want: "poller.timezone"},
		{name: "duration", mutate: func(c *Config) { c.Notifier.SendTimeout = "soon" }, want: "notifier.send_timeout"},
		{name: "level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, want: "storage.driver"},
		{name: "sqlite path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, want: "storage.path"},
		{name: "redis addr", mutate: func(c *Config) { c.Storage.Driver = "redis" }, want: "storage.redis_addr"},
		{name: "endpoint", mutate: func(c *Config) { c.Practicum.Endpoint = "practicum" }, want: "practicum.endpoint"},
		{name: "http addr", mutate: func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Addr = "8080" }, want: "http.addr"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.False(t, errors.Is(err, ErrMissingRequired))
		})
	}
	require.NoError(t, Validate(base()))
}

func TestManagerLoadWithOverlay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "telegram:\n  chat_id: 7\n")

	m := NewConfigManager(path)
	m.SetOverlay(func(cfg *Config) error {
		return ApplyEnv(cfg, envOf(map[string]string{EnvPracticumToken: "p", EnvTelegramToken: "t"}))
	})
	m.SetValidator(Validator)

	cfg, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.Telegram.ChatID)
	assert.Equal(t, "t", cfg.Telegram.Token)
	assert.Same(t, cfg, m.Get())

	noFile := NewConfigManager("")
	noFile.SetValidator(Validator)
	_, err = noFile.Load(context.Background())
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestManagerWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"telegram": {"chat_id": 1}, "poller": {"schedule": "10m"}}`)

	m := NewConfigManager(path)
	m.SetOverlay(func(cfg *Config) error {
		return ApplyEnv(cfg, envOf(map[string]string{EnvPracticumToken: "p", EnvTelegramToken: "t"}))
	})
	m.SetValidator(Validator)
	_, err := m.Load(context.Background())
	require.NoError(t, err)

	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)

	// Invalid schedule is rejected and not published.
	writeFile(t, dir, "config.json", `{"telegram": {"chat_id": 1}, "poller": {"schedule": "whenever"}}`)
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("unexpected publish: %+v", cfg.Poller)
	default:
	}

	writeFile(t, dir, "config.json", `{"telegram": {"chat_id": 1}, "poller": {"schedule": "5m"}}`)
	select {
	case cfg := <-sub:
		assert.Equal(t, "5m", cfg.Poller.Schedule)
		assert.Equal(t, "5m", m.Get().Poller.Schedule)
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}

	cancel()
	<-done
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	const fileOnly, both = "HWBOT_TEST_DOTENV_FILE_ONLY", "HWBOT_TEST_DOTENV_BOTH"
	t.Setenv(both, "from-env")
	t.Cleanup(func() { _ = os.Unsetenv(fileOnly) })

	path := writeFile(t, dir, ".env", fileOnly+"=from-file\n"+both+"=from-file\n")
	require.NoError(t, LoadDotEnv(path, true))
	assert.Equal(t, "from-file", os.Getenv(fileOnly))
	assert.Equal(t, "from-env", os.Getenv(both))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), false))
	require.Error(t, LoadDotEnv(filepath.Join(dir, "missing.env"), true))
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, err := Decode("a.json", []byte(sampleJSON))
	require.NoError(t, err)
	b, err := Decode("b.json", []byte(sampleJSON))
	require.NoError(t, err)

	changed, _ := SummarizeConfigChange(a, b)
	assert.Empty(t, changed)

	b.Poller.Schedule = "5m"
	b.Storage.Driver = "file"
	b.HTTP.Token = "secret"
	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"http", "poller", "storage"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"storage"}, NeedsRestart(changed))
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 250ms ", want: 250 * time.Millisecond},
		{raw: "90", want: 90 * time.Second},
		{raw: "0", want: 0},
		{raw: "-1s", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("x.timeout", tc.raw)
		if tc.wantErr {
			require.Error(t, err, tc.raw)
			assert.Contains(t, err.Error(), "x.timeout")
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, d, tc.raw)
	}

	d, err := ParseDurationOrDefault("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
	d, err = ParseDurationOrDefault("x", "2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}
