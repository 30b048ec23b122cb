package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   Kind
		source string
		every  time.Duration
	}{
		{name: "cron", raw: "*/10 * * * *", kind: KindCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: KindCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 9 * * *", kind: KindCron, source: "cron"},
		{name: "duration", raw: "10m", kind: KindInterval, source: "duration", every: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: KindInterval, source: "duration", every: 45 * time.Second},
		{name: "every prefix", raw: "every: 00:05", kind: KindInterval, source: "hhmm", every: 5 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: KindInterval, source: "hhmm", every: 90 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.source, got.Source)
			if tt.kind == KindInterval {
				assert.Equal(t, tt.every, got.Every)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "-5m", "00:00", "01:75", "cron:", "interval:soon"} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestBuildNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC)

	sc, err := Build("10m", "UTC")
	require.NoError(t, err)
	assert.True(t, sc.Next(base).Equal(base.Add(10*time.Minute)))
	assert.Equal(t, "every 10m0s", sc.String())

	sc, err = Build("*/10 * * * *", "UTC")
	require.NoError(t, err)
	assert.True(t, sc.Next(base).Equal(time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)))

	sc, err = Build("cron:0 9 * * *", "Europe/Moscow")
	require.NoError(t, err)
	next := sc.Next(base) // 13:03 MSK -> 09:00 MSK next day
	assert.True(t, next.Equal(time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)), "got %s", next)

	sc, err = Build("interval:50ms", "")
	require.NoError(t, err)
	assert.True(t, sc.Next(base).Equal(base.Add(50*time.Millisecond)))

	_, err = Build("* * *", "UTC")
	assert.Error(t, err)
	_, err = Build("0 0 30 2 *", "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never fires")
	_, err = Build("10m", "Mars/Olympus")
	assert.Error(t, err)
}
