package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int // number of leading calls that fail
	calls int
	texts []string
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return transport.MessageRef{}, errors.New("telegram: Bad Gateway (502)")
	}
	f.texts = append(f.texts, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		RatePerSec:    100,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		SendTimeout:   time.Second,
	}
}

func status(text string) transport.Notification {
	return transport.Notification{Kind: transport.KindStatus, Target: transport.ChatTarget{ChatID: 42}, Text: text}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	journal := storage.NewMemory(10)

	s := New(testConfig(), snd, logx.Nop(), bus, journal)
	require.NoError(t, s.Notify(context.Background(), status("hello")))
	assert.Equal(t, 3, snd.Calls())

	ev := <-events
	assert.Equal(t, eventbus.NotifierSent, ev.Type)
	assert.Equal(t, 3, ev.Data.(NotificationEvent).Attempts)

	hist := s.Snapshot()
	require.Len(t, hist, 1)
	assert.Equal(t, "hello", hist[0].Text)

	entries, err := journal.RecentJournal(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].OK)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestNotifyReturnsDeliveryErrorAfterAllAttempts(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 100}
	journal := storage.NewMemory(10)
	s := New(testConfig(), snd, logx.Nop(), nil, journal)

	err := s.Notify(context.Background(), status("hello"))
	var de *DeliveryError
	require.True(t, errors.As(err, &de), "got %T", err)
	assert.Equal(t, 3, de.Attempts)
	assert.Contains(t, err.Error(), "Bad Gateway")
	assert.Empty(t, s.Snapshot())

	entries, _ := journal.RecentJournal(context.Background(), 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].OK)
	assert.NotEmpty(t, entries[0].Error)
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := New(cfg, snd, logx.Nop(), bus, nil)

	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, status("same")))
	require.NoError(t, s.Notify(ctx, status("same")))
	require.NoError(t, s.Notify(ctx, status("other")))
	assert.Equal(t, 2, snd.Calls())

	var types []string
	for i := 0; i < 3; i++ {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.NotifierSent, eventbus.NotifierDeduped, eventbus.NotifierSent}, types)
}

func TestNotifyFailedDeliveryIsNotDeduplicated(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 1}
	cfg := testConfig()
	cfg.RetryMax = 0
	cfg.DedupWindow = time.Minute
	s := New(cfg, snd, logx.Nop(), nil, nil)

	ctx := context.Background()
	require.Error(t, s.Notify(ctx, status("x")))
	require.NoError(t, s.Notify(ctx, status("x")))
	assert.Equal(t, 2, snd.Calls())
}

func TestNotifyDisabledAndCancelled(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, snd, logx.Nop(), nil, nil)
	assert.ErrorIs(t, s.Notify(context.Background(), status("x")), ErrDisabled)

	cfg.Enabled = true
	s.Apply(cfg)
	assert.True(t, s.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Notify(ctx, status("x")), context.Canceled)
	assert.Zero(t, snd.Calls())

	s.SetSender(nil)
	assert.ErrorIs(t, s.Notify(context.Background(), status("x")), ErrNoSender)
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{attempt: 1, min: 70 * time.Millisecond, max: 130 * time.Millisecond},
		{attempt: 2, min: 140 * time.Millisecond, max: 260 * time.Millisecond},
		{attempt: 3, min: 280 * time.Millisecond, max: 520 * time.Millisecond},
		{attempt: 10, min: 700 * time.Millisecond, max: time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := retryDelay(cfg, tt.attempt)
			assert.GreaterOrEqual(t, d, tt.min, "attempt %d", tt.attempt)
			assert.LessOrEqual(t, d, tt.max, "attempt %d", tt.attempt)
		}
	}
}

func TestDedupCap(t *testing.T) {
	t.Parallel()
	c := newDedupCache()
	now := time.Now()
	for i, k := range []string{"a", "b", "c", "d"} {
		assert.True(t, c.allow(k, time.Minute, 2, now.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.Equal(t, 2, c.len())
	assert.False(t, c.allow("d", time.Minute, 2, now.Add(time.Second)))
	// "a" was evicted first and is allowed again.
	assert.True(t, c.allow("a", time.Minute, 2, now.Add(time.Second)))

	c.forget("a")
	assert.True(t, c.allow("a", time.Minute, 0, now.Add(time.Second)))
	// Expired keys are dropped on the next call.
	assert.True(t, c.allow("d", time.Minute, 0, now.Add(2*time.Minute)))
}

type splitFailSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *splitFailSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if len(f.texts) == 1 {
		return transport.MessageRef{}, &transport.PartialSendError{Sent: 1, Rest: "tail", Err: errors.New("telegram: Bad Gateway (502)")}
	}
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func TestNotifyRetriesOnlyUndeliveredPart(t *testing.T) {
	t.Parallel()
	snd := &splitFailSender{}
	s := New(testConfig(), snd, logx.Nop(), nil, nil)

	require.NoError(t, s.Notify(context.Background(), status("head\ntail")))

	snd.mu.Lock()
	defer snd.mu.Unlock()
	assert.Equal(t, []string{"head\ntail", "tail"}, snd.texts)
}
