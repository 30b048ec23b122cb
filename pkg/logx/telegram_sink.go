package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hwbot/internal/transport"
)

const (
	tgQueueSize   = 256
	tgSendTimeout = 10 * time.Second
	tgMaxText     = 3500
	tgMaxValue    = 600
)

// telegramSink mirrors log entries at or above a level into a chat. Writes
// never block: entries over the rate limit or beyond the queue are dropped.
type telegramSink struct {
	mu       sync.Mutex
	sender   transport.Sender
	target   transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
	warned   bool

	queue  chan transport.Notification
	start  sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan transport.Notification, tgQueueSize),
	}
}

func (t *telegramSink) setSender(s transport.Sender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) setTarget(to transport.ChatTarget) {
	t.mu.Lock()
	t.target = to
	t.mu.Unlock()
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := positiveOr(cfg.RatePerSec, 1)

	t.mu.Lock()
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	noChat := t.target.ChatID == 0
	warn := cfg.Enabled && noChat && !t.warned
	t.warned = t.warned || warn
	t.mu.Unlock()

	if warn {
		fmt.Fprintln(os.Stderr, "logx: telegram logging enabled without a chat id")
	}
	if cfg.Enabled {
		t.start.Do(t.run)
	}
}

func (t *telegramSink) run() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-t.queue:
				t.deliver(ctx, n)
			}
		}
	}()
}

func (t *telegramSink) deliver(ctx context.Context, n transport.Notification) {
	t.mu.Lock()
	sender := t.sender
	t.mu.Unlock()
	if sender == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, tgSendTimeout)
	defer cancel()
	_, _ = sender.SendText(sctx, n.Target, n.Text, n.Options)
}

func (t *telegramSink) close() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, lim, minLevel, ready := t.target, t.limiter, t.minLevel, t.sender != nil
	t.mu.Unlock()

	if !ready || to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatTelegramJSON(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- transport.Notification{Target: to, Text: text, Options: &transport.SendOptions{DisablePreview: true}}:
	default:
	}
	return len(p), nil
}

// formatTelegramJSON turns one zerolog JSON line into a chat message:
// "[LEVEL] message" followed by the remaining keys, one per line.
func formatTelegramJSON(p []byte) string {
	line := strings.TrimSpace(string(p))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return truncate(line, tgMaxText)
	}

	var b strings.Builder
	if lvl, _ := entry[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := entry[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	delete(entry, zerolog.LevelFieldName)
	delete(entry, zerolog.MessageFieldName)
	delete(entry, zerolog.TimestampFieldName)
	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(entry[k]), tgMaxValue))
	}
	return truncate(b.String(), tgMaxText)
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	suffix := "..."
	if n < 10 {
		suffix = ""
	}
	cut := n - len(suffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
