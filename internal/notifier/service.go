package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
	ErrNoSender = errors.New("notifier has no sender")
)

const historyMax = 300

// Journal receives one entry per finished delivery. storage.Store satisfies it.
type Journal interface {
	AppendJournal(ctx context.Context, e storage.JournalEntry) error
}

// Service delivers notifications to the chat. Each delivery is rate limited,
// retried with backoff and suppressed when an identical one went out within
// the dedup window. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	sender  transport.Sender
	bus     eventbus.Bus
	journal Journal

	cfg     Config
	limiter *rate.Limiter

	dedup *dedupCache

	// hmu guards history, the recent deliveries shown by /status.
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, journal Journal) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender:  sender,
		log:     log,
		bus:     bus,
		journal: journal,
		dedup:   newDedupCache(),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetSender swaps the transport (the bot is created after the notifier).
func (s *Service) SetSender(sender transport.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	// Keep the bucket state when only unrelated fields change.
	if s.limiter == nil || s.cfg.RatePerSec != cfg.RatePerSec {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
}

// Notify delivers n and blocks until it is sent, suppressed or failed.
//
// Returns nil when sent or deduplicated, ErrDisabled when the notifier is off,
// ctx.Err() on cancellation and *DeliveryError when every attempt failed.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if sender == nil {
		return ErrNoSender
	}
	if n.Text == "" {
		return nil
	}

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && !s.dedup.allow(key, cfg.DedupWindow, cfg.DedupMaxEntries, time.Now()) {
		s.publish(eventbus.NotifierDeduped, n, key, 0, nil)
		s.log.Debug("notification deduplicated", logx.String("kind", string(n.Kind)), logx.String("key", key))
		return nil
	}

	started := time.Now()
	attempts, err := s.send(ctx, cfg, lim, sender, n)
	took := time.Since(started)

	if err != nil {
		// The same text must be sendable again on the next cycle.
		s.dedup.forget(key)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		derr := &DeliveryError{Attempts: attempts, Err: err}
		s.publish(eventbus.NotifierFailed, n, key, attempts, derr)
		s.appendJournal(ctx, n, attempts, took, derr)
		return derr
	}

	s.appendHistory(n)
	s.publish(eventbus.NotifierSent, n, key, attempts, nil)
	s.appendJournal(ctx, n, attempts, took, nil)
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(n transport.Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Kind: string(n.Kind), Text: n.Text})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n transport.Notification, key string, attempts int, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{
		Kind:     string(n.Kind),
		ChatID:   n.Target.ChatID,
		ThreadID: n.Target.ThreadID,
		Key:      key,
		Attempts: attempts,
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Publish(s.bus, typ, ev)
}

func (s *Service) appendJournal(ctx context.Context, n transport.Notification, attempts int, took time.Duration, err error) {
	if s.journal == nil {
		return
	}
	e := storage.JournalEntry{
		At:       time.Now(),
		Kind:     string(n.Kind),
		ChatID:   n.Target.ChatID,
		ThreadID: n.Target.ThreadID,
		Text:     n.Text,
		OK:       err == nil,
		Attempts: attempts,
		TookMS:   took.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if jerr := s.journal.AppendJournal(jctx, e); jerr != nil {
		s.log.Warn("journal append failed", logx.Err(jerr))
	}
}
