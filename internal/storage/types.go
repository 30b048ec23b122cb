package storage

import (
	"context"
	"errors"
	"time"

	"hwbot/internal/homework"
)

var ErrDisabled = errors.New("storage disabled")

const DefaultJournalMax = 500

// Config configures storage.
//
// Driver values:
//   - "memory": process-local state, discarded on exit (default)
//   - "file": state snapshot + jsonl journal next to Path
//   - "sqlite": SQLite database file
//   - "redis": keys under RedisPrefix on RedisAddr
//
// "none" disables storage entirely.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// JournalMax bounds the number of journal entries kept (0 means DefaultJournalMax).
	JournalMax int
}

// JournalEntry records one delivery attempt outcome.
// Keep it compact and schema-stable.
type JournalEntry struct {
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Text     string    `json:"text"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

// Store is the persistence API used by the poll loop and the notifier.
type Store interface {
	// LoadState returns ok=false when nothing was saved yet.
	LoadState(ctx context.Context) (st homework.State, ok bool, err error)
	SaveState(ctx context.Context, st homework.State) error

	AppendJournal(ctx context.Context, e JournalEntry) error
	// RecentJournal returns up to limit entries, oldest first.
	RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error)

	Close() error
}

func journalMax(cfg Config) int {
	if cfg.JournalMax > 0 {
		return cfg.JournalMax
	}
	return DefaultJournalMax
}

func tail(entries []JournalEntry, limit int) []JournalEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]JournalEntry(nil), entries...)
}
