package watcher

import (
	"context"
	"time"

	"hwbot/internal/homework"
	"hwbot/internal/transport"
)

const (
	DefaultSchedule = "10m"
	errorPrefix     = "Сбой в работе программы: "
)

// Fetcher is the poller side of a cycle. *homework.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, fromDate int64) (homework.Response, error)
}

// Notifier delivers chat messages. *notifier.Service implements it.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

type Config struct {
	Schedule     string
	Timezone     string
	RunOnStart   bool
	ReportErrors bool
	// CycleTimeout bounds one whole cycle (0 = no bound beyond the client timeout).
	CycleTimeout time.Duration
	// FromDate is the initial cursor in unix seconds (0 = process start).
	// Persisted state overrides it.
	FromDate int64
	Target   transport.ChatTarget
}

// CycleResult describes what a single cycle did.
type CycleResult struct {
	Record        *homework.Record
	Changed       bool
	Notified      bool
	ErrorReported bool
	Err           error
	Cursor        int64
	Took          time.Duration
}

func (r CycleResult) OK() bool { return r.Err == nil }

// Snapshot is a point-in-time copy of the loop state for status surfaces.
type Snapshot struct {
	Last        *homework.Record `json:"last,omitempty"`
	Cursor      int64            `json:"cursor"`
	Schedule    string           `json:"schedule"`
	Cycles      uint64           `json:"cycles"`
	Changes     uint64           `json:"changes"`
	Notified    uint64           `json:"notified"`
	Failures    uint64           `json:"failures"`
	LastError   string           `json:"last_error,omitempty"`
	LastErrorAt time.Time        `json:"last_error_at,omitempty"`
	LastCycleAt time.Time        `json:"last_cycle_at,omitempty"`
	LastOKAt    time.Time        `json:"last_ok_at,omitempty"`
	NextRunAt   time.Time        `json:"next_run_at,omitempty"`
	Running     bool             `json:"running"`
}

// CycleEvent is published on the bus after every cycle.
type CycleEvent struct {
	Homework string        `json:"homework,omitempty"`
	Status   string        `json:"status,omitempty"`
	Changed  bool          `json:"changed"`
	Notified bool          `json:"notified"`
	Cursor   int64         `json:"cursor"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took"`
}
