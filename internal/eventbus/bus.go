package eventbus

import (
	"sync"
	"time"
)

// Event types published by the poll loop and the notifier.
const (
	CycleOK         = "cycle.ok"
	CycleFailed     = "cycle.failed"
	StatusChanged   = "status.changed"
	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDeduped = "notifier.deduped"
	ErrorReported   = "error.reported"
	ErrorSuppressed = "error.suppressed"
)

// Event is one in-process signal. Data stays small and JSON-friendly since
// the ops endpoint renders it as is.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

const defaultSubBuffer = 8

// New returns an in-memory bus. It starts no goroutines.
func New() Bus { return &memBus{} }

type memBus struct {
	// Sends happen under the read lock and unsubscribe takes the write lock,
	// so a channel is never closed mid-send.
	mu   sync.RWMutex
	subs []chan Event
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { b.remove(ch) }) }
}

func (b *memBus) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.subs {
		if cur == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	close(ch)
}

// Publish stamps and publishes an event on b. A nil bus is ignored.
func Publish(b Bus, typ string, data any) {
	if b != nil {
		b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
	}
}
