package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Publish(b, CycleOK, map[string]int{"n": 1})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, CycleOK, e.Type)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubA()
	unsubA() // idempotent
	_, ok := <-a
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: CycleFailed})
	Publish(nil, CycleFailed, nil)
}

func TestPublishDropsWhenSubscriberSlow(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	e := <-ch
	assert.Equal(t, "one", e.Type)
	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event %q", e.Type)
	default:
	}
}

func TestRecorderRing(t *testing.T) {
	t.Parallel()
	r := NewRecorder(3)
	assert.Empty(t, r.Recent())
	for i := 0; i < 5; i++ {
		r.Add(Event{Type: fmt.Sprint(i)})
	}
	got := r.Recent()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2", "3", "4"}, []string{got[0].Type, got[1].Type, got[2].Type})
}

func TestRecorderRun(t *testing.T) {
	t.Parallel()
	b := New()
	r := NewRecorder(10)
	ch, unsub := b.Subscribe(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, ch)
		close(done)
	}()

	b.Publish(Event{Type: StatusChanged})
	require.Eventually(t, func() bool { return len(r.Recent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	unsub()
}
