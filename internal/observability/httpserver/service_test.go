package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/storage"
	"hwbot/internal/watcher"
	"hwbot/pkg/logx"
)

func testSources(t *testing.T) Sources {
	t.Helper()
	journal := storage.NewMemory(10)
	for i := 1; i <= 3; i++ {
		require.NoError(t, journal.AppendJournal(context.Background(), storage.JournalEntry{
			At: time.Now(), Kind: "status", Text: fmt.Sprintf("msg %d", i), OK: true, Attempts: 1,
		}))
	}
	events := eventbus.NewRecorder(4)
	events.Add(eventbus.Event{Type: eventbus.CycleOK, Time: time.Now()})

	return Sources{
		Watcher: func() watcher.Snapshot {
			return watcher.Snapshot{
				Last:     &homework.Record{HomeworkName: "hw1.zip", Status: homework.StatusApproved},
				Cursor:   1000,
				Schedule: "every 10m0s",
				Cycles:   3,
			}
		},
		History: func() []notifier.HistoryItem {
			return []notifier.HistoryItem{{At: time.Now(), Kind: "status", Text: "hello"}}
		},
		Journal: journal,
		Events:  events.Recent,
	}
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterStatus(t *testing.T) {
	t.Parallel()
	r := NewRouter(testSources(t), "", false, logx.Nop())

	rr := get(t, r, "/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Watcher struct {
			Cursor int64 `json:"cursor"`
			Cycles int   `json:"cycles"`
			Last   struct {
				HomeworkName string `json:"homework_name"`
				Status       string `json:"status"`
			} `json:"last"`
		} `json:"watcher"`
		Notifications []notifier.HistoryItem `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 1000, body.Watcher.Cursor)
	assert.Equal(t, 3, body.Watcher.Cycles)
	assert.Equal(t, "hw1.zip", body.Watcher.Last.HomeworkName)
	assert.Equal(t, "approved", body.Watcher.Last.Status)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "hello", body.Notifications[0].Text)

	rr = get(t, r, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRouterJournalAndEvents(t *testing.T) {
	t.Parallel()
	r := NewRouter(testSources(t), "", false, logx.Nop())

	rr := get(t, r, "/journal?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []storage.JournalEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "msg 2", entries[0].Text)
	assert.Equal(t, "msg 3", entries[1].Text)

	rr = get(t, r, "/journal?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "BAD_LIMIT")

	rr = get(t, r, "/events", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var events []eventbus.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.CycleOK, events[0].Type)

	rr = get(t, r, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterEmptySources(t *testing.T) {
	t.Parallel()
	r := NewRouter(Sources{}, "", false, logx.Nop())

	rr := get(t, r, "/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"notifications":[]`)
	assert.NotContains(t, rr.Body.String(), `"watcher"`)

	assert.JSONEq(t, `[]`, get(t, r, "/journal", nil).Body.String())
	assert.JSONEq(t, `[]`, get(t, r, "/events", nil).Body.String())
}

func TestRouterAuth(t *testing.T) {
	t.Parallel()
	r := NewRouter(testSources(t), "s3cret", false, logx.Nop())

	rr := get(t, r, "/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, get(t, r, "/status?token=wrong", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, "/status", map[string]string{"Authorization": "Bearer wrong"}).Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/status?token=s3cret", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, r, "/status", map[string]string{"Authorization": "Bearer s3cret"}).Code)
}

func TestRouterPprofToggle(t *testing.T) {
	t.Parallel()
	off := NewRouter(Sources{}, "", false, logx.Nop())
	assert.Equal(t, http.StatusNotFound, get(t, off, "/debug/pprof/", nil).Code)

	on := NewRouter(Sources{}, "", true, logx.Nop())
	assert.Equal(t, http.StatusOK, get(t, on, "/debug/pprof/", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, on, "/debug/pprof/goroutine?debug=1", nil).Code)
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, testSources(t), logx.Nop())
	s.Start(context.Background())

	select {
	case <-s.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start")
	}
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Apply(ctx, Config{Enabled: false})
	assert.Empty(t, s.Addr())
	assert.False(t, s.Enabled())
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	err := s.serveOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure bind")
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8080", true},
		{"localhost:8080", true},
		{"[::1]:8080", true},
		{":8080", false},
		{"0.0.0.0:8080", false},
		{"10.0.0.5:8080", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLoopbackAddr(tt.addr), tt.addr)
	}
}

func TestNeedsRestart(t *testing.T) {
	t.Parallel()
	a := Config{Enabled: true, Addr: "127.0.0.1:1"}
	assert.False(t, needsRestart(a, a))
	b := a
	b.Pprof = true
	assert.True(t, needsRestart(a, b))
	b = a
	b.Token = "x"
	assert.True(t, needsRestart(a, b))
}
