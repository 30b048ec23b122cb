package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     string
		limit  int
		chunks int
	}{
		{name: "short", in: "Изменился статус", limit: 100, chunks: 1},
		{name: "exact", in: strings.Repeat("ж", 100), limit: 100, chunks: 1},
		{name: "hard split", in: strings.Repeat("ж", 250), limit: 100, chunks: 3},
		{name: "newline split", in: strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60), limit: 100, chunks: 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitTelegramText(tt.in, tt.limit)
			require.Len(t, got, tt.chunks)
			for _, c := range got {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), tt.limit)
				assert.NotEmpty(t, c)
			}
		})
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitTelegramText(in, 100)
	require.Len(t, got, 2)
	assert.Equal(t, strings.Repeat("a", 60), got[0])
	assert.Equal(t, strings.Repeat("b", 60), got[1])
}

func TestSplitKeepsAllText(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("строка отчёта\n", 700)
	got := splitTelegramText(in, telegramTextLimit)
	require.Greater(t, len(got), 1)
	joined := strings.Join(got, "\n")
	assert.Equal(t, strings.TrimRight(in, "\n"), joined)
}

func TestNewAndChatGuard(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)

	a, err := New(Config{Token: "123:abc", Offline: true, Commands: true, ChatID: 42}, logx.Nop())
	require.NoError(t, err)
	assert.True(t, a.allowed(42))
	assert.False(t, a.allowed(7))

	a2, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	assert.False(t, a2.allowed(0))
	require.NoError(t, a2.Start(context.Background()))
}

func TestSendTextReportsUndeliveredTail(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		mu.Lock()
		texts = append(texts, params["text"].(string))
		n := len(texts)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if n == 2 {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":`+string(rune('0'+n))+`,"date":1,"chat":{"id":42,"type":"private"},"text":"x"}}`)
	}))
	defer srv.Close()

	a, err := New(Config{Token: "123:abc", Offline: true, APIURL: srv.URL}, logx.Nop())
	require.NoError(t, err)

	head := strings.Repeat("а", 3000)
	tail := strings.Repeat("б", 3000)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = a.SendText(ctx, transport.ChatTarget{ChatID: 42}, head+"\n"+tail, nil)

	var pe *transport.PartialSendError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, 1, pe.Sent)
	assert.Equal(t, tail, pe.Rest)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{head, tail}, texts)
}
