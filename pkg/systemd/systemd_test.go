package systemd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbot/pkg/logx"
)

func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", sock)
	return conn
}

func readMsg(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNoSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	require.NoError(t, err)
	assert.False(t, sent)

	t.Setenv("WATCHDOG_USEC", "")
	d, err := WatchdogInterval()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestNotifyMessages(t *testing.T) {
	conn := listenNotify(t)

	sent, err := Ready()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "READY=1", readMsg(t, conn))

	_, err = Status("polling")
	require.NoError(t, err)
	assert.Equal(t, "STATUS=polling", readMsg(t, conn))

	_, err = Stopping()
	require.NoError(t, err)
	assert.Equal(t, "STOPPING=1", readMsg(t, conn))
}

func TestRunWatchdog(t *testing.T) {
	conn := listenNotify(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunWatchdog(ctx, 40*time.Millisecond, logx.Nop())
		close(done)
	}()
	assert.Equal(t, "WATCHDOG=1", readMsg(t, conn))
	cancel()
	<-done

	// A zero interval returns immediately.
	RunWatchdog(context.Background(), 0, logx.Nop())
}
