package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/localserve/internal/console"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestLogsFollowPrintsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "exec sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg, &bytes.Buffer{}, appOptions{})
	require.NoError(t, err)
	defer a.close()

	logPath := a.sup.NextLogPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte("first\n"), 0o644))

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- cmdLogs(ctx, a, out, LogsFlags{Follow: true, Filter: "WARN", Interval: 20 * time.Millisecond})
	}()

	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("GET / 200\nWARN slow request\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "WARN slow request") }, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NotContains(t, out.String(), "first")
	assert.NotContains(t, out.String(), "GET /")
}

func TestWatchLogFollowsPortChange(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "exec sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg, &bytes.Buffer{}, appOptions{})
	require.NoError(t, err)
	defer a.close()

	wake, err := watchLog(ctx, a.sup)
	require.NoError(t, err)

	port := 18381
	_, err = a.panel.Update(ctx, console.SettingsPatch{Port: &port})
	require.NoError(t, err)
	logPath := a.sup.NextLogPath()
	require.True(t, strings.HasSuffix(logPath, "server_18381.log"))
	require.NoError(t, os.WriteFile(logPath, []byte("moved\n"), 0o644))

	select {
	case <-wake:
	case <-time.After(3 * time.Second):
		t.Fatal("no wakeup for the log of the new port")
	}
}

func TestStatusTextWhenStopped(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "exec sleep 30")
	ctx := context.Background()
	a, err := openApp(ctx, cfg, &bytes.Buffer{}, appOptions{})
	require.NoError(t, err)
	defer a.close()

	var out bytes.Buffer
	require.NoError(t, cmdStatus(ctx, a, &out, StatusFlags{}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "○ stopped", lines[0])
	assert.Equal(t, "port:  18380", lines[1])
	assert.Equal(t, "root:  "+filepath.Join(dir, "www"), lines[2])
}

func TestOpenAppRejectsBadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(p, []byte("port = 70000\n"), 0o644))
	_, err := openApp(context.Background(), p, &bytes.Buffer{}, appOptions{})
	require.Error(t, err)
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
	assert.False(t, useColor(&bytes.Buffer{}, true))
}
