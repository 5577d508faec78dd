package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// writeConfig writes a config that launches shell instead of the real file
// server and keeps state in a sqlite file inside dir.
func writeConfig(t *testing.T, dir, shellScript string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
name = "clitest"
port = 18380
root_dir = %q
poll_interval = "50ms"
stop_grace = "2s"

[launch]
command = "sh"
args = ["-c", %q]
log_dir = %q

[state]
type = "sqlite"
path = %q

[log]
level = "error"
color = false
`, filepath.Join(dir, "www"), shellScript, filepath.Join(dir, "logs"), filepath.Join(dir, "state.db"))
	p := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(cfg), 0o644))
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "localserve")
	for _, sub := range []string{"start", "stop", "status", "logs", "serve", "config"} {
		assert.Contains(t, out, sub)
	}
}

func TestStartStatusLogsStop(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "echo hello; echo 'ERROR boom'; exec sleep 30")
	t.Cleanup(func() { _, _ = run(t, "--config", cfg, "stop") })

	out, err := run(t, "--config", cfg, "start")
	require.NoError(t, err)
	assert.Contains(t, out, "server started (PID:")
	assert.Contains(t, out, "http://localhost:18380/")

	// a second invocation re-attaches to the same process
	out, err = run(t, "--config", cfg, "status", "--json")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, true, st["running"])
	assert.Equal(t, true, st["attached"])

	require.Eventually(t, func() bool {
		out, err = run(t, "--config", cfg, "logs", "--filter", "error", "--color=false")
		return err == nil && strings.Contains(out, "ERROR boom")
	}, 3*time.Second, 50*time.Millisecond)
	assert.NotContains(t, out, "hello")

	out, err = run(t, "--config", cfg, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "server stopped (graceful)")

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")

	out, err = run(t, "--config", cfg, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "server not running")
}

func TestStartWithoutRootFails(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("[state]\ntype = \"memory\"\n[log]\nlevel = \"error\"\n[launch]\nlog_dir = %q\n", dir)), 0o644))
	_, err := run(t, "--config", p, "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root directory not set")
}

func TestConfigSetAndShow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "exec sleep 30")
	root := filepath.Join(dir, "site")

	_, err := run(t, "--config", cfg, "config", "set")
	require.Error(t, err)

	out, err := run(t, "--config", cfg, "config", "set", "--port", "18381", "--root", root, "--auto-start")
	require.NoError(t, err)
	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, float64(18381), s["port"])
	assert.Equal(t, root, s["root_dir"])
	assert.Equal(t, true, s["auto_start"])

	out, err = run(t, "--config", cfg, "config", "show")
	require.NoError(t, err)
	var shown struct {
		Settings map[string]any `json:"settings"`
		LogFile  string         `json:"log_file"`
		Name     string         `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "clitest", shown.Name)
	assert.Equal(t, float64(18381), shown.Settings["port"])
	assert.True(t, strings.HasSuffix(shown.LogFile, "server_18381.log"))
}

func TestConfigSetRefusedWhileRunning(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "exec sleep 30")
	t.Cleanup(func() { _, _ = run(t, "--config", cfg, "stop") })

	_, err := run(t, "--config", cfg, "start")
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "config", "set", "--port", "18382")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server is running")

	_, err = run(t, "--config", cfg, "config", "set", "--show-logs=false")
	require.NoError(t, err)
}

func TestSettingsPatchOnlyChangedFlags(t *testing.T) {
	cmd := createConfigSetCommand(&GlobalFlags{})
	require.NoError(t, cmd.ParseFlags([]string{"--show-logs=false"}))
	p, err := settingsPatch(cmd, ConfigSetFlags{ShowLogs: false, Port: 1})
	require.NoError(t, err)
	assert.Nil(t, p.Port)
	assert.Nil(t, p.RootDir)
	assert.Nil(t, p.AutoStart)
	require.NotNil(t, p.ShowLogs)
	assert.False(t, *p.ShowLogs)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeLeavesServerRunning(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "echo ready; exec sleep 30")
	t.Cleanup(func() { _, _ = run(t, "--config", cfg, "stop") })
	_, err := run(t, "--config", cfg, "config", "set", "--auto-start")
	require.NoError(t, err)

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		root := buildRoot()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"--config", cfg, "serve", "--listen", addr, "--base-path", "/api"})
		done <- root.ExecuteContext(ctx)
	}()

	var st map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/status")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return json.NewDecoder(resp.Body).Decode(&st) == nil && st["running"] == true
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/logs?filter=ready")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var body struct {
			Entries []map[string]any `json:"entries"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && len(body.Entries) == 1
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}

	out, err := run(t, "--config", cfg, "status", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, true, st["running"], "serve leaves the server running")
}
