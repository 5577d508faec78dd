package console

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/localserve/internal/config"
	"github.com/loykin/localserve/internal/process"
	"github.com/loykin/localserve/internal/store/memory"
	"github.com/loykin/localserve/internal/supervisor"
)

func newTestPanel(t *testing.T, settings config.Settings, save func(config.Settings) error) (*Panel, *supervisor.Supervisor) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sleep on Unix-like systems")
	}
	dir := t.TempDir()
	if settings.RootDir == "" {
		settings.RootDir = filepath.Join(dir, "www")
	}
	sup := supervisor.New(supervisor.Config{
		Name:          "panel",
		Port:          settings.Port,
		RootDirectory: settings.RootDir,
		Launch:        supervisor.LaunchConfig{Command: "sleep", Args: []string{"30"}, LogDir: filepath.Join(dir, "logs")},
	}, memory.New())
	t.Cleanup(func() { _, _ = sup.Stop(context.Background()) })
	p := NewPanel(sup, NewPoller(sup, NewLogBuffer(100), time.Hour), settings, save, nil)
	t.Cleanup(p.Close)
	return p, sup
}

func TestPanelAutoStart(t *testing.T) {
	ctx := context.Background()
	p, sup := newTestPanel(t, config.Settings{Port: 18090, AutoStart: true, ShowLogs: true}, nil)

	require.NoError(t, p.Open(ctx))
	require.True(t, sup.IsRunning(ctx))
	st := p.Status(ctx)
	assert.True(t, st.Running)
	assert.True(t, st.AutoStart)
	assert.Contains(t, st.LastEvent, "server started (PID:")
	assert.Equal(t, "http://localhost:18090/", st.URL)

	f, err := os.OpenFile(sup.LogPath(), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, _ = f.WriteString("GET / 200\nERROR missing file\n")
	_ = f.Close()
	p.Poller().Poll(ctx)
	lines := texts(p.Buffer().Lines())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "server started (PID:")
	assert.Equal(t, []string{"GET / 200", "ERROR missing file"}, lines[1:])
	assert.Equal(t, SevError, p.Buffer().Lines()[2].Severity)

	res, err := p.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, process.StopGraceful, res)
	assert.False(t, p.Status(ctx).Running)
	assert.Contains(t, p.Status(ctx).LastEvent, "server stopped")
	assert.Equal(t, "server stopped", texts(p.Buffer().Lines())[3])
}

func TestPanelRejectedStartIsLogged(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPanel(t, config.Settings{Port: 18097, RootDir: "  "}, nil)

	require.ErrorIs(t, p.Start(ctx), supervisor.ErrRootNotSet)
	require.ErrorIs(t, p.Start(ctx), supervisor.ErrRootNotSet)
	assert.Equal(t, []string{"root directory not set", "root directory not set"}, texts(p.Buffer().Lines()))
	assert.Equal(t, 2, p.Status(ctx).Buffered)
}

func TestPanelOpenWithoutAutoStart(t *testing.T) {
	ctx := context.Background()
	p, sup := newTestPanel(t, config.Settings{Port: 18091}, nil)
	require.NoError(t, p.Open(ctx))
	assert.False(t, sup.IsRunning(ctx))
}

func TestPanelUpdatePersistsEveryChange(t *testing.T) {
	ctx := context.Background()
	var saved []config.Settings
	p, sup := newTestPanel(t, config.Settings{Port: 18092, ShowLogs: true}, func(s config.Settings) error {
		saved = append(saved, s)
		return nil
	})

	port := 18093
	show := false
	got, err := p.Update(ctx, SettingsPatch{Port: &port, ShowLogs: &show})
	require.NoError(t, err)
	assert.Equal(t, 18093, got.Port)
	assert.Equal(t, 18093, sup.Port())
	assert.False(t, p.Poller().ShowLogs())
	require.Len(t, saved, 1)
	assert.Equal(t, got, saved[0])

	auto := true
	_, err = p.Update(ctx, SettingsPatch{AutoStart: &auto})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.True(t, saved[1].AutoStart)
}

func TestPanelUpdateRefusedWhileRunning(t *testing.T) {
	ctx := context.Background()
	saves := 0
	p, _ := newTestPanel(t, config.Settings{Port: 18094}, func(config.Settings) error { saves++; return nil })
	require.NoError(t, p.Start(ctx))

	port := 18095
	_, err := p.Update(ctx, SettingsPatch{Port: &port})
	require.ErrorIs(t, err, supervisor.ErrRunning)
	assert.Equal(t, 18094, p.Settings().Port)
	assert.Equal(t, 0, saves)

	root := "/elsewhere"
	_, err = p.Update(ctx, SettingsPatch{RootDir: &root})
	require.ErrorIs(t, err, supervisor.ErrRunning)
}

func TestPanelUpdateReportsSaveFailure(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPanel(t, config.Settings{Port: 18096}, func(config.Settings) error { return errors.New("disk full") })
	auto := true
	got, err := p.Update(ctx, SettingsPatch{AutoStart: &auto})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
	assert.True(t, got.AutoStart, "the in-memory change is kept")
}

func TestPanelStopOfReattachedServerRestoresSettings(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tests require sleep on Unix-like systems")
	}
	ctx := context.Background()
	st := memory.New()
	dir := t.TempDir()
	launch := supervisor.LaunchConfig{Command: "sleep", Args: []string{"30"}, LogDir: filepath.Join(dir, "logs")}

	first := supervisor.New(supervisor.Config{Name: "panel", Port: 18080, RootDirectory: filepath.Join(dir, "www"), Launch: launch}, st)
	t.Cleanup(func() { _, _ = first.Stop(ctx) })
	require.NoError(t, first.Start(ctx))

	other := filepath.Join(dir, "other")
	second := supervisor.New(supervisor.Config{Name: "panel", Port: 19090, RootDirectory: other, Launch: launch}, st)
	t.Cleanup(func() { _, _ = second.Stop(ctx) })
	p := NewPanel(second, NewPoller(second, NewLogBuffer(100), time.Hour), config.Settings{Port: 19090, RootDir: other}, nil, nil)
	t.Cleanup(p.Close)

	require.True(t, second.IsRunning(ctx))
	assert.Equal(t, 18080, second.Port())

	port := 19090
	_, err := p.Update(ctx, SettingsPatch{Port: &port})
	require.NoError(t, err, "the saved port is unchanged")

	_, err = p.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 19090, second.Port())
	assert.Equal(t, other, second.RootDirectory())
	assert.True(t, strings.HasSuffix(second.NextLogPath(), "server_19090.log"))

	_, err = p.Update(ctx, SettingsPatch{Port: &port})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	status := p.Status(ctx)
	assert.Equal(t, 19090, status.Port)
	assert.Equal(t, "http://localhost:19090/", status.URL)
}

func TestPanelUpdateResyncsSupervisor(t *testing.T) {
	ctx := context.Background()
	p, sup := newTestPanel(t, config.Settings{Port: 18098}, nil)
	require.NoError(t, sup.SetPort(ctx, 18099))

	port := 18098
	_, err := p.Update(ctx, SettingsPatch{Port: &port})
	require.NoError(t, err)
	assert.Equal(t, 18098, sup.Port())
}
