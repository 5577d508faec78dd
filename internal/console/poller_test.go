package console

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	running bool
	chunks  []string
	reads   int
}

func (f *fakeSource) IsRunning(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSource) ReadNewLogs(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.chunks) == 0 {
		return ""
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c
}

func (f *fakeSource) push(s string) {
	f.mu.Lock()
	f.chunks = append(f.chunks, s)
	f.mu.Unlock()
}

func TestPollSplitsTrimsAndDropsBlanks(t *testing.T) {
	src := &fakeSource{running: true, chunks: []string{"  first \r\n\n\nsecond\n   \nthird"}}
	p := NewPoller(src, NewLogBuffer(10), time.Second, WithPollClock(func() time.Time { return t0 }))

	n := p.Poll(context.Background())
	assert.Equal(t, 3, n)
	assert.True(t, p.Running())
	assert.Equal(t, []string{"first", "second", "third"}, texts(p.Buffer().Lines()))
	assert.Equal(t, t0, p.Buffer().Lines()[0].Time)
}

func TestPollRespectsShowLogs(t *testing.T) {
	src := &fakeSource{chunks: []string{"hidden\n"}}
	p := NewPoller(src, NewLogBuffer(10), time.Second)
	p.SetShowLogs(false)
	assert.False(t, p.ShowLogs())

	assert.Equal(t, 0, p.Poll(context.Background()))
	assert.Equal(t, 0, src.reads)
	assert.False(t, p.Running())

	p.SetShowLogs(true)
	assert.Equal(t, 1, p.Poll(context.Background()))
}

func TestRunWakesEarly(t *testing.T) {
	src := &fakeSource{running: true}
	wake := make(chan struct{}, 1)
	p := NewPoller(src, NewLogBuffer(10), time.Hour, WithWake(wake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	src.push("woken\n")
	wake <- struct{}{}
	require.Eventually(t, func() bool { return p.Buffer().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunTicks(t *testing.T) {
	src := &fakeSource{running: true}
	p := NewPoller(src, NewLogBuffer(10), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src.push("a\n")
	src.push("b\n")
	require.Eventually(t, func() bool { return p.Buffer().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestOnEvent(t *testing.T) {
	p := NewPoller(&fakeSource{}, NewLogBuffer(1), 0)
	assert.Equal(t, "", p.LastEvent())
	p.OnEvent("[10:00:00] server started (PID: 1)")
	assert.True(t, strings.Contains(p.LastEvent(), "server started"))
	p.OnEvent("[10:00:01] stop failed: permission denied")
	assert.Equal(t, "[10:00:01] stop failed: permission denied", p.LastEvent())
	assert.Equal(t, []string{"stop failed: permission denied"}, texts(p.Buffer().Lines()))
}

func TestOnEventKeepsEveryLine(t *testing.T) {
	p := NewPoller(&fakeSource{}, NewLogBuffer(10), 0, WithPollClock(func() time.Time { return t0 }))
	p.OnEvent("[10:00:00] re-attached to server (PID: 7)")
	p.OnEvent("[10:00:05] server exited (PID: 7)")
	p.OnEvent("no stamp")
	p.OnEvent("[10:00:06] ")

	lines := p.Buffer().Lines()
	assert.Equal(t, []string{"re-attached to server (PID: 7)", "server exited (PID: 7)", "no stamp"}, texts(lines))
	assert.Equal(t, t0, lines[0].Time)
}
