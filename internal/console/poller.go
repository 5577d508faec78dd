package console

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often the poller asks the supervisor for news.
const DefaultPollInterval = 500 * time.Millisecond

// Source is the part of the supervisor the poller needs.
type Source interface {
	IsRunning(ctx context.Context) bool
	ReadNewLogs(ctx context.Context) string
}

// Poller moves new log output from a Source into a LogBuffer and tracks the
// running state and the latest status event.
type Poller struct {
	src      Source
	buf      *LogBuffer
	interval time.Duration
	wake     <-chan struct{}
	now      func() time.Time

	showLogs atomic.Bool
	running  atomic.Bool

	mu        sync.Mutex
	lastEvent string
}

type PollerOption func(*Poller)

// WithWake lets an external signal (e.g. a file watcher) trigger a poll early.
func WithWake(ch <-chan struct{}) PollerOption {
	return func(p *Poller) { p.wake = ch }
}

func WithPollClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(src Source, buf *LogBuffer, interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{src: src, buf: buf, interval: interval, now: time.Now}
	p.showLogs.Store(true)
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Poller) Buffer() *LogBuffer { return p.buf }

// SetShowLogs toggles log collection. Hidden output stays unread in the file
// and shows up once collection is re-enabled.
func (p *Poller) SetShowLogs(v bool) { p.showLogs.Store(v) }

func (p *Poller) ShowLogs() bool { return p.showLogs.Load() }

// Running is the state seen by the most recent poll.
func (p *Poller) Running() bool { return p.running.Load() }

// OnEvent records a supervisor status line as the latest event and appends it
// to the log view. It has the shape of an observer callback.
func (p *Poller) OnEvent(line string) {
	p.mu.Lock()
	p.lastEvent = line
	p.mu.Unlock()
	if text := eventText(line); text != "" {
		p.buf.Add(p.now(), text)
	}
}

// eventText drops the "[HH:MM:SS] " stamp; buffer entries carry their own time.
func eventText(line string) string {
	if len(line) > 11 && line[0] == '[' && line[9] == ']' && line[10] == ' ' {
		line = line[11:]
	}
	return strings.TrimSpace(line)
}

func (p *Poller) LastEvent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastEvent
}

// Poll performs one refresh and returns the number of lines added.
func (p *Poller) Poll(ctx context.Context) int {
	p.running.Store(p.src.IsRunning(ctx))
	if !p.showLogs.Load() {
		return 0
	}
	return p.Ingest(p.src.ReadNewLogs(ctx))
}

// Ingest splits text on newlines, trims each piece, drops blanks and appends
// the rest with the current time.
func (p *Poller) Ingest(text string) int {
	if text == "" {
		return 0
	}
	now := p.now()
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.buf.Add(now, line)
		n++
	}
	return n
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Poll(ctx)
		case _, ok := <-p.wake:
			if !ok {
				p.wake = nil
				continue
			}
			p.Poll(ctx)
		}
	}
}
