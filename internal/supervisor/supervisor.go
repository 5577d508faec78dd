// Package supervisor keeps one external file-server process under control
// across restarts of the host: it launches the server detached, persists its
// identity, re-attaches to it later and streams its log incrementally.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/localserve/internal/metrics"
	"github.com/loykin/localserve/internal/process"
	"github.com/loykin/localserve/internal/store"
	"github.com/loykin/localserve/internal/tail"
)

// Supervisor is safe for concurrent use. Observer callbacks run after the
// internal lock is released, so they may call back into the Supervisor.
type Supervisor struct {
	mu      sync.Mutex
	cfg     Config
	keys    identityKeys
	store   store.Store
	log     *slog.Logger
	now     func() time.Time
	proc    serverProcess
	attach  func(process.Handle) serverProcess
	tail    *tail.Tailer
	pending []string

	// configured holds the host's port and root while a re-attached server
	// runs with its own
	configured *Config

	obsMu     sync.Mutex
	observers map[int]func(string)
	nextObs   int
}

// serverProcess is the handle the supervisor drives; *process.Process implements it.
type serverProcess interface {
	Handle() process.Handle
	PID() int
	Alive() (bool, error)
	ExitErr() error
	Stop(grace time.Duration) (process.StopResult, error)
}

func attachProcess(h process.Handle) serverProcess { return process.Attach(h) }

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the clock used for observer timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, st store.Store, opts ...Option) *Supervisor {
	cfg = cfg.withDefaults()
	var tailOpts []tail.Option
	if cfg.MaxLogChunk > 0 {
		tailOpts = append(tailOpts, tail.WithMaxChunk(cfg.MaxLogChunk))
	}
	s := &Supervisor{
		cfg:       cfg,
		keys:      keysFor(cfg.Name),
		store:     st,
		log:       slog.Default(),
		now:       time.Now,
		tail:      tail.New("", tailOpts...),
		attach:    attachProcess,
		observers: make(map[int]func(string)),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("instance", cfg.Name)
	return s
}

// Subscribe registers fn for "[HH:MM:SS] message" status lines.
func (s *Supervisor) Subscribe(fn func(string)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// emit queues a status line; it must be called with s.mu held.
func (s *Supervisor) emit(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.pending = append(s.pending, "["+s.now().Format("15:04:05")+"] "+msg)
}

// do runs fn under the lock and delivers queued status lines afterwards.
func (s *Supervisor) do(fn func()) {
	s.mu.Lock()
	fn()
	msgs := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	s.obsMu.Lock()
	fns := make([]func(string), 0, len(s.observers))
	for _, f := range s.observers {
		fns = append(fns, f)
	}
	s.obsMu.Unlock()
	for _, m := range msgs {
		for _, f := range fns {
			f(m)
		}
	}
}

// Start launches the server unless it is already running.
func (s *Supervisor) Start(ctx context.Context) error {
	var err error
	s.do(func() { err = s.startLocked(ctx) })
	return err
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	if s.isRunningLocked(ctx) {
		return nil
	}
	cfg := s.cfg
	spec, err := buildSpec(cfg)
	if err != nil {
		s.emit("%s", startFailureMessage(err))
		metrics.IncStartFailure(cfg.Name, failureReason(err))
		s.log.Warn("start rejected", "port", cfg.Port, "root", cfg.RootDirectory, "error", err)
		return err
	}
	p, err := process.Launch(spec)
	if err != nil {
		s.emit("start failed: %v", err)
		metrics.IncStartFailure(cfg.Name, "launch")
		s.log.Error("start failed", "command", spec.Command, "args", spec.Args, "error", err)
		return fmt.Errorf("launch %s: %w", spec.Command, err)
	}
	h := p.Handle()
	s.proc = p
	s.tail.Reset(spec.LogPath)

	id := Identity{
		PID:       h.PID,
		LogPath:   spec.LogPath,
		StartUnix: h.StartUnix,
		LaunchID:  h.LaunchID,
		Port:      cfg.Port,
		Root:      cfg.RootDirectory,
	}
	if err := saveIdentity(ctx, s.store, s.keys, id); err != nil {
		s.emit("state not saved: %v", err)
		s.log.Error("persist identity", "pid", h.PID, "error", err)
	}

	s.emit("server started (PID: %d)", h.PID)
	metrics.IncStart(cfg.Name)
	metrics.SetRunning(cfg.Name, true)
	s.log.Info("server started", "pid", h.PID, "port", cfg.Port, "root", cfg.RootDirectory,
		"log_file", spec.LogPath, "launch_id", h.LaunchID)
	return nil
}

func startFailureMessage(err error) string {
	if errors.Is(err, ErrRootNotSet) {
		return "root directory not set"
	}
	return "start failed: " + err.Error()
}

// Stop terminates the server. Persisted identity is cleared even when the
// process could not be ended. With no server it returns StopNotRunning.
func (s *Supervisor) Stop(ctx context.Context) (process.StopResult, error) {
	var (
		res process.StopResult
		err error
	)
	s.do(func() { res, err = s.stopLocked(ctx) })
	return res, err
}

func (s *Supervisor) stopLocked(ctx context.Context) (process.StopResult, error) {
	if s.proc == nil {
		s.reattachLocked(ctx)
	}
	p := s.proc
	if p == nil {
		return process.StopNotRunning, nil
	}
	pid := p.PID()
	began := time.Now()
	res, err := p.Stop(s.cfg.StopGrace)
	metrics.ObserveStopDuration(s.cfg.Name, time.Since(began).Seconds())
	s.releaseLocked(ctx)

	metrics.IncStop(s.cfg.Name, res.String())
	if err != nil {
		s.emit("stop failed: %v", err)
		s.log.Error("stop failed", "pid", pid, "outcome", res.String(), "error", err)
		return res, err
	}
	s.emit("server stopped")
	s.log.Info("server stopped", "pid", pid, "outcome", res.String())
	return res, nil
}

// IsRunning reports whether the server is alive, re-attaching from persisted
// identity when this instance holds no handle. An exited server is released.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	var ok bool
	s.do(func() { ok = s.isRunningLocked(ctx) })
	return ok
}

func (s *Supervisor) isRunningLocked(ctx context.Context) bool {
	if s.proc == nil {
		s.reattachLocked(ctx)
		if s.proc == nil {
			return false
		}
	}
	alive, err := s.proc.Alive()
	if err != nil {
		s.log.Debug("liveness probe failed", "pid", s.proc.PID(), "error", err)
	}
	if alive {
		return true
	}
	pid := s.proc.PID()
	exitErr := s.proc.ExitErr()
	s.releaseLocked(ctx)
	s.emit("server exited (PID: %d)", pid)
	s.log.Info("server exited", "pid", pid, "exit", errString(exitErr))
	return false
}

// reattachLocked restores the handle from persisted identity when the
// recorded process is still the one we launched.
func (s *Supervisor) reattachLocked(ctx context.Context) {
	id, ok, err := loadIdentity(ctx, s.store, s.keys)
	if err != nil {
		s.log.Debug("read identity", "error", err)
		return
	}
	if !ok {
		return
	}
	res, err := process.Probe(id.PID, id.StartUnix)
	if err != nil || res != process.ProbeRunning {
		outcome := res.String()
		if err != nil {
			outcome = "error"
		}
		if cerr := clearIdentity(ctx, s.store, s.keys); cerr != nil {
			s.log.Warn("clear identity", "error", cerr)
		}
		metrics.IncReattach(s.cfg.Name, outcome)
		s.log.Debug("stale identity cleared", "pid", id.PID, "outcome", outcome, "error", errString(err))
		return
	}
	h := process.Handle{
		PID:       id.PID,
		StartUnix: id.StartUnix,
		LaunchID:  id.LaunchID,
		LogPath:   id.LogPath,
	}
	if id.StartUnix > 0 {
		h.StartedAt = time.Unix(id.StartUnix, 0)
	}
	s.proc = s.attach(h)
	// the running server's settings win over the configured ones until it is released
	if s.configured == nil {
		cfg := s.cfg
		s.configured = &cfg
	}
	if id.Port > 0 {
		s.cfg.Port = id.Port
	}
	if id.Root != "" {
		s.cfg.RootDirectory = id.Root
	}
	if id.LogPath != "" {
		s.tail.SetPath(id.LogPath)
	}
	s.emit("re-attached to server (PID: %d)", id.PID)
	metrics.IncReattach(s.cfg.Name, "running")
	metrics.SetRunning(s.cfg.Name, true)
	s.log.Info("re-attached", "pid", id.PID, "log_file", id.LogPath, "outcome", "running")
}

// releaseLocked drops the handle and the persisted identity together and
// restores the configured settings a re-attach replaced.
func (s *Supervisor) releaseLocked(ctx context.Context) {
	s.proc = nil
	if s.configured != nil {
		s.cfg.Port = s.configured.Port
		s.cfg.RootDirectory = s.configured.RootDirectory
		s.configured = nil
	}
	metrics.SetRunning(s.cfg.Name, false)
	if err := clearIdentity(ctx, s.store, s.keys); err != nil {
		s.log.Warn("clear identity", "error", err)
	}
}

// ReadNewLogs returns log output appended since the previous call, or "".
// Before the first Start it follows the persisted log path, or else the
// configured one.
func (s *Supervisor) ReadNewLogs(ctx context.Context) string {
	var out string
	s.do(func() {
		path := s.tail.Path()
		if path == "" || !exists(path) {
			if id, ok, err := loadIdentity(ctx, s.store, s.keys); err == nil && ok && id.LogPath != "" {
				s.tail.SetPath(id.LogPath)
			} else if path == "" {
				// output of a previous run on the configured port
				s.tail.SetPath(LogPathFor(s.cfg.Launch.LogDir, s.cfg.Port))
			}
		}
		b := s.tail.ReadNew()
		metrics.AddLogBytes(s.cfg.Name, len(b))
		out = string(b)
	})
	return out
}

// LogPath is the file the tailer currently follows.
func (s *Supervisor) LogPath() string { return s.tail.Path() }

// NextLogPath is the file the next Start will write to.
func (s *Supervisor) NextLogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LogPathFor(s.cfg.Launch.LogDir, s.cfg.Port)
}

// LogDir is the directory every launch writes its log to.
func (s *Supervisor) LogDir() string { return s.cfg.Launch.LogDir }

func (s *Supervisor) Name() string { return s.cfg.Name }

func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}

func (s *Supervisor) RootDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RootDirectory
}

// SetPort changes the port used by the next Start.
func (s *Supervisor) SetPort(ctx context.Context, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	var err error
	s.do(func() {
		if s.isRunningLocked(ctx) {
			err = ErrRunning
			return
		}
		s.cfg.Port = port
	})
	return err
}

// SetRootDirectory changes the directory served by the next Start.
func (s *Supervisor) SetRootDirectory(ctx context.Context, dir string) error {
	var err error
	s.do(func() {
		if s.isRunningLocked(ctx) {
			err = ErrRunning
			return
		}
		s.cfg.RootDirectory = strings.TrimSpace(dir)
	})
	return err
}

// Status is a point-in-time view of the supervised server.
type Status struct {
	Name          string    `json:"name"`
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	Port          int       `json:"port"`
	RootDirectory string    `json:"root_dir"`
	LogPath       string    `json:"log_file,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LaunchID      string    `json:"launch_id,omitempty"`
	Attached      bool      `json:"attached"`
	URL           string    `json:"url,omitempty"`
}

func (s *Supervisor) Status(ctx context.Context) Status {
	var st Status
	s.do(func() {
		st = Status{
			Name:          s.cfg.Name,
			Port:          s.cfg.Port,
			RootDirectory: s.cfg.RootDirectory,
			LogPath:       s.tail.Path(),
		}
		if !s.isRunningLocked(ctx) {
			return
		}
		h := s.proc.Handle()
		st.Running = true
		st.PID = h.PID
		st.StartedAt = h.StartedAt
		st.LaunchID = h.LaunchID
		st.Attached = h.Attached
		st.URL = fmt.Sprintf("http://localhost:%d/", s.cfg.Port)
		if h.LogPath != "" {
			st.LogPath = h.LogPath
		}
	})
	return st
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
