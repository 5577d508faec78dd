package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// killWait bounds how long Stop waits after the forced kill.
const killWait = 200 * time.Millisecond

// sendTerm and sendKill deliver the stop signals; tests replace them.
var (
	sendTerm = terminate
	sendKill = kill
)

// attachedPoll is the liveness poll interval for processes this instance did not launch.
const attachedPoll = 20 * time.Millisecond

// Process is a handle to one server process. It is either owned (launched by
// this instance, reaped by a wait goroutine) or attached (recovered from a
// persisted pid; liveness comes from OS probes).
type Process struct {
	mu       sync.Mutex
	handle   Handle
	cmd      *exec.Cmd
	waitDone chan struct{} // closed when cmd.Wait returns; nil for attached processes
	exitErr  error
}

// Launch starts spec as a detached process and returns its handle.
func Launch(spec Spec) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	prev := stashLog(spec.LogPath)
	out, err := spec.openOutput()
	if err != nil {
		restoreLog(spec.LogPath, prev)
		return nil, fmt.Errorf("open log: %w", err)
	}
	// the child keeps its own copy of the descriptor
	defer func() { _ = out.Close() }()

	cmd := spec.BuildCommand()
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		if spec.RedirectOutput {
			_ = os.Remove(spec.LogPath)
		}
		restoreLog(spec.LogPath, prev)
		return nil, err
	}
	if prev != "" {
		_ = os.Remove(prev)
	}

	pid := cmd.Process.Pid
	p := &Process{
		cmd:      cmd,
		waitDone: make(chan struct{}),
		handle: Handle{
			PID:       pid,
			StartUnix: StartUnix(pid),
			LaunchID:  uuid.NewString(),
			LogPath:   spec.LogPath,
			StartedAt: time.Now(),
		},
	}
	go p.reap()
	return p, nil
}

// Attach wraps a process recovered from persisted state.
func Attach(h Handle) *Process {
	h.Attached = true
	return &Process{handle: h}
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.waitDone)
}

// Handle returns a copy of the process identity.
func (p *Process) Handle() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// PID returns the process id.
func (p *Process) PID() int { return p.Handle().PID }

// Owned reports whether this instance launched the process.
func (p *Process) Owned() bool { return p.waitDone != nil }

// ExitErr returns the error cmd.Wait reported, if the owned process has exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Alive reports whether the process is still running. For attached processes
// the recorded start time guards against pid reuse; a mismatch counts as gone.
func (p *Process) Alive() (bool, error) {
	if p.waitDone != nil {
		select {
		case <-p.waitDone:
			return false, nil
		default:
			return true, nil
		}
	}
	h := p.Handle()
	res, err := Probe(h.PID, h.StartUnix)
	if err != nil {
		return false, err
	}
	return res == ProbeRunning, nil
}

// Stop asks the process to exit, waits up to grace, then kills it and waits
// briefly for it to disappear.
func (p *Process) Stop(grace time.Duration) (StopResult, error) {
	alive, err := p.Alive()
	if err != nil {
		return StopNotRunning, err
	}
	if !alive {
		return StopNotRunning, nil
	}
	pid := p.PID()

	if gracefulSignals && grace > 0 {
		// a refused terminate still escalates to kill
		if err := sendTerm(pid); err == nil || p.gone() {
			if p.waitExit(grace) {
				return StopGraceful, nil
			}
		}
	}
	if err := sendKill(pid); err != nil {
		if p.gone() {
			return StopForced, nil
		}
		return StopStillRunning, fmt.Errorf("kill pid %d: %w: %w", pid, err, ErrStillRunning)
	}
	if p.waitExit(killWait) {
		return StopForced, nil
	}
	return StopStillRunning, errStillRunning(pid, grace+killWait)
}

func (p *Process) gone() bool {
	alive, err := p.Alive()
	return err == nil && !alive
}

// waitExit blocks until the process exits or d elapses.
func (p *Process) waitExit(d time.Duration) bool {
	if p.waitDone != nil {
		select {
		case <-p.waitDone:
			return true
		case <-time.After(d):
			return false
		}
	}
	deadline := time.Now().Add(d)
	for {
		if alive, err := p.Alive(); err == nil && !alive {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(attachedPoll)
	}
}
