//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// gracefulSignals is true where terminate asks the process to exit instead of
// ending it outright.
const gracefulSignals = true

func signalPid(pid int, sig syscall.Signal) error {
	// Prefer the whole session/group; fall back to the single pid when the
	// process is not a group leader (e.g. it was re-attached after a setsid child exec'd).
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	err := syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func terminate(pid int) error { return signalPid(pid, syscall.SIGTERM) }

func kill(pid int) error { return signalPid(pid, syscall.SIGKILL) }
