//go:build windows

package process

import (
	"errors"
	"syscall"
)

const gracefulSignals = false

const processTerminate = 0x0001

// errInvalidParameter is what OpenProcess reports for a pid that no longer exists.
const errInvalidParameter = syscall.Errno(87)

func terminateProcess(pid int) error {
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		if errors.Is(err, errInvalidParameter) {
			return nil
		}
		return err
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	return syscall.TerminateProcess(h, 1)
}

// Windows has no SIGTERM equivalent for detached console-less processes, so both
// paths end the process immediately.
func terminate(pid int) error { return terminateProcess(pid) }

func kill(pid int) error { return terminateProcess(pid) }
