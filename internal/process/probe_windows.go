//go:build windows

package process

import (
	"errors"
	"syscall"
)

const (
	processQueryLimitedInformation = 0x1000
	stillActive                    = 259
)

// Probe asks the OS whether pid is alive. When wantStart is non-zero the
// process creation time must also match.
func Probe(pid int, wantStart int64) (ProbeResult, error) {
	if pid <= 0 {
		return ProbeGone, nil
	}
	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		if errors.Is(err, errInvalidParameter) {
			return ProbeGone, nil
		}
		return ProbeGone, err
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	var code uint32
	if err := syscall.GetExitCodeProcess(h, &code); err != nil {
		return ProbeGone, err
	}
	if code != stillActive {
		return ProbeGone, nil
	}
	if wantStart > 0 {
		if got := StartUnix(pid); got > 0 && (got-wantStart > 1 || wantStart-got > 1) {
			return ProbeMismatch, nil
		}
	}
	return ProbeRunning, nil
}
