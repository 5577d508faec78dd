//go:build !windows

package process

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Probe asks the OS whether pid is alive. When wantStart is non-zero the
// process start time must also match, otherwise ProbeMismatch is returned.
// An error means the state could not be determined.
func Probe(pid int, wantStart int64) (ProbeResult, error) {
	if pid <= 0 {
		return ProbeGone, nil
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
	case errors.Is(err, syscall.ESRCH):
		return ProbeGone, nil
	default:
		return ProbeGone, err
	}
	if isZombie(pid) {
		return ProbeGone, nil
	}
	if wantStart > 0 {
		if got := StartUnix(pid); got > 0 && !sameStart(got, wantStart) {
			return ProbeMismatch, nil
		}
	}
	return ProbeRunning, nil
}

// sameStart tolerates one second of rounding between clock-tick and
// CreateTime based readings.
func sameStart(a, b int64) bool {
	d := a - b
	return d >= -1 && d <= 1
}

func isZombie(pid int) bool {
	if runtime.GOOS == "linux" {
		b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
		if err != nil {
			return false
		}
		return strings.Contains(string(b), "State:\tZ")
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range st {
		if s == gopsproc.Zombie {
			return true
		}
	}
	return false
}
