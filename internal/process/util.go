package process

import (
	"errors"
	"fmt"
	"time"
)

var (
	errEmptyCommand = errors.New("empty command")
	// ErrStillRunning is returned by Stop when the process survived the kill.
	ErrStillRunning = errors.New("process still running after kill")
)

func errStillRunning(pid int, waited time.Duration) error {
	return fmt.Errorf("pid %d after %s: %w", pid, waited, ErrStillRunning)
}

// IsStillRunning reports whether err came from a Stop that could not end the process.
func IsStillRunning(err error) bool { return errors.Is(err, ErrStillRunning) }
