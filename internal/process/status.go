package process

import "time"

// Handle is the identity of a launched (or re-attached) server process.
type Handle struct {
	PID       int       `json:"pid"`
	StartUnix int64     `json:"start_unix"` // OS-reported start time; 0 when unknown
	LaunchID  string    `json:"launch_id"`
	LogPath   string    `json:"log_path"`
	StartedAt time.Time `json:"started_at"`
	Attached  bool      `json:"attached"` // recovered from persisted state rather than launched
}

// StopResult reports how a Stop call ended.
type StopResult int

const (
	StopNotRunning StopResult = iota
	StopGraceful
	StopForced
	StopStillRunning
)

func (r StopResult) String() string {
	switch r {
	case StopNotRunning:
		return "not-running"
	case StopGraceful:
		return "graceful"
	case StopForced:
		return "forced"
	case StopStillRunning:
		return "still-running"
	default:
		return "unknown"
	}
}

// ProbeResult is the outcome of asking the OS about a pid.
type ProbeResult int

const (
	ProbeGone ProbeResult = iota
	ProbeRunning
	// ProbeMismatch means the pid is alive but belongs to a different process
	// than the one recorded (start time differs).
	ProbeMismatch
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeGone:
		return "gone"
	case ProbeRunning:
		return "running"
	case ProbeMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}
