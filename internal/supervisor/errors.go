package supervisor

import "errors"

var (
	// ErrRootNotSet is returned by Start when no root directory is configured.
	ErrRootNotSet = errors.New("root directory not set")
	// ErrLaunchTargetNotFound is returned by Start when the command or script is missing.
	ErrLaunchTargetNotFound = errors.New("launch target not found")
	// ErrRunning is returned by setters while the server is active.
	ErrRunning = errors.New("server is running")
	// ErrInvalidPort rejects ports outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
)
