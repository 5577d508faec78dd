package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Spec describes one launch of the supervised server.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`  // executable; resolved through PATH
	Args    []string `json:"args"`     // argument vector, already expanded
	WorkDir string   `json:"work_dir"` // optional working dir
	Env     []string `json:"env"`      // full environment; empty inherits the host's
	LogPath string   `json:"log_path"` // log file the server writes to
	// RedirectOutput makes the launcher own the log file: the child's
	// stdout/stderr are pointed at it. Either way a successful launch starts
	// from an empty log.
	RedirectOutput bool `json:"redirect_output"`
}

// Validate checks that the command can be resolved to an executable.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return errEmptyCommand
	}
	if _, err := exec.LookPath(s.Command); err != nil {
		return err
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec. The argument vector is
// passed through verbatim; no shell is involved.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append([]string(nil), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}

// openOutput returns the file the child's stdout/stderr should be attached to.
func (s *Spec) openOutput() (*os.File, error) {
	if !s.RedirectOutput || s.LogPath == "" {
		return os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if err := os.MkdirAll(filepath.Dir(s.LogPath), 0o750); err != nil {
		return nil, err
	}
	// #nosec G304
	return os.OpenFile(s.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
}

// stashLog moves an existing log aside so a failed launch can put it back.
// It returns the stash path, or "" when there was nothing to move.
func stashLog(path string) string {
	if path == "" {
		return ""
	}
	prev := path + ".prev"
	if err := os.Rename(path, prev); err != nil {
		return ""
	}
	return prev
}

// restoreLog undoes stashLog after a failed launch.
func restoreLog(path, prev string) {
	if prev == "" {
		return
	}
	_ = os.Rename(prev, path)
}
