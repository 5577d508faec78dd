package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loykin/localserve/internal/env"
	"github.com/loykin/localserve/internal/process"
)

// LogPattern matches every file LogPathFor names.
const LogPattern = "server_*.log"

// LogPathFor returns the log file used for a server on port.
func LogPathFor(logDir string, port int) string {
	return filepath.Join(logDir, fmt.Sprintf("server_%d.log", port))
}

// buildSpec validates the configuration and turns it into a launch spec.
// It has no side effects other than creating the root and log directories.
func buildSpec(cfg Config) (process.Spec, error) {
	root := strings.TrimSpace(cfg.RootDirectory)
	if root == "" {
		return process.Spec{}, ErrRootNotSet
	}
	vars := env.Parse(cfg.Launch.Env)
	command := env.Expand(cfg.Launch.Command, vars)
	if _, err := exec.LookPath(command); err != nil {
		return process.Spec{}, fmt.Errorf("%w: %s", ErrLaunchTargetNotFound, command)
	}
	script := env.Expand(cfg.Launch.Script, vars)
	if script != "" {
		if fi, err := os.Stat(script); err != nil || fi.IsDir() {
			return process.Spec{}, fmt.Errorf("%w: %s", ErrLaunchTargetNotFound, script)
		}
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return process.Spec{}, fmt.Errorf("create root directory: %w", err)
	}
	logDir := env.Expand(cfg.Launch.LogDir, vars)
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return process.Spec{}, fmt.Errorf("create log directory: %w", err)
	}
	logPath := LogPathFor(logDir, cfg.Port)

	args, refsLog := expandArgs(cfg.Launch.Args, placeholders{
		script: script,
		port:   strconv.Itoa(cfg.Port),
		root:   root,
		log:    logPath,
	}, vars)

	return process.Spec{
		Name:           cfg.Name,
		Command:        command,
		Args:           args,
		WorkDir:        root,
		Env:            env.Compose(cfg.Launch.Env),
		LogPath:        logPath,
		RedirectOutput: !refsLog,
	}, nil
}

type placeholders struct {
	script, port, root, log string
}

// expandArgs substitutes placeholders and ${VAR}s. A bare "{script}" argument
// is dropped when no script is configured. refsLog reports whether the server
// is told where its log goes.
func expandArgs(tmpl []string, p placeholders, vars env.Var) (args []string, refsLog bool) {
	r := strings.NewReplacer("{script}", p.script, "{port}", p.port, "{root}", p.root, "{log}", p.log)
	args = make([]string, 0, len(tmpl))
	for _, a := range tmpl {
		if a == "{script}" && p.script == "" {
			continue
		}
		if strings.Contains(a, "{log}") {
			refsLog = true
		}
		args = append(args, env.Expand(r.Replace(a), vars))
	}
	return args, refsLog
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRootNotSet):
		return "root_not_set"
	case errors.Is(err, ErrLaunchTargetNotFound):
		return "target_not_found"
	default:
		return "setup"
	}
}
