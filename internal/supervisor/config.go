package supervisor

import (
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultName      = "default"
	DefaultPort      = 8080
	DefaultCommand   = "python3"
	DefaultStopGrace = time.Second
)

// DefaultArgs mirrors the stock file server's flags.
var DefaultArgs = []string{"{script}", "-p", "{port}", "-r", "{root}", "-l", "{log}"}

// LaunchConfig describes how the server is started. Args may reference
// {script}, {port}, {root} and {log}; ${VAR} is expanded from Env and the host.
// When no argument references {log} the child's stdout/stderr are written to
// the log file instead.
type LaunchConfig struct {
	Command string   `mapstructure:"command" json:"command"`
	Script  string   `mapstructure:"script" json:"script"`
	Args    []string `mapstructure:"args" json:"args"`
	Env     []string `mapstructure:"env" json:"env"`
	LogDir  string   `mapstructure:"log_dir" json:"log_dir"`
}

type Config struct {
	Name          string        `json:"name"` // scopes persisted identity keys
	Port          int           `json:"port"`
	RootDirectory string        `json:"root_dir"`
	Launch        LaunchConfig  `json:"launch"`
	StopGrace     time.Duration `json:"stop_grace"`
	MaxLogChunk   int64         `json:"max_log_chunk"`
}

// DefaultLogDir is where log files go when none is configured.
func DefaultLogDir() string { return filepath.Join(os.TempDir(), "localserve") }

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Launch.Command == "" {
		c.Launch.Command = DefaultCommand
	}
	if len(c.Launch.Args) == 0 {
		c.Launch.Args = append([]string(nil), DefaultArgs...)
	}
	if c.Launch.LogDir == "" {
		c.Launch.LogDir = DefaultLogDir()
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}
