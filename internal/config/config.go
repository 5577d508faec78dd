package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/localserve/internal/logger"
	"github.com/loykin/localserve/internal/store"
	"github.com/loykin/localserve/internal/supervisor"
)

// EnvPrefix is the prefix for environment overrides, e.g. LOCALSERVE_PORT or
// LOCALSERVE_STATE_TYPE.
const EnvPrefix = "LOCALSERVE"

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Name         string        `mapstructure:"name"`
	Port         int           `mapstructure:"port"`
	RootDir      string        `mapstructure:"root_dir"`
	AutoStart    bool          `mapstructure:"auto_start"`
	ShowLogs     bool          `mapstructure:"show_logs"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxLogLines  int           `mapstructure:"max_log_lines"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`

	Launch  LaunchConfig  `mapstructure:"launch"`
	State   store.Config  `mapstructure:"state"`
	Log     logger.Config `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	path string
}

type LaunchConfig struct {
	Command  string   `mapstructure:"command"`
	Script   string   `mapstructure:"script"`
	Args     []string `mapstructure:"args"`
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	LogDir   string   `mapstructure:"log_dir"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Settings are the user-editable values persisted on every change.
type Settings struct {
	Port      int    `json:"port"`
	RootDir   string `json:"root_dir"`
	AutoStart bool   `json:"auto_start"`
	ShowLogs  bool   `json:"show_logs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", supervisor.DefaultName)
	v.SetDefault("port", supervisor.DefaultPort)
	v.SetDefault("root_dir", "")
	v.SetDefault("auto_start", false)
	v.SetDefault("show_logs", true)
	v.SetDefault("poll_interval", 500*time.Millisecond)
	v.SetDefault("max_log_lines", 1000)
	v.SetDefault("stop_grace", supervisor.DefaultStopGrace)

	v.SetDefault("launch.command", supervisor.DefaultCommand)
	v.SetDefault("launch.script", "")
	v.SetDefault("launch.args", supervisor.DefaultArgs)
	v.SetDefault("launch.env", []string{})
	v.SetDefault("launch.env_files", []string{})
	v.SetDefault("launch.log_dir", "")

	v.SetDefault("state.type", "sqlite")
	v.SetDefault("state.path", "")
	v.SetDefault("state.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("server.listen", "127.0.0.1:7070")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9100")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), "localserve", "config.toml")
}

// DefaultStatePath is the sqlite file used when [state] names no path.
func DefaultStatePath() string {
	return filepath.Join(userConfigDir(), "localserve", "state.db")
}

func userConfigDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return d
	}
	return os.TempDir()
}

// Load reads the TOML file at path with defaults and LOCALSERVE_* overrides
// applied. A missing file is not an error; it is created by SaveSettings.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	fc.path = path
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

func (c *FileConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxLogLines <= 0 {
		return fmt.Errorf("max_log_lines must be positive")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	return nil
}

// Path is the file the config was loaded from.
func (c *FileConfig) Path() string { return c.path }

// Settings returns the persisted user settings.
func (c *FileConfig) Settings() Settings {
	return Settings{Port: c.Port, RootDir: c.RootDir, AutoStart: c.AutoStart, ShowLogs: c.ShowLogs}
}

// Supervisor builds the supervisor configuration. Variables from env_files
// come first; the inline env list overrides them.
func (c *FileConfig) Supervisor() (supervisor.Config, error) {
	var envList []string
	for _, p := range c.Launch.EnvFiles {
		kv, err := LoadEnvFile(expandHome(p))
		if err != nil {
			return supervisor.Config{}, fmt.Errorf("env file %s: %w", p, err)
		}
		envList = append(envList, kv...)
	}
	envList = append(envList, c.Launch.Env...)
	return supervisor.Config{
		Name:          c.Name,
		Port:          c.Port,
		RootDirectory: expandHome(c.RootDir),
		Launch: supervisor.LaunchConfig{
			Command: c.Launch.Command,
			Script:  expandHome(c.Launch.Script),
			Args:    c.Launch.Args,
			Env:     envList,
			LogDir:  expandHome(c.Launch.LogDir),
		},
		StopGrace: c.StopGrace,
	}, nil
}

// StoreConfig returns the identity store configuration with the default
// sqlite path filled in.
func (c *FileConfig) StoreConfig() store.Config {
	sc := c.State
	if strings.EqualFold(sc.Type, "sqlite") && sc.Path == "" && sc.DSN == "" {
		sc.Path = DefaultStatePath()
	}
	sc.Path = expandHome(sc.Path)
	return sc
}

func (c *FileConfig) LoggerConfig() logger.Config {
	lc := c.Log
	lc.File.Path = expandHome(lc.File.Path)
	return lc
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// SaveSettings writes s into the config file at path, keeping every other key.
func SaveSettings(path string, s Settings) error {
	if path == "" {
		return errors.New("no config file path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.Set("port", s.Port)
	v.Set("root_dir", s.RootDir)
	v.Set("auto_start", s.AutoStart)
	v.Set("show_logs", s.ShowLogs)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries
// in file order.
func LoadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
			out = append(out, k+"="+v)
		}
	}
	return out, nil
}
