// Package localserve supervises a local file-server process that outlives
// the program that started it. It is a thin public facade over the internal
// packages used by the localserve command.
package localserve

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/localserve/internal/config"
	"github.com/loykin/localserve/internal/console"
	"github.com/loykin/localserve/internal/metrics"
	"github.com/loykin/localserve/internal/process"
	iapi "github.com/loykin/localserve/internal/server"
	"github.com/loykin/localserve/internal/store"
	"github.com/loykin/localserve/internal/store/factory"
	"github.com/loykin/localserve/internal/supervisor"
)

// Re-export core types for external consumers.

type Supervisor = supervisor.Supervisor

type Config = supervisor.Config

type LaunchConfig = supervisor.LaunchConfig

type Status = supervisor.Status

type StopResult = process.StopResult

const (
	StopNotRunning   = process.StopNotRunning
	StopGraceful     = process.StopGraceful
	StopForced       = process.StopForced
	StopStillRunning = process.StopStillRunning
)

var (
	ErrRootNotSet           = supervisor.ErrRootNotSet
	ErrLaunchTargetNotFound = supervisor.ErrLaunchTargetNotFound
	ErrRunning              = supervisor.ErrRunning
)

// Store persists the identity of the running server between host restarts.
type Store = store.Store

type Option = supervisor.Option

var (
	WithLogger = supervisor.WithLogger
	WithClock  = supervisor.WithClock
)

func New(c Config, st Store, opts ...Option) *Supervisor { return supervisor.New(c, st, opts...) }

// OpenStore opens a store by DSN: "memory://", "sqlite://<path>" (or a bare
// path) or "postgres://...". The schema is not created; call EnsureSchema.
func OpenStore(dsn string) (Store, error) { return factory.NewFromDSN(dsn) }

// Panel is the log view and settings owner built over a Supervisor.
type Panel = console.Panel

type Settings = cfg.Settings

// NewPanel wires a polling log view of maxLines to sup. save is called with
// the settings after every change and may be nil.
func NewPanel(sup *Supervisor, maxLines int, poll time.Duration, s Settings, save func(Settings) error) *Panel {
	poller := console.NewPoller(sup, console.NewLogBuffer(maxLines), poll)
	return console.NewPanel(sup, poller, s, save, nil)
}

func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// NewHTTPServer returns an unstarted HTTP server exposing the control API.
func NewHTTPServer(addr, basePath string, p *Panel) *http.Server {
	return iapi.NewServer(addr, basePath, p)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr. It blocks.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
