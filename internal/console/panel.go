package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/loykin/localserve/internal/config"
	"github.com/loykin/localserve/internal/process"
	"github.com/loykin/localserve/internal/supervisor"
)

// Supervisor is what the panel drives; *supervisor.Supervisor satisfies it.
type Supervisor interface {
	Source
	Start(ctx context.Context) error
	Stop(ctx context.Context) (process.StopResult, error)
	Status(ctx context.Context) supervisor.Status
	SetPort(ctx context.Context, port int) error
	SetRootDirectory(ctx context.Context, dir string) error
	Port() int
	RootDirectory() string
	Subscribe(fn func(string)) (unsubscribe func())
}

// SettingsPatch carries the fields to change; nil fields are left alone.
type SettingsPatch struct {
	Port      *int    `json:"port,omitempty"`
	RootDir   *string `json:"root_dir,omitempty"`
	AutoStart *bool   `json:"auto_start,omitempty"`
	ShowLogs  *bool   `json:"show_logs,omitempty"`
}

// PanelStatus is the combined view shown to the user.
type PanelStatus struct {
	supervisor.Status
	LastEvent string `json:"last_event,omitempty"`
	AutoStart bool   `json:"auto_start"`
	ShowLogs  bool   `json:"show_logs"`
	Buffered  int    `json:"buffered_lines"`
}

// Panel ties a supervisor to its log view and owns the user settings, which
// are saved after every change.
type Panel struct {
	sup    Supervisor
	poller *Poller
	save   func(config.Settings) error
	log    *slog.Logger
	unsub  func()

	mu       sync.Mutex
	settings config.Settings
}

func NewPanel(sup Supervisor, poller *Poller, settings config.Settings, save func(config.Settings) error, log *slog.Logger) *Panel {
	if log == nil {
		log = slog.Default()
	}
	p := &Panel{sup: sup, poller: poller, save: save, log: log, settings: settings}
	poller.SetShowLogs(settings.ShowLogs)
	p.unsub = sup.Subscribe(poller.OnEvent)
	return p
}

// Open is called once when the host comes up; it honours auto-start.
func (p *Panel) Open(ctx context.Context) error {
	if !p.Settings().AutoStart {
		return nil
	}
	if p.sup.IsRunning(ctx) {
		return nil
	}
	return p.Start(ctx)
}

func (p *Panel) Close() { p.unsub() }

func (p *Panel) Poller() *Poller { return p.poller }

func (p *Panel) Buffer() *LogBuffer { return p.poller.Buffer() }

func (p *Panel) Start(ctx context.Context) error {
	err := p.sup.Start(ctx)
	p.poller.Poll(ctx)
	return err
}

func (p *Panel) Stop(ctx context.Context) (process.StopResult, error) {
	// pick up the last lines before the server goes away
	p.poller.Poll(ctx)
	res, err := p.sup.Stop(ctx)
	p.poller.Poll(ctx)
	return res, err
}

func (p *Panel) Status(ctx context.Context) PanelStatus {
	st := p.sup.Status(ctx)
	s := p.Settings()
	return PanelStatus{
		Status:    st,
		LastEvent: p.poller.LastEvent(),
		AutoStart: s.AutoStart,
		ShowLogs:  p.poller.ShowLogs(),
		Buffered:  p.poller.Buffer().Len(),
	}
}

func (p *Panel) Settings() config.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// Update applies patch and persists the result. Port and root are compared
// against both the saved settings and the supervisor, which may still hold a
// stale value. Real changes are refused while the server runs; nothing is
// saved in that case.
func (p *Panel) Update(ctx context.Context, patch SettingsPatch) (config.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.settings
	if patch.Port != nil && (*patch.Port != next.Port || *patch.Port != p.sup.Port()) {
		if err := p.sup.SetPort(ctx, *patch.Port); err != nil && !keepsSetting(err, *patch.Port == next.Port) {
			return p.settings, err
		}
		next.Port = *patch.Port
	}
	if patch.RootDir != nil && (*patch.RootDir != next.RootDir || *patch.RootDir != p.sup.RootDirectory()) {
		if err := p.sup.SetRootDirectory(ctx, *patch.RootDir); err != nil && !keepsSetting(err, *patch.RootDir == next.RootDir) {
			return p.settings, err
		}
		next.RootDir = *patch.RootDir
	}
	if patch.AutoStart != nil {
		next.AutoStart = *patch.AutoStart
	}
	if patch.ShowLogs != nil {
		next.ShowLogs = *patch.ShowLogs
		p.poller.SetShowLogs(next.ShowLogs)
	}
	p.settings = next
	if p.save != nil {
		if err := p.save(next); err != nil {
			p.log.Warn("save settings", "error", err)
			return next, err
		}
	}
	return next, nil
}

// keepsSetting reports whether a refused setter can be ignored: the saved
// setting already has the requested value and only a running re-attached
// server differs. The configured value comes back when it is released.
func keepsSetting(err error, sameAsSaved bool) bool {
	return sameAsSaved && errors.Is(err, supervisor.ErrRunning)
}
