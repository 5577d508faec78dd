package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/localserve/internal/console"
	"github.com/loykin/localserve/internal/supervisor"
)

// Router provides embeddable HTTP handlers for controlling the local server.
// Endpoints:
//
//	GET    {basePath}/status
//	POST   {basePath}/start
//	POST   {basePath}/stop
//	GET    {basePath}/logs          query: filter=...&limit=N
//	GET    {basePath}/logs/export   query: filter=...   (text/plain)
//	DELETE {basePath}/logs
//	GET    {basePath}/settings
//	PUT    {basePath}/settings      body: SettingsPatch JSON
//	GET    {basePath}/metrics       when a metrics handler is configured
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	panel    *console.Panel
	basePath string
	metrics  http.Handler
}

type Option func(*Router)

// WithMetrics mounts h at {basePath}/metrics.
func WithMetrics(h http.Handler) Option {
	return func(r *Router) { r.metrics = h }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(panel *console.Panel, basePath string, opts ...Option) *Router {
	r := &Router{panel: panel, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/logs", r.handleLogs)
	group.GET("/logs/export", r.handleExport)
	group.DELETE("/logs", r.handleClear)
	group.GET("/settings", r.handleSettings)
	group.PUT("/settings", r.handleUpdateSettings)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, panel *console.Panel, opts ...Option) *http.Server {
	r := NewRouter(panel, basePath, opts...)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type stopResp struct {
	OK     bool   `json:"ok"`
	Result string `json:"result"`
}

type logsResp struct {
	Total   uint64          `json:"total"`
	Entries []console.Entry `json:"entries"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.panel.Status(c.Request.Context()))
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.panel.Start(c.Request.Context()); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrRootNotSet) || errors.Is(err, supervisor.ErrLaunchTargetNotFound) {
			code = http.StatusConflict
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.panel.Status(c.Request.Context()))
}

func (r *Router) handleStop(c *gin.Context) {
	res, err := r.panel.Stop(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, stopResp{OK: true, Result: res.String()})
}

func (r *Router) handleLogs(c *gin.Context) {
	entries := r.panel.Buffer().Filter(c.Query("filter"))
	if ls := c.Query("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit: must be a non-negative integer"})
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	writeJSON(c, http.StatusOK, logsResp{Total: r.panel.Buffer().Total(), Entries: entries})
}

func (r *Router) handleExport(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(r.panel.Buffer().Export(c.Query("filter"))))
}

func (r *Router) handleClear(c *gin.Context) {
	r.panel.Buffer().Clear()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.panel.Settings())
}

func (r *Router) handleUpdateSettings(c *gin.Context) {
	var patch console.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if patch.Port != nil && (*patch.Port < 1 || *patch.Port > 65535) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid port: must be 1-65535"})
		return
	}
	if patch.RootDir != nil && !isSafeAbsPath(*patch.RootDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid root_dir: must be absolute path without traversal"})
		return
	}
	s, err := r.panel.Update(c.Request.Context(), patch)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, supervisor.ErrRunning):
			code = http.StatusConflict
		case errors.Is(err, supervisor.ErrInvalidPort):
			code = http.StatusBadRequest
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, s)
}
