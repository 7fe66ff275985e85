package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/graydot/potter/internal/buildinfo"
	"github.com/graydot/potter/internal/coordinator"
	"github.com/graydot/potter/internal/history"
	"github.com/graydot/potter/internal/metrics"
)

// Router provides the embeddable control API of a running instance.
// Endpoints:
//
//	GET {basePath}/status          identity, claim state, uptime, resources
//	GET {basePath}/history?limit=  recent guard events (when a querier is set)
//	GET {basePath}/healthz         liveness of the control surface itself
//	GET {basePath}/metrics         prometheus exposition (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	coord    *coordinator.Coordinator
	querier  history.Querier
	sampler  *metrics.Sampler
	basePath string
	metrics  bool
	started  time.Time
}

// RouterOptions wires the surfaces the API exposes. Coordinator is required;
// History, Sampler and Metrics are optional.
type RouterOptions struct {
	Coordinator *coordinator.Coordinator
	History     history.Querier
	Sampler     *metrics.Sampler
	BasePath    string
	Metrics     bool
}

func NewRouter(opts RouterOptions) *Router {
	return &Router{
		coord:    opts.Coordinator,
		querier:  opts.History,
		sampler:  opts.Sampler,
		basePath: sanitizeBase(opts.BasePath),
		metrics:  opts.Metrics,
		started:  time.Now(),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/history", r.handleHistory)
	group.GET("/healthz", r.handleHealthz)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server Shutdown/Close.
func NewServer(addr string, opts RouterOptions) *http.Server {
	r := NewRouter(opts)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control server stopped", "addr", addr, "err", err)
		}
	}()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	LaunchID      string                  `json:"launch_id"`
	PID           int                     `json:"pid"`
	BuildID       string                  `json:"build_id"`
	Version       string                  `json:"version"`
	Executable    string                  `json:"executable,omitempty"`
	Claimed       bool                    `json:"claimed"`
	StartedAt     time.Time               `json:"started_at"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
	GoVersion     string                  `json:"go_version"`
	Resources     *metrics.ResourceSample `json:"resources,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{
		StartedAt:     r.started,
		UptimeSeconds: time.Since(r.started).Seconds(),
		GoVersion:     buildinfo.Get().GoVersion,
	}
	if r.coord != nil {
		resp.LaunchID = r.coord.LaunchID()
		resp.Claimed = r.coord.Claimed()
		self := r.coord.Self()
		if self.Process != nil {
			resp.PID = self.Process.PID
		}
		if self.Build != nil {
			resp.BuildID = self.Build.BuildID
			resp.Version = self.Build.Version
			resp.Executable = self.Build.ExecutablePath
		}
	}
	if r.sampler != nil && r.sampler.IsEnabled() {
		if sample, ok := r.sampler.Latest(); ok {
			resp.Resources = &sample
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.querier == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "history sink not configured"})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := r.querier.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
