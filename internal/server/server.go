// Package server exposes the daemon's HTTP/JSON API.
//
// Every response is an envelope {success, data?, message?, error?}.
// Mutating endpoints are rate limited per client IP, and the server drains
// in-flight requests before shutting down.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"inkframe/internal/config"
	"inkframe/internal/display"
	"inkframe/internal/instance"
	"inkframe/internal/logging"
	"inkframe/internal/orchestrator"
	"inkframe/internal/plugin"
	"inkframe/internal/schedule"
)

// Rate limit for mutating endpoints: generous for a LAN dashboard, tight
// enough to stop a looping script from hammering the panel stores.
const (
	mutationRate  = rate.Limit(5)
	mutationBurst = 10

	cleanupInterval = 5 * time.Minute
	staleAfter      = 15 * time.Minute
)

// Config holds server construction parameters.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	ConfigMgr    *config.Manager
	Instances    *instance.Store
	Schedule     *schedule.Store
	Registry     *plugin.Registry
	Display      *display.Controller

	// DataDir is reported by the system info endpoint's disk usage.
	DataDir string
	// Version string reported by the system info endpoint.
	Version string
	// Logger for structured logging.
	Logger *slog.Logger
}

// Server is the HTTP/JSON API server.
type Server struct {
	orch      *orchestrator.Orchestrator
	configMgr *config.Manager
	instances *instance.Store
	schedule  *schedule.Store
	registry  *plugin.Registry
	display   *display.Controller
	dataDir   string
	version   string
	logger    *slog.Logger

	limiter *rateLimiter

	mu          sync.Mutex
	server      *http.Server
	stopCleanup context.CancelFunc
	cleanupWG   sync.WaitGroup
	inFlight    sync.WaitGroup
	draining    atomic.Bool
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		orch:      cfg.Orchestrator,
		configMgr: cfg.ConfigMgr,
		instances: cfg.Instances,
		schedule:  cfg.Schedule,
		registry:  cfg.Registry,
		display:   cfg.Display,
		dataDir:   cfg.DataDir,
		version:   cfg.Version,
		logger:    logging.Default(cfg.Logger).With("component", "server"),
		limiter:   newRateLimiter(mutationRate, mutationBurst),
	}
}

// registerProbes adds liveness and readiness probe endpoints.
func (s *Server) registerProbes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.orch.IsRunning() && !s.draining.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
}

// trackingMiddleware tracks in-flight requests for graceful drain.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "server is shutting down"})
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Done()
		next.ServeHTTP(w, r)
	})
}

// buildMux registers every API route.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)
	mux.HandleFunc("GET /api/system/info", s.handleSystemInfo)

	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/config", s.handleConfigUpdate)
	mux.HandleFunc("POST /api/config/save", s.handleConfigSave)
	mux.HandleFunc("POST /api/config/revert", s.handleConfigRevert)

	mux.HandleFunc("GET /api/plugins", s.handlePluginList)
	mux.HandleFunc("GET /api/plugins/{plugin_id}", s.handlePluginGet)
	mux.HandleFunc("POST /api/plugins/reload", s.handlePluginReload)

	mux.HandleFunc("GET /api/instances", s.handleInstanceList)
	mux.HandleFunc("POST /api/instances", s.handleInstanceCreate)
	mux.HandleFunc("GET /api/instances/{id}", s.handleInstanceGet)
	mux.HandleFunc("PUT /api/instances/{id}", s.handleInstanceUpdate)
	mux.HandleFunc("DELETE /api/instances/{id}", s.handleInstanceDelete)
	mux.HandleFunc("POST /api/instances/{id}/enable", s.handleInstanceEnable)
	mux.HandleFunc("POST /api/instances/{id}/disable", s.handleInstanceDisable)
	mux.HandleFunc("POST /api/instances/{id}/test", s.handleInstanceTest)

	mux.HandleFunc("GET /api/schedules", s.handleScheduleList)
	mux.HandleFunc("POST /api/schedules/slot", s.handleScheduleSetSlot)
	mux.HandleFunc("DELETE /api/schedules/slot", s.handleScheduleClearSlot)
	mux.HandleFunc("POST /api/schedules/slots/bulk", s.handleScheduleBulkSet)
	mux.HandleFunc("POST /api/schedules/clear", s.handleScheduleClearAll)
	mux.HandleFunc("GET /api/schedules/current", s.handleScheduleCurrent)

	mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/pause", s.handleSchedulerPause)
	mux.HandleFunc("POST /api/scheduler/resume", s.handleSchedulerResume)
	mux.HandleFunc("POST /api/scheduler/refresh", s.handleSchedulerRefresh)
	mux.HandleFunc("GET /api/scheduler/jobs", s.handleSchedulerJobs)

	mux.HandleFunc("GET /api/display/current", s.handleDisplayCurrent)
	mux.HandleFunc("GET /api/display/preview", s.handleDisplayPreview)

	s.registerProbes(mux)
	return mux
}

// Handler returns the complete handler chain. Useful for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	limited := rateLimitMiddleware(s.limiter)(s.buildMux())
	return s.trackingMiddleware(limited)
}

// Serve starts the server on the given listener and blocks until Stop.
func (s *Server) Serve(listener net.Listener) error {
	cleanupCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.server = &http.Server{Handler: s.Handler()}
	s.stopCleanup = cancel
	s.mu.Unlock()

	s.limiter.startCleanup(cleanupCtx, &s.cleanupWG, cleanupInterval, staleAfter)
	s.logger.Info("server starting", "addr", listener.Addr().String())

	err := s.server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Stop drains in-flight requests, then shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	cancel := s.stopCleanup
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	s.logger.Info("server stopping, draining in-flight requests")
	s.draining.Store(true)
	s.inFlight.Wait()

	if cancel != nil {
		cancel()
	}
	s.cleanupWG.Wait()
	return server.Shutdown(ctx)
}
