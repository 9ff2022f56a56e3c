// Package server implements the HTTP admin surface for vireod: health
// and readiness probes, Prometheus metrics, and operator endpoints for
// triggering vacuum sweeps and immediate feed cleanup.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vireo-social/vireo/internal/keys"
	"github.com/vireo-social/vireo/internal/logging"
	"github.com/vireo-social/vireo/internal/vacuum"
)

// Sweeper triggers vacuum sweeps on demand and reports worker state.
// Implemented by *vacuum.Worker.
type Sweeper interface {
	Sweep(ctx context.Context, opts vacuum.SweepOptions) (*vacuum.SweepResult, error)
	State() vacuum.State
}

// FeedCleaner removes a single owner's feed immediately. Implemented
// by *vacuum.Worker.
type FeedCleaner interface {
	CleanupOwner(ctx context.Context, kind keys.FeedKind, ownerID string) error
}

// ReadinessChecker is an interface for components that can report
// their readiness. Each backing service (feed store, database)
// implements this to participate in readiness checks.
type ReadinessChecker interface {
	// Name returns the name of the component for display in health status.
	Name() string

	// CheckReady returns nil if the component is ready, or an error
	// describing why it's not.
	CheckReady(ctx context.Context) error
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// DefaultReadinessTimeout is the default timeout for readiness checks.
const DefaultReadinessTimeout = 5 * time.Second

// AdminServer provides the HTTP endpoints for operating a vireod
// process. It serves /healthz and /readyz probes, /metrics, and the
// /vacuum and /feeds operator endpoints.
type AdminServer struct {
	mu               sync.RWMutex
	addr             string
	boundAddr        string
	server           *http.Server
	logger           *logging.Logger
	shutDown         atomic.Bool
	readinessChecks  []ReadinessChecker
	readinessTimeout time.Duration
	metricsHandler   http.Handler
	sweeper          Sweeper
	cleaner          FeedCleaner
}

// NewAdminServer creates an AdminServer. The metrics handler, sweeper,
// and cleaner are each optional; their endpoints return 404 or 503
// when absent.
func NewAdminServer(addr string, logger *logging.Logger) *AdminServer {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &AdminServer{
		addr:             addr,
		logger:           logger,
		readinessChecks:  make([]ReadinessChecker, 0),
		readinessTimeout: DefaultReadinessTimeout,
	}
}

// SetMetricsHandler mounts a handler at /metrics. Call before Start.
func (s *AdminServer) SetMetricsHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsHandler = h
}

// SetSweeper wires the vacuum worker behind /vacuum. Call before Start.
func (s *AdminServer) SetSweeper(sweeper Sweeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeper = sweeper
}

// SetFeedCleaner wires immediate feed cleanup behind /feeds. Call
// before Start.
func (s *AdminServer) SetFeedCleaner(cleaner FeedCleaner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaner = cleaner
}

// RegisterReadinessCheck registers a component for readiness checking.
// The component will be checked on each /readyz request.
func (s *AdminServer) RegisterReadinessCheck(checker ReadinessChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readinessChecks = append(s.readinessChecks, checker)
}

// SetReadinessTimeout sets the timeout for individual readiness checks.
func (s *AdminServer) SetReadinessTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readinessTimeout = d
}

// SetShuttingDown marks the server as shutting down. After this is
// called, /healthz and /readyz return 503.
func (s *AdminServer) SetShuttingDown() {
	s.shutDown.Store(true)
}

// Handler returns the admin mux. Exposed for tests.
func (s *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/vacuum/run", s.handleVacuumRun)
	mux.HandleFunc("/vacuum/status", s.handleVacuumStatus)
	mux.HandleFunc("/feeds/", s.handleFeedDelete)

	s.mu.RLock()
	metricsHandler := s.metricsHandler
	s.mu.RUnlock()
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	// Expose pprof endpoints for profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start starts the HTTP admin server.
func (s *AdminServer) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // manual sweeps can take a while
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Infof("admin server listening", map[string]any{"addr": ln.Addr().String()})

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("admin server error", map[string]any{"error": err.Error()})
		}
	}()

	return nil
}

// Addr returns the actual bound address of the server. Returns the
// configured address if the server hasn't started yet.
func (s *AdminServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts down the admin server.
func (s *AdminServer) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := HealthStatus{Status: "ok"}
	if s.shutDown.Load() {
		status.Status = "shutting_down"
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if r.Method != http.MethodHead {
		json.NewEncoder(w).Encode(status)
	}
}

func (s *AdminServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.checkReadiness(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if r.Method != http.MethodHead {
		json.NewEncoder(w).Encode(status)
	}
}

// checkReadiness runs all registered readiness checks.
func (s *AdminServer) checkReadiness(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult),
	}

	if s.shutDown.Load() {
		status.Status = "shutting_down"
		status.Checks["shutdown"] = CheckResult{
			Healthy: false,
			Message: "server is shutting down",
		}
		return status
	}

	s.mu.RLock()
	checks := make([]ReadinessChecker, len(s.readinessChecks))
	copy(checks, s.readinessChecks)
	timeout := s.readinessTimeout
	s.mu.RUnlock()

	for _, checker := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := checker.CheckReady(checkCtx)
		cancel()

		if err != nil {
			status.Status = "not_ready"
			status.Checks[checker.Name()] = CheckResult{
				Healthy: false,
				Message: err.Error(),
			}
		} else {
			status.Checks[checker.Name()] = CheckResult{
				Healthy: true,
				Message: "healthy",
			}
		}
	}

	return status
}

// CheckReadiness returns the current readiness status without making
// an HTTP request. Useful for internal checks.
func (s *AdminServer) CheckReadiness(ctx context.Context) HealthStatus {
	return s.checkReadiness(ctx)
}

// handleVacuumRun triggers a sweep. Query parameters: dry_run=true to
// report without deleting, threshold_ms to override the inactivity
// threshold for this run.
func (s *AdminServer) handleVacuumRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	sweeper := s.sweeper
	s.mu.RUnlock()
	if sweeper == nil {
		http.Error(w, "vacuum not configured", http.StatusServiceUnavailable)
		return
	}

	var opts vacuum.SweepOptions
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid dry_run", http.StatusBadRequest)
			return
		}
		opts.DryRun = dryRun
	}
	if v := r.URL.Query().Get("threshold_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid threshold_ms", http.StatusBadRequest)
			return
		}
		opts.Threshold = time.Duration(ms) * time.Millisecond
	}

	res, err := sweeper.Sweep(r.Context(), opts)
	if err != nil {
		s.logger.Errorf("manual vacuum sweep failed", map[string]any{"error": err.Error()})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *AdminServer) handleVacuumStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	sweeper := s.sweeper
	s.mu.RUnlock()
	if sweeper == nil {
		http.Error(w, "vacuum not configured", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"state": sweeper.State().String()})
}

// handleFeedDelete removes one owner's feed immediately. The path is
// /feeds/{kind}/{ownerID}, for callers reacting to an owner entity
// being deleted.
func (s *AdminServer) handleFeedDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	cleaner := s.cleaner
	s.mu.RUnlock()
	if cleaner == nil {
		http.Error(w, "feed cleanup not configured", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/feeds/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "path must be /feeds/{kind}/{ownerID}", http.StatusBadRequest)
		return
	}
	kind, err := keys.ParseFeedKind(parts[0])
	if err != nil {
		if errors.Is(err, keys.ErrUnknownKind) {
			http.Error(w, "unknown feed kind", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := cleaner.CleanupOwner(r.Context(), kind, parts[1]); err != nil {
		s.logger.Errorf("feed cleanup failed", map[string]any{
			"kind":  kind.String(),
			"owner": parts[1],
			"error": err.Error(),
		})
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
