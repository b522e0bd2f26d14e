package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// RedisProbe pings a Redis client.
func RedisProbe(rdb *goredis.Client) Probe {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// SQLiteProbe pings a database.
func SQLiteProbe(db *sql.DB) Probe {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

type checkResult struct {
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// HealthStatus tracks dependency probes and serves /healthz.
type HealthStatus struct {
	mu          sync.RWMutex
	probes      map[string]Probe
	results     map[string]checkResult
	lastCheckAt time.Time
	startedAt   time.Time
}

// NewHealthStatus returns an empty health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		probes:    make(map[string]Probe),
		results:   make(map[string]checkResult),
		startedAt: time.Now(),
	}
}

// Register adds a named probe.
func (h *HealthStatus) Register(name string, p Probe) {
	h.mu.Lock()
	h.probes[name] = p
	h.mu.Unlock()
}

// CheckAll runs every probe once and records latency and outcome.
func (h *HealthStatus) CheckAll(ctx context.Context) {
	h.mu.RLock()
	probes := make(map[string]Probe, len(h.probes))
	for k, v := range h.probes {
		probes[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]checkResult, len(probes))
	for name, p := range probes {
		start := time.Now()
		err := p(ctx)
		r := checkResult{OK: err == nil, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
		if err != nil {
			r.Error = err.Error()
		}
		results[name] = r
	}

	h.mu.Lock()
	h.results = results
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs CheckAll every interval until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.CheckAll(probeCtx)
			cancel()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// ServeHTTP handles /healthz: 200 when every probe passed, 503 otherwise.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	failed := 0
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r, ok := h.results[name]; !ok || !r.OK {
			failed++
		}
	}
	if failed > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if failed > 0 && failed == len(names) {
		status = "unhealthy"
	}

	body := struct {
		Status      string                 `json:"status"`
		Uptime      string                 `json:"uptime"`
		Checks      map[string]checkResult `json:"checks"`
		LastCheckAt string                 `json:"last_check_at,omitempty"`
	}{
		Status: status,
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
		Checks: h.results,
	}
	if !h.lastCheckAt.IsZero() {
		body.LastCheckAt = h.lastCheckAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer uses
// prometheus.DefaultGatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
