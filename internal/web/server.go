// Package web provides the HTTP servers for the public reporting site and
// the admin dashboard.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/config"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/web/middleware"
)

// Reports is the report workflow used by both servers. *core.ReportService
// implements it.
type Reports interface {
	Submit(ctx context.Context, in core.ReportInput, clientIP string) (*core.Report, error)
	CreateFromAdmin(ctx context.Context, in core.AdminReportInput) (*core.Report, error)
	Update(ctx context.Context, id int64, u core.ReportUpdate) (*core.Report, error)
	Delete(ctx context.Context, id int64) (*core.Report, error)
	Get(ctx context.Context, id int64) (*core.Report, error)
	List(ctx context.Context, f core.ReportFilters) ([]core.Report, error)
	Count(ctx context.Context, f core.ReportFilters) (int64, error)
	Stream(ctx context.Context, f core.ReportFilters, fn func(core.Report) error) error
}

// Statistics serves cached aggregates. *core.StatisticsService implements it.
type Statistics interface {
	ReportStatistics(ctx context.Context) (*core.ReportStatistics, error)
	MedicationStatistics(ctx context.Context) ([]core.MedicationStat, error)
	Overview(ctx context.Context) (*core.SideEffectOverview, error)
	Trends(ctx context.Context) ([]core.TrendPoint, error)
	Heatmap(ctx context.Context) ([]core.HeatmapCell, error)
	NetworkGraph(ctx context.Context) (*core.NetworkGraph, error)
	Compare(ctx context.Context, med1, med2 string) (*core.MedicationComparison, error)
	ClearCache(ctx context.Context) error
}

// AuditTrail reads and writes the audit log. *core.AuditService implements it.
type AuditTrail interface {
	core.AuditLogger
	List(ctx context.Context, opts core.AuditLogOptions) (*core.AuditLogResult, error)
	GetByID(ctx context.Context, id string) (*core.AuditEntry, error)
	Stream(ctx context.Context, opts core.AuditLogOptions, fn func(core.AuditEntry) error) error
}

// Sessions signs admins in and out. *auth.Manager implements it.
type Sessions interface {
	middleware.SessionValidator
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	InvalidateSession(ctx context.Context, sessionID string) error
}

// Server is an HTTP server with the middleware stack shared by both sites.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     *config.Config
	metrics *metrics.Metrics
	exports *core.ExportLimiter
	now     func() time.Time
}

func newServer(cfg *config.Config, m *metrics.Metrics, exports *core.ExportLimiter, throttle *middleware.Throttle) *Server {
	if exports == nil {
		exports = core.NewExportLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWaitTime)
	}
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		metrics: m,
		exports: exports,
		now:     time.Now,
	}

	r := s.router
	// Headers first so redirects and rejections carry them too.
	r.Use(middleware.SecurityHeaders(cfg.Security.EnableCSP))
	r.Use(chimw.RequestID)
	r.Use(middleware.TrustedRealIP(cfg.Security.TrustedProxies))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestMetadata)
	if cfg.Rate.Enabled && throttle != nil {
		r.Use(throttle.Middleware)
	}

	if cfg.Metrics.Enabled && m != nil {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}
	r.Get("/health", s.handleHealth)
	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Exports returns the export limiter so shutdown can drain it.
func (s *Server) Exports() *core.ExportLimiter {
	return s.exports
}

// timeout bounds ordinary requests. Streaming exports are mounted outside it.
func (s *Server) timeout() func(http.Handler) http.Handler {
	return chimw.Timeout(s.cfg.Server.RequestTimeout)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Version:   s.cfg.App.Version,
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
