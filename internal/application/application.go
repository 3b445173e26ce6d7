// Package application assembles the services and lifecycle shared by the
// public and admin binaries.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sanandem/internal/cache"
	"github.com/JonMunkholm/sanandem/internal/config"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/database"
	"github.com/JonMunkholm/sanandem/internal/logging"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// LoadConfig reads .env (when present), loads the configuration and sets up logging.
func LoadConfig() (*config.Config, error) {
	// Overload overwrites existing env vars.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"cache_backend", cfg.Cache.Backend,
		"export_max_concurrent", cfg.Export.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"metrics_enabled", cfg.Metrics.Enabled,
	)
	return cfg, nil
}

// OpenCache builds the statistics cache on the configured backend. The
// returned close func releases backend connections.
func OpenCache(ctx context.Context, cfg *config.Config, db database.DBTX, m *metrics.Metrics) (*cache.Cache, func(), error) {
	var (
		store   cache.Store
		closeFn = func() {}
	)

	switch cfg.Cache.Backend {
	case BackendMemory:
		store = cache.NewMemoryStore()
	case BackendPostgres, "":
		if db == nil {
			return nil, nil, errors.New("postgres cache backend needs a database")
		}
		store = cache.NewPostgresStore(db)
	case BackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store = cache.NewRedisStore(client, cfg.Cache.KeyPrefix)
		closeFn = func() {
			if err := client.Close(); err != nil {
				slog.Warn("close redis client", "error", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	c := cache.New(store,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithSweepProbability(cfg.Cache.SweepProbability),
		cache.WithObserver(m.CacheOperation),
	)
	slog.Info("statistics cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL.String())
	return c, closeFn, nil
}

// Services are the domain services both servers use.
type Services struct {
	Reports    *core.ReportService
	Statistics *core.StatisticsService
	Audit      *core.AuditService
}

// NewServices wires repositories, cache and audit logging over db.
// Public submissions are not audited, so audit is only attached when withAudit is set.
func NewServices(cfg *config.Config, db database.DBTX, c *cache.Cache, withAudit bool) (*Services, error) {
	hasher, err := core.NewIPHasher(cfg.Security.IPSalt, cfg.App.IsProduction())
	if err != nil {
		return nil, err
	}

	stats := core.NewStatisticsService(core.NewStatistics(db), c, cfg.Cache.TTL)
	audit := core.NewAuditService(db)

	var logger core.AuditLogger
	if withAudit {
		logger = audit
	}

	return &Services{
		Reports:    core.NewReportService(core.NewReportRepository(db), hasher, stats, logger),
		Statistics: stats,
		Audit:      audit,
	}, nil
}

// CacheTask purges expired statistics.
func CacheTask(stats *core.StatisticsService) core.MaintenanceTask {
	return core.MaintenanceTask{Name: "statistics_cache", Run: stats.PurgeExpired}
}

// LimiterTask sweeps stale rate limit windows.
func LimiterTask(name string, l *ratelimit.FixedWindow) core.MaintenanceTask {
	return core.MaintenanceTask{
		Name: name + "_rate_limit",
		Run: func(context.Context) (int64, error) {
			return int64(l.Sweep()), nil
		},
	}
}

// Server is what Serve runs.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
	Exports() *core.ExportLimiter
}

// Serve runs srv until SIGINT or SIGTERM, then stops background jobs via
// stopJobs, waits for in-flight exports and shuts the server down.
func Serve(cfg *config.Config, srv Server, stopJobs context.CancelFunc) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		stopJobs()
		if ok {
			return err
		}
		return nil
	case <-sigCh:
	}

	slog.Info("shutting down...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return shutdown(ctx, srv)
}

func shutdown(ctx context.Context, srv Server) error {
	if exports := srv.Exports(); exports != nil && exports.Active() > 0 {
		slog.Info("waiting for exports to complete", "active", exports.Active())
		if err := exports.WaitForDrain(ctx); err != nil {
			slog.Warn("exports did not complete in time", "error", err)
		} else {
			slog.Info("all exports completed")
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
