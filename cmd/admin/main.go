// Command admin serves the Sanandem admin dashboard: sign-in, report
// management, the audit log, settings and full exports.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/JonMunkholm/sanandem/internal/application"
	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/database"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
	"github.com/JonMunkholm/sanandem/internal/web"
	"github.com/JonMunkholm/sanandem/internal/web/middleware"
)

func main() {
	cfg, err := application.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to database", "name", database.Name(cfg.Database.URL))

	m := metrics.New("admin", cfg.App.Version)

	statsCache, closeCache, err := application.OpenCache(ctx, cfg, pool, m)
	if err != nil {
		slog.Error("failed to open statistics cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	svc, err := application.NewServices(cfg, pool, statsCache, true)
	if err != nil {
		slog.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	sessions := auth.NewManager(auth.NewPostgresStore(pool),
		auth.WithLifetimes(cfg.Session.TTL, cfg.Session.RefreshWindow),
		auth.WithAttemptObserver(m.AuthAttempt),
	)
	loginLimiter := ratelimit.New(cfg.Rate.LoginLimit, cfg.Rate.LoginWindow,
		ratelimit.WithSweepProbability(cfg.Rate.SweepProbability))

	server := web.NewAdminServer(web.AdminDeps{
		Config:       cfg,
		Reports:      svc.Reports,
		Stats:        svc.Statistics,
		Audit:        svc.Audit,
		Sessions:     sessions,
		Metrics:      m,
		Exports:      core.NewExportLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWaitTime),
		LoginLimiter: loginLimiter,
		Throttle:     middleware.NewThrottle(cfg.Rate.RequestsPerMinute, m.RateLimited),
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go core.StartMaintenance(jobCtx, cfg.Maintenance.Interval,
		application.CacheTask(svc.Statistics),
		core.MaintenanceTask{Name: "sessions", Run: sessions.PurgeExpired},
		application.LimiterTask("login", loginLimiter),
	)

	if err := application.Serve(cfg, server, cancelJobs); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
