package core

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceTask is one periodic cleanup job. Run returns how many items it removed.
type MaintenanceTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// StartMaintenance runs every task immediately and then once per interval
// until ctx is cancelled. A failing task is logged and does not stop the loop.
func StartMaintenance(ctx context.Context, interval time.Duration, tasks ...MaintenanceTask) {
	if interval <= 0 {
		interval = time.Hour
	}
	slog.Info("maintenance started", "interval", interval.String(), "tasks", len(tasks))

	runMaintenance(ctx, tasks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("maintenance stopped")
			return
		case <-ticker.C:
			runMaintenance(ctx, tasks)
		}
	}
}

func runMaintenance(ctx context.Context, tasks []MaintenanceTask) {
	start := time.Now()
	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		taskStart := time.Now()
		removed, err := task.Run(ctx)
		if err != nil {
			slog.Error("maintenance task failed", "task", task.Name, "error", err)
			continue
		}
		slog.Debug("maintenance task completed",
			"task", task.Name,
			"removed", removed,
			"duration_ms", time.Since(taskStart).Milliseconds(),
		)
	}
	slog.Debug("maintenance cycle completed", "duration_ms", time.Since(start).Milliseconds())
}
