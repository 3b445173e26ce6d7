package web

import (
	"net/http"

	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/export"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

func (s *AdminServer) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.stats.ClearCache(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("clear cache failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}

	s.record(r, core.AuditLogParams{
		UserID:     currentUserID(r),
		Action:     core.ActionClearCache,
		EntityType: core.EntitySystem,
		EntityID:   "cache",
	})
	writeJSON(w, map[string]any{"success": true, "message": "Cache cleared successfully"})
}

// handleBackup downloads every stored report as indented JSON.
func (s *AdminServer) handleBackup(w http.ResponseWriter, r *http.Request) {
	count, ok := s.streamReports(w, r, s.reports, exportJob{
		format:   export.FormatJSON,
		audience: export.AudienceBackup,
		failure:  msgBackupFailed,
	})
	if !ok {
		return
	}
	s.record(r, core.AuditLogParams{
		UserID:     currentUserID(r),
		Action:     core.ActionCreateBackup,
		EntityType: core.EntitySystem,
		EntityID:   "backup",
		Details:    map[string]any{"count": count},
	})
}
