package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/export"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

func auditOptions(r *http.Request) core.AuditLogOptions {
	q := r.URL.Query()
	return core.AuditLogOptions{
		UserID:     q.Get("userId"),
		Action:     core.AuditAction(q.Get("action")),
		EntityType: q.Get("entityType"),
	}
}

// handleAuditLog returns one page of the audit log, newest first.
func (s *AdminServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", core.DefaultAuditPageSize)

	opts := auditOptions(r)
	opts.Limit = limit
	opts.Offset = (page - 1) * limit

	result, err := s.audit.List(r.Context(), opts)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, result)
}

// handleAuditEntry returns a single audit entry.
func (s *AdminServer) handleAuditEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing audit log id")
		return
	}

	entry, err := s.audit.GetByID(r.Context(), id)
	if errors.Is(err, core.ErrAuditEntryNotFound) {
		writeError(w, http.StatusNotFound, "audit entry not found")
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, entry)
}

// handleAuditExport streams matching audit entries as CSV.
func (s *AdminServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if !s.acquireExport(w, r) {
		return
	}
	defer s.exports.Release()

	dl := &download{w: w, format: export.FormatCSV, filename: export.AuditFilename(s.now())}
	cw, err := export.NewAuditCSV(dl)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	flushEvery := s.cfg.Export.FlushInterval
	err = s.audit.Stream(r.Context(), auditOptions(r), func(e core.AuditEntry) error {
		if err := cw.Write(e); err != nil {
			return err
		}
		if flushEvery > 0 && cw.Count()%flushEvery == 0 {
			return cw.Flush()
		}
		return nil
	})
	if err == nil {
		err = cw.Flush()
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("audit export failed", "rows", cw.Count(), "sent", dl.started, "error", err)
		dl.fail(msgAuditExportFailed)
		return
	}

	s.metrics.ExportCompleted("audit", string(export.FormatCSV))
	s.record(r, core.AuditLogParams{
		UserID:     currentUserID(r),
		Action:     core.ActionExportAudit,
		EntityType: core.EntityAudit,
		Details:    map[string]any{"count": cw.Count()},
	})
}
