package web

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/export"
)

const defaultAdminPageSize = 50

type adminReportsResponse struct {
	Reports    []core.Report   `json:"reports"`
	Pagination adminPagination `json:"pagination"`
}

type adminPagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func (s *AdminServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	limit := parseIntParam(r, "limit", defaultAdminPageSize)

	f := parseAdminReportFilters(r)
	f.Limit = limit
	f.Offset = (page - 1) * limit

	reports, err := s.reports.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	total, err := s.reports.Count(r.Context(), f)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if reports == nil {
		reports = []core.Report{}
	}

	writeJSON(w, adminReportsResponse{
		Reports: reports,
		Pagination: adminPagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	})
}

type reportResponse struct {
	Success bool         `json:"success"`
	Report  *core.Report `json:"report,omitempty"`
	Missing bool         `json:"missing,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (s *AdminServer) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}
	in := core.AdminReportInput{
		MedicationName: r.PostFormValue("medicationName"),
		SideEffect:     r.PostFormValue("sideEffect"),
		Severity:       r.PostFormValue("severity"),
		Age:            r.PostFormValue("age"),
		Gender:         r.PostFormValue("gender"),
	}

	report, err := s.reports.CreateFromAdmin(r.Context(), in)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			writeJSONStatus(w, http.StatusBadRequest, reportResponse{Missing: true, Error: err.Error()})
			return
		}
		respondError(w, r, err, 0)
		return
	}
	writeJSONStatus(w, http.StatusCreated, reportResponse{Success: true, Report: report})
}

func (s *AdminServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		respondError(w, r, core.ErrReportNotFound, http.StatusNotFound)
		return
	}
	report, err := s.reports.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, report)
}

func (s *AdminServer) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		respondError(w, r, core.ErrReportNotFound, http.StatusNotFound)
		return
	}

	var u core.ReportUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	report, err := s.reports.Update(r.Context(), id, u)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, reportResponse{Success: true, Report: report})
}

func (s *AdminServer) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		respondError(w, r, core.ErrReportNotFound, http.StatusNotFound)
		return
	}
	report, err := s.reports.Delete(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, reportResponse{Success: true, Report: report})
}

// handleExport streams the admin export. Unlike the public export it keeps
// ids, exact ages and timestamps and has no row cap.
func (s *AdminServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := parseAdminReportFilters(r)
	f.Limit = export.ClampLimit(q.Get("limit"), s.cfg.Export.AdminDefaultLimit, 0)

	count, ok := s.streamReports(w, r, s.reports, exportJob{format: format, audience: export.AudienceAdmin, filters: f, failure: msgExportFailed})
	if !ok {
		return
	}
	s.record(r, core.AuditLogParams{
		UserID:     currentUserID(r),
		Action:     core.ActionExportReports,
		EntityType: core.EntityReport,
		Details:    map[string]any{"format": string(format), "count": count},
	})
}
