package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sanandem/internal/config"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/export"
	"github.com/JonMunkholm/sanandem/internal/logging"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
	"github.com/JonMunkholm/sanandem/internal/web/middleware"
)

const (
	defaultReportPage = 50
	dashboardReports  = 100
)

// PublicDeps wires the public site.
type PublicDeps struct {
	Config        *config.Config
	Reports       Reports
	Stats         Statistics
	Metrics       *metrics.Metrics
	Exports       *core.ExportLimiter
	SubmitLimiter *ratelimit.FixedWindow
	Throttle      *middleware.Throttle
}

// PublicServer serves report submission, public statistics and exports.
type PublicServer struct {
	*Server
	reports Reports
	stats   Statistics
}

// NewPublicServer creates the public site.
func NewPublicServer(d PublicDeps) *PublicServer {
	s := &PublicServer{
		Server:  newServer(d.Config, d.Metrics, d.Exports, d.Throttle),
		reports: d.Reports,
		stats:   d.Stats,
	}

	r := s.router
	r.Group(func(r chi.Router) {
		r.Use(s.timeout())
		if d.Config.Rate.Enabled && d.SubmitLimiter != nil {
			r.Use(middleware.RateLimit("submit", d.SubmitLimiter, http.MethodPost, "/report", d.Metrics.RateLimited))
		}
		r.Post("/report", s.handleSubmitReport)
		r.Get("/api/reports", s.handleListReports)
		r.Get("/api/dashboard", s.handleDashboard)
		r.Route("/api/visualizations", func(r chi.Router) {
			r.Get("/overview", s.handleOverview)
			r.Get("/trends", s.handleTrends)
			r.Get("/heatmap", s.handleHeatmap)
			r.Get("/network", s.handleNetwork)
			r.Get("/compare", s.handleCompare)
		})
	})
	r.Get("/api/export", s.handleExport)
	return s
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Echoed on failure so the form can be refilled.
	MedicationName string `json:"medicationName,omitempty"`
	SideEffectsRaw string `json:"sideEffectsRaw,omitempty"`
	Severity       string `json:"severity,omitempty"`
}

func (s *PublicServer) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	in := core.ReportInput{
		MedicationName:   r.PostFormValue("medicationName"),
		MedicationDosage: r.PostFormValue("medicationDosage"),
		SideEffects:      r.PostFormValue("sideEffects"),
		PositiveEffects:  r.PostFormValue("positiveEffects"),
		Severity:         r.PostFormValue("severity"),
		Age:              r.PostFormValue("age"),
		Gender:           r.PostFormValue("gender"),
		DurationOfEffect: r.PostFormValue("durationOfEffect"),
		UsageDuration:    r.PostFormValue("usageDuration"),
	}
	failure := submitResponse{
		MedicationName: in.MedicationName,
		SideEffectsRaw: in.SideEffects,
		Severity:       in.Severity,
	}

	_, err := s.reports.Submit(r.Context(), in, middleware.ClientIP(r))
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		failure.Error = verr.Error()
		writeJSONStatus(w, http.StatusBadRequest, failure)
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("create report failed", "error", err)
		failure.Error = "Failed to submit report. Please try again."
		writeJSONStatus(w, http.StatusInternalServerError, failure)
		return
	}

	s.metrics.ReportSubmitted()
	writeJSON(w, submitResponse{Success: true, Message: "Report submitted successfully"})
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type reportsResponse struct {
	Reports         []export.PublicRecord  `json:"reports"`
	Statistics      *core.ReportStatistics `json:"statistics"`
	MedicationStats []core.MedicationStat  `json:"medicationStats"`
	Pagination      *pagination            `json:"pagination,omitempty"`
}

func (s *PublicServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	f := parseReportFilters(r)
	f.Limit = export.ClampLimit(r.URL.Query().Get("limit"), defaultReportPage, s.cfg.Export.PublicMaxLimit)
	f.Offset = parseOffset(r)

	resp, err := s.reportsWithStats(r, f)
	if err != nil {
		logging.FromContext(r.Context()).Error("fetch reports failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch reports")
		return
	}
	resp.Pagination = &pagination{Limit: f.Limit, Offset: f.Offset, Count: len(resp.Reports)}
	writeJSON(w, resp)
}

// handleDashboard never fails: an unavailable database yields empty data.
func (s *PublicServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := s.reportsWithStats(r, core.ReportFilters{Limit: dashboardReports})
	if err != nil {
		logging.FromContext(r.Context()).Error("load dashboard data failed", "error", err)
		resp = &reportsResponse{
			Reports: []export.PublicRecord{},
			Statistics: &core.ReportStatistics{
				ByGender:   []core.GenderCount{},
				BySeverity: []core.SeverityCount{},
				ByAgeGroup: []core.AgeGroupCount{},
			},
			MedicationStats: []core.MedicationStat{},
		}
	}
	writeJSON(w, resp)
}

func (s *PublicServer) reportsWithStats(r *http.Request, f core.ReportFilters) (*reportsResponse, error) {
	ctx := r.Context()
	reports, err := s.reports.List(ctx, f)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats.ReportStatistics(ctx)
	if err != nil {
		return nil, err
	}
	medStats, err := s.stats.MedicationStatistics(ctx)
	if err != nil {
		return nil, err
	}
	if medStats == nil {
		medStats = []core.MedicationStat{}
	}
	return &reportsResponse{
		Reports:         export.ToPublicRecords(reports),
		Statistics:      stats,
		MedicationStats: medStats,
	}, nil
}

func (s *PublicServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := parseReportFilters(r)
	f.Limit = export.ClampLimit(q.Get("limit"), s.cfg.Export.PublicDefaultLimit, s.cfg.Export.PublicMaxLimit)
	s.streamReports(w, r, s.reports, exportJob{format: format, audience: export.AudiencePublic, filters: f, failure: msgExportFailed})
}

func (s *PublicServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.stats.Overview(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("load overview failed", "error", err)
		overview = &core.SideEffectOverview{}
	}
	if overview.SideEffects == nil {
		overview.SideEffects = []core.SideEffectCount{}
	}
	if overview.SeverityByMed == nil {
		overview.SeverityByMed = []core.MedicationStat{}
	}
	writeJSON(w, overview)
}

func (s *PublicServer) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := s.stats.Trends(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("load trends failed", "error", err)
	}
	if trends == nil {
		trends = []core.TrendPoint{}
	}
	writeJSON(w, map[string]any{"trends": trends})
}

func (s *PublicServer) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	cells, err := s.stats.Heatmap(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("load heatmap failed", "error", err)
	}
	if cells == nil {
		cells = []core.HeatmapCell{}
	}
	writeJSON(w, map[string]any{"heatmap": cells})
}

type networkResponse struct {
	NetworkData struct {
		Nodes []core.NetworkNode `json:"nodes"`
		Links []core.NetworkLink `json:"links"`
	} `json:"networkData"`
	TotalReports int64 `json:"totalReports"`
}

func (s *PublicServer) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var resp networkResponse
	resp.NetworkData.Nodes = []core.NetworkNode{}
	resp.NetworkData.Links = []core.NetworkLink{}

	graph, err := s.stats.NetworkGraph(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("load network data failed", "error", err)
	} else if graph != nil {
		if graph.Nodes != nil {
			resp.NetworkData.Nodes = graph.Nodes
		}
		if graph.Links != nil {
			resp.NetworkData.Links = graph.Links
		}
		resp.TotalReports = graph.TotalReports
	}
	writeJSON(w, resp)
}

type compareResponse struct {
	Med1       string                     `json:"med1"`
	Med2       string                     `json:"med2"`
	Comparison *core.MedicationComparison `json:"comparison"`
	Error      string                     `json:"error,omitempty"`
}

func (s *PublicServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	resp := compareResponse{
		Med1: strings.TrimSpace(r.URL.Query().Get("med1")),
		Med2: strings.TrimSpace(r.URL.Query().Get("med2")),
	}
	if resp.Med1 == "" || resp.Med2 == "" {
		writeJSON(w, resp)
		return
	}

	cmp, err := s.stats.Compare(r.Context(), resp.Med1, resp.Med2)
	switch {
	case errors.Is(err, core.ErrMedicationNotFound):
		resp.Error = err.Error()
	case err != nil:
		respondError(w, r, err, http.StatusInternalServerError)
		return
	default:
		resp.Comparison = cmp
	}
	writeJSON(w, resp)
}
