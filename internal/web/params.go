package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sanandem/internal/core"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseOffset reads a non-negative offset, defaulting to 0.
func parseOffset(r *http.Request) int {
	i, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || i < 0 {
		return 0
	}
	return i
}

// optionalInt returns nil when the query parameter is missing or not a number.
func optionalInt(r *http.Request, name string) *int {
	i, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return nil
	}
	return &i
}

// parseReportFilters reads the gender, minSeverity and medicationName filters.
func parseReportFilters(r *http.Request) core.ReportFilters {
	q := r.URL.Query()
	return core.ReportFilters{
		Gender:         strings.TrimSpace(q.Get("gender")),
		MinSeverity:    optionalInt(r, "minSeverity"),
		MedicationName: strings.TrimSpace(q.Get("medicationName")),
	}
}

// parseAdminReportFilters adds the age range, maxSeverity and verified
// filters the dashboard offers on top of the public ones.
func parseAdminReportFilters(r *http.Request) core.ReportFilters {
	f := parseReportFilters(r)
	f.MinAge = optionalInt(r, "minAge")
	f.MaxAge = optionalInt(r, "maxAge")
	f.MaxSeverity = optionalInt(r, "maxSeverity")
	if v, err := strconv.ParseBool(r.URL.Query().Get("verified")); err == nil {
		f.IsVerified = &v
	}
	return f
}

// reportID parses the {id} URL parameter.
func reportID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
