package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/config"
	"github.com/JonMunkholm/sanandem/internal/core"
)

var testNow = time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second},
		App:    config.AppConfig{Env: "development", Version: "1.2.3"},
		Security: config.SecurityConfig{
			EnableCSP: true,
		},
		Rate: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1000,
			SubmitLimit:       5,
			SubmitWindow:      15 * time.Minute,
			LoginLimit:        5,
			LoginWindow:       time.Minute,
		},
		Export: config.ExportConfig{
			MaxConcurrent:      3,
			MaxWaitTime:        20 * time.Millisecond,
			PublicDefaultLimit: 1000,
			PublicMaxLimit:     5000,
			AdminDefaultLimit:  10000,
			FlushInterval:      2,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func sampleReport(id int64) core.Report {
	return core.Report{
		ID:               id,
		MedicationName:   "Ibuprofen",
		SideEffects:      []string{"Nausea", "Headache"},
		Severity:         4,
		Age:              34,
		AgeGroup:         "26-35",
		Gender:           "female",
		IPHash:           "deadbeef",
		SubmissionSource: core.SubmissionSourceWebForm,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
}

type fakeReports struct {
	mu        sync.Mutex
	reports   []core.Report
	err       error
	submitErr error
	// failAfter > 0 makes Stream fail with err after that many rows.
	failAfter int
	submitted []core.ReportInput
	clientIPs []string
	filters   []core.ReportFilters
	updated   []core.ReportUpdate
	deleted   []int64
}

func (f *fakeReports) Submit(ctx context.Context, in core.ReportInput, clientIP string) (*core.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, in)
	f.clientIPs = append(f.clientIPs, clientIP)
	r := sampleReport(int64(len(f.submitted)))
	return &r, nil
}

func (f *fakeReports) CreateFromAdmin(ctx context.Context, in core.AdminReportInput) (*core.Report, error) {
	if _, err := core.ValidateAdminReportInput(in); err != nil {
		return nil, err
	}
	r := sampleReport(99)
	r.MedicationName = in.MedicationName
	return &r, nil
}

func (f *fakeReports) find(id int64) (*core.Report, error) {
	for i := range f.reports {
		if f.reports[i].ID == id {
			r := f.reports[i]
			return &r, nil
		}
	}
	return nil, core.ErrReportNotFound
}

func (f *fakeReports) Update(ctx context.Context, id int64, u core.ReportUpdate) (*core.Report, error) {
	if u.IsEmpty() {
		return nil, core.ErrNoReportChanges
	}
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	f.updated = append(f.updated, u)
	if u.Severity != nil {
		r.Severity = *u.Severity
	}
	return r, nil
}

func (f *fakeReports) Delete(ctx context.Context, id int64) (*core.Report, error) {
	r, err := f.find(id)
	if err != nil {
		return nil, err
	}
	f.deleted = append(f.deleted, id)
	return r, nil
}

func (f *fakeReports) Get(ctx context.Context, id int64) (*core.Report, error) {
	return f.find(id)
}

func (f *fakeReports) List(ctx context.Context, fl core.ReportFilters) ([]core.Report, error) {
	f.mu.Lock()
	f.filters = append(f.filters, fl)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.reports, nil
}

func (f *fakeReports) Count(ctx context.Context, fl core.ReportFilters) (int64, error) {
	return int64(len(f.reports)), f.err
}

func (f *fakeReports) Stream(ctx context.Context, fl core.ReportFilters, fn func(core.Report) error) error {
	f.mu.Lock()
	f.filters = append(f.filters, fl)
	f.mu.Unlock()
	if f.err != nil && f.failAfter == 0 {
		return f.err
	}
	for i, r := range f.reports {
		if f.failAfter > 0 && i == f.failAfter {
			return f.err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeReports) lastFilters() core.ReportFilters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

type fakeStats struct {
	err        error
	clearErr   error
	cleared    int
	comparison *core.MedicationComparison
}

func (f *fakeStats) ReportStatistics(ctx context.Context) (*core.ReportStatistics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.ReportStatistics{
		TotalReports: 2,
		ByGender:     []core.GenderCount{},
		BySeverity:   []core.SeverityCount{},
		ByAgeGroup:   []core.AgeGroupCount{},
	}, nil
}

func (f *fakeStats) MedicationStatistics(ctx context.Context) ([]core.MedicationStat, error) {
	return nil, f.err
}

func (f *fakeStats) Overview(ctx context.Context) (*core.SideEffectOverview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.SideEffectOverview{SideEffects: []core.SideEffectCount{{Name: "Nausea", Count: 3}}}, nil
}

func (f *fakeStats) Trends(ctx context.Context) ([]core.TrendPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.TrendPoint{{Date: "2026-03-09", Count: 2, AvgSeverity: 4}}, nil
}

func (f *fakeStats) Heatmap(ctx context.Context) ([]core.HeatmapCell, error) {
	return nil, f.err
}

func (f *fakeStats) NetworkGraph(ctx context.Context) (*core.NetworkGraph, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.NetworkGraph{TotalReports: 7}, nil
}

func (f *fakeStats) Compare(ctx context.Context, med1, med2 string) (*core.MedicationComparison, error) {
	if f.comparison == nil {
		return nil, core.ErrMedicationNotFound
	}
	return f.comparison, nil
}

func (f *fakeStats) ClearCache(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared++
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	logged  []core.AuditLogParams
	ips     []string
	entries []core.AuditEntry
	opts    []core.AuditLogOptions
	err     error
}

func (f *fakeAudit) Log(ctx context.Context, p core.AuditLogParams) (*core.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, p)
	f.ips = append(f.ips, core.GetIPAddressFromContext(ctx))
	return &core.AuditEntry{Action: p.Action}, nil
}

func (f *fakeAudit) List(ctx context.Context, opts core.AuditLogOptions) (*core.AuditLogResult, error) {
	f.opts = append(f.opts, opts)
	return &core.AuditLogResult{Entries: f.entries, TotalCount: int64(len(f.entries)), Page: 1, PageSize: opts.Limit, TotalPages: 1}, nil
}

func (f *fakeAudit) GetByID(ctx context.Context, id string) (*core.AuditEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, e := range f.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, core.ErrAuditEntryNotFound
}

func (f *fakeAudit) Stream(ctx context.Context, opts core.AuditLogOptions, fn func(core.AuditEntry) error) error {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return f.err
	}
	for _, e := range f.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAudit) actions() []core.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.AuditAction, len(f.logged))
	for i, p := range f.logged {
		out[i] = p.Action
	}
	return out
}

const (
	goodToken = "good-token"
	adminPass = "password123"
)

var adminUser = &auth.User{ID: "user-1", Username: "admin"}

type fakeSessions struct {
	invalidated []string
}

func (f *fakeSessions) ValidateSessionToken(ctx context.Context, token string) (auth.SessionValidationResult, error) {
	if token != goodToken {
		return auth.SessionValidationResult{}, nil
	}
	return auth.SessionValidationResult{
		Session: &auth.Session{ID: "session-1", UserID: adminUser.ID, ExpiresAt: time.Now().Add(time.Hour)},
		User:    adminUser,
	}, nil
}

func (f *fakeSessions) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	if err := auth.ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	if username != adminUser.Username || password != adminPass {
		return nil, core.ErrIncorrectCredentials
	}
	return &auth.LoginResult{
		Token:   goodToken,
		Session: &auth.Session{ID: "session-1", UserID: adminUser.ID, ExpiresAt: time.Now().Add(time.Hour)},
		User:    adminUser,
	}, nil
}

func (f *fakeSessions) InvalidateSession(ctx context.Context, sessionID string) error {
	f.invalidated = append(f.invalidated, sessionID)
	return nil
}

var errDatabase = errors.New("connection refused")

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: goodToken})
	return req
}
