package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
)

type adminFixture struct {
	server   *AdminServer
	reports  *fakeReports
	stats    *fakeStats
	audit    *fakeAudit
	sessions *fakeSessions
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	cfg := testConfig()
	f := &adminFixture{
		reports:  &fakeReports{reports: []core.Report{sampleReport(1), sampleReport(2), sampleReport(3)}},
		stats:    &fakeStats{},
		audit:    &fakeAudit{},
		sessions: &fakeSessions{},
	}
	f.server = NewAdminServer(AdminDeps{
		Config:       cfg,
		Reports:      f.reports,
		Stats:        f.stats,
		Audit:        f.audit,
		Sessions:     f.sessions,
		Metrics:      metrics.New("admin", "test"),
		LoginLimiter: ratelimit.New(cfg.Rate.LoginLimit, cfg.Rate.LoginWindow, ratelimit.WithSweepProbability(0)),
	})
	f.server.now = func() time.Time { return testNow }
	return f
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestAdmin_DashboardRequiresSession(t *testing.T) {
	f := newAdminFixture(t)
	for _, path := range []string{"/dashboard", "/dashboard/audit", "/dashboard/reports/1"} {
		rec := serve(f.server.Router(), httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
			t.Errorf("%s: status = %d location = %q", path, rec.Code, rec.Header().Get("Location"))
		}
	}
}

func TestAdmin_LoginPage(t *testing.T) {
	f := newAdminFixture(t)

	rec := serve(f.server.Router(), httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `<form method="post" action="/login">`) {
		t.Errorf("anonymous: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/login", nil)))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("signed in: status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAdmin_Login(t *testing.T) {
	f := newAdminFixture(t)
	req := formRequest(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {adminPass}})
	req.RemoteAddr = "198.51.100.7:5000"
	rec := serve(f.server.Router(), req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
	c := sessionCookie(rec)
	if c == nil || c.Value != goodToken || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie = %+v", c)
	}

	if got := f.audit.actions(); len(got) != 1 || got[0] != core.ActionLogin {
		t.Fatalf("audit = %v", got)
	}
	if f.audit.logged[0].UserID != adminUser.ID || f.audit.ips[0] != "198.51.100.7" {
		t.Errorf("audit entry = %+v ip = %q", f.audit.logged[0], f.audit.ips[0])
	}
}

func TestAdmin_LoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     string
	}{
		{"bad username", "A!", adminPass, "Invalid username"},
		{"short password", "admin", "pw", "Invalid password"},
		{"wrong password", "admin", "wrong-password", "Incorrect username or password"},
		{"unknown user", "nobody", adminPass, "Incorrect username or password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			req := formRequest(http.MethodPost, "/login", url.Values{"username": {tt.username}, "password": {tt.password}})
			rec := serve(f.server.Router(), req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q: %s", tt.want, rec.Body.String())
			}
			if sessionCookie(rec) != nil {
				t.Error("failed login set a cookie")
			}
			if len(f.audit.actions()) != 0 {
				t.Errorf("audit = %v", f.audit.actions())
			}
		})
	}
}

func TestAdmin_LoginRateLimited(t *testing.T) {
	f := newAdminFixture(t)
	h := f.server.Router()
	bad := url.Values{"username": {"admin"}, "password": {"wrong-password"}}

	for i := 0; i < 5; i++ {
		if rec := serve(h, formRequest(http.MethodPost, "/login", bad)); rec.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}
	rec := serve(h, formRequest(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {adminPass}}))
	if rec.Code != http.StatusTooManyRequests || rec.Body.String() != "Too Many Requests" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestAdmin_Logout(t *testing.T) {
	f := newAdminFixture(t)

	rec := serve(f.server.Router(), httptest.NewRequest(http.MethodPost, "/logout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout status = %d", rec.Code)
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodPost, "/logout", nil)))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(f.sessions.invalidated) != 1 || f.sessions.invalidated[0] != "session-1" {
		t.Errorf("invalidated = %v", f.sessions.invalidated)
	}
	// The session middleware refreshes the cookie first; the clearing cookie comes last.
	cookies := rec.Result().Cookies()
	if last := cookies[len(cookies)-1]; last.Name != auth.CookieName || last.MaxAge >= 0 {
		t.Errorf("last cookie = %+v", last)
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != core.ActionLogout {
		t.Errorf("audit = %v", got)
	}
}

func TestAdmin_ListReports(t *testing.T) {
	f := newAdminFixture(t)
	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard?page=2&limit=2", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body adminReportsResponse
	decode(t, rec, &body)
	if body.Pagination != (adminPagination{Page: 2, Limit: 2, Total: 3, TotalPages: 2}) {
		t.Errorf("pagination = %+v", body.Pagination)
	}
	if body.Reports[0].IPHash != "deadbeef" {
		t.Error("admin view should carry full records")
	}
	if got := f.reports.lastFilters(); got.Limit != 2 || got.Offset != 2 {
		t.Errorf("filters = %+v", got)
	}
}

func TestAdmin_ListReportsFilters(t *testing.T) {
	f := newAdminFixture(t)
	target := "/dashboard?gender=male&minAge=18&maxAge=40&minSeverity=3&maxSeverity=7&verified=false&medicationName=statin"
	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, target, nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := f.reports.lastFilters()
	if got.Gender != "male" || got.MedicationName != "statin" {
		t.Errorf("filters = %+v", got)
	}
	for name, tc := range map[string]struct {
		got  *int
		want int
	}{
		"minAge":      {got.MinAge, 18},
		"maxAge":      {got.MaxAge, 40},
		"minSeverity": {got.MinSeverity, 3},
		"maxSeverity": {got.MaxSeverity, 7},
	} {
		if tc.got == nil || *tc.got != tc.want {
			t.Errorf("%s = %v, want %d", name, tc.got, tc.want)
		}
	}
	if got.IsVerified == nil || *got.IsVerified {
		t.Errorf("IsVerified = %v, want false", got.IsVerified)
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard?verified=maybe", nil)))
	if rec.Code != http.StatusOK || f.reports.lastFilters().IsVerified != nil {
		t.Errorf("unparsable verified should be ignored, got %v", f.reports.lastFilters().IsVerified)
	}
}

func TestAdmin_CreateReport(t *testing.T) {
	f := newAdminFixture(t)
	h := f.server.Router()

	missing := url.Values{"medicationName": {"Aspirin"}, "severity": {"3"}}
	rec := serve(h, withSession(formRequest(http.MethodPost, "/dashboard/reports", missing)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"missing":true`) {
		t.Errorf("missing fields: status = %d body = %s", rec.Code, rec.Body.String())
	}

	full := url.Values{
		"medicationName": {"Aspirin"},
		"sideEffect":     {"Dizziness"},
		"severity":       {"3"},
		"age":            {"40"},
		"gender":         {"male"},
	}
	rec = serve(h, withSession(formRequest(http.MethodPost, "/dashboard/reports", full)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body reportResponse
	decode(t, rec, &body)
	if !body.Success || body.Report == nil || body.Report.MedicationName != "Aspirin" {
		t.Errorf("body = %+v", body)
	}
}

func TestAdmin_GetUpdateDeleteReport(t *testing.T) {
	f := newAdminFixture(t)
	h := f.server.Router()

	rec := serve(h, withSession(httptest.NewRequest(http.MethodGet, "/dashboard/reports/2", nil)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":2`) {
		t.Errorf("get: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, withSession(httptest.NewRequest(http.MethodGet, "/dashboard/reports/42", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status = %d", rec.Code)
	}

	rec = serve(h, withSession(httptest.NewRequest(http.MethodGet, "/dashboard/reports/abc", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get bad id: status = %d", rec.Code)
	}

	patch := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/dashboard/reports/"+id, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(h, withSession(req))
	}

	if rec := patch("2", `{"severity":7}`); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"severity":7`) {
		t.Errorf("patch: status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := patch("2", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty patch: status = %d", rec.Code)
	}
	if rec := patch("2", `{"unknown":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d", rec.Code)
	}
	if rec := patch("42", `{"severity":7}`); rec.Code != http.StatusNotFound {
		t.Errorf("patch missing: status = %d", rec.Code)
	}

	rec = serve(h, withSession(httptest.NewRequest(http.MethodDelete, "/dashboard/reports/3", nil)))
	if rec.Code != http.StatusOK || len(f.reports.deleted) != 1 || f.reports.deleted[0] != 3 {
		t.Errorf("delete: status = %d deleted = %v", rec.Code, f.reports.deleted)
	}
}

func TestAdmin_AuditLog(t *testing.T) {
	f := newAdminFixture(t)
	f.audit.entries = []core.AuditEntry{{ID: "a1", Action: core.ActionLogin, Username: "admin", CreatedAt: testNow}}

	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit?page=3&limit=10&action=login", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := f.audit.opts[0]
	if got.Limit != 10 || got.Offset != 20 || got.Action != core.ActionLogin {
		t.Errorf("opts = %+v", got)
	}
	if !strings.Contains(rec.Body.String(), `"totalCount":1`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAdmin_AuditEntry(t *testing.T) {
	f := newAdminFixture(t)
	f.audit.entries = []core.AuditEntry{{ID: "a1", Action: core.ActionLogin, Username: "admin", CreatedAt: testNow}}

	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit/a1", nil)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"a1"`) {
		t.Errorf("found: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit/missing", nil)))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "audit entry not found") {
		t.Errorf("missing: status = %d body = %s", rec.Code, rec.Body.String())
	}

	f.audit.err = errDatabase
	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit/a1", nil)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure: status = %d", rec.Code)
	}
}

func TestAdmin_AuditExportFailure(t *testing.T) {
	f := newAdminFixture(t)
	f.audit.err = errDatabase

	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit/export", nil)))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Failed to export audit log") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("failed export should not be an attachment")
	}
	if len(f.audit.logged) != 0 {
		t.Errorf("audit = %+v", f.audit.logged)
	}
}

func TestAdmin_AuditExport(t *testing.T) {
	f := newAdminFixture(t)
	f.audit.entries = []core.AuditEntry{
		{ID: "a1", Action: core.ActionLogin, Username: "admin", CreatedAt: testNow},
		{ID: "a2", Action: core.ActionClearCache, Username: "admin", CreatedAt: testNow},
	}

	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/dashboard/audit/export", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "audit_log_20260309_103000.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if lines := strings.Count(rec.Body.String(), "\n"); lines != 3 {
		t.Errorf("got %d lines, want header + 2 rows:\n%s", lines, rec.Body.String())
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != core.ActionExportAudit {
		t.Errorf("audit = %v", got)
	}
}

func TestAdmin_ClearCache(t *testing.T) {
	f := newAdminFixture(t)
	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodPost, "/dashboard/settings/clear-cache", nil)))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Cache cleared successfully") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if f.stats.cleared != 1 {
		t.Errorf("cleared = %d", f.stats.cleared)
	}
	if got := f.audit.logged; len(got) != 1 || got[0].Action != core.ActionClearCache || got[0].EntityID != "cache" || got[0].UserID != adminUser.ID {
		t.Errorf("audit = %+v", got)
	}
}

func TestAdmin_ClearCacheFailure(t *testing.T) {
	f := newAdminFixture(t)
	f.stats.clearErr = errDatabase
	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodPost, "/dashboard/settings/clear-cache", nil)))

	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Failed to clear cache") {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(f.audit.logged) != 0 {
		t.Errorf("audit = %+v", f.audit.logged)
	}
}

func TestAdmin_Backup(t *testing.T) {
	f := newAdminFixture(t)
	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodPost, "/dashboard/settings/backup", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "sanandem_backup_2026-03-09.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), `"ipHash": "deadbeef"`) {
		t.Errorf("backup should hold full records: %s", rec.Body.String())
	}
	got := f.audit.logged
	if len(got) != 1 || got[0].Action != core.ActionCreateBackup || got[0].Details["count"] != 3 {
		t.Errorf("audit = %+v", got)
	}
}

func TestAdmin_StreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"backup", http.MethodPost, "/dashboard/settings/backup", "Backup failed"},
		{"json export", http.MethodGet, "/api/export", "Failed to export data"},
		{"csv export", http.MethodGet, "/api/export?format=csv", "Failed to export data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			f.reports.err = errDatabase

			rec := serve(f.server.Router(), withSession(httptest.NewRequest(tt.method, tt.path, nil)))
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if strings.TrimSpace(rec.Body.String()) != `{"error":"`+tt.want+`"}` {
				t.Errorf("body = %s", rec.Body.String())
			}
			if rec.Header().Get("Content-Disposition") != "" {
				t.Error("failed export should not be an attachment")
			}
			if len(f.audit.logged) != 0 {
				t.Errorf("audit = %+v", f.audit.logged)
			}
		})
	}
}

func TestAdmin_BackupFailsMidStream(t *testing.T) {
	f := newAdminFixture(t)
	f.reports.err = errDatabase
	f.reports.failAfter = 2

	rec := serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodPost, "/dashboard/settings/backup", nil)))
	body := rec.Body.String()
	if !strings.HasPrefix(body, "[") {
		t.Fatalf("expected the first rows to be sent, body = %q", body)
	}
	if json.Valid(rec.Body.Bytes()) {
		t.Errorf("truncated backup must not be a valid document: %s", body)
	}
	if strings.HasSuffix(strings.TrimSpace(body), "]") {
		t.Errorf("truncated backup was closed: %s", body)
	}
	if len(f.audit.logged) != 0 {
		t.Errorf("audit = %+v", f.audit.logged)
	}
}

func TestAdmin_Export(t *testing.T) {
	f := newAdminFixture(t)

	rec := serve(f.server.Router(), httptest.NewRequest(http.MethodGet, "/api/export", nil))
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Unauthorized") {
		t.Fatalf("anonymous: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/api/export?format=csv", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "medication-reports-2026-03-09.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "ID,Medication Name") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := f.reports.lastFilters().Limit; got != 10000 {
		t.Errorf("limit = %d, want 10000", got)
	}
	logged := f.audit.logged
	if len(logged) != 1 || logged[0].Action != core.ActionExportReports || logged[0].Details["count"] != 3 {
		t.Errorf("audit = %+v", logged)
	}

	rec = serve(f.server.Router(), withSession(httptest.NewRequest(http.MethodGet, "/api/export?format=pdf", nil)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: status = %d", rec.Code)
	}
}
