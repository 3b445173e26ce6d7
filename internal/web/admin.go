package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sanandem/internal/auth"
	"github.com/JonMunkholm/sanandem/internal/config"
	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/logging"
	"github.com/JonMunkholm/sanandem/internal/metrics"
	"github.com/JonMunkholm/sanandem/internal/ratelimit"
	"github.com/JonMunkholm/sanandem/internal/web/middleware"
	"github.com/JonMunkholm/sanandem/internal/web/views"
)

// AdminDeps wires the admin dashboard.
type AdminDeps struct {
	Config       *config.Config
	Reports      Reports
	Stats        Statistics
	Audit        AuditTrail
	Sessions     Sessions
	Metrics      *metrics.Metrics
	Exports      *core.ExportLimiter
	LoginLimiter *ratelimit.FixedWindow
	Throttle     *middleware.Throttle
}

// AdminServer serves sign-in, report management, the audit log and exports.
type AdminServer struct {
	*Server
	reports  Reports
	stats    Statistics
	audit    AuditTrail
	sessions Sessions
	secure   bool
}

// NewAdminServer creates the admin dashboard.
func NewAdminServer(d AdminDeps) *AdminServer {
	s := &AdminServer{
		Server:   newServer(d.Config, d.Metrics, d.Exports, d.Throttle),
		reports:  d.Reports,
		stats:    d.Stats,
		audit:    d.Audit,
		sessions: d.Sessions,
		secure:   d.Config.SecureCookies(),
	}

	r := s.router
	r.Group(func(r chi.Router) {
		// The login limiter runs before the session lookup touches the database.
		if d.Config.Rate.Enabled && d.LoginLimiter != nil {
			r.Use(middleware.RateLimit("login", d.LoginLimiter, http.MethodPost, "/login", d.Metrics.RateLimited))
		}
		r.Use(middleware.Session(d.Sessions, middleware.SessionOptions{Secure: s.secure}))

		r.Group(func(r chi.Router) {
			r.Use(s.timeout())
			r.Get("/login", s.handleLoginPage)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Get("/dashboard", s.handleListReports)
			r.Post("/dashboard/reports", s.handleCreateReport)
			r.Get("/dashboard/reports/{id}", s.handleGetReport)
			r.Patch("/dashboard/reports/{id}", s.handleUpdateReport)
			r.Delete("/dashboard/reports/{id}", s.handleDeleteReport)
			r.Get("/dashboard/audit", s.handleAuditLog)
			r.Get("/dashboard/audit/{id}", s.handleAuditEntry)
			r.Post("/dashboard/settings/clear-cache", s.handleClearCache)
		})

		// Streaming downloads.
		r.Get("/dashboard/audit/export", s.handleAuditExport)
		r.Post("/dashboard/settings/backup", s.handleBackup)
		r.With(middleware.RequireUser).Get("/api/export", s.handleExport)
	})
	return s
}

// record writes an audit entry. Failures are logged and never fail the request.
func (s *AdminServer) record(r *http.Request, params core.AuditLogParams) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Log(r.Context(), params); err != nil {
		logging.FromContext(r.Context()).Error("audit log failed",
			"action", params.Action,
			"error", err,
		)
	}
}

func (s *AdminServer) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	renderLogin(w, r, http.StatusOK, views.LoginForm{})
}

func renderLogin(w http.ResponseWriter, r *http.Request, status int, form views.LoginForm) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.LoginPage(form).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render login page failed", "error", err)
	}
}

func (s *AdminServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	res, err := s.sessions.Login(r.Context(), username, password)
	if err != nil {
		status := statusFor(err)
		if wantsJSON(r) {
			respondError(w, r, err, status)
			return
		}
		msg := "Login failed. Please try again."
		if status == http.StatusBadRequest {
			msg = err.Error()
		} else {
			logging.FromContext(r.Context()).Error("login failed", "error", err)
		}
		renderLogin(w, r, status, views.LoginForm{Username: username, Error: msg})
		return
	}

	auth.WriteCookie(w, res.Token, res.Session.ExpiresAt, s.secure)
	ctx := core.ContextWithUserID(r.Context(), res.User.ID)
	s.record(r.WithContext(ctx), core.AuditLogParams{
		UserID:     res.User.ID,
		Action:     core.ActionLogin,
		EntityType: core.EntitySession,
		EntityID:   res.User.ID,
		Details:    map[string]any{"username": res.User.Username},
	})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *AdminServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	result, ok := auth.FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if err := s.sessions.InvalidateSession(r.Context(), result.Session.ID); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	auth.ClearCookie(w, s.secure)
	s.record(r, core.AuditLogParams{
		UserID:     result.User.ID,
		Action:     core.ActionLogout,
		EntityType: core.EntitySession,
		EntityID:   result.User.ID,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

// currentUserID is the signed-in admin's id, or "".
func currentUserID(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

