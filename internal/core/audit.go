package core

import (
	"context"
	"time"
)

// AuditAction names an administrative action recorded in audit_log.
type AuditAction string

const (
	ActionLogin         AuditAction = "login"
	ActionLogout        AuditAction = "logout"
	ActionReportCreate  AuditAction = "report_create"
	ActionReportUpdate  AuditAction = "report_update"
	ActionReportDelete  AuditAction = "report_delete"
	ActionExportReports AuditAction = "export_reports"
	ActionExportAudit   AuditAction = "export_audit"
	ActionClearCache    AuditAction = "clear_cache"
	ActionCreateBackup  AuditAction = "create_backup"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// Entity types used in audit entries.
const (
	EntityReport  = "report"
	EntitySystem  = "system"
	EntitySession = "session"
	EntityAudit   = "audit_log"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId,omitempty"`
	Username   string         `json:"username,omitempty"`
	Action     AuditAction    `json:"action"`
	Severity   AuditSeverity  `json:"severity"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
// Empty IPAddress and UserAgent fall back to the values stored on the context.
type AuditLogParams struct {
	UserID     string
	Action     AuditAction
	EntityType string
	EntityID   string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
}

// AuditLogger is the write side used by services that record actions.
type AuditLogger interface {
	Log(ctx context.Context, params AuditLogParams) (*AuditEntry, error)
}

// auditSeverity returns the severity recorded for an action.
func auditSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionLogin, ActionLogout:
		return SeverityLow
	case ActionReportDelete, ActionClearCache:
		return SeverityHigh
	case ActionCreateBackup, ActionExportAudit:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
