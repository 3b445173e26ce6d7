package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sanandem/internal/database"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

// DefaultAuditPageSize is the page size of the audit log view.
const DefaultAuditPageSize = 20

// AuditService handles audit log operations. Entries are append-only: there is
// no update or delete.
type AuditService struct {
	db database.DBTX
}

// NewAuditService creates a new audit service.
func NewAuditService(db database.DBTX) *AuditService {
	return &AuditService{db: db}
}

const auditSelect = `SELECT a.id, a.user_id, u.username, a.action, a.severity, a.entity_type,
		a.entity_id, a.details, a.ip_address, a.user_agent, a.created_at
	FROM audit_log a
	LEFT JOIN "user" u ON u.id = a.user_id`

// Log records one action. Missing IP, user agent and user id are taken from
// the request context.
func (a *AuditService) Log(ctx context.Context, params AuditLogParams) (*AuditEntry, error) {
	if params.UserID == "" {
		params.UserID = GetUserIDFromContext(ctx)
	}
	if params.IPAddress == "" {
		params.IPAddress = GetIPAddressFromContext(ctx)
	}
	if params.UserAgent == "" {
		params.UserAgent = GetUserAgentFromContext(ctx)
	}

	var details []byte
	if params.Details != nil {
		var err error
		details, err = json.Marshal(params.Details)
		if err != nil {
			logging.FromContext(ctx).Warn("audit details not serializable", "action", params.Action, "error", err)
			details = nil
		}
	}

	id := uuid.New()
	row := a.db.QueryRow(ctx, `INSERT INTO audit_log
		(id, user_id, action, severity, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at`,
		pgtype.UUID{Bytes: id, Valid: true},
		ToPgText(params.UserID),
		string(params.Action),
		string(auditSeverity(params.Action)),
		params.EntityType,
		ToPgText(params.EntityID),
		details,
		ToPgText(normalizeIP(params.IPAddress)),
		ToPgText(params.UserAgent),
	)

	entry := &AuditEntry{
		ID:         id.String(),
		UserID:     params.UserID,
		Action:     params.Action,
		Severity:   auditSeverity(params.Action),
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		Details:    params.Details,
		IPAddress:  normalizeIP(params.IPAddress),
		UserAgent:  params.UserAgent,
	}
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	entry.CreatedAt = createdAt.Time
	return entry, nil
}

// normalizeIP strips a port and returns "" for anything that is not an address.
func normalizeIP(raw string) string {
	if raw == "" {
		return ""
	}
	host := raw
	if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	return addr.String()
}

// AuditLogOptions contains options for querying audit logs.
type AuditLogOptions struct {
	UserID     string
	Action     AuditAction
	EntityType string
	Limit      int
	Offset     int
}

func (o AuditLogOptions) where() *WhereBuilder {
	wb := NewWhereBuilder()
	wb.Add("a.user_id", o.UserID)
	wb.Add("a.action", string(o.Action))
	wb.Add("a.entity_type", o.EntityType)
	return wb
}

// AuditLogResult contains the result of an audit log query.
type AuditLogResult struct {
	Entries    []AuditEntry `json:"entries"`
	TotalCount int64        `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// List returns one page of entries, newest first, with pagination totals.
func (a *AuditService) List(ctx context.Context, opts AuditLogOptions) (*AuditLogResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultAuditPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	wb := opts.where()
	whereClause, args := wb.Build()

	var totalCount int64
	if err := a.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log a"+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("count audit entries: %w", err)
	}

	query := auditSelect + whereClause + fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d",
		wb.NextArgIndex(), wb.NextArgIndex()+1)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page, totalPages := paginate(opts.Offset, opts.Limit, totalCount)
	return &AuditLogResult{
		Entries:    entries,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   opts.Limit,
		TotalPages: totalPages,
	}, nil
}

func paginate(offset, limit int, total int64) (page, totalPages int) {
	page = offset/limit + 1
	totalPages = int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return page, totalPages
}

// GetByID retrieves a single audit log entry by ID.
func (a *AuditService) GetByID(ctx context.Context, id string) (*AuditEntry, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return nil, ErrAuditEntryNotFound
	}
	entry, err := scanAuditRow(a.db.QueryRow(ctx, auditSelect+" WHERE a.id = $1", pgID))
	if database.IsNoRows(err) {
		return nil, ErrAuditEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// Stream calls fn for every matching entry, newest first. Limit and Offset
// are ignored.
func (a *AuditService) Stream(ctx context.Context, opts AuditLogOptions, fn func(AuditEntry) error) error {
	whereClause, args := opts.where().Build()
	rows, err := a.db.Query(ctx, auditSelect+whereClause+" ORDER BY a.created_at DESC", args...)
	if err != nil {
		return fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := scanAuditRow(rows)
		if err != nil {
			return err
		}
		if err := fn(*entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// scanAuditRow scans one auditSelect row.
func scanAuditRow(row pgx.Row) (*AuditEntry, error) {
	var id pgtype.UUID
	var userID, username, entityID, ipAddress, userAgent pgtype.Text
	var action, severity, entityType string
	var details []byte
	var createdAt pgtype.Timestamptz

	err := row.Scan(&id, &userID, &username, &action, &severity, &entityType,
		&entityID, &details, &ipAddress, &userAgent, &createdAt)
	if err != nil {
		return nil, err
	}

	entry := &AuditEntry{
		ID:         PgUUIDToString(id),
		UserID:     FromPgText(userID),
		Username:   FromPgText(username),
		Action:     AuditAction(action),
		Severity:   AuditSeverity(severity),
		EntityType: entityType,
		EntityID:   FromPgText(entityID),
		IPAddress:  FromPgText(ipAddress),
		UserAgent:  FromPgText(userAgent),
		CreatedAt:  createdAt.Time,
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &entry.Details)
	}
	return entry, nil
}
