package core

import (
	"context"
	"strconv"

	"github.com/JonMunkholm/sanandem/internal/logging"
)

// ReportStore is the persistence surface of ReportService. *ReportRepository
// implements it.
type ReportStore interface {
	Create(ctx context.Context, in NewReport) (*Report, error)
	GetByID(ctx context.Context, id int64) (*Report, error)
	List(ctx context.Context, f ReportFilters) ([]Report, error)
	Count(ctx context.Context, f ReportFilters) (int64, error)
	Stream(ctx context.Context, f ReportFilters, fn func(Report) error) error
	Update(ctx context.Context, id int64, u ReportUpdate) (*Report, error)
	Delete(ctx context.Context, id int64) (*Report, error)
}

// CacheInvalidator drops cached aggregates after a write.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// ReportService applies validation, anonymization, cache invalidation and
// audit logging around a ReportStore.
type ReportService struct {
	store  ReportStore
	hasher *IPHasher
	cache  CacheInvalidator
	audit  AuditLogger
}

// NewReportService wires the report workflow. audit may be nil, in which case
// admin actions are not recorded.
func NewReportService(store ReportStore, hasher *IPHasher, cache CacheInvalidator, audit AuditLogger) *ReportService {
	return &ReportService{store: store, hasher: hasher, cache: cache, audit: audit}
}

// Submit validates and stores a public submission. Only a salted hash of
// clientIP is kept.
func (s *ReportService) Submit(ctx context.Context, in ReportInput, clientIP string) (*Report, error) {
	nr, err := ValidateReportInput(in)
	if err != nil {
		return nil, err
	}
	if clientIP != "" && s.hasher != nil {
		nr.IPHash = s.hasher.Hash(clientIP)
	}

	report, err := s.store.Create(ctx, nr)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	logging.FromContext(ctx).Info("report submitted",
		"report_id", report.ID,
		"medication", report.MedicationName,
		"severity", report.Severity,
	)
	return report, nil
}

// CreateFromAdmin stores a report entered on the dashboard.
func (s *ReportService) CreateFromAdmin(ctx context.Context, in AdminReportInput) (*Report, error) {
	nr, err := ValidateAdminReportInput(in)
	if err != nil {
		return nil, err
	}
	report, err := s.store.Create(ctx, nr)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	s.record(ctx, AuditLogParams{
		Action:     ActionReportCreate,
		EntityType: EntityReport,
		EntityID:   strconv.FormatInt(report.ID, 10),
		Details:    map[string]any{"medicationName": report.MedicationName},
	})
	return report, nil
}

// Update applies a partial update.
func (s *ReportService) Update(ctx context.Context, id int64, u ReportUpdate) (*Report, error) {
	if err := ValidateReportUpdate(u); err != nil {
		return nil, err
	}
	report, err := s.store.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	s.record(ctx, AuditLogParams{
		Action:     ActionReportUpdate,
		EntityType: EntityReport,
		EntityID:   strconv.FormatInt(id, 10),
		Details:    map[string]any{"fields": u.changedFields()},
	})
	return report, nil
}

// Delete removes a report and returns what was stored.
func (s *ReportService) Delete(ctx context.Context, id int64) (*Report, error) {
	report, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	s.record(ctx, AuditLogParams{
		Action:     ActionReportDelete,
		EntityType: EntityReport,
		EntityID:   strconv.FormatInt(id, 10),
		Details: map[string]any{
			"medicationName": report.MedicationName,
			"severity":       report.Severity,
		},
	})
	return report, nil
}

func (s *ReportService) Get(ctx context.Context, id int64) (*Report, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ReportService) List(ctx context.Context, f ReportFilters) ([]Report, error) {
	return s.store.List(ctx, f)
}

func (s *ReportService) Count(ctx context.Context, f ReportFilters) (int64, error) {
	return s.store.Count(ctx, f)
}

func (s *ReportService) Stream(ctx context.Context, f ReportFilters, fn func(Report) error) error {
	return s.store.Stream(ctx, f, fn)
}

// record writes an audit entry. A failed audit write is logged and does not
// undo the action.
func (s *ReportService) record(ctx context.Context, params AuditLogParams) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Log(ctx, params); err != nil {
		logging.FromContext(ctx).Error("audit log failed", "action", params.Action, "error", err)
	}
}

// changedFields names the fields an update sets.
func (u ReportUpdate) changedFields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(u.MedicationName != nil, "medicationName")
	add(u.MedicationDosage != nil, "medicationDosage")
	add(u.SideEffects != nil, "sideEffects")
	add(u.PositiveEffects != nil, "positiveEffects")
	add(u.Severity != nil, "severity")
	add(u.Age != nil, "age")
	add(u.Gender != nil, "gender")
	add(u.DurationOfEffect != nil, "durationOfEffect")
	add(u.UsageDuration != nil, "usageDuration")
	add(u.IsVerified != nil, "isVerified")
	return fields
}
