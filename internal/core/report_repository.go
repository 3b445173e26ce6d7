package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sanandem/internal/database"
)

const reportColumns = `id, medication_name, medication_dosage, side_effects, positive_effects,
	severity, age, age_group, gender, duration_of_effect, usage_duration, ip_hash,
	submission_source, is_anonymized, is_verified, created_at, updated_at`

// ReportRepository reads and writes medication_reports.
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a repository over a pool, conn or transaction.
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a report. Stored reports are always marked anonymized.
func (r *ReportRepository) Create(ctx context.Context, in NewReport) (*Report, error) {
	sideEffects, err := encodeList(in.SideEffects, true)
	if err != nil {
		return nil, err
	}
	positive, err := encodeList(in.PositiveEffects, false)
	if err != nil {
		return nil, err
	}
	source := in.SubmissionSource
	if source == "" {
		source = SubmissionSourceWebForm
	}

	row := r.db.QueryRow(ctx, `INSERT INTO medication_reports (
		medication_name, medication_dosage, side_effects, positive_effects, severity,
		age, age_group, gender, duration_of_effect, usage_duration, ip_hash,
		submission_source, is_anonymized, is_verified, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, $13, NOW(), NOW())
	RETURNING `+reportColumns,
		in.MedicationName, ToPgText(in.MedicationDosage), sideEffects, positive, in.Severity,
		ToPgInt4(in.Age), ToPgText(in.AgeGroup), ToPgText(in.Gender),
		ToPgText(in.DurationOfEffect), ToPgText(in.UsageDuration), ToPgText(in.IPHash),
		source, in.IsVerified,
	)

	report, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

// GetByID returns one report or ErrReportNotFound.
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*Report, error) {
	row := r.db.QueryRow(ctx, "SELECT "+reportColumns+" FROM medication_reports WHERE id = $1", id)
	report, err := scanReport(row)
	if database.IsNoRows(err) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return report, nil
}

// List returns matching reports, newest first.
func (r *ReportRepository) List(ctx context.Context, f ReportFilters) ([]Report, error) {
	reports := make([]Report, 0)
	err := r.Stream(ctx, f, func(rep Report) error {
		reports = append(reports, rep)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Count returns how many reports match the filters. Limit and offset are ignored.
func (r *ReportRepository) Count(ctx context.Context, f ReportFilters) (int64, error) {
	wb := NewWhereBuilder()
	wb.AddFilters(f.columnFilters())
	where, args := wb.Build()

	var n int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM medication_reports"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// Stream calls fn for each matching report in created_at DESC order.
// It stops at the first error returned by fn or when ctx is cancelled.
func (r *ReportRepository) Stream(ctx context.Context, f ReportFilters, fn func(Report) error) error {
	query, args := buildReportQuery(f)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := scanReport(rows)
		if err != nil {
			return fmt.Errorf("scan report: %w", err)
		}
		if err := fn(*rep); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Update applies the non-nil fields of u and refreshes updated_at.
func (r *ReportRepository) Update(ctx context.Context, id int64, u ReportUpdate) (*Report, error) {
	var sb SetBuilder
	if u.MedicationName != nil {
		sb.Set("medication_name", *u.MedicationName)
	}
	if u.MedicationDosage != nil {
		sb.Set("medication_dosage", ToPgText(*u.MedicationDosage))
	}
	if u.SideEffects != nil {
		b, err := encodeList(*u.SideEffects, true)
		if err != nil {
			return nil, err
		}
		sb.Set("side_effects", b)
	}
	if u.PositiveEffects != nil {
		b, err := encodeList(*u.PositiveEffects, false)
		if err != nil {
			return nil, err
		}
		sb.Set("positive_effects", b)
	}
	if u.Severity != nil {
		sb.Set("severity", *u.Severity)
	}
	if u.Age != nil {
		sb.Set("age", ToPgInt4(*u.Age))
		sb.Set("age_group", ToPgText(AgeGroup(*u.Age)))
	}
	if u.Gender != nil {
		sb.Set("gender", ToPgText(*u.Gender))
	}
	if u.DurationOfEffect != nil {
		sb.Set("duration_of_effect", ToPgText(*u.DurationOfEffect))
	}
	if u.UsageDuration != nil {
		sb.Set("usage_duration", ToPgText(*u.UsageDuration))
	}
	if u.IsVerified != nil {
		sb.Set("is_verified", *u.IsVerified)
	}
	if sb.Len() == 0 {
		return nil, ErrNoReportChanges
	}
	sb.SetRaw("updated_at = NOW()")

	sets, args, next := sb.Build()
	query := fmt.Sprintf("UPDATE medication_reports SET %s WHERE id = $%d RETURNING %s", sets, next, reportColumns)
	args = append(args, id)

	report, err := scanReport(r.db.QueryRow(ctx, query, args...))
	if database.IsNoRows(err) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update report %d: %w", id, err)
	}
	return report, nil
}

// Delete removes a report and returns what was stored.
func (r *ReportRepository) Delete(ctx context.Context, id int64) (*Report, error) {
	row := r.db.QueryRow(ctx, "DELETE FROM medication_reports WHERE id = $1 RETURNING "+reportColumns, id)
	report, err := scanReport(row)
	if database.IsNoRows(err) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete report %d: %w", id, err)
	}
	return report, nil
}

func buildReportQuery(f ReportFilters) (string, []any) {
	wb := NewWhereBuilder()
	wb.AddFilters(f.columnFilters())
	where, args := wb.Build()

	query := "SELECT " + reportColumns + " FROM medication_reports" + where + " ORDER BY created_at DESC"
	next := wb.NextArgIndex()
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", next)
		args = append(args, f.Limit)
		next++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", next)
		args = append(args, f.Offset)
	}
	return query, args
}

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	var dosage, ageGroup, gender, duration, usage, ipHash pgtype.Text
	var age pgtype.Int4
	var sideEffectsRaw, positiveRaw []byte

	err := row.Scan(
		&rep.ID, &rep.MedicationName, &dosage, &sideEffectsRaw, &positiveRaw,
		&rep.Severity, &age, &ageGroup, &gender, &duration, &usage, &ipHash,
		&rep.SubmissionSource, &rep.IsAnonymized, &rep.IsVerified, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rep.SideEffects, err = decodeList(sideEffectsRaw); err != nil {
		return nil, err
	}
	if rep.PositiveEffects, err = decodeList(positiveRaw); err != nil {
		return nil, err
	}

	rep.MedicationDosage = FromPgText(dosage)
	rep.Age = FromPgInt4(age)
	rep.AgeGroup = FromPgText(ageGroup)
	rep.Gender = FromPgText(gender)
	rep.DurationOfEffect = FromPgText(duration)
	rep.UsageDuration = FromPgText(usage)
	rep.IPHash = FromPgText(ipHash)
	return &rep, nil
}
