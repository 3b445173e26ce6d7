package core

import (
	"context"
	"errors"
	"testing"
)

type memReportStore struct {
	reports map[int64]Report
	nextID  int64
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: make(map[int64]Report), nextID: 1}
}

func (m *memReportStore) Create(_ context.Context, in NewReport) (*Report, error) {
	r := Report{
		ID:               m.nextID,
		MedicationName:   in.MedicationName,
		SideEffects:      in.SideEffects,
		Severity:         in.Severity,
		Age:              in.Age,
		AgeGroup:         in.AgeGroup,
		Gender:           in.Gender,
		IPHash:           in.IPHash,
		SubmissionSource: in.SubmissionSource,
		IsAnonymized:     true,
		IsVerified:       in.IsVerified,
	}
	m.reports[r.ID] = r
	m.nextID++
	return &r, nil
}

func (m *memReportStore) GetByID(_ context.Context, id int64) (*Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return &r, nil
}

func (m *memReportStore) List(context.Context, ReportFilters) ([]Report, error) {
	out := make([]Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	return out, nil
}

func (m *memReportStore) Count(context.Context, ReportFilters) (int64, error) {
	return int64(len(m.reports)), nil
}

func (m *memReportStore) Stream(ctx context.Context, f ReportFilters, fn func(Report) error) error {
	list, _ := m.List(ctx, f)
	for _, r := range list {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memReportStore) Update(_ context.Context, id int64, u ReportUpdate) (*Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	if u.Severity != nil {
		r.Severity = *u.Severity
	}
	m.reports[id] = r
	return &r, nil
}

func (m *memReportStore) Delete(_ context.Context, id int64) (*Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	delete(m.reports, id)
	return &r, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateAll(context.Context) { c.calls++ }

type recordingAudit struct {
	entries []AuditLogParams
	err     error
}

func (r *recordingAudit) Log(_ context.Context, p AuditLogParams) (*AuditEntry, error) {
	r.entries = append(r.entries, p)
	if r.err != nil {
		return nil, r.err
	}
	return &AuditEntry{Action: p.Action}, nil
}

func newTestReportService(t *testing.T) (*ReportService, *memReportStore, *countingInvalidator, *recordingAudit) {
	t.Helper()
	hasher, err := NewIPHasher("salt", false)
	if err != nil {
		t.Fatalf("NewIPHasher: %v", err)
	}
	store := newMemReportStore()
	inv := &countingInvalidator{}
	audit := &recordingAudit{}
	return NewReportService(store, hasher, inv, audit), store, inv, audit
}

func TestReportService_Submit(t *testing.T) {
	svc, store, inv, audit := newTestReportService(t)

	r, err := svc.Submit(context.Background(), ReportInput{
		MedicationName: " Ibuprofen ",
		SideEffects:    "nausea, , headache",
		Severity:       "4",
		Age:            "30",
	}, "127.0.0.1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if r.MedicationName != "Ibuprofen" {
		t.Errorf("medication = %q", r.MedicationName)
	}
	if len(r.SideEffects) != 2 {
		t.Errorf("side effects = %v", r.SideEffects)
	}
	if r.AgeGroup != "26-35" {
		t.Errorf("age group = %q", r.AgeGroup)
	}
	if want := "6dbd4dbd3ce8875383d8a48be80a088994781a976624b29b54e3218deb6b57b8"; r.IPHash != want {
		t.Errorf("ip hash = %q, want %q", r.IPHash, want)
	}
	if r.SubmissionSource != SubmissionSourceWebForm {
		t.Errorf("source = %q", r.SubmissionSource)
	}
	if len(store.reports) != 1 || inv.calls != 1 {
		t.Errorf("stored %d, invalidations %d", len(store.reports), inv.calls)
	}
	if len(audit.entries) != 0 {
		t.Errorf("public submissions should not be audited, got %v", audit.entries)
	}
}

func TestReportService_SubmitInvalid(t *testing.T) {
	svc, store, inv, _ := newTestReportService(t)

	_, err := svc.Submit(context.Background(), ReportInput{MedicationName: "X", SideEffects: "a", Severity: "11"}, "1.2.3.4")
	if !errors.Is(err, ErrSeverityRange) {
		t.Errorf("err = %v, want ErrSeverityRange", err)
	}
	if len(store.reports) != 0 || inv.calls != 0 {
		t.Error("invalid submission must not be stored or invalidate the cache")
	}
}

func TestReportService_AdminLifecycleIsAudited(t *testing.T) {
	svc, _, inv, audit := newTestReportService(t)
	ctx := context.Background()

	r, err := svc.CreateFromAdmin(ctx, AdminReportInput{
		MedicationName: "Sertraline", SideEffect: "insomnia", Severity: "6", Age: "40", Gender: "male",
	})
	if err != nil {
		t.Fatalf("CreateFromAdmin: %v", err)
	}
	if !r.IsVerified || r.SubmissionSource != SubmissionSourceAdmin {
		t.Errorf("admin report = %+v", r)
	}

	sev := 7
	if _, err := svc.Update(ctx, r.ID, ReportUpdate{Severity: &sev}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []AuditAction{ActionReportCreate, ActionReportUpdate, ActionReportDelete}
	if len(audit.entries) != len(want) {
		t.Fatalf("audit entries = %d, want %d", len(audit.entries), len(want))
	}
	for i, a := range want {
		if audit.entries[i].Action != a {
			t.Errorf("entry %d action = %s, want %s", i, audit.entries[i].Action, a)
		}
		if audit.entries[i].EntityID != "1" {
			t.Errorf("entry %d entity id = %q", i, audit.entries[i].EntityID)
		}
	}
	if inv.calls != 3 {
		t.Errorf("invalidations = %d, want 3", inv.calls)
	}
}

func TestReportService_UpdateRejectsEmpty(t *testing.T) {
	svc, _, _, _ := newTestReportService(t)
	if _, err := svc.Update(context.Background(), 1, ReportUpdate{}); !errors.Is(err, ErrNoReportChanges) {
		t.Errorf("err = %v, want ErrNoReportChanges", err)
	}
}

func TestReportService_DeleteMissing(t *testing.T) {
	svc, _, inv, audit := newTestReportService(t)
	if _, err := svc.Delete(context.Background(), 99); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("err = %v, want ErrReportNotFound", err)
	}
	if inv.calls != 0 || len(audit.entries) != 0 {
		t.Error("failed delete must not invalidate or audit")
	}
}

func TestReportService_AuditFailureDoesNotFailAction(t *testing.T) {
	svc, _, _, audit := newTestReportService(t)
	audit.err = errors.New("db down")

	_, err := svc.CreateFromAdmin(context.Background(), AdminReportInput{
		MedicationName: "A", SideEffect: "b", Severity: "1", Age: "20", Gender: "f",
	})
	if err != nil {
		t.Errorf("CreateFromAdmin err = %v, want nil", err)
	}
}

func TestReportUpdate_ChangedFields(t *testing.T) {
	name, verified := "X", true
	got := ReportUpdate{MedicationName: &name, IsVerified: &verified}.changedFields()
	if len(got) != 2 || got[0] != "medicationName" || got[1] != "isVerified" {
		t.Errorf("changedFields = %v", got)
	}
}
