package core

import "time"

// SubmissionSourceWebForm marks reports entered through the public form.
const SubmissionSourceWebForm = "web_form"

// SubmissionSourceAdmin marks reports entered from the admin dashboard.
const SubmissionSourceAdmin = "admin_dashboard"

// Report is one stored side-effect report. Empty strings and a zero Age
// mean the column is NULL.
type Report struct {
	ID               int64     `json:"id"`
	MedicationName   string    `json:"medicationName"`
	MedicationDosage string    `json:"medicationDosage,omitempty"`
	SideEffects      []string  `json:"sideEffects"`
	PositiveEffects  []string  `json:"positiveEffects,omitempty"`
	Severity         int       `json:"severity"`
	Age              int       `json:"age,omitempty"`
	AgeGroup         string    `json:"ageGroup,omitempty"`
	Gender           string    `json:"gender,omitempty"`
	DurationOfEffect string    `json:"durationOfEffect,omitempty"`
	UsageDuration    string    `json:"usageDuration,omitempty"`
	IPHash           string    `json:"ipHash,omitempty"`
	SubmissionSource string    `json:"submissionSource"`
	IsAnonymized     bool      `json:"isAnonymized"`
	IsVerified       bool      `json:"isVerified"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewReport holds validated values for an insert.
type NewReport struct {
	MedicationName   string
	MedicationDosage string
	SideEffects      []string
	PositiveEffects  []string
	Severity         int
	Age              int
	AgeGroup         string
	Gender           string
	DurationOfEffect string
	UsageDuration    string
	IPHash           string
	SubmissionSource string
	IsVerified       bool
}

// ReportUpdate carries a partial update. Nil fields are left unchanged.
type ReportUpdate struct {
	MedicationName   *string   `json:"medicationName"`
	MedicationDosage *string   `json:"medicationDosage"`
	SideEffects      *[]string `json:"sideEffects"`
	PositiveEffects  *[]string `json:"positiveEffects"`
	Severity         *int      `json:"severity"`
	Age              *int      `json:"age"`
	Gender           *string   `json:"gender"`
	DurationOfEffect *string   `json:"durationOfEffect"`
	UsageDuration    *string   `json:"usageDuration"`
	IsVerified       *bool     `json:"isVerified"`
}

// IsEmpty reports whether the update changes nothing.
func (u ReportUpdate) IsEmpty() bool {
	return u.MedicationName == nil && u.MedicationDosage == nil && u.SideEffects == nil &&
		u.PositiveEffects == nil && u.Severity == nil && u.Age == nil && u.Gender == nil &&
		u.DurationOfEffect == nil && u.UsageDuration == nil && u.IsVerified == nil
}

// ReportFilters narrows List, Count and Stream. Zero values apply no filter.
type ReportFilters struct {
	Gender         string
	MinAge         *int
	MaxAge         *int
	MinSeverity    *int
	MaxSeverity    *int
	MedicationName string
	IsVerified     *bool
	Limit          int
	Offset         int
}

// columnFilters translates the set fields into WhereBuilder conditions.
func (f ReportFilters) columnFilters() []ColumnFilter {
	var out []ColumnFilter
	if f.Gender != "" {
		out = append(out, ColumnFilter{DBColumn: "gender", Operator: OpEquals, Value: f.Gender})
	}
	if f.MinAge != nil {
		out = append(out, ColumnFilter{DBColumn: "age", Operator: OpGreaterEq, Value: *f.MinAge})
	}
	if f.MaxAge != nil {
		out = append(out, ColumnFilter{DBColumn: "age", Operator: OpLessEq, Value: *f.MaxAge})
	}
	if f.MinSeverity != nil {
		out = append(out, ColumnFilter{DBColumn: "severity", Operator: OpGreaterEq, Value: *f.MinSeverity})
	}
	if f.MaxSeverity != nil {
		out = append(out, ColumnFilter{DBColumn: "severity", Operator: OpLessEq, Value: *f.MaxSeverity})
	}
	if f.MedicationName != "" {
		out = append(out, ColumnFilter{DBColumn: "medication_name", Operator: OpContains, Value: f.MedicationName})
	}
	if f.IsVerified != nil {
		out = append(out, ColumnFilter{DBColumn: "is_verified", Operator: OpEquals, Value: *f.IsVerified})
	}
	return out
}

// ReportInput is the raw public form submission.
type ReportInput struct {
	MedicationName   string
	MedicationDosage string
	SideEffects      string // comma-separated
	PositiveEffects  string // comma-separated
	Severity         string
	Age              string
	Gender           string
	DurationOfEffect string
	UsageDuration    string
}

// AdminReportInput is the dashboard's add-report form.
type AdminReportInput struct {
	MedicationName string
	SideEffect     string // comma-separated
	Severity       string
	Age            string
	Gender         string
}
