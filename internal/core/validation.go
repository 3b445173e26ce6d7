package core

// validation.go turns raw form values into validated NewReport values.
//
// Validation errors wrap a domain sentinel so handlers can both show the
// sentinel's text and map it to a status code with errors.Is.

import (
	"strconv"
	"strings"
)

const (
	minSeverity = 1
	maxSeverity = 10
	minAge      = 1
	maxAge      = 120
)

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field string // Form field name
	Value string // The rejected value
	Err   error  // Domain sentinel
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, value string, err error) error {
	return &ValidationError{Field: field, Value: value, Err: err}
}

// ValidateReportInput checks a public submission. The IP hash is left for
// the caller to fill in.
func ValidateReportInput(in ReportInput) (NewReport, error) {
	name := strings.TrimSpace(in.MedicationName)
	effects := ParseEffects(in.SideEffects)
	sev := strings.TrimSpace(in.Severity)

	if name == "" || effects == nil || sev == "" {
		return NewReport{}, invalid("", "", ErrMissingRequiredFields)
	}

	// Zero or unreadable severities count as not given.
	severity, err := strconv.Atoi(sev)
	if err != nil || severity == 0 {
		return NewReport{}, invalid("severity", sev, ErrMissingRequiredFields)
	}
	if err := checkSeverity(severity); err != nil {
		return NewReport{}, err
	}

	age, err := parseAge(in.Age)
	if err != nil {
		return NewReport{}, err
	}

	return NewReport{
		MedicationName:   name,
		MedicationDosage: strings.TrimSpace(in.MedicationDosage),
		SideEffects:      effects,
		PositiveEffects:  ParseEffects(in.PositiveEffects),
		Severity:         severity,
		Age:              age,
		AgeGroup:         AgeGroup(age),
		Gender:           strings.TrimSpace(in.Gender),
		DurationOfEffect: strings.TrimSpace(in.DurationOfEffect),
		UsageDuration:    strings.TrimSpace(in.UsageDuration),
		SubmissionSource: SubmissionSourceWebForm,
	}, nil
}

// ValidateAdminReportInput checks the dashboard form, where every field is required.
func ValidateAdminReportInput(in AdminReportInput) (NewReport, error) {
	name := strings.TrimSpace(in.MedicationName)
	effects := ParseEffects(in.SideEffect)
	sev := strings.TrimSpace(in.Severity)
	ageStr := strings.TrimSpace(in.Age)
	gender := strings.TrimSpace(in.Gender)

	if name == "" || effects == nil || sev == "" || ageStr == "" || gender == "" {
		return NewReport{}, invalid("", "", ErrAdminFieldsRequired)
	}

	severity, err := strconv.Atoi(sev)
	if err != nil {
		return NewReport{}, invalid("severity", sev, ErrAdminFieldsRequired)
	}
	if err := checkSeverity(severity); err != nil {
		return NewReport{}, err
	}
	age, err := parseAge(ageStr)
	if err != nil {
		return NewReport{}, err
	}

	return NewReport{
		MedicationName:   name,
		SideEffects:      effects,
		Severity:         severity,
		Age:              age,
		AgeGroup:         AgeGroup(age),
		Gender:           gender,
		SubmissionSource: SubmissionSourceAdmin,
		IsVerified:       true,
	}, nil
}

// ValidateReportUpdate checks the fields present in a partial update.
func ValidateReportUpdate(u ReportUpdate) error {
	if u.IsEmpty() {
		return ErrNoReportChanges
	}
	if u.MedicationName != nil && strings.TrimSpace(*u.MedicationName) == "" {
		return invalid("medicationName", "", ErrMissingRequiredFields)
	}
	if u.SideEffects != nil && len(*u.SideEffects) == 0 {
		return invalid("sideEffects", "", ErrMissingRequiredFields)
	}
	if u.Severity != nil {
		if err := checkSeverity(*u.Severity); err != nil {
			return err
		}
	}
	if u.Age != nil && *u.Age != 0 && (*u.Age < minAge || *u.Age > maxAge) {
		return invalid("age", strconv.Itoa(*u.Age), ErrInvalidAge)
	}
	return nil
}

func checkSeverity(n int) error {
	if n < minSeverity || n > maxSeverity {
		return invalid("severity", strconv.Itoa(n), ErrSeverityRange)
	}
	return nil
}

// parseAge returns 0 for an empty value.
func parseAge(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minAge || n > maxAge {
		return 0, invalid("age", s, ErrInvalidAge)
	}
	return n, nil
}
