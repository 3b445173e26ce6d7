package core

import "errors"

// Authentication errors. The messages are shown verbatim on the login form.
var (
	ErrInvalidUsername      = errors.New("Invalid username")
	ErrInvalidPassword      = errors.New("Invalid password")
	ErrIncorrectCredentials = errors.New("Incorrect username or password")
	ErrUnauthorized         = errors.New("unauthorized")
)

// Report errors.
var (
	ErrMissingRequiredFields = errors.New("Medication name, side effects, and severity are required")
	ErrAdminFieldsRequired   = errors.New("All fields are required")
	ErrSeverityRange         = errors.New("Severity must be between 1 and 10")
	ErrInvalidAge            = errors.New("Age must be between 1 and 120")
	ErrReportNotFound        = errors.New("report not found")
	ErrNoReportChanges       = errors.New("no report fields to update")
	ErrMedicationNotFound    = errors.New("One or both medications not found")
	ErrMedicationsRequired   = errors.New("Both medications are required")
)

// IP hashing configuration errors.
var (
	ErrMissingIPSalt = errors.New("IP_SALT environment variable must be set in production")
	ErrWeakIPSalt    = errors.New("IP_SALT must be at least 32 characters in production")
)

// Export errors.
var (
	ErrInvalidFormat  = errors.New("Invalid format. Use csv or json.")
	ErrTooManyExports = errors.New("too many exports in progress")
)

// ErrAuditEntryNotFound is returned when an audit id does not exist.
var ErrAuditEntryNotFound = errors.New("audit entry not found")
