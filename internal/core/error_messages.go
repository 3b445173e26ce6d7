// Error codes for support reference.
//
// Domain sentinels are matched first with errors.Is; technical errors fall
// back to case-insensitive text patterns.
//
// # Authentication Errors (AUTH001-AUTH099)
//
//	AUTH001 - Invalid username
//	AUTH002 - Invalid password
//	AUTH003 - Incorrect username or password
//	AUTH004 - Not signed in or session expired
//
// # Report Errors (RPT001-RPT099)
//
//	RPT001 - Required fields missing
//	RPT002 - Severity outside 1-10
//	RPT003 - Report not found
//	RPT004 - Age outside 1-120
//	RPT005 - Medication comparison target missing
//	RPT006 - Update without changes
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Unknown export format
//	EXP002 - Too many exports in progress
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key             Patterns: "duplicate key"
//	DB002 - Unique constraint         Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key               Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused        Patterns: "connection refused"
//	DB005 - Connection reset          Patterns: "connection reset"
//	DB006 - Timeout                   Patterns: "timeout"
//	DB007 - Deadlock                  Patterns: "deadlock"
//
// # Request Errors
//
//	REQ001 - Request cancelled        Patterns: "context canceled"
//	REQ002 - Request timeout          Patterns: "context deadline exceeded"
//	RATE001 - Rate limited            Patterns: "rate limit"
//	ERR000 - Unknown error (fallback)

package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage represents a user-friendly error with an actionable suggestion.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages map domain errors to their messages. The message text of
// validation sentinels is the text shown to users.
var sentinelMessages = []sentinelMessage{
	{ErrInvalidUsername, UserMessage{Message: ErrInvalidUsername.Error(), Action: "Use 3-31 lowercase letters, digits, dashes or underscores", Code: "AUTH001"}},
	{ErrInvalidPassword, UserMessage{Message: ErrInvalidPassword.Error(), Action: "Use 6-255 characters", Code: "AUTH002"}},
	{ErrIncorrectCredentials, UserMessage{Message: ErrIncorrectCredentials.Error(), Action: "Check your credentials and try again", Code: "AUTH003"}},
	{ErrUnauthorized, UserMessage{Message: "You are not signed in", Action: "Sign in and try again", Code: "AUTH004"}},

	{ErrMissingRequiredFields, UserMessage{Message: ErrMissingRequiredFields.Error(), Action: "Fill in the medication, its side effects and a severity", Code: "RPT001"}},
	{ErrAdminFieldsRequired, UserMessage{Message: ErrAdminFieldsRequired.Error(), Action: "Fill in medication, side effect, severity, age and gender", Code: "RPT001"}},
	{ErrSeverityRange, UserMessage{Message: ErrSeverityRange.Error(), Action: "Pick a severity from 1 to 10", Code: "RPT002"}},
	{ErrReportNotFound, UserMessage{Message: "Report not found", Action: "It may have been deleted. Refresh the list", Code: "RPT003"}},
	{ErrInvalidAge, UserMessage{Message: ErrInvalidAge.Error(), Action: "Leave age empty or enter a whole number", Code: "RPT004"}},
	{ErrMedicationNotFound, UserMessage{Message: ErrMedicationNotFound.Error(), Action: "Check the spelling of both medication names", Code: "RPT005"}},
	{ErrMedicationsRequired, UserMessage{Message: ErrMedicationsRequired.Error(), Action: "Pick two medications to compare", Code: "RPT005"}},
	{ErrNoReportChanges, UserMessage{Message: "Nothing to update", Action: "Change at least one field", Code: "RPT006"}},

	{ErrInvalidFormat, UserMessage{Message: ErrInvalidFormat.Error(), Action: "Pass format=csv or format=json", Code: "EXP001"}},
	{ErrTooManyExports, UserMessage{Message: "Too many exports in progress", Action: "Please wait a moment and try again", Code: "EXP002"}},
}

// technicalMessage matches lower-cased error text against any of its patterns.
type technicalMessage struct {
	patterns []string
	msg      UserMessage
}

// technicalMessages is the fallback for errors outside the domain. The first
// match wins.
var technicalMessages = []technicalMessage{
	{[]string{"duplicate key"}, UserMessage{Message: "A record with this ID already exists", Action: "Refresh and try again", Code: "DB001"}},
	{[]string{"unique constraint", "violates unique"}, UserMessage{Message: "This value must be unique but already exists", Action: "Choose a different value", Code: "DB002"}},
	{[]string{"foreign key constraint", "violates foreign key"}, UserMessage{Message: "Referenced record does not exist", Action: "Refresh the page and try again", Code: "DB003"}},
	{[]string{"connection refused"}, UserMessage{Message: "Unable to connect to database", Action: "Please try again in a few moments", Code: "DB004"}},
	{[]string{"connection reset"}, UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB005"}},
	{[]string{"context canceled"}, UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "REQ001"}},
	{[]string{"context deadline exceeded"}, UserMessage{Message: "Request timed out", Action: "Narrow your filters or check your connection", Code: "REQ002"}},
	{[]string{"timeout"}, UserMessage{Message: "Operation timed out", Action: "Narrow your filters or try again later", Code: "DB006"}},
	{[]string{"deadlock"}, UserMessage{Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB007"}},
	{[]string{"rate limit"}, UserMessage{Message: "Too many requests", Action: "Please wait a moment before trying again", Code: "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
//
//	err := fmt.Errorf("submit: %w", ErrSeverityRange)
//	msg := MapError(err)
//	// msg.Code == "RPT002"
//	// msg.Message == "Severity must be between 1 and 10"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, tm := range technicalMessages {
		for _, p := range tm.patterns {
			if strings.Contains(text, p) {
				return tm.msg
			}
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err and keeps the original for logging via Unwrap.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
