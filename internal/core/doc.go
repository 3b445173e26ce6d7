// Package core holds the domain logic for medication side-effect reports.
//
// Nothing here knows about HTTP. The public site and the admin dashboard
// both drive the same services:
//
//   - [ReportService]: submission, admin create/update/delete, listing and streaming
//   - [StatisticsService]: cached aggregates, visualizations and comparisons
//   - [AuditService]: the admin audit trail
//
// # Anonymization
//
// Submitted reports never store the client address. [IPHasher] keeps a
// salted SHA-256 of it, and [AgeGroup] buckets exact ages for public
// output. Public views drop ids and exact ages entirely.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Each category carries a code for support reference:
//
//   - AUTH001-AUTH004: sign-in and session errors
//   - RPT001-RPT006: report validation and lookup
//   - EXP001-EXP002: exports
//   - DB001-DB007: database errors
//   - REQ001-REQ002, RATE001: request cancellation, timeouts and throttling
//
// # Audit Logging
//
// Admin actions are recorded with a severity derived from the action:
//
//   - Low: login, logout
//   - Medium: report create/update, report export
//   - High: report delete, cache clear
//   - Critical: backup, audit export
//
// Audit failures are logged and never fail the action that caused them.
package core
