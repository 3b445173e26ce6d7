// Package export serializes reports for download.
//
// Three audiences exist. Admin exports carry ids, exact ages and timestamps.
// Public exports are anonymized: no id, exact age, timestamp or IP hash, only
// the year a report was created. Backups are the full stored records.
package export

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sanandem/internal/core"
)

// Format is an export serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Audience selects which fields an export contains.
type Audience string

const (
	AudienceAdmin  Audience = "admin"
	AudiencePublic Audience = "public"
	AudienceBackup Audience = "backup"
)

// Disclaimer accompanies every public JSON export.
const Disclaimer = "This data is provided for research purposes only. Always consult healthcare professionals for medical advice."

// ParseFormat accepts "csv" or "json". An empty value means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", core.ErrInvalidFormat
	}
}

// ContentType returns the response media type for f.
func ContentType(f Format) string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Filename returns the attachment name for an export created at now.
func Filename(a Audience, f Format, now time.Time) string {
	date := now.UTC().Format("2006-01-02")
	switch a {
	case AudiencePublic:
		return fmt.Sprintf("sanandem-data-%s.%s", date, f)
	case AudienceBackup:
		return fmt.Sprintf("sanandem_backup_%s.json", date)
	default:
		return fmt.Sprintf("medication-reports-%s.%s", date, f)
	}
}

// SetDownloadHeaders marks the response as an attachment.
func SetDownloadHeaders(w http.ResponseWriter, f Format, filename string) {
	w.Header().Set("Content-Type", ContentType(f))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}

// ClampLimit parses a limit query value. Missing, invalid or non-positive
// values give def. A positive max caps the result.
func ClampLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// Writer streams reports in one format for one audience.
type Writer interface {
	// Write appends one report.
	Write(r core.Report) error
	// Flush pushes buffered output to the client where the format allows it.
	Flush() error
	// Close completes the document. It must be called once.
	Close() error
	// Count returns the number of reports written.
	Count() int
}

// NewWriter creates a Writer. Backups are JSON only. now stamps the public
// JSON metadata.
func NewWriter(w io.Writer, f Format, a Audience, now time.Time) (Writer, error) {
	switch {
	case a == AudienceBackup && f != FormatJSON:
		return nil, core.ErrInvalidFormat
	case a == AudienceBackup:
		return newJSONArrayWriter(w, func(r core.Report) any { return r }), nil
	case a == AudiencePublic && f == FormatCSV:
		return csvOrError(newCSVWriter(w, publicHeader, publicRow))
	case a == AudiencePublic && f == FormatJSON:
		return newPublicJSONWriter(w, now), nil
	case a == AudienceAdmin && f == FormatCSV:
		return csvOrError(newCSVWriter(w, adminHeader, adminRow))
	case a == AudienceAdmin && f == FormatJSON:
		return newJSONArrayWriter(w, func(r core.Report) any { return toAdminRecord(r) }), nil
	default:
		return nil, core.ErrInvalidFormat
	}
}

func csvOrError(c *csvWriter, err error) (Writer, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// flushHTTP flushes w when it is a streaming response.
func flushHTTP(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
