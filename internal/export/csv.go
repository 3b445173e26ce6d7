package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sanandem/internal/core"
)

const listSeparator = "; "

// adminTimeFormat matches ISO-8601 with milliseconds in UTC.
const adminTimeFormat = "2006-01-02T15:04:05.000Z"

var adminHeader = []string{
	"ID", "Medication Name", "Side Effects", "Positive Effects", "Severity", "Age",
	"Age Group", "Gender", "Duration of Effect", "Usage Duration", "Created At", "Verified",
}

var publicHeader = []string{
	"Medication Name", "Side Effects", "Positive Effects", "Severity", "Age Group",
	"Gender", "Duration of Effect", "Created Year",
}

func adminRow(r core.Report) []string {
	age := ""
	if r.Age > 0 {
		age = strconv.Itoa(r.Age)
	}
	verified := "No"
	if r.IsVerified {
		verified = "Yes"
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.MedicationName,
		strings.Join(r.SideEffects, listSeparator),
		strings.Join(r.PositiveEffects, listSeparator),
		strconv.Itoa(r.Severity),
		age,
		r.AgeGroup,
		r.Gender,
		r.DurationOfEffect,
		r.UsageDuration,
		r.CreatedAt.UTC().Format(adminTimeFormat),
		verified,
	}
}

func publicRow(r core.Report) []string {
	return []string{
		r.MedicationName,
		strings.Join(r.SideEffects, listSeparator),
		strings.Join(r.PositiveEffects, listSeparator),
		strconv.Itoa(r.Severity),
		orUnknown(r.AgeGroup),
		orUnknown(r.Gender),
		orUnknown(r.DurationOfEffect),
		strconv.Itoa(r.CreatedAt.UTC().Year()),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

type csvWriter struct {
	out   io.Writer
	cw    *csv.Writer
	row   func(core.Report) []string
	count int
}

func newCSVWriter(w io.Writer, header []string, row func(core.Report) []string) (*csvWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	return &csvWriter{out: w, cw: cw, row: row}, nil
}

func (c *csvWriter) Write(r core.Report) error {
	if err := c.cw.Write(c.row(r)); err != nil {
		return err
	}
	c.count++
	return nil
}

func (c *csvWriter) Flush() error {
	c.cw.Flush()
	if err := c.cw.Error(); err != nil {
		return err
	}
	flushHTTP(c.out)
	return nil
}

func (c *csvWriter) Close() error {
	c.cw.Flush()
	return c.cw.Error()
}

func (c *csvWriter) Count() int { return c.count }

// AuditCSV streams audit entries as CSV.
type AuditCSV struct {
	out   io.Writer
	cw    *csv.Writer
	count int
}

var auditHeader = []string{
	"ID", "Timestamp", "Action", "Severity", "Entity Type", "Entity ID",
	"Username", "IP Address", "User Agent",
}

// NewAuditCSV writes the header and returns the writer.
func NewAuditCSV(w io.Writer) (*AuditCSV, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return nil, err
	}
	return &AuditCSV{out: w, cw: cw}, nil
}

// Write appends one entry.
func (a *AuditCSV) Write(e core.AuditEntry) error {
	if err := a.cw.Write([]string{
		e.ID,
		e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		string(e.Action),
		string(e.Severity),
		e.EntityType,
		e.EntityID,
		e.Username,
		e.IPAddress,
		e.UserAgent,
	}); err != nil {
		return err
	}
	a.count++
	return nil
}

// Flush pushes buffered rows to the client.
func (a *AuditCSV) Flush() error {
	a.cw.Flush()
	if err := a.cw.Error(); err != nil {
		return err
	}
	flushHTTP(a.out)
	return nil
}

// Count returns the number of entries written.
func (a *AuditCSV) Count() int { return a.count }

// AuditFilename names an audit export created at now.
func AuditFilename(now time.Time) string {
	return "audit_log_" + now.UTC().Format("20060102_150405") + ".csv"
}
