package export

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"github.com/JonMunkholm/sanandem/internal/core"
)

// adminRecord is one report in an admin JSON export. Missing values are null.
type adminRecord struct {
	ID               int64     `json:"id"`
	MedicationName   string    `json:"medicationName"`
	MedicationDosage *string   `json:"medicationDosage"`
	SideEffects      []string  `json:"sideEffects"`
	PositiveEffects  []string  `json:"positiveEffects"`
	Severity         int       `json:"severity"`
	Age              *int      `json:"age"`
	AgeGroup         *string   `json:"ageGroup"`
	Gender           *string   `json:"gender"`
	DurationOfEffect *string   `json:"durationOfEffect"`
	UsageDuration    *string   `json:"usageDuration"`
	CreatedAt        time.Time `json:"createdAt"`
	IsVerified       bool      `json:"isVerified"`
}

func toAdminRecord(r core.Report) adminRecord {
	rec := adminRecord{
		ID:               r.ID,
		MedicationName:   r.MedicationName,
		MedicationDosage: nullable(r.MedicationDosage),
		SideEffects:      r.SideEffects,
		PositiveEffects:  r.PositiveEffects,
		Severity:         r.Severity,
		AgeGroup:         nullable(r.AgeGroup),
		Gender:           nullable(r.Gender),
		DurationOfEffect: nullable(r.DurationOfEffect),
		UsageDuration:    nullable(r.UsageDuration),
		CreatedAt:        r.CreatedAt.UTC(),
		IsVerified:       r.IsVerified,
	}
	if r.Age > 0 {
		age := r.Age
		rec.Age = &age
	}
	if rec.SideEffects == nil {
		rec.SideEffects = []string{}
	}
	return rec
}

// PublicRecord is one anonymized report.
type PublicRecord struct {
	MedicationName   string   `json:"medicationName"`
	MedicationDosage *string  `json:"medicationDosage"`
	SideEffects      []string `json:"sideEffects"`
	PositiveEffects  []string `json:"positiveEffects"`
	Severity         int      `json:"severity"`
	AgeGroup         string   `json:"ageGroup"`
	Gender           string   `json:"gender"`
	DurationOfEffect *string  `json:"durationOfEffect"`
	UsageDuration    *string  `json:"usageDuration"`
	Year             int      `json:"year"`
}

// ToPublicRecord strips identifying fields from r.
func ToPublicRecord(r core.Report) PublicRecord {
	effects := r.SideEffects
	if effects == nil {
		effects = []string{}
	}
	return PublicRecord{
		MedicationName:   r.MedicationName,
		MedicationDosage: nullable(r.MedicationDosage),
		SideEffects:      effects,
		PositiveEffects:  r.PositiveEffects,
		Severity:         r.Severity,
		AgeGroup:         orUnknown(r.AgeGroup),
		Gender:           orUnknown(r.Gender),
		DurationOfEffect: nullable(r.DurationOfEffect),
		UsageDuration:    nullable(r.UsageDuration),
		Year:             r.CreatedAt.UTC().Year(),
	}
}

// ToPublicRecords converts a slice. The result is never nil.
func ToPublicRecords(reports []core.Report) []PublicRecord {
	out := make([]PublicRecord, len(reports))
	for i, r := range reports {
		out[i] = ToPublicRecord(r)
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// jsonArrayWriter streams an indented JSON array one element at a time.
type jsonArrayWriter struct {
	out    io.Writer
	buf    *bufio.Writer
	encode func(core.Report) any
	count  int
}

func newJSONArrayWriter(w io.Writer, encode func(core.Report) any) *jsonArrayWriter {
	return &jsonArrayWriter{out: w, buf: bufio.NewWriter(w), encode: encode}
}

func (j *jsonArrayWriter) Write(r core.Report) error {
	b, err := json.MarshalIndent(j.encode(r), "  ", "  ")
	if err != nil {
		return err
	}
	sep := ",\n  "
	if j.count == 0 {
		sep = "[\n  "
	}
	if _, err := j.buf.WriteString(sep); err != nil {
		return err
	}
	if _, err := j.buf.Write(b); err != nil {
		return err
	}
	j.count++
	return nil
}

func (j *jsonArrayWriter) Flush() error {
	if err := j.buf.Flush(); err != nil {
		return err
	}
	flushHTTP(j.out)
	return nil
}

func (j *jsonArrayWriter) Close() error {
	tail := "\n]\n"
	if j.count == 0 {
		tail = "[]\n"
	}
	if _, err := j.buf.WriteString(tail); err != nil {
		return err
	}
	return j.buf.Flush()
}

func (j *jsonArrayWriter) Count() int { return j.count }

// PublicMetadata heads a public JSON export.
type PublicMetadata struct {
	ExportDate  time.Time `json:"exportDate"`
	RecordCount int       `json:"recordCount"`
	Disclaimer  string    `json:"disclaimer"`
}

// PublicDocument is the public JSON export envelope.
type PublicDocument struct {
	Metadata PublicMetadata `json:"metadata"`
	Data     []PublicRecord `json:"data"`
}

// publicJSONWriter buffers records because the count precedes the data.
// The public limit keeps the buffer bounded.
type publicJSONWriter struct {
	out     io.Writer
	now     time.Time
	records []PublicRecord
}

func newPublicJSONWriter(w io.Writer, now time.Time) *publicJSONWriter {
	return &publicJSONWriter{out: w, now: now, records: make([]PublicRecord, 0)}
}

func (p *publicJSONWriter) Write(r core.Report) error {
	p.records = append(p.records, ToPublicRecord(r))
	return nil
}

func (p *publicJSONWriter) Flush() error { return nil }

func (p *publicJSONWriter) Close() error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(PublicDocument{
		Metadata: PublicMetadata{
			ExportDate:  p.now.UTC(),
			RecordCount: len(p.records),
			Disclaimer:  Disclaimer,
		},
		Data: p.records,
	})
}

func (p *publicJSONWriter) Count() int { return len(p.records) }
