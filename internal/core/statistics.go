package core

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sanandem/internal/database"
)

const (
	topMedicationsLimit  = 20
	defaultTrendDays     = 30
	defaultSideEffectTop = 5
	defaultNetworkLinks  = 100
)

// GenderCount is one bucket of ReportStatistics.ByGender.
type GenderCount struct {
	Gender string `json:"gender"`
	Count  int64  `json:"count"`
}

// SeverityCount is one bucket of ReportStatistics.BySeverity.
type SeverityCount struct {
	Severity int   `json:"severity"`
	Count    int64 `json:"count"`
}

// AgeGroupCount is one bucket of ReportStatistics.ByAgeGroup.
type AgeGroupCount struct {
	AgeGroup string `json:"ageGroup"`
	Count    int64  `json:"count"`
}

// ReportStatistics summarizes every stored report.
type ReportStatistics struct {
	TotalReports int64           `json:"totalReports"`
	ByGender     []GenderCount   `json:"byGender"`
	BySeverity   []SeverityCount `json:"bySeverity"`
	ByAgeGroup   []AgeGroupCount `json:"byAgeGroup"`
}

// MedicationStat is a per-medication report count and mean severity.
type MedicationStat struct {
	MedicationName string  `json:"medicationName"`
	Count          int64   `json:"count"`
	AvgSeverity    float64 `json:"avgSeverity"`
}

// SideEffectCount is how often one side effect was reported.
type SideEffectCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TrendPoint is one day of submissions.
type TrendPoint struct {
	Date        string  `json:"date"`
	Count       int64   `json:"count"`
	AvgSeverity float64 `json:"avgSeverity"`
}

// HeatmapCell counts reports for an age group at one severity.
type HeatmapCell struct {
	AgeGroup string `json:"ageGroup"`
	Severity int    `json:"severity"`
	Count    int64  `json:"count"`
}

// MedicationProfile is the comparison summary for one medication.
type MedicationProfile struct {
	Name           string  `json:"name"`
	Count          int64   `json:"count"`
	AvgSeverity    float64 `json:"avgSeverity"`
	AvgSideEffects float64 `json:"avgSideEffects"`
	AvgDuration    float64 `json:"avgDuration"` // hours
	PositiveRatio  float64 `json:"positiveRatio"`
}

// MedicationComparison pairs two profiles.
type MedicationComparison struct {
	Med1 MedicationProfile `json:"med1"`
	Med2 MedicationProfile `json:"med2"`
}

// NetworkNode is a medication or a side effect in the co-occurrence graph.
type NetworkNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// NetworkLink connects a medication to a side effect reported with it.
type NetworkLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int64  `json:"weight"`
}

// NetworkGraph is the medication/side-effect co-occurrence graph.
type NetworkGraph struct {
	Nodes        []NetworkNode `json:"nodes"`
	Links        []NetworkLink `json:"links"`
	TotalReports int64         `json:"totalReports"`
}

// Statistics runs the aggregate queries over medication_reports.
type Statistics struct {
	db database.DBTX
}

// NewStatistics creates the aggregate query runner.
func NewStatistics(db database.DBTX) *Statistics {
	return &Statistics{db: db}
}

// ReportStatistics returns totals by gender, severity and age group.
func (s *Statistics) ReportStatistics(ctx context.Context) (*ReportStatistics, error) {
	stats := &ReportStatistics{
		ByGender:   make([]GenderCount, 0),
		BySeverity: make([]SeverityCount, 0),
		ByAgeGroup: make([]AgeGroupCount, 0),
	}

	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM medication_reports").Scan(&stats.TotalReports); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT COALESCE(NULLIF(gender, ''), 'Unknown'), COUNT(*)
		FROM medication_reports GROUP BY 1 ORDER BY 2 DESC, 1`)
	if err != nil {
		return nil, fmt.Errorf("reports by gender: %w", err)
	}
	for rows.Next() {
		var gc GenderCount
		if err := rows.Scan(&gc.Gender, &gc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByGender = append(stats.ByGender, gc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT severity, COUNT(*)
		FROM medication_reports GROUP BY severity ORDER BY severity`)
	if err != nil {
		return nil, fmt.Errorf("reports by severity: %w", err)
	}
	for rows.Next() {
		var sc SeverityCount
		if err := rows.Scan(&sc.Severity, &sc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.BySeverity = append(stats.BySeverity, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `SELECT age_group, COUNT(*)
		FROM medication_reports WHERE age_group IS NOT NULL GROUP BY age_group ORDER BY age_group`)
	if err != nil {
		return nil, fmt.Errorf("reports by age group: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ac AgeGroupCount
		if err := rows.Scan(&ac.AgeGroup, &ac.Count); err != nil {
			return nil, err
		}
		stats.ByAgeGroup = append(stats.ByAgeGroup, ac)
	}
	return stats, rows.Err()
}

// MedicationStatistics returns the most reported medications.
func (s *Statistics) MedicationStatistics(ctx context.Context) ([]MedicationStat, error) {
	return s.medicationStats(ctx, `SELECT medication_name, COUNT(*) AS count,
			ROUND(AVG(severity)::numeric, 2)::float8
		FROM medication_reports
		GROUP BY medication_name
		ORDER BY count DESC, medication_name
		LIMIT $1`, topMedicationsLimit)
}

// SeverityByMedication returns mean severity per medication, highest first.
func (s *Statistics) SeverityByMedication(ctx context.Context) ([]MedicationStat, error) {
	return s.medicationStats(ctx, `SELECT medication_name, COUNT(*) AS count,
			ROUND(AVG(severity)::numeric, 2)::float8 AS avg_severity
		FROM medication_reports
		GROUP BY medication_name
		ORDER BY avg_severity DESC, medication_name
		LIMIT $1`, topMedicationsLimit)
}

func (s *Statistics) medicationStats(ctx context.Context, query string, args ...any) ([]MedicationStat, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("medication statistics: %w", err)
	}
	defer rows.Close()

	out := make([]MedicationStat, 0)
	for rows.Next() {
		var m MedicationStat
		if err := rows.Scan(&m.MedicationName, &m.Count, &m.AvgSeverity); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TopSideEffects returns the most frequently reported side effects.
func (s *Statistics) TopSideEffects(ctx context.Context, limit int) ([]SideEffectCount, error) {
	if limit <= 0 {
		limit = defaultSideEffectTop
	}
	rows, err := s.db.Query(ctx, `SELECT effect, COUNT(*) AS count
		FROM medication_reports, jsonb_array_elements_text(side_effects) AS effect
		GROUP BY effect
		ORDER BY count DESC, effect
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top side effects: %w", err)
	}
	defer rows.Close()

	out := make([]SideEffectCount, 0, limit)
	for rows.Next() {
		var c SideEffectCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Trends returns daily submission counts for the most recent days, oldest first.
func (s *Statistics) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	rows, err := s.db.Query(ctx, `SELECT date, count, avg_severity FROM (
			SELECT TO_CHAR(created_at, 'YYYY-MM-DD') AS date, COUNT(*) AS count,
				ROUND(AVG(severity)::numeric, 2)::float8 AS avg_severity
			FROM medication_reports
			GROUP BY 1
			ORDER BY 1 DESC
			LIMIT $1
		) recent ORDER BY date ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("trends: %w", err)
	}
	defer rows.Close()

	out := make([]TrendPoint, 0, days)
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Count, &p.AvgSeverity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Heatmap counts reports per age group and severity.
func (s *Statistics) Heatmap(ctx context.Context) ([]HeatmapCell, error) {
	rows, err := s.db.Query(ctx, `SELECT age_group, severity, COUNT(*)
		FROM medication_reports
		WHERE age_group IS NOT NULL
		GROUP BY 1, 2
		ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("heatmap: %w", err)
	}
	defer rows.Close()

	out := make([]HeatmapCell, 0)
	for rows.Next() {
		var c HeatmapCell
		if err := rows.Scan(&c.AgeGroup, &c.Severity, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MedicationProfile summarizes one medication matched case-insensitively.
// It returns nil without error when no report names it.
func (s *Statistics) MedicationProfile(ctx context.Context, name string) (*MedicationProfile, error) {
	pattern := escapeLike(strings.TrimSpace(name))

	p := MedicationProfile{Name: name}
	var positive int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*),
			COALESCE(AVG(severity), 0)::float8,
			COALESCE(AVG(jsonb_array_length(side_effects)), 0)::float8,
			COUNT(CASE WHEN jsonb_array_length(positive_effects) > 0 THEN 1 END)
		FROM medication_reports
		WHERE medication_name ILIKE $1`, pattern).Scan(&p.Count, &p.AvgSeverity, &p.AvgSideEffects, &positive)
	if err != nil {
		return nil, fmt.Errorf("medication profile %q: %w", name, err)
	}
	if p.Count == 0 {
		return nil, nil
	}
	p.PositiveRatio = float64(positive) / float64(p.Count)

	rows, err := s.db.Query(ctx, `SELECT duration_of_effect FROM medication_reports
		WHERE medication_name ILIKE $1 AND duration_of_effect IS NOT NULL`, pattern)
	if err != nil {
		return nil, fmt.Errorf("medication durations %q: %w", name, err)
	}
	defer rows.Close()

	var durations []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	p.AvgDuration = AverageDurationHours(durations)

	return &p, nil
}

// Compare profiles two medications. ErrMedicationNotFound is returned when
// either has no reports.
func (s *Statistics) Compare(ctx context.Context, med1, med2 string) (*MedicationComparison, error) {
	if strings.TrimSpace(med1) == "" || strings.TrimSpace(med2) == "" {
		return nil, ErrMedicationsRequired
	}
	p1, err := s.MedicationProfile(ctx, med1)
	if err != nil {
		return nil, err
	}
	p2, err := s.MedicationProfile(ctx, med2)
	if err != nil {
		return nil, err
	}
	if p1 == nil || p2 == nil {
		return nil, ErrMedicationNotFound
	}
	return &MedicationComparison{Med1: *p1, Med2: *p2}, nil
}

// NetworkGraph links medications to their most common side effects.
func (s *Statistics) NetworkGraph(ctx context.Context, maxLinks int) (*NetworkGraph, error) {
	if maxLinks <= 0 {
		maxLinks = defaultNetworkLinks
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM medication_reports").Scan(&total); err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT medication_name, effect, COUNT(*) AS weight
		FROM medication_reports, jsonb_array_elements_text(side_effects) AS effect
		GROUP BY medication_name, effect
		ORDER BY weight DESC, medication_name, effect
		LIMIT $1`, maxLinks)
	if err != nil {
		return nil, fmt.Errorf("network links: %w", err)
	}
	defer rows.Close()

	var pairs []MedicationEffectPair
	for rows.Next() {
		var p MedicationEffectPair
		if err := rows.Scan(&p.Medication, &p.SideEffect, &p.Count); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	graph := BuildNetworkGraph(pairs)
	graph.TotalReports = total
	return graph, nil
}

// MedicationEffectPair is how often a side effect was reported with a medication.
type MedicationEffectPair struct {
	Medication string
	SideEffect string
	Count      int64
}

// BuildNetworkGraph turns co-occurrence counts into nodes and links. Node
// counts are the sum of their link weights. Nodes are sorted by type, then
// by count descending.
func BuildNetworkGraph(pairs []MedicationEffectPair) *NetworkGraph {
	nodes := make(map[string]*NetworkNode)
	links := make([]NetworkLink, 0, len(pairs))

	node := func(kind, label string) *NetworkNode {
		id := kind + ":" + strings.ToLower(label)
		n, ok := nodes[id]
		if !ok {
			n = &NetworkNode{ID: id, Label: label, Type: kind}
			nodes[id] = n
		}
		return n
	}

	for _, p := range pairs {
		med := node("medication", p.Medication)
		eff := node("side_effect", p.SideEffect)
		med.Count += p.Count
		eff.Count += p.Count
		links = append(links, NetworkLink{Source: med.ID, Target: eff.ID, Weight: p.Count})
	}

	out := make([]NetworkNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})

	return &NetworkGraph{Nodes: out, Links: links}
}

var durationNumber = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// durationUnits are checked in order; the first unit found in the text wins.
var durationUnits = []struct {
	unit  string
	hours float64
}{
	{"hour", 1},
	{"day", 24},
	{"week", 168},
	{"month", 720},
	{"min", 1.0 / 60},
}

// NormalizeDurationHours converts free text like "2 days" or "30 min" to
// hours. The second result is false when no number or known unit is found.
func NormalizeDurationHours(text string) (float64, bool) {
	lower := strings.ToLower(text)
	num := durationNumber.FindString(lower)
	if num == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	for _, u := range durationUnits {
		if strings.Contains(lower, u.unit) {
			return value * u.hours, true
		}
	}
	return 0, false
}

// AverageDurationHours averages the recognizable durations, or returns 0.
func AverageDurationHours(texts []string) float64 {
	var sum float64
	var n int
	for _, t := range texts {
		if h, ok := NormalizeDurationHours(t); ok {
			sum += h
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
