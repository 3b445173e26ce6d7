package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/sanandem/internal/cache"
)

// Cache keys for aggregate results. All are invalidated together whenever a
// report changes.
const (
	CacheKeyReportStatistics     = "report_statistics"
	CacheKeyMedicationStatistics = "medication_statistics"
	CacheKeySideEffectOverview   = "side_effect_overview"
	CacheKeyTrends               = "trends"
	CacheKeyHeatmap              = "heatmap"
	CacheKeyNetworkGraph         = "network_graph"
)

// StatisticsCacheKeys lists every key written by StatisticsService.
var StatisticsCacheKeys = []string{
	CacheKeyReportStatistics,
	CacheKeyMedicationStatistics,
	CacheKeySideEffectOverview,
	CacheKeyTrends,
	CacheKeyHeatmap,
	CacheKeyNetworkGraph,
}

// StatisticsQuerier is the uncached aggregate query surface. *Statistics
// implements it.
type StatisticsQuerier interface {
	ReportStatistics(ctx context.Context) (*ReportStatistics, error)
	MedicationStatistics(ctx context.Context) ([]MedicationStat, error)
	SeverityByMedication(ctx context.Context) ([]MedicationStat, error)
	TopSideEffects(ctx context.Context, limit int) ([]SideEffectCount, error)
	Trends(ctx context.Context, days int) ([]TrendPoint, error)
	Heatmap(ctx context.Context) ([]HeatmapCell, error)
	Compare(ctx context.Context, med1, med2 string) (*MedicationComparison, error)
	NetworkGraph(ctx context.Context, maxLinks int) (*NetworkGraph, error)
}

// SideEffectOverview feeds the overview visualization.
type SideEffectOverview struct {
	SideEffects   []SideEffectCount `json:"sideEffects"`
	SeverityByMed []MedicationStat  `json:"severityByMed"`
}

// StatisticsService serves aggregates through the statistics cache.
type StatisticsService struct {
	stats StatisticsQuerier
	cache *cache.Cache
	ttl   time.Duration
}

// NewStatisticsService wraps stats with c. A non-positive ttl uses the cache default.
func NewStatisticsService(stats StatisticsQuerier, c *cache.Cache, ttl time.Duration) *StatisticsService {
	return &StatisticsService{stats: stats, cache: c, ttl: ttl}
}

func (s *StatisticsService) ReportStatistics(ctx context.Context) (*ReportStatistics, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyReportStatistics, s.ttl, s.stats.ReportStatistics)
}

func (s *StatisticsService) MedicationStatistics(ctx context.Context) ([]MedicationStat, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyMedicationStatistics, s.ttl, s.stats.MedicationStatistics)
}

func (s *StatisticsService) Overview(ctx context.Context) (*SideEffectOverview, error) {
	return cache.Fetch(ctx, s.cache, CacheKeySideEffectOverview, s.ttl, func(ctx context.Context) (*SideEffectOverview, error) {
		effects, err := s.stats.TopSideEffects(ctx, defaultSideEffectTop)
		if err != nil {
			return nil, err
		}
		bySeverity, err := s.stats.SeverityByMedication(ctx)
		if err != nil {
			return nil, err
		}
		return &SideEffectOverview{SideEffects: effects, SeverityByMed: bySeverity}, nil
	})
}

func (s *StatisticsService) Trends(ctx context.Context) ([]TrendPoint, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyTrends, s.ttl, func(ctx context.Context) ([]TrendPoint, error) {
		return s.stats.Trends(ctx, defaultTrendDays)
	})
}

func (s *StatisticsService) Heatmap(ctx context.Context) ([]HeatmapCell, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyHeatmap, s.ttl, s.stats.Heatmap)
}

func (s *StatisticsService) NetworkGraph(ctx context.Context) (*NetworkGraph, error) {
	return cache.Fetch(ctx, s.cache, CacheKeyNetworkGraph, s.ttl, func(ctx context.Context) (*NetworkGraph, error) {
		return s.stats.NetworkGraph(ctx, defaultNetworkLinks)
	})
}

// Compare is parameterized by user input and is never cached.
func (s *StatisticsService) Compare(ctx context.Context, med1, med2 string) (*MedicationComparison, error) {
	return s.stats.Compare(ctx, med1, med2)
}

// InvalidateAll drops every cached aggregate.
func (s *StatisticsService) InvalidateAll(ctx context.Context) {
	s.cache.Invalidate(ctx, StatisticsCacheKeys...)
}

// ClearCache removes every cache entry, including keys this service does not own.
func (s *StatisticsService) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// PurgeExpired deletes expired cache entries.
func (s *StatisticsService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.cache.DeleteExpired(ctx)
}
