package services

import (
	"context"
	"fmt"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"go.uber.org/zap"
)

// MetricsService derives the learning-effectiveness KPIs from the store's
// transaction and rule-usage history. Snapshots are a cache: every value is
// recomputable from the underlying records.
type MetricsService struct {
	store  ports.Store
	logger *zap.Logger
}

// NewMetricsService creates a new metrics service.
func NewMetricsService(store ports.Store, logger *zap.Logger) *MetricsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsService{
		store:  store,
		logger: logger,
	}
}

// CalculateSnapshot computes the KPIs for a calendar day and persists the
// result keyed by date (idempotent overwrite). A day with zero transactions
// falls back to all-time figures. Every metric defaults to 0 when its
// denominator is 0.
func (s *MetricsService) CalculateSnapshot(ctx context.Context, date string) (*entities.KPISnapshot, error) {
	snapshot, err := s.compute(ctx, date, true)
	if err != nil {
		return nil, err
	}

	snapshot.Date = date
	snapshot.ComputedAt = timeNow().UTC()
	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persisting snapshot: %w", err)
	}
	return snapshot, nil
}

// compute derives one snapshot. With fallback enabled, a date with no
// transactions widens to all-time; trend series disable the fallback so a
// quiet day reads as zero instead of repeating the all-time figures.
func (s *MetricsService) compute(ctx context.Context, date string, fallback bool) (*entities.KPISnapshot, error) {
	totals, err := s.store.TransactionTotals(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("loading transaction totals: %w", err)
	}

	scope := date
	if totals.Total == 0 && fallback && date != "" {
		s.logger.Debug("no transactions for date, widening to all-time", zap.String("date", date))
		scope = ""
		if totals, err = s.store.TransactionTotals(ctx, scope); err != nil {
			return nil, fmt.Errorf("loading all-time totals: %w", err)
		}
	}

	retention, err := s.store.RuleRetention(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading rule retention: %w", err)
	}

	snapshot := &entities.KPISnapshot{
		TransactionCount: totals.Total,
		AvgProcessingMS:  totals.AvgProcessingMS,
	}
	if totals.Total > 0 {
		n := float64(totals.Total)
		snapshot.HumanCorrectionRate = float64(totals.HumanCorrections) / n * 100
		snapshot.AutoApprovalRate = float64(totals.AutoApproved) / n * 100
		snapshot.AuditTraceabilityScore = float64(totals.WithAuditTrail) / n * 100
	}
	if retention.Applications > 0 {
		snapshot.ContextRetentionScore = retention.WeightedSuccess / float64(retention.Applications) * 100
	}
	return snapshot, nil
}

// Trend computes the daily KPI series for the most recent days, oldest
// first. Days without transactions report zeros rather than widening.
func (s *MetricsService) Trend(ctx context.Context, days int) ([]entities.KPISnapshot, error) {
	if days <= 0 {
		return []entities.KPISnapshot{}, nil
	}

	now := timeNow().UTC()
	series := make([]entities.KPISnapshot, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(entities.DateLayout)
		snapshot, err := s.compute(ctx, date, false)
		if err != nil {
			return nil, err
		}
		snapshot.Date = date
		series = append(series, *snapshot)
	}
	return series, nil
}

// TrendSummary reports, per KPI, whether the recent window is moving the
// right way.
type TrendSummary struct {
	HCRImproving  bool `json:"hcr_improving"`
	CRSImproving  bool `json:"crs_improving"`
	ATARImproving bool `json:"atar_improving"`
}

// AnalyzeTrend compares the halves of the series: correction rate should
// fall, retention and auto-approval should rise.
func AnalyzeTrend(series []entities.KPISnapshot) TrendSummary {
	hcr := make([]float64, len(series))
	crs := make([]float64, len(series))
	atar := make([]float64, len(series))
	for i, s := range series {
		hcr[i] = s.HumanCorrectionRate
		crs[i] = s.ContextRetentionScore
		atar[i] = s.AutoApprovalRate
	}
	return TrendSummary{
		HCRImproving:  Improving(hcr, false),
		CRSImproving:  Improving(crs, true),
		ATARImproving: Improving(atar, true),
	}
}

// Improving reports whether the second half of the series averages better
// than the first half. Fewer than 2 points is never improving.
func Improving(values []float64, higherIsBetter bool) bool {
	if len(values) < 2 {
		return false
	}

	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])

	if higherIsBetter {
		return second > first
	}
	return second < first
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
