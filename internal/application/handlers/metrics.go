package handlers

import (
	"context"
	"fmt"

	"github.com/complypilot/comply-core/internal/domain/entities"
	"github.com/complypilot/comply-core/internal/domain/services"
)

// MetricsHandler exposes KPI snapshots and trends to the admin surface.
type MetricsHandler struct {
	metrics *services.MetricsService
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(metrics *services.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot computes (and caches) the KPIs for a date. An empty date means
// today.
func (h *MetricsHandler) Snapshot(ctx context.Context, date string) (*entities.KPISnapshot, error) {
	if date == "" {
		date = timeNow().UTC().Format(entities.DateLayout)
	}
	snapshot, err := h.metrics.CalculateSnapshot(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("calculating snapshot: %w", err)
	}
	return snapshot, nil
}

// TrendResult is a daily KPI series with its improvement summary.
type TrendResult struct {
	Series  []entities.KPISnapshot
	Summary services.TrendSummary
}

// Trend computes the recent daily series and whether each KPI is moving the
// right way.
func (h *MetricsHandler) Trend(ctx context.Context, days int) (*TrendResult, error) {
	series, err := h.metrics.Trend(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("computing trend: %w", err)
	}
	return &TrendResult{
		Series:  series,
		Summary: services.AnalyzeTrend(series),
	}, nil
}
