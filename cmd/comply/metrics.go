package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

// DefaultTrendDays is the window for trend analysis.
const DefaultTrendDays = 7

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Learning-effectiveness KPIs",
	}

	cmd.AddCommand(newMetricsShowCmd(), newMetricsTrendCmd())
	return cmd
}

func newMetricsShowCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Compute the KPI snapshot for a date (default: today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				snapshot, err := d.MetricsHandler.Snapshot(cmd.Context(), date)
				if err != nil {
					return err
				}
				displaySnapshot(*snapshot)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD); falls back to all-time when the day has no transactions")
	return cmd
}

func newMetricsTrendCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Daily KPI series with improvement analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				trend, err := d.MetricsHandler.Trend(cmd.Context(), days)
				if err != nil {
					return err
				}

				for _, snapshot := range trend.Series {
					fmt.Printf("%s  HCR %5.1f%%  CRS %5.1f%%  ATAR %5.1f%%  audit %5.1f%%  (%d transactions)\n",
						snapshot.Date,
						snapshot.HumanCorrectionRate,
						snapshot.ContextRetentionScore,
						snapshot.AutoApprovalRate,
						snapshot.AuditTraceabilityScore,
						snapshot.TransactionCount)
				}

				fmt.Printf("\nHuman correction rate improving: %v\n", trend.Summary.HCRImproving)
				fmt.Printf("Context retention improving:     %v\n", trend.Summary.CRSImproving)
				fmt.Printf("Auto approval rate improving:    %v\n", trend.Summary.ATARImproving)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", DefaultTrendDays, "Number of days in the window")
	return cmd
}

func displaySnapshot(s entities.KPISnapshot) {
	scope := s.Date
	if s.TransactionCount == 0 {
		scope += " (no transactions)"
	}
	fmt.Printf("KPIs for %s:\n", scope)
	fmt.Printf("  Human correction rate:    %.1f%%\n", s.HumanCorrectionRate)
	fmt.Printf("  Context retention score:  %.1f%%\n", s.ContextRetentionScore)
	fmt.Printf("  Auto approval rate:       %.1f%%\n", s.AutoApprovalRate)
	fmt.Printf("  Audit traceability:       %.1f%%\n", s.AuditTraceabilityScore)
	fmt.Printf("  Transactions:             %d\n", s.TransactionCount)
	fmt.Printf("  Avg processing time:      %.0f ms\n", s.AvgProcessingMS)
}
