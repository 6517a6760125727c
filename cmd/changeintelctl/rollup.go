package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/database/postgres"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/kpi"
	"github.com/opsgrid/changeintel/internal/workflow"
)

var rollupWindow time.Duration

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Run the KPI roll-up once and print the report",
	RunE:  runRollup,
}

func init() {
	rollupCmd.Flags().DurationVarP(&rollupWindow, "window", "w", 30*24*time.Hour, "lookback window (0 for all completed changes)")
}

func runRollup(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := postgres.LoadFromEnv()
	pool := postgres.NewPostgresPool(cfg, logger)

	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Disconnect(ctx)

	aggregator := kpi.New(
		changestore.NewPostgresStore(pool),
		workflow.NewPostgresApprovalStore(pool),
		audit.NewPostgresJournal(pool),
		graph.NewPostgresStore(pool),
	)

	report, err := aggregator.Compute(ctx, time.Now(), rollupWindow)
	if err != nil {
		return fmt.Errorf("compute rollup: %w", err)
	}

	fmt.Printf("total_changes:             %d\n", report.TotalChanges)
	fmt.Printf("auto_approved_pct:         %.2f%%\n", report.AutoApprovedPct*100)
	fmt.Printf("avg_validation_minutes:    %.1f\n", report.AvgValidationMinutes)
	fmt.Printf("incidents_post_change_pct: %.2f%%\n", report.IncidentsPostChangePct*100)
	fmt.Printf("scoring_precision_pct:     %.2f%%\n", report.ScoringPrecisionPct*100)
	fmt.Printf("core_changes_detected_pct: %.2f%%\n", report.CoreChangesDetectedPct*100)
	return nil
}
