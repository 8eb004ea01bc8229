// Package schedule implements the schedule command, which runs the
// crawl pipeline on a recurring cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/pipeline"
)

// Command returns the schedule command for use in the root command.
func Command() *cobra.Command {
	var (
		cronSpec string
		lookback int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the crawl pipeline on a recurring schedule",
		Long: `Schedule runs the full crawl-and-embed pipeline on a cron schedule.
Each run covers articles published within the lookback window, so a
daily schedule with a 7-day lookback tolerates several missed runs.

The schedule and lookback default to the config file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if cronSpec == "" {
				cronSpec = deps.Cfg.Schedule.Cron
			}
			if lookback <= 0 {
				lookback = deps.Cfg.Schedule.LookbackDays
			}

			runner := cron.New()
			_, err = runner.AddFunc(cronSpec, func() {
				runOnce(deps, lookback)
			})
			if err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", cronSpec, err)
			}

			deps.Log.Info("scheduler started",
				"cron", cronSpec, "lookback_days", lookback)
			runner.Start()

			<-cmd.Context().Done()

			deps.Log.Info("scheduler stopping, waiting for running job")
			<-runner.Stop().Done()

			return nil
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "Cron expression (default from config)")
	cmd.Flags().IntVar(&lookback, "lookback", 0, "Lookback window in days (default from config)")

	return cmd
}

// runOnce executes one scheduled pipeline run. Errors are logged, not
// fatal; the next tick retries from the saved checkpoint.
func runOnce(deps *common.Deps, lookback int) {
	ctx := context.Background()

	cfg := pipeline.Config{From: time.Now().AddDate(0, 0, -lookback)}

	p, err := deps.Pipeline(ctx, cfg)
	if err != nil {
		deps.Log.Error("failed to construct pipeline", "error", err.Error())
		return
	}

	summary, err := p.Run(ctx)
	if err != nil {
		deps.Log.Error("scheduled run failed", "error", err.Error())
		return
	}

	deps.Log.Info("scheduled run complete",
		"run_id", summary.RunID,
		"discovered", summary.Discovered,
		"new", summary.NewURLs,
		"stored", summary.Stored,
		"embedded", summary.Embedded,
		"embed_failed", summary.EmbedFailed)
}
