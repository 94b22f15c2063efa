package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Dagon/internal/scheduler"
)

// NewScheduleCmd создаёт команду schedule: периодический запуск манифеста.
func NewScheduleCmd(env *Env) *cobra.Command {
	var (
		expr       string
		timezone   string
		runOnStart bool
		dry        bool
		next       int
	)

	cmd := &cobra.Command{
		Use:   "schedule MANIFEST",
		Short: "Run a manifest periodically on a cron schedule",
		Example: `  dagon schedule --cron "0 3 * * *" --timezone Europe/Rome nightly.yaml
  dagon schedule --cron "@every 15m" --run-on-start pipeline.yaml
  dagon schedule --cron "*/5 * * * *" --next 5 pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := loadPlan(path, env.Logger); err != nil {
				return err
			}

			if next > 0 {
				schedule, err := scheduler.ParseSchedule(expr, timezone)
				if err != nil {
					return err
				}
				runs := scheduler.NextRuns(schedule, time.Now(), next)
				rows := make([][]string, 0, len(runs))
				for i, t := range runs {
					rows = append(rows, []string{fmt.Sprint(i + 1), t.Format(time.RFC3339)})
				}
				return env.Out.Print([]string{"#", "RUN AT"}, rows, runs)
			}

			ctx := cmd.Context()
			rt, err := NewRuntime(ctx, env.Config, env.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := scheduler.New(scheduler.Config{
				Expr:       expr,
				Timezone:   timezone,
				Logger:     env.Logger,
				RunOnStart: runOnStart,
				Job: func(ctx context.Context) error {
					res, err := rt.Execute(ctx, path, RunOptions{Dry: dry})
					if res != nil {
						env.Logger.Info("scheduled run finished",
							"plan", res.Name,
							"status", res.Status,
							"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
						)
					}
					return err
				},
			})
			if err != nil {
				return err
			}

			env.Logger.Info("schedule started", "manifest", path, "cron", expr, "next", s.Next(time.Now()))
			err = s.Run(ctx)

			stats := s.Stats()
			env.Out.Success("schedule stopped: %d runs, %d failed, %d skipped", stats.Runs, stats.Failures, stats.Skipped)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression (5 fields or @hourly, @every 1h, ...)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone of the cron expression")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run once immediately, then follow the schedule")
	cmd.Flags().BoolVar(&dry, "dry", false, "Resolve and order tasks without executing commands")
	cmd.Flags().IntVar(&next, "next", 0, "Print the next N run times and exit")
	_ = cmd.MarkFlagRequired("cron")
	env.addExecFlags(cmd)

	return cmd
}
