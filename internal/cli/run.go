package cli

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/orchestrator"
)

// NewRunCmd создаёт команду run.
func NewRunCmd(env *Env) *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run MANIFEST",
		Short: "Run a workflow or meta-workflow manifest",
		Example: `  dagon run pipeline.yaml
  dagon run --dry pipeline.yaml
  dagon run --resume /var/lib/dagon/checkpoints/Calvino.json pipeline.yaml
  dagon run --reporter-url http://localhost:8080 --max-parallel 4 nightly.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := NewRuntime(ctx, env.Config, env.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Результат печатается и для упавшего прогона: ошибка
			// orchestrator.ErrRunFailed приходит вместе с ним.
			res, err := rt.Execute(ctx, args[0], opts)
			if res != nil {
				if perr := printResult(env.Out, res); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.Dry, "dry", false, "Resolve and order tasks without executing commands")
	cmd.Flags().StringVar(&opts.ResumeFile, "resume", "", "Resume from a checkpoint file")
	cmd.Flags().BoolVar(&opts.ResumeDB, "resume-db", false, "Resume from the checkpoint mirror in PostgreSQL")
	env.addExecFlags(cmd)

	return cmd
}

type runSummary struct {
	Name       string            `json:"name"`
	Status     domain.RunStatus  `json:"status"`
	Order      []string          `json:"order"`
	Workflows  []workflowSummary `json:"workflows"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

type workflowSummary struct {
	Name     string                       `json:"name"`
	RunID    string                       `json:"run_id"`
	Status   domain.RunStatus             `json:"status"`
	Tasks    map[string]domain.TaskStatus `json:"tasks"`
	Errors   []string                     `json:"errors,omitempty"`
	Duration string                       `json:"duration"`
}

func summarize(res *orchestrator.MetaResult) runSummary {
	out := runSummary{
		Name:       res.Name,
		Status:     res.Status,
		Order:      res.Order,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	for _, name := range res.Order {
		r, ok := res.Workflows[name]
		if !ok {
			continue
		}
		ws := workflowSummary{
			Name:     name,
			RunID:    r.RunID,
			Status:   r.Status,
			Tasks:    r.Tasks,
			Duration: r.Duration().Round(time.Millisecond).String(),
		}
		for _, err := range r.Errors {
			ws.Errors = append(ws.Errors, err.Error())
		}
		out.Workflows = append(out.Workflows, ws)
	}
	return out
}

func printResult(out *Output, res *orchestrator.MetaResult) error {
	summary := summarize(res)
	if out.JSONMode() {
		return out.JSON(summary)
	}

	headers := []string{"WORKFLOW", "STATUS", "FINISHED", "FAILED", "SKIPPED", "DURATION"}
	rows := make([][]string, 0, len(summary.Workflows))
	for _, name := range res.Order {
		r, ok := res.Workflows[name]
		if !ok {
			rows = append(rows, []string{name, "-", "-", "-", "-", "-"})
			continue
		}
		rows = append(rows, []string{
			name,
			string(r.Status),
			strconv.Itoa(r.Stats.Finished),
			strconv.Itoa(r.Stats.Failed),
			strconv.Itoa(r.Stats.Skipped),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	if err := out.Table(headers, rows); err != nil {
		return err
	}

	for _, ws := range summary.Workflows {
		names := make([]string, 0, len(ws.Tasks))
		for name, status := range ws.Tasks {
			if status == domain.TaskStatusFailed {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		for _, name := range names {
			out.Error(fmt.Sprintf("%s/%s failed", ws.Name, name))
		}
		for _, msg := range ws.Errors {
			out.Error(msg)
		}
	}
	out.Success("%s: %s", summary.Name, summary.Status)
	return nil
}
