package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/manifest"
	"github.com/shaiso/Dagon/internal/orchestrator"
	"github.com/shaiso/Dagon/internal/worker"
)

// loadPlan строит и проверяет план без подключения к внешним сервисам.
// Задачи не выполняются, поэтому достаточно DryBackend.
func loadPlan(path string, logger *slog.Logger) (*manifest.Plan, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	plan, err := manifest.Build(m, orchestrator.Config{
		Backends:    worker.NewRegistry(&worker.DryBackend{}),
		Checkpoints: checkpoint.NewManager(checkpoint.Config{}),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := plan.Prepare(); err != nil {
		return nil, err
	}
	return plan, nil
}

// NewValidateCmd создаёт команду validate.
func NewValidateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate MANIFEST",
		Short: "Check a manifest: names, dependencies, references and cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(args[0], env.Logger)
			if err != nil {
				return err
			}

			tasks := 0
			for _, level := range plan.Levels() {
				tasks += len(level.Tasks)
			}
			if env.Out.JSONMode() {
				return env.Out.JSON(map[string]any{
					"name":      plan.Name,
					"meta":      plan.Meta != nil,
					"workflows": len(plan.Workflows),
					"tasks":     tasks,
					"valid":     true,
				})
			}
			env.Out.Success("%s: OK (%d workflows, %d tasks)", plan.Name, len(plan.Workflows), tasks)
			return nil
		},
	}
}

// NewGraphCmd создаёт команду graph.
func NewGraphCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "graph MANIFEST",
		Short: "Show execution levels of every workflow in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(args[0], env.Logger)
			if err != nil {
				return err
			}

			levels := plan.Levels()
			edges := plan.WorkflowEdges()
			if env.Out.JSONMode() {
				return env.Out.JSON(map[string]any{
					"name":           plan.Name,
					"levels":         levels,
					"workflow_edges": edges,
				})
			}

			rows := make([][]string, 0, len(levels))
			for _, l := range levels {
				rows = append(rows, []string{l.Workflow, strconv.Itoa(l.Level), strings.Join(l.Tasks, ", ")})
			}
			if err := env.Out.Table([]string{"WORKFLOW", "LEVEL", "TASKS"}, rows); err != nil {
				return err
			}

			names := make([]string, 0, len(edges))
			for name := range edges {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s <- %s\n", name, strings.Join(edges[name], ", "))
			}
			return nil
		},
	}
}
