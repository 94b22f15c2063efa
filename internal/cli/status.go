package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт группу команд просмотра монитора.
func NewStatusCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect workflows known to the status service",
	}
	cmd.PersistentFlags().String("monitor-url", "", "Status service URL (default: reporter.url)")

	client := func() (*MonitorClient, error) {
		url := env.Config.Reporter.URL
		if url == "" {
			return nil, fmt.Errorf("status service URL is not set (use --monitor-url or reporter.url)")
		}
		return NewMonitorClient(url, env.Config.Reporter.Timeout), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			workflows, total, err := c.ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "HOST", "STATUS", "TASKS", "UPDATED"}
			rows := make([][]string, 0, len(workflows))
			for _, wf := range workflows {
				rows = append(rows, []string{
					wf.ID,
					wf.Name,
					valueOr(wf.Host, "-"),
					wf.Status,
					formatStatuses(wf.Tasks, wf.Statuses),
					wf.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			if err := env.Out.Print(headers, rows, workflows); err != nil {
				return err
			}
			if !env.Out.JSONMode() {
				env.Out.Success("Total: %d", total)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show tasks of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			wf, err := c.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if env.Out.JSONMode() {
				return env.Out.JSON(wf)
			}

			names := make([]string, 0, len(wf.Tasks))
			for name := range wf.Tasks {
				names = append(names, name)
			}
			slices.Sort(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				t := wf.Tasks[name]
				deps := append([]string(nil), t.Dependencies...)
				slices.Sort(deps)
				rows = append(rows, []string{
					t.Name,
					t.Type,
					t.Status,
					valueOr(strings.Join(deps, ", "), "-"),
					valueOr(t.WorkingDir, "-"),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", wf.Name, wf.ID)
			return env.Out.Table([]string{"TASK", "TYPE", "STATUS", "DEPENDS ON", "WORKING DIR"}, rows)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a workflow from the status service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if err := c.DeleteWorkflow(cmd.Context(), args[0]); err != nil {
				return err
			}
			env.Out.Success("Workflow %s deleted", args[0])
			return nil
		},
	}

	for _, sub := range []*cobra.Command{list, show, del} {
		env.configFlag(sub, "monitor-url", "reporter.url")
		cmd.AddCommand(sub)
	}
	return cmd
}

// formatStatuses выводит "3 (FINISHED 2, RUNNING 1)".
func formatStatuses(total int, statuses map[string]int) string {
	keys := make([]string, 0, len(statuses))
	for k := range statuses {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+strconv.Itoa(statuses[k]))
	}
	if len(parts) == 0 {
		return strconv.Itoa(total)
	}
	return fmt.Sprintf("%d (%s)", total, strings.Join(parts, ", "))
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
