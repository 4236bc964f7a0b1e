package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flitsinc/go-taskfeed/internal/output"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored tasks",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status (IN_PROGRESS, DONE, MERGED, PAUSED, CANCELLED)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "Maximum number of tasks to show")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	items, err := newClient().listTasks(ctx, listStatus, listLimit)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		ui.Info("No tasks mirrored yet.")
		return nil
	}

	table := ui.Table([]string{"ID", "STATUS", "CHANGES", "SESSION", "UPDATED", "MESSAGE"})
	for _, task := range items {
		changes := ""
		if task.HasChanges {
			changes = "yes"
		}
		table.Append([]string{
			task.ID,
			output.StatusColor(string(task.Status)),
			changes,
			task.SessionID,
			task.UpdatedAt.Local().Format("15:04:05"),
			truncate(task.StatusMessage, 60),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "\n%d task(s)\n", len(items))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
