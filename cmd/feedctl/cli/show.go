package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flitsinc/go-taskfeed/internal/output"
)

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	task, err := newClient().getTask(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Task:    %s\n", task.ID)
	fmt.Fprintf(ui.Out, "Status:  %s\n", output.StatusColor(string(task.Status)))
	if task.StatusMessage != "" {
		fmt.Fprintf(ui.Out, "Message: %s\n", task.StatusMessage)
	}
	if task.SessionID != "" {
		fmt.Fprintf(ui.Out, "Session: %s\n", task.SessionID)
	}
	fmt.Fprintf(ui.Out, "Updated: %s\n", task.UpdatedAt.Local().Format(time.RFC3339))

	if len(task.Messages) == 0 {
		return nil
	}

	fmt.Fprintln(ui.Out)
	for _, msg := range task.Messages {
		label := msg.Type
		if msg.Role != "" {
			label = msg.Role + "/" + msg.Type
		}
		fmt.Fprintf(ui.Out, "--- %s\n", label)
		if text, ok := msg.Data["text"].(string); ok && text != "" {
			fmt.Fprintln(ui.Out, text)
			continue
		}
		encoded, err := json.MarshalIndent(msg.Data, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintln(ui.Out, string(encoded))
	}
	return nil
}
