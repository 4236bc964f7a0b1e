package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flitsinc/go-taskfeed/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's connection to the hub",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	status, err := newClient().getFeedStatus(ctx)
	if err != nil {
		return err
	}

	snap := status.Feed
	enabled := "no"
	if snap.Enabled {
		enabled = "yes"
	}

	fmt.Fprintf(ui.Out, "Server:     %s\n", serverURL())
	fmt.Fprintf(ui.Out, "Uptime:     %s\n", status.Uptime)
	fmt.Fprintf(ui.Out, "State:      %s\n", output.StateColor(snap.State))
	fmt.Fprintf(ui.Out, "Enabled:    %s\n", enabled)
	fmt.Fprintf(ui.Out, "Retries:    %d\n", snap.RetryCount)
	if snap.LastError != "" {
		fmt.Fprintf(ui.Out, "Last error: %s\n", snap.LastError)
	}
	return nil
}
