package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/flitsinc/go-taskfeed/internal/eventbus"
	"github.com/flitsinc/go-taskfeed/internal/schema"
)

var (
	tailStreams []string
	tailHistory int
	tailFollow  bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the event feed, optionally following new events",
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().StringSliceVar(&tailStreams, "stream", schema.FeedStreams, "Streams to tail")
	tailCmd.Flags().IntVarP(&tailHistory, "history", "n", 20, "Recent events to print per stream before following")
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "Keep the connection open and print new events")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := newClient()

	if tailHistory > 0 {
		var history []eventbus.Event
		for _, stream := range tailStreams {
			items, err := client.listEvents(ctx, stream, tailHistory)
			if err != nil {
				return err
			}
			history = append(history, items...)
		}
		sort.Slice(history, func(i, j int) bool {
			return history[i].CreatedAt.Before(history[j].CreatedAt)
		})
		for _, evt := range history {
			printEvent(evt)
		}
	}

	if !tailFollow {
		return nil
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, client.wsURL(tailStreams), nil)
	if err != nil {
		return fmt.Errorf("cannot open event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ui.VerboseLog("following %v", tailStreams)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		var evt eventbus.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		printEvent(evt)
	}
}

func printEvent(evt eventbus.Event) {
	line := fmt.Sprintf("%s  %-12s  %s", evt.CreatedAt.Local().Format("15:04:05"), evt.Stream, evt.Subject)
	if taskID := schema.GetMetaString(evt.Metadata, schema.MetaTaskID); taskID != "" && !strings.Contains(evt.Subject, taskID) {
		line += "  [" + taskID + "]"
	}
	if evt.Body != "" {
		line += "  " + evt.Body
	}
	fmt.Fprintln(ui.Out, line)
}
