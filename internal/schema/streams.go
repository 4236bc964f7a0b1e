package schema

const (
	StreamTaskStatus  = "task_status"
	StreamTaskUpdates = "task_updates"
	StreamErrors      = "errors"
)

// FeedStreams are the streams the local mirror publishes to. API and CLI
// subscribers default to this set.
var FeedStreams = []string{
	StreamTaskStatus,
	StreamTaskUpdates,
	StreamErrors,
}

// StreamOrdering returns "fifo" or "lifo" for a given stream. Status and
// update streams are read oldest-first so a consumer replays mirror history
// in arrival order.
func StreamOrdering(stream string) string {
	if stream == StreamErrors {
		return "lifo"
	}
	return "fifo"
}
