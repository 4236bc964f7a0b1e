package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/flitsinc/go-taskfeed/internal/tasks"
)

// TaskStore is the narrow registry contract the engine writes through. It
// performs isolated field-level updates with last-writer-wins semantics;
// no transactional guarantee is required of it.
type TaskStore interface {
	Update(ctx context.Context, taskID string, fields tasks.Fields) error
	Get(ctx context.Context, taskID string) (tasks.Task, error)
}

var knownStatuses = map[tasks.Status]struct{}{
	tasks.StatusInProgress: {},
	tasks.StatusDone:       {},
	tasks.StatusMerged:     {},
	tasks.StatusPaused:     {},
	tasks.StatusCancelled:  {},
}

// Dispatcher classifies raw inbound events and applies them to the task
// store. It never fails upward: malformed or unrecognized events are dropped
// at the boundary, and store errors are logged and swallowed.
type Dispatcher struct {
	store  TaskStore
	agg    *Aggregator
	logger *slog.Logger
}

func NewDispatcher(store TaskStore, agg *Aggregator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, agg: agg, logger: logger}
}

// Dispatch processes one inbound event. Only channel "tasks" is handled.
func (d *Dispatcher) Dispatch(ctx context.Context, event InboundEvent) {
	if event.Channel != ChannelTasks {
		return
	}
	switch event.Topic {
	case TopicStatus:
		d.dispatchStatus(ctx, event)
	case TopicUpdate:
		d.dispatchUpdate(ctx, event)
	}
}

func (d *Dispatcher) dispatchStatus(ctx context.Context, event InboundEvent) {
	payload, ok := decodeStatus(event.Data)
	if !ok {
		return
	}
	status := tasks.Status(payload.Status)
	if _, known := knownStatuses[status]; !known {
		return
	}
	hasChanges := true
	err := d.store.Update(ctx, payload.TaskID, tasks.Fields{
		Status:     &status,
		HasChanges: &hasChanges,
		SessionID:  &payload.SessionID,
	})
	if err != nil {
		d.logger.Warn("status update failed", "task_id", payload.TaskID, "status", payload.Status, "error", err)
	}
}

func (d *Dispatcher) dispatchUpdate(ctx context.Context, event InboundEvent) {
	payload, message, ok := decodeUpdate(event.Data)
	if !ok {
		return
	}

	switch message.Type {
	case MessageTypeGit:
		statusMessage := message.Output
		err := d.store.Update(ctx, payload.TaskID, tasks.Fields{StatusMessage: &statusMessage})
		if err != nil {
			d.logger.Warn("git update failed", "task_id", payload.TaskID, "error", err)
		}

	case MessageTypeShellCall:
		statusMessage := "Running command " + strings.Join(message.Action.Command, " ")
		messages := d.appendMessage(ctx, payload.TaskID, tasks.Message{
			Role: RoleAssistant,
			Type: MessageTypeShellCall,
			Data: rawDataMap(message.Raw),
		})
		err := d.store.Update(ctx, payload.TaskID, tasks.Fields{
			StatusMessage: &statusMessage,
			Messages:      messages,
		})
		if err != nil {
			d.logger.Warn("shell call update failed", "task_id", payload.TaskID, "error", err)
		}

	case MessageTypeShellCallOutput:
		messages := d.appendMessage(ctx, payload.TaskID, tasks.Message{
			Role: RoleAssistant,
			Type: MessageTypeShellCallOutput,
			Data: rawDataMap(message.Raw),
		})
		err := d.store.Update(ctx, payload.TaskID, tasks.Fields{Messages: messages})
		if err != nil {
			d.logger.Warn("shell output update failed", "task_id", payload.TaskID, "error", err)
		}

	case MessageTypeMessage:
		d.dispatchAssistantMessage(ctx, payload.TaskID, message)
	}
}

// dispatchAssistantMessage routes streamed assistant output. In-flight
// chunks accumulate in the aggregator keyed by the message's stream id; the
// completed message promotes its first content block into the transcript.
// Promoting only content[0] mirrors the hub's single-block protocol.
func (d *Dispatcher) dispatchAssistantMessage(ctx context.Context, taskID string, message UpdateMessage) {
	if message.Status == StatusCompleted && message.Role == RoleAssistant {
		if len(message.Content) == 0 {
			return
		}
		block := message.Content[0]
		messages := d.appendMessage(ctx, taskID, tasks.Message{
			Role: RoleAssistant,
			Type: MessageTypeMessage,
			Data: map[string]any{"type": block.Type, "text": block.Text},
		})
		err := d.store.Update(ctx, taskID, tasks.Fields{Messages: messages})
		if err != nil {
			d.logger.Warn("assistant message update failed", "task_id", taskID, "error", err)
		}
		if d.agg != nil && message.ID != "" {
			d.agg.Remove(message.ID)
		}
		return
	}

	if d.agg == nil || message.ID == "" {
		return
	}
	var text string
	if len(message.Content) > 0 {
		text = message.Content[0].Text
	}
	d.agg.Update(message.ID, Partial{
		Role: message.Role,
		Type: MessageTypeMessage,
		Data: map[string]any{"text": text, "status": message.Status},
	})
}

// appendMessage reads the current transcript and returns it with msg
// appended. An unknown task yields a transcript of just msg — the registry
// upserts the record on write.
func (d *Dispatcher) appendMessage(ctx context.Context, taskID string, msg tasks.Message) []tasks.Message {
	task, err := d.store.Get(ctx, taskID)
	if err != nil && !errors.Is(err, tasks.ErrNotFound) {
		d.logger.Warn("read transcript failed", "task_id", taskID, "error", err)
	}
	return append(task.Messages, msg)
}
