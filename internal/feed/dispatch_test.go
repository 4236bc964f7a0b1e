package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/flitsinc/go-taskfeed/internal/tasks"
)

// memStore is an in-memory TaskStore that records every update it receives.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]tasks.Task
	updates []recordedUpdate
	err     error
}

type recordedUpdate struct {
	taskID string
	fields tasks.Fields
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]tasks.Task{}}
}

func (s *memStore) Update(_ context.Context, taskID string, fields tasks.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, recordedUpdate{taskID: taskID, fields: fields})

	task := s.tasks[taskID]
	task.ID = taskID
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.StatusMessage != nil {
		task.StatusMessage = *fields.StatusMessage
	}
	if fields.HasChanges != nil {
		task.HasChanges = *fields.HasChanges
	}
	if fields.SessionID != nil {
		task.SessionID = *fields.SessionID
	}
	if fields.Messages != nil {
		task.Messages = fields.Messages
	}
	s.tasks[taskID] = task
	return nil
}

func (s *memStore) Get(_ context.Context, taskID string) (tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return task, nil
}

func (s *memStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *memStore) lastUpdate(t *testing.T) recordedUpdate {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		t.Fatalf("expected at least one store update")
	}
	return s.updates[len(s.updates)-1]
}

func statusEvent(t *testing.T, taskID, status, sessionID string) InboundEvent {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"taskId": taskID, "status": status, "sessionId": sessionID,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return InboundEvent{Channel: ChannelTasks, Topic: TopicStatus, Data: data}
}

func updateEvent(t *testing.T, taskID string, message map[string]any) InboundEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{"taskId": taskID, "message": message})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return InboundEvent{Channel: ChannelTasks, Topic: TopicUpdate, Data: data}
}

func TestDispatchIgnoresForeignChannels(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	evt := statusEvent(t, "task-1", "DONE", "sess-1")
	evt.Channel = "billing"
	disp.Dispatch(context.Background(), evt)

	if store.updateCount() != 0 {
		t.Fatalf("events off the tasks channel must be dropped")
	}
}

func TestDispatchStatusUpdatesTask(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), statusEvent(t, "task-1", "MERGED", "sess-9"))

	update := store.lastUpdate(t)
	if update.taskID != "task-1" {
		t.Fatalf("wrong task id: %s", update.taskID)
	}
	if update.fields.Status == nil || *update.fields.Status != tasks.StatusMerged {
		t.Fatalf("expected MERGED status, got %+v", update.fields.Status)
	}
	if update.fields.HasChanges == nil || !*update.fields.HasChanges {
		t.Fatalf("a status event must flag pending changes")
	}
	if update.fields.SessionID == nil || *update.fields.SessionID != "sess-9" {
		t.Fatalf("expected session id to flow through")
	}
}

func TestDispatchStatusDropsUnknownStatus(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), statusEvent(t, "task-1", "EXPLODED", ""))

	if store.updateCount() != 0 {
		t.Fatalf("unknown status values must be ignored")
	}
}

func TestDispatchStatusDropsMalformedPayload(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), InboundEvent{
		Channel: ChannelTasks, Topic: TopicStatus, Data: json.RawMessage(`{"status":`),
	})
	disp.Dispatch(context.Background(), InboundEvent{
		Channel: ChannelTasks, Topic: TopicStatus, Data: json.RawMessage(`{"status":"DONE"}`),
	})

	if store.updateCount() != 0 {
		t.Fatalf("malformed or task-less payloads must be dropped")
	}
}

func TestDispatchGitUpdateSetsStatusMessage(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type":   "git",
		"output": "Pushed 3 commits to feature/login",
	}))

	update := store.lastUpdate(t)
	if update.fields.StatusMessage == nil || *update.fields.StatusMessage != "Pushed 3 commits to feature/login" {
		t.Fatalf("expected git output as status message, got %+v", update.fields.StatusMessage)
	}
	if update.fields.Messages != nil {
		t.Fatalf("git updates must not touch the transcript")
	}
}

func TestDispatchShellCallAppendsTranscriptAndStatus(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type":   "local_shell_call",
		"action": map[string]any{"command": []string{"go", "test", "./..."}},
	}))

	update := store.lastUpdate(t)
	if update.fields.StatusMessage == nil || *update.fields.StatusMessage != "Running command go test ./..." {
		t.Fatalf("unexpected status message: %+v", update.fields.StatusMessage)
	}
	if len(update.fields.Messages) != 1 {
		t.Fatalf("expected 1 transcript message, got %d", len(update.fields.Messages))
	}
	msg := update.fields.Messages[0]
	if msg.Role != RoleAssistant || msg.Type != MessageTypeShellCall {
		t.Fatalf("unexpected transcript message: %+v", msg)
	}
	if msg.Data["type"] != "local_shell_call" {
		t.Fatalf("raw payload must be stored in the transcript: %v", msg.Data)
	}
}

func TestDispatchShellOutputAppendsOnly(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type":   "local_shell_call",
		"action": map[string]any{"command": []string{"ls"}},
	}))
	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type":   "local_shell_call_output",
		"output": "main.go",
	}))

	update := store.lastUpdate(t)
	if update.fields.StatusMessage != nil {
		t.Fatalf("shell output must not change the status message")
	}
	if len(update.fields.Messages) != 2 {
		t.Fatalf("expected transcript of 2, got %d", len(update.fields.Messages))
	}
	if update.fields.Messages[1].Type != MessageTypeShellCallOutput {
		t.Fatalf("unexpected appended type: %s", update.fields.Messages[1].Type)
	}
}

func TestDispatchInProgressMessageAccumulates(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator()
	disp := NewDispatcher(store, agg, nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type": "message", "id": "m1", "role": "assistant", "status": "in_progress",
		"content": []map[string]any{{"type": "text", "text": "Hello "}},
	}))
	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type": "message", "id": "m1", "role": "assistant", "status": "in_progress",
		"content": []map[string]any{{"type": "text", "text": "world"}},
	}))

	if store.updateCount() != 0 {
		t.Fatalf("in-flight chunks must not hit the store")
	}
	entry, ok := agg.Get("m1")
	if !ok {
		t.Fatalf("expected aggregated entry")
	}
	if entry.Data["text"] != "Hello world" {
		t.Fatalf("expected concatenated text, got %q", entry.Data["text"])
	}
}

func TestDispatchCompletedMessagePromotesFirstBlockOnly(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator()
	disp := NewDispatcher(store, agg, nil)

	agg.Update("m1", Partial{Data: map[string]any{"text": "partial"}})

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type": "message", "id": "m1", "role": "assistant", "status": "completed",
		"content": []map[string]any{
			{"type": "text", "text": "final answer"},
			{"type": "text", "text": "ignored second block"},
		},
	}))

	update := store.lastUpdate(t)
	if len(update.fields.Messages) != 1 {
		t.Fatalf("expected exactly one promoted message, got %d", len(update.fields.Messages))
	}
	msg := update.fields.Messages[0]
	if msg.Data["text"] != "final answer" {
		t.Fatalf("only content[0] is promoted, got %v", msg.Data)
	}
	if _, ok := agg.Get("m1"); ok {
		t.Fatalf("completion must clear the aggregated entry")
	}
}

func TestDispatchCompletedMessageWithoutContentIsDropped(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type": "message", "id": "m1", "role": "assistant", "status": "completed",
	}))

	if store.updateCount() != 0 {
		t.Fatalf("empty completions must not write")
	}
}

func TestDispatchCompletedNonAssistantGoesToAggregator(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator()
	disp := NewDispatcher(store, agg, nil)

	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type": "message", "id": "m1", "role": "system", "status": "completed",
		"content": []map[string]any{{"type": "text", "text": "notice"}},
	}))

	if store.updateCount() != 0 {
		t.Fatalf("non-assistant messages are never promoted")
	}
	if _, ok := agg.Get("m1"); !ok {
		t.Fatalf("non-assistant message should still accumulate")
	}
}

func TestDispatchUpdateForUnknownTaskStartsFreshTranscript(t *testing.T) {
	store := newMemStore()
	disp := NewDispatcher(store, NewAggregator(), nil)

	// No prior task-1 in the store; the transcript starts from scratch and
	// the registry upserts the record on write.
	disp.Dispatch(context.Background(), updateEvent(t, "task-1", map[string]any{
		"type":   "local_shell_call_output",
		"output": "done",
	}))

	update := store.lastUpdate(t)
	if len(update.fields.Messages) != 1 {
		t.Fatalf("expected a fresh single-message transcript, got %d", len(update.fields.Messages))
	}
}

func TestDispatchSwallowsStoreErrors(t *testing.T) {
	store := newMemStore()
	store.err = context.DeadlineExceeded
	disp := NewDispatcher(store, NewAggregator(), nil)

	// Must not panic or propagate.
	disp.Dispatch(context.Background(), statusEvent(t, "task-1", "DONE", ""))
}
