package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flitsinc/go-taskfeed/internal/eventbus"
	"github.com/flitsinc/go-taskfeed/internal/idgen"
	"github.com/flitsinc/go-taskfeed/internal/schema"
)

// Status is the remote task status vocabulary. Values are wire strings from
// the hub and are stored as-is.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusMerged     Status = "MERGED"
	StatusPaused     Status = "PAUSED"
	StatusCancelled  Status = "CANCELLED"
)

// Message is one entry in a task's transcript. Data carries the raw message
// payload as delivered by the hub.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

type Task struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	HasChanges    bool      `json:"has_changes"`
	SessionID     string    `json:"session_id,omitempty"`
	Messages      []Message `json:"messages,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Fields is a partial update. Nil pointer fields are left untouched. A
// non-nil Messages slice replaces the stored transcript wholesale — callers
// that append read the current transcript first.
type Fields struct {
	Status        *Status
	StatusMessage *string
	HasChanges    *bool
	SessionID     *string
	Messages      []Message
}

type ListFilter struct {
	Status Status
	Limit  int
}

var ErrNotFound = errors.New("task not found")

type Option func(*Registry)

func WithClock(nowFn func() time.Time) Option {
	return func(r *Registry) {
		if nowFn != nil {
			r.nowFn = nowFn
		}
	}
}

func WithIDGenerator(newIDFn func() string) Option {
	return func(r *Registry) {
		if newIDFn != nil {
			r.newIDFn = newIDFn
		}
	}
}

// Registry is the sqlite-backed local mirror of remote task records. Updates
// are field-level and last-writer-wins; unknown task ids are upserted so the
// mirror converges even when it joins a stream mid-run.
type Registry struct {
	db  *sql.DB
	bus *eventbus.Bus

	nowFn   func() time.Time
	newIDFn func() string
}

func NewRegistry(db *sql.DB, bus *eventbus.Bus, opts ...Option) *Registry {
	r := &Registry{
		db:      db,
		bus:     bus,
		nowFn:   func() time.Time { return time.Now().UTC() },
		newIDFn: idgen.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) now() time.Time {
	return r.nowFn().UTC()
}

// Update applies a partial update to a task record, creating a placeholder
// record when the id is unknown.
func (r *Registry) Update(ctx context.Context, taskID string, fields Fields) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is required")
	}
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, taskID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check task %s: %w", taskID, err)
	}
	if exists == 0 {
		status := StatusInProgress
		if fields.Status != nil {
			status = *fields.Status
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, taskID, string(status), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", taskID, err)
		}
	}

	set := []string{"updated_at = ?"}
	args := []any{now.Format(time.RFC3339Nano)}
	if fields.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*fields.Status))
	}
	if fields.StatusMessage != nil {
		set = append(set, "status_message = ?")
		args = append(args, nullString(*fields.StatusMessage))
	}
	if fields.HasChanges != nil {
		set = append(set, "has_changes = ?")
		args = append(args, boolInt(*fields.HasChanges))
	}
	if fields.SessionID != nil {
		set = append(set, "session_id = ?")
		args = append(args, nullString(*fields.SessionID))
	}
	args = append(args, taskID)
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ?`, strings.Join(set, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}

	if fields.Messages != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_messages WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear messages for %s: %w", taskID, err)
		}
		for i, msg := range fields.Messages {
			id := msg.ID
			if id == "" {
				id = r.newIDFn()
			}
			createdAt := msg.CreatedAt
			if createdAt.IsZero() {
				// Preserve transcript order for rows sharing a timestamp.
				createdAt = now.Add(time.Duration(i) * time.Microsecond)
			}
			dataJSON, err := encodeJSON(msg.Data)
			if err != nil {
				return fmt.Errorf("encode message data: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_messages (id, task_id, role, type, data, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, id, taskID, msg.Role, msg.Type, dataJSON, createdAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("insert message for %s: %w", taskID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update for %s: %w", taskID, err)
	}

	r.notify(ctx, taskID, fields)
	return nil
}

// Get returns a task record with its transcript. Returns ErrNotFound for
// unknown ids.
func (r *Registry) Get(ctx context.Context, taskID string) (Task, error) {
	var task Task
	var statusMessage, sessionID sql.NullString
	var hasChanges int
	var createdAtStr, updatedAtStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, status, status_message, has_changes, session_id, created_at, updated_at
		FROM tasks WHERE id = ?
	`, taskID).Scan(&task.ID, &task.Status, &statusMessage, &hasChanges, &sessionID, &createdAtStr, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("get task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	task.StatusMessage = statusMessage.String
	task.SessionID = sessionID.String
	task.HasChanges = hasChanges != 0
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)

	messages, err := r.messages(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	task.Messages = messages
	return task, nil
}

func (r *Registry) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	where := ""
	args := []any{}
	if filter.Status != "" {
		where = "WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, status, status_message, has_changes, session_id, created_at, updated_at
		FROM tasks %s ORDER BY updated_at DESC LIMIT ?
	`, where)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var task Task
		var statusMessage, sessionID sql.NullString
		var hasChanges int
		var createdAtStr, updatedAtStr string
		if err := rows.Scan(&task.ID, &task.Status, &statusMessage, &hasChanges, &sessionID, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.StatusMessage = statusMessage.String
		task.SessionID = sessionID.String
		task.HasChanges = hasChanges != 0
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (r *Registry) messages(ctx context.Context, taskID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, type, data, created_at FROM task_messages
		WHERE task_id = ? ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var dataStr sql.NullString
		var createdAtStr string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Type, &dataStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Data = decodeJSONMap(dataStr.String)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *Registry) notify(ctx context.Context, taskID string, fields Fields) {
	if r.bus == nil {
		return
	}
	stream := schema.StreamTaskUpdates
	subject := fmt.Sprintf("Task %s updated", taskID)
	body := "task record updated"
	metadata := map[string]any{schema.MetaTaskID: taskID}
	if fields.Status != nil {
		stream = schema.StreamTaskStatus
		subject = fmt.Sprintf("Task %s is %s", taskID, *fields.Status)
		body = fmt.Sprintf("status changed to %s", *fields.Status)
		metadata[schema.MetaStatus] = string(*fields.Status)
	}
	if fields.SessionID != nil && *fields.SessionID != "" {
		metadata[schema.MetaSessionID] = *fields.SessionID
	}
	if fields.StatusMessage != nil && body == "task record updated" {
		body = *fields.StatusMessage
	}
	_, _ = r.bus.Push(ctx, eventbus.EventInput{
		Stream:   stream,
		Subject:  subject,
		Body:     body,
		Metadata: metadata,
	})
}

func encodeJSON(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeJSONMap(v string) map[string]any {
	if v == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
