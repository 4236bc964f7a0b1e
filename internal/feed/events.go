package feed

import "encoding/json"

// Event channel and topic names on the wire.
const (
	ChannelTasks = "tasks"

	TopicStatus = "status"
	TopicUpdate = "update"
)

// Message type tags within an update event.
const (
	MessageTypeGit             = "git"
	MessageTypeShellCall       = "local_shell_call"
	MessageTypeShellCallOutput = "local_shell_call_output"
	MessageTypeMessage         = "message"
)

// Roles and completion states for streamed assistant messages.
const (
	RoleAssistant    = "assistant"
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
)

// InboundEvent is one raw event from the push channel. Data is decoded
// lazily by topic; unrecognized shapes are dropped at the boundary.
type InboundEvent struct {
	Channel string          `json:"channel"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StatusPayload is the data of a topic=status event.
type StatusPayload struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// UpdatePayload is the data of a topic=update event. Message keeps the raw
// bytes alongside the decoded tag so type-specific fields can be re-decoded
// and the original payload can be stored verbatim.
type UpdatePayload struct {
	TaskID  string          `json:"taskId"`
	Message json.RawMessage `json:"message"`
}

// UpdateMessage is the decoded envelope of an update's message field. Only
// the fields the dispatcher branches on are typed; everything else rides
// along in Raw.
type UpdateMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Status  string          `json:"status"`
	Output  string          `json:"output"`
	Action  ShellAction     `json:"action"`
	Content []ContentBlock  `json:"content"`
	Raw     json.RawMessage `json:"-"`
}

type ShellAction struct {
	Command []string `json:"command"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// decodeStatus parses a status payload. Returns false when the payload is
// malformed or names no task.
func decodeStatus(data json.RawMessage) (StatusPayload, bool) {
	var payload StatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return StatusPayload{}, false
	}
	if payload.TaskID == "" {
		return StatusPayload{}, false
	}
	return payload, true
}

// decodeUpdate parses an update payload and its message envelope.
func decodeUpdate(data json.RawMessage) (UpdatePayload, UpdateMessage, bool) {
	var payload UpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return UpdatePayload{}, UpdateMessage{}, false
	}
	if payload.TaskID == "" || len(payload.Message) == 0 {
		return UpdatePayload{}, UpdateMessage{}, false
	}
	var message UpdateMessage
	if err := json.Unmarshal(payload.Message, &message); err != nil {
		return UpdatePayload{}, UpdateMessage{}, false
	}
	if message.Type == "" {
		return UpdatePayload{}, UpdateMessage{}, false
	}
	message.Raw = payload.Message
	return payload, message, true
}

// rawDataMap decodes raw message bytes into a loose map for storage in a
// task transcript. Returns nil on malformed input.
func rawDataMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
