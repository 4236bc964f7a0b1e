package feed

// ConnState is the live channel connection state. Exactly one state is
// active at a time; all transitions go through the controller.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// session is the engine's own mutable state. It is owned by the Controller
// and mutated only while holding the controller mutex.
type session struct {
	enabled     bool
	state       ConnState
	retryCount  int
	lastError   error
	initialized bool
}

// SessionSnapshot is a read-only copy of the session for observability.
type SessionSnapshot struct {
	Enabled     bool   `json:"enabled"`
	State       string `json:"connection_state"`
	RetryCount  int    `json:"retry_count"`
	LastError   string `json:"last_error,omitempty"`
	Initialized bool   `json:"initialized"`
}

func (s *session) snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Enabled:     s.enabled,
		State:       string(s.state),
		RetryCount:  s.retryCount,
		Initialized: s.initialized,
	}
	if s.lastError != nil {
		snap.LastError = s.lastError.Error()
	}
	return snap
}
