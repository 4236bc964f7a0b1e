package transport

import (
	"context"
	"sync"

	"github.com/flitsinc/go-taskfeed/internal/feed"
)

// MockTransport implements feed.Transport for tests. Open calls can be
// scripted to fail, and every opened connection is recorded so tests can
// drive deliveries, failures and closes by hand.
type MockTransport struct {
	mu sync.Mutex

	// openErrs are consumed one per Open call; a nil entry means success.
	openErrs []error
	opens    []feed.TransportConfig
	conns    []*MockConn
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// ScriptOpenErr appends a result for the next unscripted Open call.
func (m *MockTransport) ScriptOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = append(m.openErrs, err)
}

func (m *MockTransport) Open(_ context.Context, config feed.TransportConfig) (feed.TransportConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, config)

	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	conn := &MockConn{config: config}
	m.conns = append(m.conns, conn)
	return conn, nil
}

// OpenCount reports how many times Open was invoked.
func (m *MockTransport) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opens)
}

// OpenConfig returns the config of the i-th Open call.
func (m *MockTransport) OpenConfig(i int) feed.TransportConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[i]
}

// Conn returns the i-th successfully opened connection.
func (m *MockTransport) Conn(i int) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[i]
}

// LastConn returns the most recently opened connection, nil when none.
func (m *MockTransport) LastConn() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// MockConn is a scriptable open channel.
type MockConn struct {
	config feed.TransportConfig

	mu            sync.Mutex
	latest        *feed.InboundEvent
	disconnects   int
	DisconnectErr error
}

// Deliver pushes an event through the connection's OnEvent callback.
func (c *MockConn) Deliver(event feed.InboundEvent) {
	c.mu.Lock()
	copied := event
	c.latest = &copied
	c.mu.Unlock()
	if c.config.OnEvent != nil {
		c.config.OnEvent(event)
	}
}

// Fail reports a transport failure through OnError.
func (c *MockConn) Fail(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

// CloseClean reports a clean close through OnClose.
func (c *MockConn) CloseClean() {
	if c.config.OnClose != nil {
		c.config.OnClose()
	}
}

func (c *MockConn) LatestEvent() *feed.InboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil
	}
	copied := *c.latest
	return &copied
}

func (c *MockConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.DisconnectErr
}

// DisconnectCount reports how many times Disconnect was called.
func (c *MockConn) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}
