package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flitsinc/go-taskfeed/internal/feed"
)

// WS opens live channels over a websocket to the hub.
type WS struct {
	// URL is the full websocket endpoint, e.g. "ws://hub:3000/api/live/ws".
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func (t *WS) Open(ctx context.Context, config feed.TransportConfig) (feed.TransportConn, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+config.Token)

	wsConn, _, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		HTTPClient: t.Client,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	// The connection outlives the dial context; Disconnect cancels it.
	connCtx, cancel := context.WithCancel(context.Background())
	conn := &wsTransportConn{
		ws:     wsConn,
		config: config,
		logger: logger,
		ctx:    connCtx,
		cancel: cancel,
	}

	if config.BufferInterval > 0 {
		go conn.flushLoop(config.BufferInterval)
	}
	go conn.readLoop()
	return conn, nil
}

type wsTransportConn struct {
	ws     *websocket.Conn
	config feed.TransportConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	finish sync.Once

	mu      sync.Mutex
	latest  *feed.InboundEvent
	pending []feed.InboundEvent
	closed  bool // Disconnect was called locally
}

func (c *wsTransportConn) LatestEvent() *feed.InboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil
	}
	copied := *c.latest
	return &copied
}

func (c *wsTransportConn) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	err := c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
	c.cancel()
	if err != nil {
		return fmt.Errorf("close live channel: %w", err)
	}
	return nil
}

func (c *wsTransportConn) readLoop() {
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.finishWith(err)
			return
		}
		var event feed.InboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		c.deliver(event)
	}
}

// deliver records the event as latest and either hands it to OnEvent inline
// or queues it for the next buffered flush. Order is preserved either way.
func (c *wsTransportConn) deliver(event feed.InboundEvent) {
	c.mu.Lock()
	copied := event
	c.latest = &copied
	buffered := c.config.BufferInterval > 0
	if buffered {
		c.pending = append(c.pending, event)
	}
	c.mu.Unlock()

	if !buffered && c.config.OnEvent != nil {
		c.config.OnEvent(event)
	}
}

func (c *wsTransportConn) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.flushPending()
		}
	}
}

func (c *wsTransportConn) flushPending() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if c.config.OnEvent == nil {
		return
	}
	for _, event := range batch {
		c.config.OnEvent(event)
	}
}

// finishWith flushes any buffered events, then reports the terminal
// condition exactly once: OnClose for a clean or locally requested close,
// OnError otherwise.
func (c *wsTransportConn) finishWith(err error) {
	c.finish.Do(func() {
		c.cancel()
		c.flushPending()

		c.mu.Lock()
		localClose := c.closed
		c.mu.Unlock()

		clean := localClose || websocket.CloseStatus(err) == websocket.StatusNormalClosure
		if clean {
			if c.config.OnClose != nil {
				c.config.OnClose()
			}
			return
		}
		if c.config.OnError != nil {
			c.config.OnError(err)
		}
	})
}
