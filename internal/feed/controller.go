package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 5 * time.Second
	DefaultReconnectDelay = time.Second
)

// ControllerOptions wires the engine's collaborators. Gate, Tokens,
// Transport and Store are required; zero durations and counts take the
// package defaults.
type ControllerOptions struct {
	Gate      *Gate
	Tokens    TokenProvider
	Transport Transport
	Store     TaskStore

	Logger         *slog.Logger
	MaxRetries     int
	RetryDelay     time.Duration
	ReconnectDelay time.Duration
	BufferInterval time.Duration
}

// Controller owns the live-channel session: it sequences the availability
// probe, token refresh and transport open, runs the bounded retry policy,
// and tears everything down idempotently. All session mutation happens
// under one mutex, and every asynchronous continuation re-checks the
// unmounted guard before touching state.
type Controller struct {
	gate      *Gate
	tokens    TokenProvider
	transport Transport
	agg       *Aggregator
	disp      *Dispatcher
	logger    *slog.Logger

	maxRetries     int
	retryDelay     time.Duration
	reconnectDelay time.Duration
	bufferInterval time.Duration

	mu         sync.Mutex
	sess       session
	conn       TransportConn
	retryTimer *time.Timer
	unmounted  bool
	runCtx     context.Context
}

func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}

	agg := NewAggregator()
	return &Controller{
		gate:           opts.Gate,
		tokens:         opts.Tokens,
		transport:      opts.Transport,
		agg:            agg,
		disp:           NewDispatcher(opts.Store, agg, logger),
		logger:         logger,
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
		reconnectDelay: reconnectDelay,
		bufferInterval: opts.BufferInterval,
		sess:           session{state: StateDisconnected},
	}
}

// Start runs the availability probe once and, on enablement, opens the
// transport. Calling Start on an initialized controller is a no-op. Errors
// degrade the session to a disabled-but-stable state; they never propagate.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.sess.initialized || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.sess.initialized = true
	c.runCtx = ctx
	c.mu.Unlock()

	c.checkAvailability(ctx)
}

// Stop tears the session down: it sets the unmounted guard, clears any
// pending retry timer, disconnects the transport (swallowing failures), and
// marks the aggregator unmounted. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.agg.MarkUnmounted()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			c.logger.Warn("disconnect failed during teardown", "error", err)
		}
	}
}

// Snapshot returns a read-only copy of the session state.
func (c *Controller) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// Aggregator exposes the streaming buffer for observability surfaces.
func (c *Controller) Aggregator() *Aggregator {
	return c.agg
}

func (c *Controller) checkAvailability(ctx context.Context) {
	supported, err := c.gate.Check(ctx)

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.sess.enabled = false
		c.sess.state = StateError
		c.sess.lastError = err
		c.mu.Unlock()
		c.logger.Warn("live channel unavailable", "error", err)
		return
	}
	if !supported {
		c.sess.enabled = false
		c.mu.Unlock()
		c.logger.Info("live channel not supported in this deployment")
		return
	}
	c.sess.enabled = true
	c.sess.state = StateConnecting
	c.mu.Unlock()
	c.logger.Info("live channel enabled, connecting")

	c.openTransport(ctx, true)
}

// openTransport refreshes the channel credential and dials. Also the
// reconnect path: retries re-enter here without re-running the probe.
// fresh marks a first connect after the probe; only then does a token
// refresh clear the retry counter, so a retry whose dial keeps failing
// still burns through the budget.
func (c *Controller) openTransport(ctx context.Context, fresh bool) {
	token, err := c.tokens.RefreshToken(ctx)

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.sess.enabled = false
		c.sess.state = StateError
		c.sess.lastError = err
		c.mu.Unlock()
		c.logger.Warn("token refresh failed, live channel disabled", "error", err)
		return
	}
	if token == nil {
		c.sess.enabled = false
		c.sess.state = StateDisconnected
		c.sess.lastError = ErrTokenUnavailable
		c.mu.Unlock()
		c.logger.Info("no channel credential issued, live channel disabled")
		return
	}
	if fresh {
		// A successful refresh proves the credential path works.
		c.sess.retryCount = 0
	}
	c.mu.Unlock()

	conn, err := c.transport.Open(ctx, TransportConfig{
		Token:          token.Value,
		BufferInterval: c.bufferInterval,
		OnEvent:        c.handleEvent,
		OnError:        c.handleTransportError,
		OnClose:        c.handleClose,
	})

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Disconnect()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.failure(err)
		return
	}
	c.conn = conn
	c.sess.state = StateConnected
	c.sess.retryCount = 0
	c.mu.Unlock()
	c.logger.Info("live channel connected")
}

func (c *Controller) handleEvent(event InboundEvent) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	c.disp.Dispatch(ctx, event)
}

func (c *Controller) handleTransportError(err error) {
	c.failure(err)
}

func (c *Controller) failure(err error) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.sess.lastError = err
	c.conn = nil

	switch classifyError(err) {
	case classAuth:
		c.sess.enabled = false
		c.sess.state = StateError
		c.mu.Unlock()
		c.logger.Warn("authentication failed, live channel disabled", "error", err)
	case classTransient:
		c.sess.state = StateError
		scheduled := c.scheduleRetryLocked(c.retryDelay)
		attempt := c.sess.retryCount
		c.mu.Unlock()
		if scheduled {
			c.logger.Warn("transient channel failure, retry scheduled",
				"error", err, "attempt", attempt, "max_attempts", c.maxRetries)
		} else {
			c.logger.Warn("transient channel failure, retries exhausted", "error", err)
		}
	default:
		c.sess.enabled = false
		c.sess.state = StateError
		c.mu.Unlock()
		c.logger.Warn("channel failure, live channel disabled", "error", err)
	}
}

func (c *Controller) handleClose() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.sess.state = StateDisconnected
	if !c.sess.enabled || c.sess.lastError != nil {
		c.mu.Unlock()
		return
	}
	scheduled := c.scheduleRetryLocked(c.reconnectDelay)
	c.mu.Unlock()
	if scheduled {
		c.logger.Info("channel closed, reconnect scheduled")
	}
}

// scheduleRetryLocked arms the retry timer if budget remains. Exhausting
// the budget settles the session in error until a fresh controller start.
// Caller holds c.mu.
func (c *Controller) scheduleRetryLocked(delay time.Duration) bool {
	if c.sess.retryCount >= c.maxRetries {
		c.sess.enabled = false
		c.sess.state = StateError
		return false
	}
	c.sess.retryCount++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(delay, c.retryFire)
	return true
}

func (c *Controller) retryFire() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.sess.state = StateConnecting
	ctx := c.runCtx
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	c.openTransport(ctx, false)
}
