package feed

import (
	"context"
	"time"
)

// TransportConfig carries everything a push transport needs to run a
// channel: the minted credential, the delivery buffer granularity, and the
// callbacks bound to the controller. OnError and OnClose are invoked at
// most once per connection.
type TransportConfig struct {
	Token          string
	BufferInterval time.Duration
	OnEvent        func(InboundEvent)
	OnError        func(error)
	OnClose        func()
}

// TransportConn is an open push channel. LatestEvent reflects the most
// recently delivered event, nil before the first delivery.
type TransportConn interface {
	LatestEvent() *InboundEvent
	Disconnect() error
}

// Transport opens push channels. Implementations are injected into the
// Controller; the engine never reaches for a global connection.
type Transport interface {
	Open(ctx context.Context, config TransportConfig) (TransportConn, error)
}
