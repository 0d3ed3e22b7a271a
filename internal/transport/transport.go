package transport

import (
	"context"
	"fmt"
)

// Conn is an open connection. Send and Ping are only called from the goroutine
// that owns the session.
type Conn interface {
	// Send writes one text message.
	Send(data []byte) error
	// Ping writes a transport-level liveness probe.
	Ping() error
	Close() error
}

// CloseReason describes why a connection ended.
type CloseReason struct {
	Code int
	Text string
}

func (r CloseReason) String() string {
	if r.Text == "" {
		return fmt.Sprintf("code %d", r.Code)
	}
	return fmt.Sprintf("code %d: %s", r.Code, r.Text)
}

// Handler receives the lifecycle of one connection attempt. OnClose is called
// exactly once per Open, whether or not OnOpen was called first.
type Handler interface {
	OnOpen(conn Conn)
	OnMessage(data []byte)
	OnError(err error)
	OnClose(reason CloseReason)
}

// Transport opens connections asynchronously and reports back through a Handler.
type Transport interface {
	Open(ctx context.Context, url string, h Handler)
}
