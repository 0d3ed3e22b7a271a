package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Time allowed to write a message or control frame to the peer.
	writeWait = 10 * time.Second

	// Maximum inbound message size.
	maxMessageSize = 64 * 1024
)

var tracer = otel.Tracer("transport")

// WebSocketTransport dials gorilla/websocket connections and runs one read
// pump per connection.
type WebSocketTransport struct {
	dialer   *websocket.Dialer
	pongWait time.Duration
}

// NewWebSocketTransport creates a transport. A connection that receives
// nothing, not even a pong, for pongWait is closed.
func NewWebSocketTransport(dialTimeout, pongWait time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		pongWait: pongWait,
	}
}

// Open dials url in the background. The handler is called from the dialing
// goroutine, which then becomes the connection's read pump.
func (t *WebSocketTransport) Open(ctx context.Context, url string, h Handler) {
	go t.run(ctx, url, h)
}

func (t *WebSocketTransport) run(ctx context.Context, url string, h Handler) {
	ctx, span := tracer.Start(ctx, "transport.Open", trace.WithAttributes(
		attribute.String("ws.url", url),
	))
	defer span.End()

	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		slog.WarnContext(ctx, "websocket dial failed", "ws.url", url, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Dial failed")
		reason := CloseReason{Code: websocket.CloseAbnormalClosure, Text: err.Error()}
		if resp != nil {
			reason.Text = fmt.Sprintf("%s (http status %d)", err, resp.StatusCode)
		}
		h.OnError(fmt.Errorf("dial %s: %w", url, err))
		h.OnClose(reason)
		return
	}

	c := &wsConn{conn: conn}
	h.OnOpen(c)
	t.readPump(ctx, span, c, h)
}

// readPump forwards inbound messages to the handler until the connection fails.
func (t *WebSocketTransport) readPump(ctx context.Context, span trace.Span, c *wsConn, h Handler) {
	conn := c.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.WarnContext(ctx, "unexpected websocket close", "error", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "Unexpected close")
				h.OnError(err)
			}
			conn.Close()
			reason := closeReason(err)
			span.SetAttributes(attribute.Int("ws.close.code", reason.Code))
			h.OnClose(reason)
			return
		}
		conn.SetReadDeadline(time.Now().Add(t.pongWait))
		h.OnMessage(msg)
	}
}

func closeReason(err error) CloseReason {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseReason{Code: ce.Code, Text: ce.Text}
	}
	return CloseReason{Code: websocket.CloseAbnormalClosure, Text: err.Error()}
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Best effort: the peer may already be gone.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}
