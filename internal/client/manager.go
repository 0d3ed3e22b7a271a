package client

import (
	"context"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/framer"
	"ctchen222/Four-In-A-Row/internal/gamestate"
	"ctchen222/Four-In-A-Row/internal/session"
	"ctchen222/Four-In-A-Row/internal/transport"
	"ctchen222/Four-In-A-Row/pkg/proto"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("client")
	meter  = otel.Meter("client")
)

var (
	// ErrEmptyIdentity is returned by Connect when no username was given.
	ErrEmptyIdentity = errors.New("identity must not be empty")
	// ErrClosed is returned when the client's event loop has stopped.
	ErrClosed = errors.New("client closed")
)

// Config is the connection policy of a Manager.
type Config struct {
	// Endpoint is the WebSocket URL without the username query, e.g. ws://host/ws.
	Endpoint          string
	MaxAttempts       int
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the standard policy for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		MaxAttempts:       10,
		ReconnectDelay:    3 * time.Second,
		HeartbeatInterval: 45 * time.Second,
	}
}

type managerMetrics struct {
	received   metric.Int64Counter
	reconnects metric.Int64Counter
	heartbeats metric.Int64Counter
}

func newManagerMetrics() managerMetrics {
	var m managerMetrics
	var err error
	if m.received, err = meter.Int64Counter("client.messages.received"); err != nil {
		slog.Warn("failed to create client.messages.received counter", "error", err)
	}
	if m.reconnects, err = meter.Int64Counter("client.reconnects.scheduled"); err != nil {
		slog.Warn("failed to create client.reconnects.scheduled counter", "error", err)
	}
	if m.heartbeats, err = meter.Int64Counter("client.heartbeats.sent"); err != nil {
		slog.Warn("failed to create client.heartbeats.sent counter", "error", err)
	}
	return m
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Manager owns the connection of one player: it opens and reopens the
// transport, keeps it alive, frames inbound traffic and drives the session
// state machine and game state store.
//
// A Manager is not safe for concurrent use. Every method, and every callback
// it schedules, runs on its Loop.
type Manager struct {
	cfg       Config
	transport transport.Transport
	loop      Loop
	framer    *framer.Framer
	machine   *session.Machine
	store     *gamestate.Store
	sink      events.Sink
	metrics   managerMetrics

	identity  string
	target    string
	sessionID string

	// generation identifies the current connection attempt. Callbacks and
	// timers created under an older generation are ignored.
	generation uint64
	conn       transport.Conn
	cancelDial context.CancelFunc

	attempts    int
	lastConnect time.Time
	exhausted   bool
	heartbeat   Timer
	reconnect   Timer
}

// NewManager creates a Manager in StatusDisconnected.
func NewManager(cfg Config, tr transport.Transport, loop Loop, f *framer.Framer, sink events.Sink) *Manager {
	if sink == nil {
		sink = func(events.Event) {}
	}
	return &Manager{
		cfg:       cfg,
		transport: tr,
		loop:      loop,
		framer:    f,
		machine:   session.NewMachine(),
		store:     gamestate.NewStore(),
		sink:      sink,
		metrics:   newManagerMetrics(),
	}
}

// Connect starts a new session for identity, replacing any current one.
func (m *Manager) Connect(identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrEmptyIdentity
	}
	target, err := targetURL(m.cfg.Endpoint, identity)
	if err != nil {
		return err
	}

	m.dropConnection()
	m.identity = identity
	m.target = target
	m.sessionID = uuid.NewString()
	m.attempts = 0
	m.exhausted = false
	m.store.Reset()

	ctx, span := tracer.Start(context.Background(), "client.Connect", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.String("player.identity", identity),
	))
	defer span.End()

	slog.InfoContext(ctx, "Connecting", "session.id", m.sessionID, "player.identity", identity, "ws.url", target)
	m.sink(events.SessionStarted{SessionID: m.sessionID, Identity: identity})
	m.fire(ctx, session.EventConnectRequested)
	m.open()
	return nil
}

// Close tears the session down. Pending timers and callbacks of the current
// connection are invalidated.
func (m *Manager) Close() {
	m.dropConnection()
	m.fire(context.Background(), session.EventTeardown)
}

// SubmitMove sends a move if, and only if, a game is in progress. The column
// is not range checked; the server rejects illegal moves.
func (m *Manager) SubmitMove(column int) {
	if status := m.machine.Status(); status != session.StatusPlaying {
		slog.Debug("Ignoring move, no game in progress", "session.status", status.String(), "move.column", column)
		return
	}

	ctx, span := tracer.Start(context.Background(), "client.SubmitMove", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.Int("move.column", column),
	))
	defer span.End()

	if !m.send(ctx, proto.Move{Column: column}) {
		span.SetStatus(codes.Error, "Move not sent")
	}
}

func (m *Manager) Status() session.Status      { return m.machine.Status() }
func (m *Manager) Snapshot() gamestate.Snapshot { return m.store.Snapshot() }
func (m *Manager) SessionID() string            { return m.sessionID }
func (m *Manager) Identity() string             { return m.identity }
func (m *Manager) Attempts() int                { return m.attempts }
func (m *Manager) Exhausted() bool              { return m.exhausted }
func (m *Manager) LastConnect() time.Time       { return m.lastConnect }

// open starts a new connection attempt under a fresh generation.
func (m *Manager) open() {
	m.generation++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.lastConnect = m.loop.Now()
	m.transport.Open(ctx, m.target, &connHandler{m: m, gen: m.generation})
}

// dropConnection invalidates everything tied to the current generation.
func (m *Manager) dropConnection() {
	m.generation++
	stopTimer(&m.heartbeat)
	stopTimer(&m.reconnect)
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "session.id", m.sessionID, "error", err)
		}
		m.conn = nil
	}
}

func (m *Manager) current(gen uint64, callback string) bool {
	if gen == m.generation {
		return true
	}
	slog.Debug("Ignoring callback from superseded connection",
		"callback", callback, "connection.generation", gen, "current.generation", m.generation)
	return false
}

func (m *Manager) onOpen(gen uint64, conn transport.Conn) {
	if !m.current(gen, "open") {
		conn.Close()
		return
	}

	ctx, span := tracer.Start(context.Background(), "client.onOpen", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.Int64("connection.generation", int64(gen)),
	))
	defer span.End()

	slog.InfoContext(ctx, "Connected", "session.id", m.sessionID, "connection.generation", gen)
	m.conn = conn
	m.attempts = 0
	m.fire(ctx, session.EventSocketOpen)
	m.armHeartbeat(gen)
}

func (m *Manager) onClose(gen uint64, reason transport.CloseReason) {
	if !m.current(gen, "close") {
		return
	}

	ctx, span := tracer.Start(context.Background(), "client.onClose", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.Int64("connection.generation", int64(gen)),
		attribute.Int("ws.close.code", reason.Code),
	))
	defer span.End()

	slog.WarnContext(ctx, "Connection closed", "session.id", m.sessionID, "reason", reason.String())
	m.conn = nil
	stopTimer(&m.heartbeat)
	m.fire(ctx, session.EventSocketClose)

	if m.attempts >= m.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "Giving up after reconnect attempts were exhausted", "session.id", m.sessionID, "attempts", m.attempts)
		span.SetStatus(codes.Error, "Reconnect attempts exhausted")
		m.exhausted = true
		m.fire(ctx, session.EventGiveUp)
		m.sink(events.GaveUp{Attempts: m.attempts})
		return
	}

	m.attempts++
	add(ctx, m.metrics.reconnects)
	slog.InfoContext(ctx, "Scheduling reconnect", "session.id", m.sessionID, "attempt", m.attempts, "delay", m.cfg.ReconnectDelay)
	m.sink(events.ReconnectScheduled{
		Attempt:     m.attempts,
		MaxAttempts: m.cfg.MaxAttempts,
		DelayMillis: m.cfg.ReconnectDelay.Milliseconds(),
	})
	m.reconnect = m.loop.AfterFunc(m.cfg.ReconnectDelay, func() { m.onReconnectTimer(gen) })
}

func (m *Manager) onError(gen uint64, err error) {
	slog.Warn("Transport error", "session.id", m.sessionID, "connection.generation", gen, "error", err)
}

func (m *Manager) onReconnectTimer(gen uint64) {
	if !m.current(gen, "reconnect") {
		return
	}
	m.reconnect = nil
	slog.Info("Reconnecting", "session.id", m.sessionID, "attempt", m.attempts)
	m.open()
}

func (m *Manager) armHeartbeat(gen uint64) {
	m.heartbeat = m.loop.AfterFunc(m.cfg.HeartbeatInterval, func() { m.onHeartbeat(gen) })
}

func (m *Manager) onHeartbeat(gen uint64) {
	if !m.current(gen, "heartbeat") || m.conn == nil {
		return
	}
	if err := m.conn.Ping(); err != nil {
		// The transport reports the failure through its close callback.
		slog.Warn("Heartbeat failed", "session.id", m.sessionID, "error", err)
	} else {
		add(context.Background(), m.metrics.heartbeats)
	}
	m.armHeartbeat(gen)
}

func (m *Manager) onMessage(gen uint64, data []byte) {
	if !m.current(gen, "message") {
		return
	}

	ctx, span := tracer.Start(context.Background(), "client.onMessage", trace.WithAttributes(
		attribute.String("session.id", m.sessionID),
		attribute.Int("message.bytes", len(data)),
	))
	defer span.End()

	msgs := m.framer.Frame(ctx, data)
	span.SetAttributes(attribute.Int("message.count", len(msgs)))
	for _, msg := range msgs {
		m.dispatch(ctx, msg)
	}
}

// dispatch routes one inbound message to the state machine and store.
func (m *Manager) dispatch(ctx context.Context, msg proto.Message) {
	add(ctx, m.metrics.received, attribute.String("message.type", string(msg.Kind())))

	switch msg := msg.(type) {
	case proto.Ping:
		m.send(ctx, proto.Pong{})
	case proto.Pong:
		slog.DebugContext(ctx, "Pong received", "session.id", m.sessionID)
	case proto.Start:
		slog.InfoContext(ctx, "Game started", "session.id", m.sessionID, "message.type", string(msg.Alias))
		m.fire(ctx, session.EventStart)
	case proto.State:
		m.store.ApplyState(msg.Board, msg.Turn)
		m.sink(events.StateReplaced{Snapshot: m.store.Snapshot()})
	case proto.End:
		slog.InfoContext(ctx, "Game over", "session.id", m.sessionID, "winner", msg.Winner)
		m.store.ApplyEnd(msg.Winner)
		m.fire(ctx, session.EventEnd)
		m.sink(events.GameEnded{Winner: msg.Winner, Snapshot: m.store.Snapshot()})
	case proto.Move:
		slog.WarnContext(ctx, "Ignoring move sent by server", "session.id", m.sessionID, "move.column", msg.Column)
	default:
		slog.InfoContext(ctx, "Ignoring unknown message type", "session.id", m.sessionID, "message.type", string(msg.Kind()))
	}
}

// send writes msg if a connection is open and reports whether it was written.
func (m *Manager) send(ctx context.Context, msg proto.Message) bool {
	if m.conn == nil {
		slog.DebugContext(ctx, "Dropping outbound message, not connected", "message.type", string(msg.Kind()))
		return false
	}
	data, err := proto.Encode(msg)
	if err != nil {
		slog.ErrorContext(ctx, "Error encoding message", "message.type", string(msg.Kind()), "error", err)
		return false
	}
	if err := m.conn.Send(data); err != nil {
		slog.WarnContext(ctx, "Error sending message", "message.type", string(msg.Kind()), "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
		return false
	}
	return true
}

func (m *Manager) fire(ctx context.Context, ev session.Event) {
	tr := m.machine.Fire(ev)
	if !tr.Changed {
		return
	}
	slog.InfoContext(ctx, "Session status changed",
		"session.id", m.sessionID, "from", tr.From.String(), "to", tr.To.String(), "event", ev.String())
	m.sink(events.StatusChanged{From: tr.From, To: tr.To, Cause: ev})
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// targetURL appends the username query parameter to endpoint.
func targetURL(endpoint, identity string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("username", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connHandler moves transport callbacks onto the loop, tagged with the
// generation of the attempt that produced them.
type connHandler struct {
	m   *Manager
	gen uint64
}

func (h *connHandler) OnOpen(conn transport.Conn) {
	h.m.loop.Post(func() { h.m.onOpen(h.gen, conn) })
}

func (h *connHandler) OnMessage(data []byte) {
	h.m.loop.Post(func() { h.m.onMessage(h.gen, data) })
}

func (h *connHandler) OnError(err error) {
	h.m.loop.Post(func() { h.m.onError(h.gen, err) })
}

func (h *connHandler) OnClose(reason transport.CloseReason) {
	h.m.loop.Post(func() { h.m.onClose(h.gen, reason) })
}
