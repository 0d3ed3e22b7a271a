package client

import (
	"context"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/framer"
	"ctchen222/Four-In-A-Row/internal/gamestate"
	"ctchen222/Four-In-A-Row/internal/session"
	"ctchen222/Four-In-A-Row/internal/transport"
	"log/slog"
	"time"
)

// View is a consistent read of the session taken on the event loop.
type View struct {
	Status      session.Status
	Game        gamestate.Snapshot
	SessionID   string
	Identity    string
	Attempts    int
	Exhausted   bool
	LastConnect time.Time
}

// Client runs a Manager on its own event loop and exposes it to other
// goroutines. Events are delivered to the sink on the loop goroutine.
type Client struct {
	loop *eventLoop
	mgr  *Manager
}

// New creates a Client. Call Run before any other method.
func New(cfg Config, tr transport.Transport, f *framer.Framer, sink events.Sink) *Client {
	loop := newEventLoop()
	return &Client{
		loop: loop,
		mgr:  NewManager(cfg, tr, loop, f, sink),
	}
}

// Run processes the event loop until ctx is cancelled, then tears the session
// down. It blocks.
func (c *Client) Run(ctx context.Context) {
	slog.InfoContext(ctx, "Client loop started")
	c.loop.run(ctx)
	c.loop.stop()
	c.mgr.Close()
	slog.Info("Client loop stopped")
}

// Connect starts a session for identity.
func (c *Client) Connect(ctx context.Context, identity string) error {
	err, callErr := call(ctx, c.loop, func() error { return c.mgr.Connect(identity) })
	if callErr != nil {
		return callErr
	}
	return err
}

// SubmitMove queues a move. It is dropped unless a game is in progress when
// the loop handles it.
func (c *Client) SubmitMove(column int) {
	c.loop.Post(func() { c.mgr.SubmitMove(column) })
}

// Snapshot returns the current session view.
func (c *Client) Snapshot(ctx context.Context) (View, error) {
	return call(ctx, c.loop, func() View {
		return View{
			Status:      c.mgr.Status(),
			Game:        c.mgr.Snapshot(),
			SessionID:   c.mgr.SessionID(),
			Identity:    c.mgr.Identity(),
			Attempts:    c.mgr.Attempts(),
			Exhausted:   c.mgr.Exhausted(),
			LastConnect: c.mgr.LastConnect(),
		}
	})
}

// Close tears the session down without stopping the loop. A later Connect
// starts a new session.
func (c *Client) Close(ctx context.Context) error {
	_, err := call(ctx, c.loop, func() struct{} {
		c.mgr.Close()
		return struct{}{}
	})
	return err
}
