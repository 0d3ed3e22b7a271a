package client

import (
	"context"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/framer"
	"ctchen222/Four-In-A-Row/internal/session"
	"ctchen222/Four-In-A-Row/internal/transport"
	"ctchen222/Four-In-A-Row/internal/transport/mock_transport"
	"ctchen222/Four-In-A-Row/pkg/proto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeTimer and fakeLoop give tests control over time. Posted work runs when
// the test drains the loop or advances the clock.
type fakeTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeLoop struct {
	now    time.Time
	queue  []func()
	timers []*fakeTimer
	seq    int
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (l *fakeLoop) Post(fn func()) { l.queue = append(l.queue, fn) }

func (l *fakeLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{at: l.now.Add(d), seq: l.seq, fn: fn}
	l.seq++
	l.timers = append(l.timers, t)
	return t
}

func (l *fakeLoop) Now() time.Time { return l.now }

func (l *fakeLoop) drain() {
	for len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue = l.queue[1:]
		fn()
	}
}

func (l *fakeLoop) nextDue(end time.Time) *fakeTimer {
	var due *fakeTimer
	for _, t := range l.timers {
		if t.stopped || t.fired || t.at.After(end) {
			continue
		}
		if due == nil || t.at.Before(due.at) || (t.at.Equal(due.at) && t.seq < due.seq) {
			due = t
		}
	}
	return due
}

// Advance moves the clock forward by d, firing due timers in order.
func (l *fakeLoop) Advance(d time.Duration) {
	end := l.now.Add(d)
	for {
		l.drain()
		t := l.nextDue(end)
		if t == nil {
			break
		}
		l.now = t.at
		t.fired = true
		t.fn()
	}
	l.now = end
	l.drain()
}

func (l *fakeLoop) pendingTimers() int {
	n := 0
	for _, t := range l.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type dial struct {
	ctx     context.Context
	url     string
	handler transport.Handler
}

type fakeTransport struct {
	dials []dial
}

func (f *fakeTransport) Open(ctx context.Context, url string, h transport.Handler) {
	f.dials = append(f.dials, dial{ctx: ctx, url: url, handler: h})
}

func (f *fakeTransport) last() dial {
	return f.dials[len(f.dials)-1]
}

type harness struct {
	loop   *fakeLoop
	tr     *fakeTransport
	mgr    *Manager
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{loop: newFakeLoop(), tr: &fakeTransport{}}
	h.mgr = NewManager(DefaultConfig("ws://game.test/ws"), h.tr, h.loop, framer.New(framer.BraceSplitter{}),
		func(ev events.Event) { h.events = append(h.events, ev) })
	return h
}

// connect starts a session and completes the handshake with conn.
func (h *harness) connect(t *testing.T, conn transport.Conn) {
	t.Helper()
	require.NoError(t, h.mgr.Connect("alice"))
	h.tr.last().handler.OnOpen(conn)
	h.loop.drain()
	require.Equal(t, session.StatusConnectedWaiting, h.mgr.Status())
}

func (h *harness) receive(data string) {
	h.tr.last().handler.OnMessage([]byte(data))
	h.loop.drain()
}

func (h *harness) dropConnection() {
	h.tr.last().handler.OnClose(transport.CloseReason{Code: 1006, Text: "unexpected EOF"})
	h.loop.drain()
}

func countEvents[T events.Event](evs []events.Event) int {
	n := 0
	for _, ev := range evs {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

func TestManager_ConnectRejectsEmptyIdentity(t *testing.T) {
	h := newHarness(t)

	err := h.mgr.Connect("   ")

	assert.ErrorIs(t, err, ErrEmptyIdentity)
	assert.Empty(t, h.tr.dials)
	assert.Equal(t, session.StatusDisconnected, h.mgr.Status())
}

func TestManager_ConnectDialsWithUsername(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.mgr.Connect(" alice smith "))

	require.Len(t, h.tr.dials, 1)
	assert.Equal(t, "ws://game.test/ws?username=alice+smith", h.tr.dials[0].url)
	assert.Equal(t, session.StatusConnecting, h.mgr.Status())
	assert.Equal(t, "alice smith", h.mgr.Identity())
	assert.NotEmpty(t, h.mgr.SessionID())
	require.NotEmpty(t, h.events)
	assert.Equal(t, events.SessionStarted{SessionID: h.mgr.SessionID(), Identity: "alice smith"}, h.events[0])
}

func TestManager_StartAndStateInOneChunk(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)

	h.receive(`{"type":"start"}{"type":"state","board":[[0,0,0,0,0,0,1],[2]],"turn":2}`)

	assert.Equal(t, session.StatusPlaying, h.mgr.Status())
	snap := h.mgr.Snapshot()
	assert.Equal(t, 2, snap.Turn)
	assert.Equal(t, proto.CellPlayerOne, snap.Board[0][6])
	assert.Equal(t, proto.CellPlayerTwo, snap.Board[1][0])
	assert.Equal(t, 1, countEvents[events.StateReplaced](h.events))
}

func TestManager_MalformedCandidateDoesNotBlockOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)

	h.receive(`{"type":"start_game"}{"type":"state","board":[[1]]}{"type":"state","board":[[2]],"turn":1}`)

	assert.Equal(t, session.StatusPlaying, h.mgr.Status())
	assert.Equal(t, 1, h.mgr.Snapshot().Turn)
	assert.Equal(t, proto.CellPlayerTwo, h.mgr.Snapshot().Board[0][0])
}

func TestManager_AnswersPingWithPong(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	conn.EXPECT().Send([]byte(`{"type":"pong"}`)).Return(nil).Times(2)
	h := newHarness(t)
	h.connect(t, conn)

	h.receive(`{"type":"ping"}{"type":"ping"}`)

	assert.Equal(t, session.StatusConnectedWaiting, h.mgr.Status())
}

func TestManager_EndThenNewGame(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)

	h.receive(`{"type":"start"}{"type":"state","board":[[1,1,1,1]],"turn":2}`)
	h.receive(`{"type":"end","winner":"alice"}`)

	assert.Equal(t, session.StatusEnded, h.mgr.Status())
	snap := h.mgr.Snapshot()
	assert.True(t, snap.Ended)
	assert.Equal(t, "alice", snap.Winner)
	assert.Equal(t, proto.CellPlayerOne, snap.Board[0][3], "final board is kept for display")
	assert.Equal(t, 1, countEvents[events.GameEnded](h.events))

	h.receive(`{"type":"start"}`)
	assert.Equal(t, session.StatusPlaying, h.mgr.Status())
}

func TestManager_UnknownAndServerMoveAreIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)

	h.receive(`{"type":"chat","text":"hi"}{"type":"move","column":2}`)

	assert.Equal(t, session.StatusConnectedWaiting, h.mgr.Status())
}

func TestManager_SubmitMoveOnlyWhilePlaying(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)

	// No connection at all.
	h.mgr.SubmitMove(3)

	h.connect(t, conn)
	h.mgr.SubmitMove(3)

	h.receive(`{"type":"start"}`)
	conn.EXPECT().Send([]byte(`{"type":"move","column":3}`)).Return(nil)
	h.mgr.SubmitMove(3)

	h.receive(`{"type":"end","winner":"Draw"}`)
	assert.True(t, h.mgr.Snapshot().IsDraw())
	h.mgr.SubmitMove(4)
}

func TestManager_HeartbeatEveryInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	conn.EXPECT().Ping().Return(nil).Times(4)
	h := newHarness(t)
	h.connect(t, conn)

	h.loop.Advance(200 * time.Second)
}

func TestManager_HeartbeatStopsOnClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	conn.EXPECT().Ping().Return(nil).Times(1)
	h := newHarness(t)
	h.connect(t, conn)

	h.loop.Advance(50 * time.Second)
	h.dropConnection()

	// The reconnect dial never completes, so no further pings go out.
	h.loop.Advance(200 * time.Second)
}

func TestManager_ReconnectsAfterDelay(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mock_transport.NewMockConn(ctrl)
	second := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, first)

	h.dropConnection()
	assert.Equal(t, session.StatusConnecting, h.mgr.Status())
	assert.Equal(t, 1, h.mgr.Attempts())
	assert.Equal(t, events.ReconnectScheduled{Attempt: 1, MaxAttempts: 10, DelayMillis: 3000}, h.events[len(h.events)-1])

	connectedAt := h.mgr.LastConnect()
	h.loop.Advance(2999 * time.Millisecond)
	assert.Len(t, h.tr.dials, 1)
	h.loop.Advance(time.Millisecond)
	require.Len(t, h.tr.dials, 2)
	assert.Equal(t, connectedAt.Add(3*time.Second), h.mgr.LastConnect())
	assert.Equal(t, h.tr.dials[0].url, h.tr.dials[1].url)

	h.tr.last().handler.OnOpen(second)
	h.loop.drain()
	assert.Equal(t, session.StatusConnectedWaiting, h.mgr.Status())
	assert.Equal(t, 0, h.mgr.Attempts(), "a successful open resets the attempt counter")
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)

	h.dropConnection()
	for i := 0; i < 10; i++ {
		h.loop.Advance(3 * time.Second)
		h.dropConnection()
	}

	assert.Len(t, h.tr.dials, 11)
	assert.Equal(t, 10, countEvents[events.ReconnectScheduled](h.events))
	assert.Equal(t, session.StatusDisconnected, h.mgr.Status())
	assert.True(t, h.mgr.Exhausted())
	assert.Equal(t, events.GaveUp{Attempts: 10}, h.events[len(h.events)-1])

	h.loop.Advance(time.Hour)
	assert.Len(t, h.tr.dials, 11, "no eleventh reconnect")

	// An explicit connect starts over.
	require.NoError(t, h.mgr.Connect("alice"))
	assert.Len(t, h.tr.dials, 12)
	assert.False(t, h.mgr.Exhausted())
	assert.Equal(t, 0, h.mgr.Attempts())
	assert.Equal(t, session.StatusConnecting, h.mgr.Status())
}

func TestManager_IgnoresSupersededConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	stale := mock_transport.NewMockConn(ctrl)
	stale.EXPECT().Close().Return(nil)
	fresh := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)

	require.NoError(t, h.mgr.Connect("alice"))
	old := h.tr.last()
	require.NoError(t, h.mgr.Connect("bob"))
	assert.Error(t, old.ctx.Err(), "the superseded dial is cancelled")

	old.handler.OnOpen(stale)
	old.handler.OnMessage([]byte(`{"type":"start"}`))
	old.handler.OnClose(transport.CloseReason{Code: 1006})
	h.loop.drain()

	assert.Equal(t, session.StatusConnecting, h.mgr.Status())
	assert.Equal(t, 0, h.mgr.Attempts())
	assert.Zero(t, h.loop.pendingTimers())

	h.tr.last().handler.OnOpen(fresh)
	h.loop.drain()
	assert.Equal(t, session.StatusConnectedWaiting, h.mgr.Status())
}

func TestManager_CloseStopsEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	conn.EXPECT().Close().Return(nil)
	h := newHarness(t)
	h.connect(t, conn)
	h.receive(`{"type":"start"}`)

	h.mgr.Close()
	assert.Equal(t, session.StatusDisconnected, h.mgr.Status())

	// The transport reports the close it was asked for; nothing reconnects.
	h.dropConnection()
	h.loop.Advance(time.Hour)

	assert.Len(t, h.tr.dials, 1)
	assert.Equal(t, session.StatusDisconnected, h.mgr.Status())
	h.mgr.SubmitMove(1)
}

func TestManager_StatusChangedEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock_transport.NewMockConn(ctrl)
	h := newHarness(t)
	h.connect(t, conn)
	h.receive(`{"type":"start"}`)
	h.receive(`{"type":"end","winner":"bob"}`)

	var got []session.Status
	for _, ev := range h.events {
		if sc, ok := ev.(events.StatusChanged); ok {
			got = append(got, sc.To)
		}
	}
	assert.Equal(t, []session.Status{
		session.StatusConnecting,
		session.StatusConnectedWaiting,
		session.StatusPlaying,
		session.StatusEnded,
	}, got)
}
