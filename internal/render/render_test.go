package render

import (
	"bytes"
	"ctchen222/Four-In-A-Row/internal/client"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/gamestate"
	"ctchen222/Four-In-A-Row/internal/leaderboard"
	"ctchen222/Four-In-A-Row/internal/session"
	"ctchen222/Four-In-A-Row/pkg/proto"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoard(t *testing.T) {
	var b gamestate.Board
	b[5][3] = proto.CellPlayerOne
	b[5][4] = proto.CellPlayerTwo
	b[4][3] = proto.Cell(7)

	var buf bytes.Buffer
	Board(&buf, b)

	want := "" +
		"| . . . . . . . |\n" +
		"| . . . . . . . |\n" +
		"| . . . . . . . |\n" +
		"| . . . . . . . |\n" +
		"| . . . ? . . . |\n" +
		"| . . . X O . . |\n" +
		"  0 1 2 3 4 5 6\n"
	assert.Equal(t, want, buf.String())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		view client.View
		want string
	}{
		{"idle", client.View{Status: session.StatusDisconnected}, "Disconnected. Enter a username to play.\n"},
		{"gave up", client.View{Status: session.StatusDisconnected, Exhausted: true}, "Disconnected: could not reach the server. Enter a username to try again.\n"},
		{"connecting", client.View{Status: session.StatusConnecting}, "Connecting...\n"},
		{"reconnecting", client.View{Status: session.StatusConnecting, Attempts: 2}, "Reconnecting (attempt 2)...\n"},
		{"waiting", client.View{Status: session.StatusConnectedWaiting}, "Waiting for another player to join...\n"},
		{"playing", client.View{Status: session.StatusPlaying, Identity: "alice", Game: gamestate.Snapshot{Turn: 2}}, "Turn: Player 2  (you are alice)\n"},
		{"won", client.View{Status: session.StatusEnded, Game: gamestate.Snapshot{Ended: true, Winner: "bob"}}, "Game over: bob wins\n"},
		{"draw", client.View{Status: session.StatusEnded, Game: gamestate.Snapshot{Ended: true, Winner: proto.DrawWinner}}, "Game over: draw\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Status(&buf, tt.view)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEvent(t *testing.T) {
	var buf bytes.Buffer

	Event(&buf, events.SessionStarted{SessionID: "s", Identity: "alice"})
	assert.Empty(t, buf.String())

	Event(&buf, events.ReconnectScheduled{Attempt: 1, MaxAttempts: 10, DelayMillis: 3000})
	assert.Equal(t, "Connection lost. Retrying in 3000ms (1/10)\n", buf.String())

	buf.Reset()
	Event(&buf, events.StatusChanged{From: session.StatusConnectedWaiting, To: session.StatusPlaying, Cause: session.EventStart})
	assert.Equal(t, "Game started. Enter a column number to play.\n", buf.String())
}

func TestLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	Leaderboard(&buf, nil)
	assert.Equal(t, "Leaderboard\n  No data yet\n", buf.String())

	buf.Reset()
	Leaderboard(&buf, []leaderboard.Entry{{Username: "alice", Wins: 5}, {Username: "bo", Wins: 2}})
	assert.Equal(t, "Leaderboard\n   1. alice 5\n   2. bo    2\n", buf.String())
}
