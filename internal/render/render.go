// Package render draws the session for a terminal.
package render

import (
	"ctchen222/Four-In-A-Row/internal/client"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/gamestate"
	"ctchen222/Four-In-A-Row/internal/leaderboard"
	"ctchen222/Four-In-A-Row/internal/session"
	"ctchen222/Four-In-A-Row/pkg/proto"
	"fmt"
	"io"
	"strings"
)

func cellGlyph(c proto.Cell) byte {
	switch c {
	case proto.CellEmpty:
		return '.'
	case proto.CellPlayerOne:
		return 'X'
	case proto.CellPlayerTwo:
		return 'O'
	default:
		return '?'
	}
}

// Board writes the grid with column numbers underneath.
func Board(w io.Writer, b gamestate.Board) {
	var sb strings.Builder
	for _, row := range b {
		sb.WriteByte('|')
		for _, cell := range row {
			sb.WriteByte(' ')
			sb.WriteByte(cellGlyph(cell))
		}
		sb.WriteString(" |\n")
	}
	sb.WriteString(" ")
	for c := 0; c < gamestate.Cols; c++ {
		fmt.Fprintf(&sb, " %d", c)
	}
	sb.WriteString("\n")
	io.WriteString(w, sb.String())
}

// Status writes a one-line summary of the view.
func Status(w io.Writer, v client.View) {
	switch v.Status {
	case session.StatusDisconnected:
		if v.Exhausted {
			fmt.Fprintln(w, "Disconnected: could not reach the server. Enter a username to try again.")
			return
		}
		fmt.Fprintln(w, "Disconnected. Enter a username to play.")
	case session.StatusConnecting:
		if v.Attempts > 0 {
			fmt.Fprintf(w, "Reconnecting (attempt %d)...\n", v.Attempts)
			return
		}
		fmt.Fprintln(w, "Connecting...")
	case session.StatusConnectedWaiting:
		fmt.Fprintln(w, "Waiting for another player to join...")
	case session.StatusPlaying:
		fmt.Fprintf(w, "Turn: Player %d  (you are %s)\n", v.Game.Turn, v.Identity)
	case session.StatusEnded:
		fmt.Fprintln(w, Result(v.Game))
	}
}

// Result describes a finished game.
func Result(s gamestate.Snapshot) string {
	if s.IsDraw() {
		return "Game over: draw"
	}
	return "Game over: " + s.Winner + " wins"
}

// Event writes a line for events worth showing. Others are ignored.
func Event(w io.Writer, ev events.Event) {
	switch ev := ev.(type) {
	case events.StatusChanged:
		switch ev.To {
		case session.StatusConnectedWaiting:
			fmt.Fprintln(w, "Connected. Waiting for another player to join...")
		case session.StatusPlaying:
			fmt.Fprintln(w, "Game started. Enter a column number to play.")
		}
	case events.StateReplaced:
		Board(w, ev.Snapshot.Board)
		fmt.Fprintf(w, "Turn: Player %d\n", ev.Snapshot.Turn)
	case events.GameEnded:
		fmt.Fprintln(w, Result(ev.Snapshot))
	case events.ReconnectScheduled:
		fmt.Fprintf(w, "Connection lost. Retrying in %dms (%d/%d)\n", ev.DelayMillis, ev.Attempt, ev.MaxAttempts)
	case events.GaveUp:
		fmt.Fprintf(w, "Gave up after %d reconnect attempts.\n", ev.Attempts)
	}
}

// Leaderboard writes one line per player.
func Leaderboard(w io.Writer, entries []leaderboard.Entry) {
	fmt.Fprintln(w, "Leaderboard")
	if len(entries) == 0 {
		fmt.Fprintln(w, "  No data yet")
		return
	}
	width := 0
	for _, e := range entries {
		width = max(width, len(e.Username))
	}
	for i, e := range entries {
		fmt.Fprintf(w, "  %2d. %-*s %d\n", i+1, width, e.Username, e.Wins)
	}
}
