package gamestate

import "ctchen222/Four-In-A-Row/pkg/proto"

// Board dimensions
const (
	Rows = 6
	Cols = 7
)

// Board is a row-major grid; row 0 is the top row.
type Board [Rows][Cols]proto.Cell

// BoardFromRows copies a wire board into a fixed-size Board. Cells outside the
// 6x7 grid are ignored and missing cells stay empty.
func BoardFromRows(rows [][]proto.Cell) Board {
	var b Board
	for r := 0; r < Rows && r < len(rows); r++ {
		for c := 0; c < Cols && c < len(rows[r]); c++ {
			b[r][c] = rows[r][c]
		}
	}
	return b
}

// Snapshot is a copy of the store's observable state.
type Snapshot struct {
	Board  Board
	Turn   int
	Winner string
	Ended  bool
}

// IsDraw reports whether the finished game had no winner.
func (s Snapshot) IsDraw() bool {
	return s.Ended && s.Winner == proto.DrawWinner
}

// Store holds the latest authoritative board and turn. Every field is written
// by exactly one method. It is not safe for concurrent use.
type Store struct {
	board  Board
	turn   int
	winner string
	ended  bool
}

// NewStore returns a store with an empty board and turn 0.
func NewStore() *Store {
	return &Store{}
}

// ApplyState replaces the board and turn wholesale. The snapshot comes from the
// authoritative server and is not checked for legality.
func (s *Store) ApplyState(board [][]proto.Cell, turn int) {
	s.board = BoardFromRows(board)
	s.turn = turn
	s.winner = ""
	s.ended = false
}

// ApplyEnd records the result and keeps the last board and turn for display.
func (s *Store) ApplyEnd(winner string) {
	s.winner = winner
	s.ended = true
}

// Reset returns the store to its initial state.
func (s *Store) Reset() {
	*s = Store{}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Board:  s.board,
		Turn:   s.turn,
		Winner: s.winner,
		Ended:  s.ended,
	}
}
