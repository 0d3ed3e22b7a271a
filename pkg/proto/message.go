package proto

import (
	"ctchen222/Four-In-A-Row/internal/validator"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of the "type" field that selects a message variant.
type Kind string

const (
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
	KindStart     Kind = "start"
	KindStartGame Kind = "start_game"
	KindState     Kind = "state"
	KindEnd       Kind = "end"
	KindMove      Kind = "move"
)

// DrawWinner is the winner value the server sends when a game ends without a winner.
const DrawWinner = "Draw"

var (
	ErrMissingType  = errors.New("message has no type")
	ErrNotOutbound  = errors.New("message kind cannot be sent")
	errInvalidShape = errors.New("invalid message payload")
)

// Cell is the wire encoding of a single board cell.
type Cell int

const (
	CellEmpty     Cell = 0
	CellPlayerOne Cell = 1
	CellPlayerTwo Cell = 2
)

func (c Cell) String() string {
	switch c {
	case CellEmpty:
		return "empty"
	case CellPlayerOne:
		return "player-one"
	case CellPlayerTwo:
		return "player-two"
	default:
		return fmt.Sprintf("cell(%d)", int(c))
	}
}

// Message is one decoded protocol message. The concrete type is one of
// Ping, Pong, Start, State, End, Move or Unknown.
type Message interface {
	Kind() Kind
}

// Ping is the server's application-level liveness request.
type Ping struct{}

// Pong acknowledges a Ping.
type Pong struct{}

// Start announces that an opponent was found. Alias holds the literal type the
// server used, since "start" and "start_game" are treated as the same event.
type Start struct {
	Alias Kind
}

// State is an authoritative board snapshot.
type State struct {
	Board [][]Cell
	Turn  int
}

// End announces the result of the game. Winner is a username or DrawWinner.
type End struct {
	Winner string
}

// Move is sent by the client to drop a disc into a column.
type Move struct {
	Column int
}

// Unknown preserves a message whose type this client does not understand.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Ping) Kind() Kind      { return KindPing }
func (Pong) Kind() Kind      { return KindPong }
func (s Start) Kind() Kind   { return s.Alias }
func (State) Kind() Kind     { return KindState }
func (End) Kind() Kind       { return KindEnd }
func (Move) Kind() Kind      { return KindMove }
func (u Unknown) Kind() Kind { return Kind(u.Type) }

type envelope struct {
	Type string `json:"type" validate:"required"`
}

type stateWire struct {
	Board [][]Cell `json:"board" validate:"required"`
	Turn  *int     `json:"turn" validate:"required"`
}

type endWire struct {
	Winner string `json:"winner" validate:"required"`
}

type moveWire struct {
	Type   Kind `json:"type"`
	Column *int `json:"column" validate:"required"`
}

type bareWire struct {
	Type Kind `json:"type"`
}

// Decode parses one self-contained JSON object into a concrete Message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch Kind(env.Type) {
	case KindPing:
		return Ping{}, nil
	case KindPong:
		return Pong{}, nil
	case KindStart, KindStartGame:
		return Start{Alias: Kind(env.Type)}, nil
	case KindState:
		var w stateWire
		if err := unmarshalValid(data, &w); err != nil {
			return nil, err
		}
		return State{Board: w.Board, Turn: *w.Turn}, nil
	case KindEnd:
		var w endWire
		if err := unmarshalValid(data, &w); err != nil {
			return nil, err
		}
		return End{Winner: w.Winner}, nil
	case KindMove:
		var w moveWire
		if err := unmarshalValid(data, &w); err != nil {
			return nil, err
		}
		return Move{Column: *w.Column}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: env.Type, Raw: raw}, nil
	}
}

func unmarshalValid(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validator.GetValidator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidShape, err)
	}
	return nil
}

// Encode serializes a message the client is allowed to send.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Move:
		return json.Marshal(moveWire{Type: KindMove, Column: &msg.Column})
	case Pong:
		return json.Marshal(bareWire{Type: KindPong})
	case Ping:
		return json.Marshal(bareWire{Type: KindPing})
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotOutbound, m.Kind())
	}
}
