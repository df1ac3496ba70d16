package chess

import (
	"errors"
	"strings"
)

var (
	ErrIllegalMove     = errors.New("illegal move")
	ErrInvalidPosition = errors.New("invalid position notation")
	ErrInvalidSquare   = errors.New("invalid square")
)

// InvalidPositionReason strips the ErrInvalidPosition prefix from a wrapped
// parse error, leaving the parser's own explanation.
func InvalidPositionReason(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), ErrInvalidPosition.Error()+": ")
}

// Side is the colour of a piece or of the player to move.
type Side int

const (
	White Side = iota
	Black
)

// Code returns the single-letter side tag used on the wire ("w" or "b").
func (s Side) Code() string {
	if s == Black {
		return "b"
	}
	return "w"
}

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

type PieceKind int

const (
	NoKind PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Letter is the lowercase UCI letter for the kind; empty for NoKind.
func (k PieceKind) Letter() string {
	switch k {
	case Pawn:
		return "p"
	case Knight:
		return "n"
	case Bishop:
		return "b"
	case Rook:
		return "r"
	case Queen:
		return "q"
	case King:
		return "k"
	default:
		return ""
	}
}

func kindFromLetter(c byte) PieceKind {
	switch c {
	case 'n':
		return Knight
	case 'b':
		return Bishop
	case 'r':
		return Rook
	case 'q':
		return Queen
	default:
		return NoKind
	}
}

type Piece struct {
	Kind PieceKind
	Side Side
}

// Square is a two-character board coordinate such as "e4".
type Square string

// ParseSquare normalises s and reports whether it names a board square.
func ParseSquare(s string) (Square, bool) {
	sq := Square(strings.ToLower(strings.TrimSpace(s)))
	return sq, sq.Valid()
}

func (s Square) Valid() bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func (s Square) String() string { return string(s) }

// Move is a from/to pair with an optional promotion kind. Two moves are equal
// when all three fields are equal.
type Move struct {
	From      Square
	To        Square
	Promotion PieceKind
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	return string(m.From) + string(m.To) + m.Promotion.Letter()
}

func (m Move) String() string { return m.UCI() }

func (m Move) IsZero() bool { return m == Move{} }

// ParseUCI parses a long algebraic move ("e2e4", "e7e8q").
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, ErrIllegalMove
	}
	from, ok1 := ParseSquare(s[0:2])
	to, ok2 := ParseSquare(s[2:4])
	if !ok1 || !ok2 {
		return Move{}, ErrInvalidSquare
	}
	mv := Move{From: from, To: to}
	if len(s) == 5 {
		mv.Promotion = kindFromLetter(s[4])
		if mv.Promotion == NoKind {
			return Move{}, ErrIllegalMove
		}
	}
	return mv, nil
}

// Position is a handle on a position owned by the rules oracle. Positions are
// values: Apply returns a new Position and never changes the receiver.
type Position interface {
	LegalMoves() []Move
	LegalMovesFrom(sq Square) []Move
	Apply(mv Move) (Position, error)
	Checkmate() bool
	Stalemate() bool
	Turn() Side
	Pieces() map[Square]Piece
	FEN() string
}

// Oracle loads positions. It is the only way the engine obtains a Position.
type Oracle interface {
	Start() Position
	Load(notation string) (Position, error)
}

// Terminal reports whether the side to move has no legal moves.
func Terminal(pos Position) bool {
	return pos.Checkmate() || pos.Stalemate()
}
