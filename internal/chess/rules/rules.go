// Package rules adapts github.com/corentings/chess/v2 to the engine's
// Oracle and Position interfaces.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	core "github.com/park285/cheese-engine/internal/chess"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Oracle struct{}

func New() *Oracle { return &Oracle{} }

func (o *Oracle) Start() core.Position {
	return wrap(nchess.NewGame().Position())
}

// Load parses a FEN. An empty notation or "startpos" yields the start position.
func (o *Oracle) Load(notation string) (core.Position, error) {
	fen := strings.TrimSpace(notation)
	if fen == "" || strings.EqualFold(fen, "startpos") {
		return o.Start(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPosition, err)
	}
	game := nchess.NewGame(opt)
	pos := game.Position()
	if pos == nil {
		return nil, core.ErrInvalidPosition
	}
	return wrap(pos), nil
}

type position struct {
	pos *nchess.Position

	once  sync.Once
	moves []core.Move
}

func wrap(p *nchess.Position) *position {
	return &position{pos: p}
}

// LegalMoves is sorted by UCI text so enumeration order is stable.
func (p *position) LegalMoves() []core.Move {
	p.once.Do(func() {
		valid := p.pos.ValidMoves()
		out := make([]core.Move, 0, len(valid))
		for _, mv := range valid {
			out = append(out, core.Move{
				From:      core.Square(mv.S1().String()),
				To:        core.Square(mv.S2().String()),
				Promotion: kindFrom(mv.Promo()),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UCI() < out[j].UCI() })
		p.moves = out
	})
	return append([]core.Move(nil), p.moves...)
}

func (p *position) LegalMovesFrom(sq core.Square) []core.Move {
	if !sq.Valid() {
		return nil
	}
	var out []core.Move
	for _, mv := range p.LegalMoves() {
		if mv.From == sq {
			out = append(out, mv)
		}
	}
	return out
}

func (p *position) legal(mv core.Move) bool {
	for _, cand := range p.LegalMoves() {
		if cand == mv {
			return true
		}
	}
	return false
}

func (p *position) Apply(mv core.Move) (core.Position, error) {
	if !p.legal(mv) {
		return nil, core.ErrIllegalMove
	}
	m, err := nchess.UCINotation{}.Decode(p.pos, mv.UCI())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIllegalMove, err)
	}
	return wrap(p.pos.Update(m)), nil
}

func (p *position) Checkmate() bool { return p.pos.Status() == nchess.Checkmate }

func (p *position) Stalemate() bool { return p.pos.Status() == nchess.Stalemate }

func (p *position) Turn() core.Side {
	if p.pos.Turn() == nchess.Black {
		return core.Black
	}
	return core.White
}

func (p *position) Pieces() map[core.Square]core.Piece {
	out := make(map[core.Square]core.Piece, 32)
	board := p.pos.Board()
	if board == nil {
		return out
	}
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := board.Piece(sq)
			if piece == nchess.NoPiece {
				continue
			}
			side := core.White
			if piece.Color() == nchess.Black {
				side = core.Black
			}
			out[core.Square(sq.String())] = core.Piece{Kind: kindFrom(piece.Type()), Side: side}
		}
	}
	return out
}

func (p *position) FEN() string { return p.pos.String() }

func kindFrom(pt nchess.PieceType) core.PieceKind {
	switch pt {
	case nchess.Pawn:
		return core.Pawn
	case nchess.Knight:
		return core.Knight
	case nchess.Bishop:
		return core.Bishop
	case nchess.Rook:
		return core.Rook
	case nchess.Queen:
		return core.Queen
	case nchess.King:
		return core.King
	default:
		return core.NoKind
	}
}

// SAN replays UCI moves from startFEN and returns them in algebraic notation.
func SAN(startFEN string, moves []string) ([]string, error) {
	game := nchess.NewGame()
	if fen := strings.TrimSpace(startFEN); fen != "" && !strings.EqualFold(fen, "startpos") {
		opt, err := nchess.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidPosition, err)
		}
		game = nchess.NewGame(opt)
	}
	notationUCI := nchess.UCINotation{}
	notationSAN := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		pos := game.Position()
		m, err := notationUCI.Decode(pos, strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		out = append(out, notationSAN.Encode(pos, m))
		if err := game.Move(m, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return out, nil
}
