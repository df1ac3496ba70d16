package chess

var pieceValues = map[PieceKind]int{
	Pawn:   1,
	Knight: 3,
	Bishop: 3,
	Rook:   5,
	Queen:  9,
	King:   0,
}

// Evaluator scores a position from White's point of view.
type Evaluator interface {
	Score(pos Position) int
}

// MaterialEvaluator sums piece values, White positive and Black negative.
type MaterialEvaluator struct{}

func (MaterialEvaluator) Score(pos Position) int {
	if pos == nil {
		return 0
	}
	score := 0
	for _, p := range pos.Pieces() {
		v := PieceValue(p.Kind)
		if p.Side == White {
			score += v
		} else {
			score -= v
		}
	}
	return score
}

// PieceValue returns the material value used by MaterialEvaluator.
func PieceValue(k PieceKind) int {
	return pieceValues[k]
}
