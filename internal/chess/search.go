package chess

import (
	"math"
	"time"
)

const (
	minDepth = 1

	// alpha/beta seeds; never returned to callers.
	negInf = math.MinInt
	posInf = math.MaxInt
)

// SearchResult is the outcome of one root search.
type SearchResult struct {
	Move     Move
	Score    int
	Found    bool
	Depth    int
	Nodes    int
	Cutoffs  int
	Duration time.Duration
}

// Searcher picks moves with minimax and alpha-beta pruning. It holds no
// per-search state and is safe for concurrent use.
type Searcher struct {
	eval Evaluator
}

func NewSearcher(eval Evaluator) *Searcher {
	if eval == nil {
		eval = MaterialEvaluator{}
	}
	return &Searcher{eval: eval}
}

// BestMove returns the best move for the side to move, or false when the
// position has no legal moves.
func (s *Searcher) BestMove(pos Position, depth int) (Move, bool) {
	res := s.Search(pos, depth)
	return res.Move, res.Found
}

// Search runs a full-width search of the given depth in plies. White
// maximises and Black minimises; among equally scored root moves the first
// one in enumeration order wins.
func (s *Searcher) Search(pos Position, depth int) SearchResult {
	start := time.Now()
	if depth < minDepth {
		depth = minDepth
	}
	res := SearchResult{Depth: depth}
	if pos == nil {
		return res
	}

	moves := pos.LegalMoves()
	if len(moves) == 0 {
		res.Duration = time.Since(start)
		return res
	}

	maximize := pos.Turn() == White
	alpha, beta := negInf, posInf
	for _, mv := range moves {
		child, err := pos.Apply(mv)
		if err != nil {
			continue
		}
		score := s.alphaBeta(child, depth-1, alpha, beta, &res)
		if !res.Found || (maximize && score > res.Score) || (!maximize && score < res.Score) {
			res.Move = mv
			res.Score = score
			res.Found = true
		}
		if maximize {
			alpha = max(alpha, res.Score)
		} else {
			beta = min(beta, res.Score)
		}
	}
	res.Duration = time.Since(start)
	return res
}

func (s *Searcher) alphaBeta(pos Position, depth, alpha, beta int, res *SearchResult) int {
	res.Nodes++
	if depth <= 0 {
		return s.eval.Score(pos)
	}
	// No legal moves means checkmate or stalemate.
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return s.eval.Score(pos)
	}

	if pos.Turn() == White {
		best := negInf
		for _, mv := range moves {
			child, err := pos.Apply(mv)
			if err != nil {
				continue
			}
			best = max(best, s.alphaBeta(child, depth-1, alpha, beta, res))
			alpha = max(alpha, best)
			if beta <= alpha {
				res.Cutoffs++
				break
			}
		}
		if best == negInf {
			return s.eval.Score(pos)
		}
		return best
	}

	best := posInf
	for _, mv := range moves {
		child, err := pos.Apply(mv)
		if err != nil {
			continue
		}
		best = min(best, s.alphaBeta(child, depth-1, alpha, beta, res))
		beta = min(beta, best)
		if beta <= alpha {
			res.Cutoffs++
			break
		}
	}
	if best == posInf {
		return s.eval.Score(pos)
	}
	return best
}
