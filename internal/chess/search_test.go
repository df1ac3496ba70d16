package chess_test

import (
	"testing"

	"github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/chess/rules"
)

const (
	hangingPawnFEN = "4k3/8/4p3/3p4/8/8/8/3QK3 w - - 0 1"
	midgameFEN     = "r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4"
	freeQueenFEN   = "4k3/8/8/3q4/8/8/8/3RK3 w - - 0 1"
	mateFEN        = "6k1/6Q1/7K/8/8/8/8/8 b - - 0 1"
)

func load(t *testing.T, fen string) chess.Position {
	t.Helper()
	pos, err := rules.New().Load(fen)
	if err != nil {
		t.Fatalf("load %q: %v", fen, err)
	}
	return pos
}

func TestMaterialEvaluator(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		want int
	}{
		{"start", rules.StartFEN, 0},
		{"white queen up", "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", 9},
		{"black rook and pawn", "4k3/4p3/8/8/8/8/8/r3K3 w - - 0 1", -6},
		{"kings only", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", 0},
	}
	eval := chess.MaterialEvaluator{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eval.Score(load(t, tc.fen)); got != tc.want {
				t.Fatalf("score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMaterialEvaluatorSymmetric(t *testing.T) {
	eval := chess.MaterialEvaluator{}
	w := eval.Score(load(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1"))
	b := eval.Score(load(t, "r3k3/8/8/8/8/8/8/4K3 w - - 0 1"))
	if w != -b {
		t.Fatalf("expected mirrored scores, got %d and %d", w, b)
	}
}

func TestBestMoveCapturesFreeQueen(t *testing.T) {
	s := chess.NewSearcher(nil)
	mv, ok := s.BestMove(load(t, freeQueenFEN), 1)
	if !ok {
		t.Fatalf("expected a move")
	}
	if mv.UCI() != "d1d5" {
		t.Fatalf("expected d1d5, got %s", mv.UCI())
	}
}

func TestBestMoveBlackMinimizes(t *testing.T) {
	s := chess.NewSearcher(nil)
	// black queen can take the undefended white rook on d1
	mv, ok := s.BestMove(load(t, "3qk3/8/8/8/8/8/8/3RK3 b - - 0 1"), 1)
	if !ok {
		t.Fatalf("expected a move")
	}
	if mv.UCI() != "d8d1" {
		t.Fatalf("expected d8d1, got %s", mv.UCI())
	}
}

func TestDepthChangesChoice(t *testing.T) {
	s := chess.NewSearcher(nil)
	pos := load(t, hangingPawnFEN)

	shallow, ok := s.BestMove(pos, 1)
	if !ok || shallow.UCI() != "d1d5" {
		t.Fatalf("depth 1 should grab the pawn, got %s (ok=%v)", shallow.UCI(), ok)
	}
	deep, ok := s.BestMove(pos, 3)
	if !ok {
		t.Fatalf("depth 3 returned no move")
	}
	if deep == shallow {
		t.Fatalf("depth 3 should avoid the defended pawn, still chose %s", deep.UCI())
	}
}

func TestBestMoveDeterministic(t *testing.T) {
	s := chess.NewSearcher(nil)
	pos := load(t, midgameFEN)
	first, ok := s.BestMove(pos, 2)
	if !ok {
		t.Fatalf("expected a move")
	}
	for i := 0; i < 3; i++ {
		again, _ := s.BestMove(pos, 2)
		if again != first {
			t.Fatalf("run %d chose %s, first run chose %s", i, again.UCI(), first.UCI())
		}
	}
}

func TestBestMoveDoesNotMutatePosition(t *testing.T) {
	s := chess.NewSearcher(nil)
	pos := load(t, midgameFEN)
	before := pos.FEN()
	for depth := 1; depth <= 3; depth++ {
		s.BestMove(pos, depth)
		if after := pos.FEN(); after != before {
			t.Fatalf("depth %d changed position: %q -> %q", depth, before, after)
		}
	}
}

func TestBestMoveTerminalPosition(t *testing.T) {
	s := chess.NewSearcher(nil)
	if mv, ok := s.BestMove(load(t, mateFEN), 2); ok {
		t.Fatalf("expected no move on checkmated position, got %s", mv.UCI())
	}
	if _, ok := s.BestMove(load(t, "8/8/8/8/8/1Q6/8/k1K5 b - - 0 1"), 1); ok {
		t.Fatalf("expected no move on stalemated position")
	}
}

func TestSearchScoreIsFinite(t *testing.T) {
	s := chess.NewSearcher(nil)
	res := s.Search(load(t, "4k3/8/8/8/8/8/8/4K3 w - - 0 1"), 2)
	if !res.Found {
		t.Fatalf("expected a move")
	}
	if res.Score != 0 {
		t.Fatalf("bare kings should score 0, got %d", res.Score)
	}
	if res.Nodes == 0 {
		t.Fatalf("expected node count to be recorded")
	}
}

func TestSearchClampsDepth(t *testing.T) {
	s := chess.NewSearcher(nil)
	res := s.Search(load(t, freeQueenFEN), 0)
	if res.Depth != 1 || res.Move.UCI() != "d1d5" {
		t.Fatalf("depth 0 should behave as depth 1, got depth=%d move=%s", res.Depth, res.Move.UCI())
	}
}
