package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/chess/rules"
	svc "github.com/park285/cheese-engine/internal/service/chess"
	"github.com/park285/cheese-engine/pkg/enginedto"
)

const backRankMateFEN = "4r1k1/5ppp/8/8/8/8/8/K3R3 w - - 0 1"

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	session, err := svc.NewSession(rules.New(), corechess.NewSearcher(nil), svc.Config{}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return NewDispatcher(session, nil, nil)
}

func strp(s string) *string { return &s }
func intp(n int) *int { return &n }

func dispatch(t *testing.T, d *Dispatcher, req enginedto.Request) *enginedto.Response {
	t.Helper()
	return d.Dispatch(context.Background(), req)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestDispatchIllegalMove(t *testing.T) {
	d := newDispatcher(t)
	if resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit}); resp != nil {
		t.Fatalf("INIT of a playable position should not answer, got %+v", resp)
	}
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: "e2", To: "e5"})
	want := `{"type":"ERROR","message":"Illegal move","legalMoves":["e3","e4"]}`
	if got := mustJSON(t, resp); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestDispatchCheckmateByPlayer(t *testing.T) {
	d := newDispatcher(t)
	dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("6k1/5Q2/7K/8/8/8/8/8 w - - 0 1")})
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: "f7", To: "g7"})
	if got := mustJSON(t, resp); got != `{"type":"CHECKMATE","winner":"w"}` {
		t.Fatalf("got %s", got)
	}
	again := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: "h6", To: "h5"})
	if again.Type != enginedto.TypeError || again.Message != "Game over" {
		t.Fatalf("expected game over error, got %+v", again)
	}
}

func TestDispatchStalemateByPlayer(t *testing.T) {
	d := newDispatcher(t)
	dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("8/8/8/8/8/1Q6/2K5/k7 w - - 0 1")})
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: "c2", To: "c1"})
	if got := mustJSON(t, resp); got != `{"type":"STALEMATE"}` {
		t.Fatalf("got %s", got)
	}
}

func TestDispatchStalemateAdjacentKings(t *testing.T) {
	d := newDispatcher(t)
	if resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("8/8/8/8/8/1Q6/K7/k7 w - - 0 1")}); resp != nil {
		t.Fatalf("INIT of a playable position should be silent, got %+v", resp)
	}
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: "a2", To: "a3"})
	if got := mustJSON(t, resp); got != `{"type":"STALEMATE"}` {
		t.Fatalf("got %s", got)
	}
}

func TestDomainErrorCodes(t *testing.T) {
	d := newDispatcher(t)
	cases := []struct {
		name string
		err  error
		code string
		msg  string
	}{
		{"illegal", &svc.IllegalMoveError{From: "e2", To: "e5", LegalMoves: []string{"e3", "e4"}}, enginedto.CodeIllegalMove, "Illegal move"},
		{"fen", fmt.Errorf("%w: bad rank", corechess.ErrInvalidPosition), enginedto.CodeInvalidFEN, "Invalid FEN: bad rank"},
		{"over", svc.ErrGameOver, enginedto.CodeGameOver, "Game over"},
		{"uninit", svc.ErrNotInitialized, enginedto.CodeNotInitialized, "Game not initialized"},
		{"no moves", svc.ErrNoLegalMoves, enginedto.CodeNoLegalMoves, "no legal moves"},
		{"other", errors.New("boom"), enginedto.CodeInternal, "Engine error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			de := d.domainError(tc.err)
			if de.Code != tc.code || de.Message != tc.msg {
				t.Fatalf("got %+v", de)
			}
			resp := d.errorResponse(tc.err)
			if resp.Type != enginedto.TypeError || resp.Message != tc.msg {
				t.Fatalf("response %+v", resp)
			}
			if (tc.code == enginedto.CodeIllegalMove) != (len(resp.LegalMoves) > 0) {
				t.Fatalf("legalMoves only belong to illegal moves: %+v", resp)
			}
		})
	}
}

func TestDispatchEngineReplies(t *testing.T) {
	cases := []struct {
		name     string
		fen      string
		from, to string
		wantFrom string
	}{
		{"opening", "", "e2", "e4", ""},
		{"capture", "k7/8/8/3p4/4P3/8/8/7K w - - 0 1", "e4", "d5", "a8"},
		{"king only", "8/8/8/8/8/8/2k5/7K w - - 0 1", "h1", "g1", "c2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t)
			dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp(tc.fen), Difficulty: intp(1)})
			resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypePlayerMove, From: tc.from, To: tc.to})
			if resp == nil || resp.Type != enginedto.TypeAIMove {
				t.Fatalf("expected AI_MOVE, got %+v", resp)
			}
			if resp.Status != "" || resp.Winner != "" {
				t.Fatalf("game should continue, got %+v", resp)
			}
			if tc.wantFrom != "" && resp.From != tc.wantFrom {
				t.Fatalf("engine moved from %s, want %s", resp.From, tc.wantFrom)
			}
			if tc.wantFrom == "" && resp.From[1] != '7' && resp.From[1] != '8' {
				t.Fatalf("black reply should start on rank 7 or 8, got %s", resp.From)
			}
		})
	}
}

func TestDispatchEngineMateIsFolded(t *testing.T) {
	d := newDispatcher(t)
	dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp(backRankMateFEN)})
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypeRequestAIMove, Difficulty: intp(1)})
	if resp == nil || resp.Type != enginedto.TypeAIMove {
		t.Fatalf("expected AI_MOVE, got %+v", resp)
	}
	if resp.From != "e1" || resp.To != "e8" {
		t.Fatalf("expected e1e8, got %s%s", resp.From, resp.To)
	}
	if resp.Status != enginedto.StatusCheckmate || resp.Winner != "w" {
		t.Fatalf("terminal status not folded: %+v", resp)
	}
}

func TestDispatchInitTerminalAndInvalid(t *testing.T) {
	d := newDispatcher(t)
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("6k1/6Q1/7K/8/8/8/8/8 b - - 0 1")})
	if got := mustJSON(t, resp); got != `{"type":"CHECKMATE","winner":"w"}` {
		t.Fatalf("got %s", got)
	}
	resp = dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("8/8/8/8/8/1Q6/8/k1K5 b - - 0 1")})
	if got := mustJSON(t, resp); got != `{"type":"STALEMATE"}` {
		t.Fatalf("got %s", got)
	}
	resp = dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit, FEN: strp("nonsense")})
	if resp == nil || resp.Type != enginedto.TypeError {
		t.Fatalf("expected ERROR for bad FEN, got %+v", resp)
	}
}

func TestDispatchLegalMoves(t *testing.T) {
	d := newDispatcher(t)
	resp := dispatch(t, d, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "e2"})
	if got := mustJSON(t, resp); got != `{"type":"LEGAL_MOVES","square":"e2","moves":[]}` {
		t.Fatalf("before INIT got %s", got)
	}
	dispatch(t, d, enginedto.Request{Type: enginedto.TypeInit})
	resp = dispatch(t, d, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "b1"})
	if got := mustJSON(t, resp); got != `{"type":"LEGAL_MOVES","square":"b1","moves":["a3","c3"]}` {
		t.Fatalf("got %s", got)
	}
}

func TestDispatchUninitialized(t *testing.T) {
	d := newDispatcher(t)
	for _, typ := range []string{enginedto.TypePlayerMove, enginedto.TypeRequestAIMove} {
		resp := dispatch(t, d, enginedto.Request{Type: typ, From: "e2", To: "e4"})
		if resp == nil || resp.Type != enginedto.TypeError || resp.Message != "Game not initialized" {
			t.Fatalf("%s before INIT: %+v", typ, resp)
		}
	}
}

func TestDispatchDropsUnknown(t *testing.T) {
	d := newDispatcher(t)
	for _, typ := range []string{"", "init", "RESIGN"} {
		if resp := dispatch(t, d, enginedto.Request{Type: typ}); resp != nil {
			t.Fatalf("type %q should be dropped, got %+v", typ, resp)
		}
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if resp := d.Dispatch(ctx, enginedto.Request{Type: enginedto.TypeGetLegalMoves, Square: "e2"}); resp != nil {
		t.Fatalf("expected nil on cancelled context, got %+v", resp)
	}
}
