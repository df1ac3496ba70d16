package enginedto

import (
	"encoding/json"
	"testing"
)

func TestLegalMovesKeepsEmptyList(t *testing.T) {
	b, err := json.Marshal(Response{Type: TypeLegalMoves, Square: "e7"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(b); got != `{"type":"LEGAL_MOVES","square":"e7","moves":[]}` {
		t.Fatalf("unexpected json %s", got)
	}
}

func TestErrorOmitsUnsetFields(t *testing.T) {
	b, err := json.Marshal(Response{Type: TypeError, Message: "Illegal move", LegalMoves: []string{"e3", "e4"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	if got != `{"type":"ERROR","message":"Illegal move","legalMoves":["e3","e4"]}` {
		t.Fatalf("unexpected json %s", got)
	}
}

func TestDomainErrorRendersErrorFrame(t *testing.T) {
	de := &DomainError{Code: CodeGameOver, Message: "Game over"}
	if de.Error() != "game_over: Game over" {
		t.Fatalf("Error() = %q", de.Error())
	}
	b, err := json.Marshal(de.Response())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(b); got != `{"type":"ERROR","message":"Game over"}` {
		t.Fatalf("unexpected json %s", got)
	}
}

func TestRequestOptionalFields(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"type":"INIT"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.FEN != nil || req.Difficulty != nil {
		t.Fatalf("optional fields should stay nil: %+v", req)
	}
	if req.FENOr() != "" || req.DifficultyOr() != 0 {
		t.Fatalf("defaults wrong")
	}
	if err := json.Unmarshal([]byte(`{"type":"PLAYER_MOVE","from":"e2","to":"e4","difficulty":3}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.DifficultyOr() != 3 || req.From != "e2" || req.To != "e4" {
		t.Fatalf("unexpected request %+v", req)
	}
}
